package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const TradePayloadSize = 48

// EncodeTrade serializes a trade into a fixed-size payload.
func EncodeTrade(dst []byte, t schema.Trade) []byte {
	if cap(dst) < TradePayloadSize {
		dst = make([]byte, TradePayloadSize)
	} else {
		dst = dst[:TradePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(t.InstrumentID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(t.AggressorSide))
	binary.LittleEndian.PutUint16(dst[6:8], t.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(t.Price))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(t.Qty))
	binary.LittleEndian.PutUint64(dst[24:32], t.TradeID)
	binary.LittleEndian.PutUint64(dst[32:40], t.MakerOrderID)
	binary.LittleEndian.PutUint64(dst[40:48], t.TakerOrderID)

	return dst
}

// DecodeTrade parses a fixed-size trade payload.
func DecodeTrade(src []byte) (schema.Trade, bool) {
	if len(src) < TradePayloadSize {
		return schema.Trade{}, false
	}
	return schema.Trade{
		InstrumentID:  schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		AggressorSide: schema.Side(binary.LittleEndian.Uint16(src[4:6])),
		Flags:         binary.LittleEndian.Uint16(src[6:8]),
		Price:         schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Qty:           schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		TradeID:       binary.LittleEndian.Uint64(src[24:32]),
		MakerOrderID:  binary.LittleEndian.Uint64(src[32:40]),
		TakerOrderID:  binary.LittleEndian.Uint64(src[40:48]),
	}, true
}

const QuotePayloadSize = 40

// EncodeQuote serializes a quote into a fixed-size payload.
func EncodeQuote(dst []byte, q schema.Quote) []byte {
	if cap(dst) < QuotePayloadSize {
		dst = make([]byte, QuotePayloadSize)
	} else {
		dst = dst[:QuotePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(q.InstrumentID))
	binary.LittleEndian.PutUint16(dst[4:6], q.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], q.Reserved)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(q.BidPrice))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(q.BidQty))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(q.AskPrice))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(q.AskQty))

	return dst
}

// DecodeQuote parses a fixed-size quote payload.
func DecodeQuote(src []byte) (schema.Quote, bool) {
	if len(src) < QuotePayloadSize {
		return schema.Quote{}, false
	}
	return schema.Quote{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Flags:        binary.LittleEndian.Uint16(src[4:6]),
		Reserved:     binary.LittleEndian.Uint16(src[6:8]),
		BidPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		BidQty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		AskPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		AskQty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const BookDeltaPayloadSize = 40

// EncodeBookDelta serializes a book delta into a fixed-size payload.
func EncodeBookDelta(dst []byte, d schema.BookDelta) []byte {
	if cap(dst) < BookDeltaPayloadSize {
		dst = make([]byte, BookDeltaPayloadSize)
	} else {
		dst = dst[:BookDeltaPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(d.InstrumentID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(d.Action))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(d.Side))
	binary.LittleEndian.PutUint16(dst[8:10], d.Flags)
	for i := 10; i < 16; i++ {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint64(dst[16:24], d.OrderID)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(d.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(d.Qty))

	return dst
}

// DecodeBookDelta parses a fixed-size book delta payload.
func DecodeBookDelta(src []byte) (schema.BookDelta, bool) {
	if len(src) < BookDeltaPayloadSize {
		return schema.BookDelta{}, false
	}
	return schema.BookDelta{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Action:       schema.BookAction(binary.LittleEndian.Uint16(src[4:6])),
		Side:         schema.Side(binary.LittleEndian.Uint16(src[6:8])),
		Flags:        binary.LittleEndian.Uint16(src[8:10]),
		OrderID:      binary.LittleEndian.Uint64(src[16:24]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const InstrumentDefPayloadSize = 56

// EncodeInstrumentDef serializes an instrument definition into a fixed-size
// payload.
func EncodeInstrumentDef(dst []byte, d schema.InstrumentDef) []byte {
	if cap(dst) < InstrumentDefPayloadSize {
		dst = make([]byte, InstrumentDefPayloadSize)
	} else {
		dst = dst[:InstrumentDefPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(d.ID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(d.VenueID))
	binary.LittleEndian.PutUint16(dst[6:8], d.Tradable)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(d.PriceScale))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(d.QtyScale))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(d.TickSize))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(d.LotSize))
	copy(dst[32:56], d.Symbol[:])

	return dst
}

// DecodeInstrumentDef parses a fixed-size instrument definition payload.
func DecodeInstrumentDef(src []byte) (schema.InstrumentDef, bool) {
	if len(src) < InstrumentDefPayloadSize {
		return schema.InstrumentDef{}, false
	}
	d := schema.InstrumentDef{
		ID:         schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		VenueID:    schema.VenueID(binary.LittleEndian.Uint16(src[4:6])),
		Tradable:   binary.LittleEndian.Uint16(src[6:8]),
		PriceScale: schema.Scale(int32(binary.LittleEndian.Uint32(src[8:12]))),
		QtyScale:   schema.Scale(int32(binary.LittleEndian.Uint32(src[12:16]))),
		TickSize:   schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		LotSize:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
	}
	copy(d.Symbol[:], src[32:56])
	return d, true
}
