package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 56

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, o schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], o.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], o.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(o.InstrumentID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(o.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(o.Type))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(o.TimeInForce))
	binary.LittleEndian.PutUint16(dst[22:24], o.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(o.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(o.TriggerPrice))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(o.Qty))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(o.ExpireTs))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		Side:         schema.Side(binary.LittleEndian.Uint16(src[16:18])),
		Type:         schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		TimeInForce:  schema.TimeInForce(binary.LittleEndian.Uint16(src[20:22])),
		Flags:        binary.LittleEndian.Uint16(src[22:24]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		TriggerPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		ExpireTs:     int64(binary.LittleEndian.Uint64(src[48:56])),
	}, true
}

const CancelIntentPayloadSize = 16

// EncodeCancelIntent serializes a cancel intent into a fixed-size payload.
func EncodeCancelIntent(dst []byte, c schema.CancelIntent) []byte {
	if cap(dst) < CancelIntentPayloadSize {
		dst = make([]byte, CancelIntentPayloadSize)
	} else {
		dst = dst[:CancelIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], c.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], c.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(c.InstrumentID))

	return dst
}

// DecodeCancelIntent parses a fixed-size cancel intent payload.
func DecodeCancelIntent(src []byte) (schema.CancelIntent, bool) {
	if len(src) < CancelIntentPayloadSize {
		return schema.CancelIntent{}, false
	}
	return schema.CancelIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
	}, true
}

const ModifyIntentPayloadSize = 32

// EncodeModifyIntent serializes a modify intent into a fixed-size payload.
func EncodeModifyIntent(dst []byte, m schema.ModifyIntent) []byte {
	if cap(dst) < ModifyIntentPayloadSize {
		dst = make([]byte, ModifyIntentPayloadSize)
	} else {
		dst = dst[:ModifyIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], m.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], m.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(m.InstrumentID))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(m.NewPrice))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(m.NewQty))

	return dst
}

// DecodeModifyIntent parses a fixed-size modify intent payload.
func DecodeModifyIntent(src []byte) (schema.ModifyIntent, bool) {
	if len(src) < ModifyIntentPayloadSize {
		return schema.ModifyIntent{}, false
	}
	return schema.ModifyIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		NewPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		NewQty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
	}, true
}
