package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const ExecutionReportPayloadSize = 48

// EncodeExecutionReport serializes an execution report into a fixed-size
// payload.
func EncodeExecutionReport(dst []byte, r schema.ExecutionReport) []byte {
	if cap(dst) < ExecutionReportPayloadSize {
		dst = make([]byte, ExecutionReportPayloadSize)
	} else {
		dst = dst[:ExecutionReportPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], r.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], r.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(r.Status))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(r.Reason))
	binary.LittleEndian.PutUint16(dst[20:22], r.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], r.Reserved)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(r.FilledQty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(r.LeavesQty))

	return dst
}

// DecodeExecutionReport parses a fixed-size execution report payload.
func DecodeExecutionReport(src []byte) (schema.ExecutionReport, bool) {
	if len(src) < ExecutionReportPayloadSize {
		return schema.ExecutionReport{}, false
	}
	return schema.ExecutionReport{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		Status:       schema.OrderStatus(binary.LittleEndian.Uint16(src[16:18])),
		Reason:       schema.ExecReason(binary.LittleEndian.Uint16(src[18:20])),
		Flags:        binary.LittleEndian.Uint16(src[20:22]),
		Reserved:     binary.LittleEndian.Uint16(src[22:24]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		FilledQty:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		LeavesQty:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}

const FillPayloadSize = 56

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, f schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], f.TradeID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(f.AggressorSide))
	binary.LittleEndian.PutUint16(dst[14:16], f.Flags)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(f.Price))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(f.Qty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(f.Fee))
	binary.LittleEndian.PutUint64(dst[40:48], f.MakerOrderID)
	binary.LittleEndian.PutUint64(dst[48:56], f.TakerOrderID)

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, false
	}
	return schema.Fill{
		TradeID:       binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID:  schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		AggressorSide: schema.Side(binary.LittleEndian.Uint16(src[12:14])),
		Flags:         binary.LittleEndian.Uint16(src[14:16]),
		Price:         schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Qty:           schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Fee:           schema.Fee(int64(binary.LittleEndian.Uint64(src[32:40]))),
		MakerOrderID:  binary.LittleEndian.Uint64(src[40:48]),
		TakerOrderID:  binary.LittleEndian.Uint64(src[48:56]),
	}, true
}
