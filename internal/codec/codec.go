// Package codec serializes event payloads into fixed-size little-endian
// records for the WAL and replay paths.
package codec

import (
	"main/internal/schema"
)

// EncodePayload dispatches on event type. Returns false for payloads with
// no wire format.
func EncodePayload(dst []byte, t schema.EventType, payload any) ([]byte, bool) {
	switch t {
	case schema.EventTrade:
		if v, ok := payload.(schema.Trade); ok {
			return EncodeTrade(dst, v), true
		}
	case schema.EventQuote:
		if v, ok := payload.(schema.Quote); ok {
			return EncodeQuote(dst, v), true
		}
	case schema.EventBookDelta:
		if v, ok := payload.(schema.BookDelta); ok {
			return EncodeBookDelta(dst, v), true
		}
	case schema.EventInstrumentDef:
		if v, ok := payload.(schema.InstrumentDef); ok {
			return EncodeInstrumentDef(dst, v), true
		}
	case schema.EventOrderIntent:
		if v, ok := payload.(schema.OrderIntent); ok {
			return EncodeOrderIntent(dst, v), true
		}
	case schema.EventCancelIntent:
		if v, ok := payload.(schema.CancelIntent); ok {
			return EncodeCancelIntent(dst, v), true
		}
	case schema.EventModifyIntent:
		if v, ok := payload.(schema.ModifyIntent); ok {
			return EncodeModifyIntent(dst, v), true
		}
	case schema.EventExecutionReport:
		if v, ok := payload.(schema.ExecutionReport); ok {
			return EncodeExecutionReport(dst, v), true
		}
	case schema.EventFill:
		if v, ok := payload.(schema.Fill); ok {
			return EncodeFill(dst, v), true
		}
	case schema.EventRiskDecision:
		if v, ok := payload.(schema.RiskDecision); ok {
			return EncodeRiskDecision(dst, v), true
		}
	}
	return nil, false
}

// DecodePayload dispatches on event type. Returns false for unknown types
// or short payloads.
func DecodePayload(t schema.EventType, src []byte) (any, bool) {
	switch t {
	case schema.EventTrade:
		return asAny(DecodeTrade(src))
	case schema.EventQuote:
		return asAny(DecodeQuote(src))
	case schema.EventBookDelta:
		return asAny(DecodeBookDelta(src))
	case schema.EventInstrumentDef:
		return asAny(DecodeInstrumentDef(src))
	case schema.EventOrderIntent:
		return asAny(DecodeOrderIntent(src))
	case schema.EventCancelIntent:
		return asAny(DecodeCancelIntent(src))
	case schema.EventModifyIntent:
		return asAny(DecodeModifyIntent(src))
	case schema.EventExecutionReport:
		return asAny(DecodeExecutionReport(src))
	case schema.EventFill:
		return asAny(DecodeFill(src))
	case schema.EventRiskDecision:
		return asAny(DecodeRiskDecision(src))
	default:
		return nil, false
	}
}

func asAny[T any](v T, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}
