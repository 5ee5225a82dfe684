package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 2

// EventType defines the category of an event flowing through the core.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTrade
	EventQuote
	EventBookDelta
	EventInstrumentDef
	EventOrderIntent
	EventCancelIntent
	EventModifyIntent
	EventExecutionReport
	EventFill
	EventRiskDecision
)

// SourceID identifies the adapter that produced an event.
type SourceID uint16

// EventHeader is the common metadata attached to every event.
//
// Seq is assigned once, by the feed engine at emission, and is strictly
// increasing across the whole process. It is the tie-break for events
// carrying equal timestamps.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  SourceID
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source SourceID, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// IsMarketData reports whether the event type carries market data.
func (t EventType) IsMarketData() bool {
	switch t {
	case EventTrade, EventQuote, EventBookDelta, EventInstrumentDef:
		return true
	default:
		return false
	}
}

// IsCommand reports whether the event type is a strategy command.
func (t EventType) IsCommand() bool {
	switch t {
	case EventOrderIntent, EventCancelIntent, EventModifyIntent:
		return true
	default:
		return false
	}
}

func (t EventType) String() string {
	switch t {
	case EventTrade:
		return "trade"
	case EventQuote:
		return "quote"
	case EventBookDelta:
		return "delta"
	case EventInstrumentDef:
		return "instrument"
	case EventOrderIntent:
		return "order-intent"
	case EventCancelIntent:
		return "cancel-intent"
	case EventModifyIntent:
		return "modify-intent"
	case EventExecutionReport:
		return "exec-report"
	case EventFill:
		return "fill"
	case EventRiskDecision:
		return "risk-decision"
	default:
		return "unknown"
	}
}
