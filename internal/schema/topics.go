package schema

import "strconv"

// Bus topic layout. Segments are dot-separated so patterns like
// "data.trade.*" or "exec.>" can match families of topics.
const (
	TopicDataPrefix = "data"
	TopicExecPrefix = "exec"
	TopicRiskPrefix = "risk"
)

// TopicTrade returns the trade topic for an instrument.
func TopicTrade(id InstrumentID) string {
	return "data.trade." + strconv.FormatUint(uint64(id), 10)
}

// TopicQuote returns the quote topic for an instrument.
func TopicQuote(id InstrumentID) string {
	return "data.quote." + strconv.FormatUint(uint64(id), 10)
}

// TopicDelta returns the book delta topic for an instrument.
func TopicDelta(id InstrumentID) string {
	return "data.delta." + strconv.FormatUint(uint64(id), 10)
}

// TopicInstrument returns the instrument definition topic.
func TopicInstrument(id InstrumentID) string {
	return "data.instrument." + strconv.FormatUint(uint64(id), 10)
}

// TopicExecReport returns the execution report topic for an instrument.
func TopicExecReport(id InstrumentID) string {
	return "exec.report." + strconv.FormatUint(uint64(id), 10)
}

// TopicFill returns the fill topic for an instrument.
func TopicFill(id InstrumentID) string {
	return "exec.fill." + strconv.FormatUint(uint64(id), 10)
}

// TopicRiskDecision is the topic for risk gate decisions.
const TopicRiskDecision = "risk.decision"

// Command endpoints used with Bus.Send.
const (
	EndpointSubmitOrder = "exec.submit"
	EndpointCancelOrder = "exec.cancel"
	EndpointModifyOrder = "exec.modify"
)

// TopicForEvent returns the publish topic for a data-plane event type.
func TopicForEvent(t EventType, id InstrumentID) string {
	switch t {
	case EventTrade:
		return TopicTrade(id)
	case EventQuote:
		return TopicQuote(id)
	case EventBookDelta:
		return TopicDelta(id)
	case EventInstrumentDef:
		return TopicInstrument(id)
	case EventExecutionReport:
		return TopicExecReport(id)
	case EventFill:
		return TopicFill(id)
	case EventRiskDecision:
		return TopicRiskDecision
	default:
		return "data.unknown." + strconv.FormatUint(uint64(id), 10)
	}
}
