package schema

// Side describes order or aggressor direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStopMarket
	OrderTypeStopLimit
)

// IsStop reports whether the type is conditional on a trigger price.
func (t OrderType) IsStop() bool {
	return t == OrderTypeStopMarket || t == OrderTypeStopLimit
}

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceGTD
	TimeInForceIOC
	TimeInForceFOK
)

// Trade is the payload for EventTrade.
type Trade struct {
	InstrumentID  InstrumentID
	AggressorSide Side
	Flags         uint16
	Price         Price
	Qty           Quantity
	TradeID       uint64
	MakerOrderID  uint64
	TakerOrderID  uint64
}

// Quote is the payload for EventQuote.
type Quote struct {
	InstrumentID InstrumentID
	Flags        uint16
	Reserved     uint16
	BidPrice     Price
	BidQty       Quantity
	AskPrice     Price
	AskQty       Quantity
}

// BookAction describes a single order book mutation.
type BookAction uint16

const (
	BookActionUnknown BookAction = iota
	BookActionAdd
	BookActionUpdate
	BookActionDelete
	BookActionClear
)

// BookDelta is the payload for EventBookDelta.
type BookDelta struct {
	InstrumentID InstrumentID
	Action       BookAction
	Side         Side
	Flags        uint16
	OrderID      uint64
	Price        Price
	Qty          Quantity
}

// InstrumentDef is the payload for EventInstrumentDef.
type InstrumentDef struct {
	ID         InstrumentID
	VenueID    VenueID
	PriceScale Scale
	QtyScale   Scale
	TickSize   Price
	LotSize    Quantity
	Tradable   uint16
	Reserved   uint16
	Symbol     [24]byte
}

// SymbolString returns the symbol trimmed of zero padding.
func (d InstrumentDef) SymbolString() string {
	n := 0
	for n < len(d.Symbol) && d.Symbol[n] != 0 {
		n++
	}
	return string(d.Symbol[:n])
}

// SetSymbol writes the symbol into the fixed-size field, truncating if needed.
func (d *InstrumentDef) SetSymbol(symbol string) {
	for i := range d.Symbol {
		d.Symbol[i] = 0
	}
	copy(d.Symbol[:], symbol)
}

// OrderIntent is the payload for EventOrderIntent.
type OrderIntent struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID InstrumentID
	Side         Side
	Type         OrderType
	TimeInForce  TimeInForce
	Flags        uint16
	Price        Price
	TriggerPrice Price
	Qty          Quantity
	ExpireTs     int64
}

// CancelIntent is the payload for EventCancelIntent.
type CancelIntent struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID InstrumentID
}

// ModifyIntent is the payload for EventModifyIntent.
type ModifyIntent struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID InstrumentID
	NewPrice     Price
	NewQty       Quantity
}

// ExecReason is a coarse reason code attached to execution reports.
type ExecReason uint16

const (
	ExecReasonNone ExecReason = iota
	ExecReasonRiskKillSwitch
	ExecReasonRiskMaxQty
	ExecReasonRiskMaxNotional
	ExecReasonRiskPriceCollar
	ExecReasonRiskPositionLimit
	ExecReasonNotTradable
	ExecReasonUnknownInstrument
	ExecReasonInvalidPrice
	ExecReasonInvalidQty
	ExecReasonLotSize
	ExecReasonTickSize
	ExecReasonDuplicateOrder
	ExecReasonUnknownOrder
	ExecReasonUnfilledIOC
	ExecReasonInsufficientLiquidity
	ExecReasonExpired
	ExecReasonVenueTimeout
	ExecReasonUserCanceled
)

func (r ExecReason) String() string {
	switch r {
	case ExecReasonNone:
		return "none"
	case ExecReasonRiskKillSwitch:
		return "risk-kill-switch"
	case ExecReasonRiskMaxQty:
		return "risk-max-qty"
	case ExecReasonRiskMaxNotional:
		return "risk-max-notional"
	case ExecReasonRiskPriceCollar:
		return "risk-price-collar"
	case ExecReasonRiskPositionLimit:
		return "risk-position-limit"
	case ExecReasonNotTradable:
		return "not-tradable"
	case ExecReasonUnknownInstrument:
		return "unknown-instrument"
	case ExecReasonInvalidPrice:
		return "invalid-price"
	case ExecReasonInvalidQty:
		return "invalid-qty"
	case ExecReasonLotSize:
		return "lot-size"
	case ExecReasonTickSize:
		return "tick-size"
	case ExecReasonDuplicateOrder:
		return "duplicate-order"
	case ExecReasonUnknownOrder:
		return "unknown-order"
	case ExecReasonUnfilledIOC:
		return "unfilled-ioc"
	case ExecReasonInsufficientLiquidity:
		return "insufficient-liquidity"
	case ExecReasonExpired:
		return "expired"
	case ExecReasonVenueTimeout:
		return "pending-timeout"
	case ExecReasonUserCanceled:
		return "user-canceled"
	default:
		return "unknown"
	}
}

// ExecutionReport is the payload for EventExecutionReport.
type ExecutionReport struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID InstrumentID
	Status       OrderStatus
	Reason       ExecReason
	Flags        uint16
	Reserved     uint16
	Price        Price
	FilledQty    Quantity
	LeavesQty    Quantity
}

// Fill is the payload for EventFill.
//
// MakerOrderID is the resting order, TakerOrderID the aggressor.
type Fill struct {
	TradeID       uint64
	InstrumentID  InstrumentID
	AggressorSide Side
	Flags         uint16
	Price         Price
	Qty           Quantity
	Fee           Fee
	MakerOrderID  uint64
	TakerOrderID  uint64
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	OrderID       uint64
	StrategyID    uint32
	InstrumentID  InstrumentID
	Action        RiskAction
	Reason        ExecReason
	Flags         uint16
	Reserved      uint16
	ProposedQty   Quantity
	ProposedPrice Price
	CurrentPos    Quantity
	MaxPos        Quantity
	MaxNotional   Notional
}
