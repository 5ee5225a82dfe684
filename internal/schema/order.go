package schema

// OrderStatus tracks the lifecycle of an order.
//
// Valid transitions:
//
//	Initialized → Submitted → Accepted ⇄ PartiallyFilled → Filled
//	any non-terminal → Canceled | Rejected | Expired
//
// Terminal states are absorbing.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusInitialized
	OrderStatusSubmitted
	OrderStatusAccepted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
	OrderStatusExpired
)

// IsTerminal reports whether the status is absorbing.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInitialized:
		return "initialized"
	case OrderStatusSubmitted:
		return "submitted"
	case OrderStatusAccepted:
		return "accepted"
	case OrderStatusPartiallyFilled:
		return "partially-filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	case OrderStatusRejected:
		return "rejected"
	case OrderStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Order is the canonical order record. The cache owns the record; the
// order book and matching engine reference it by ID only.
type Order struct {
	ID           uint64
	StrategyID   uint32
	InstrumentID InstrumentID
	Side         Side
	Type         OrderType
	TimeInForce  TimeInForce
	Status       OrderStatus
	Price        Price
	TriggerPrice Price
	Qty          Quantity
	FilledQty    Quantity
	AvgFillPrice Price
	ExpireTs     int64
	TsCreated    int64
	TsUpdated    int64
}

// LeavesQty returns the quantity still open.
func (o *Order) LeavesQty() Quantity {
	leaves := int64(o.Qty) - int64(o.FilledQty)
	if leaves < 0 {
		return 0
	}
	return Quantity(leaves)
}

// Position is the net signed exposure for one instrument, updated only by
// fills. AvgPrice is the volume-weighted entry price of the open quantity.
type Position struct {
	InstrumentID InstrumentID
	Qty          Quantity
	AvgPrice     Price
	TsUpdated    int64
}
