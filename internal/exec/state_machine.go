package exec

import (
	"errors"
	"fmt"

	"main/internal/cache"
	"main/internal/schema"
)

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrOverfill          = errors.New("fill exceeds remaining order quantity")
)

// StateMachine applies order lifecycle transitions to the canonical order
// records in the cache. It is the only writer of order status.
type StateMachine struct {
	cache *cache.Cache
}

// NewStateMachine creates a state machine over the cache.
func NewStateMachine(c *cache.Cache) *StateMachine {
	return &StateMachine{cache: c}
}

// canTransition encodes the order status graph. Terminal states absorb.
func canTransition(from, to schema.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case schema.OrderStatusInitialized:
		return to == schema.OrderStatusSubmitted || to == schema.OrderStatusRejected
	case schema.OrderStatusSubmitted:
		switch to {
		case schema.OrderStatusAccepted, schema.OrderStatusRejected,
			schema.OrderStatusCanceled, schema.OrderStatusExpired,
			schema.OrderStatusPartiallyFilled, schema.OrderStatusFilled:
			return true
		}
		return false
	case schema.OrderStatusAccepted, schema.OrderStatusPartiallyFilled:
		switch to {
		case schema.OrderStatusAccepted, schema.OrderStatusPartiallyFilled,
			schema.OrderStatusFilled, schema.OrderStatusCanceled,
			schema.OrderStatusRejected, schema.OrderStatusExpired:
			return true
		}
		return false
	default:
		return false
	}
}

// Create registers a new order record in Initialized state.
func (m *StateMachine) Create(intent schema.OrderIntent, ts int64) (schema.Order, error) {
	order := schema.Order{
		ID:           intent.OrderID,
		StrategyID:   intent.StrategyID,
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		Type:         intent.Type,
		TimeInForce:  intent.TimeInForce,
		Status:       schema.OrderStatusInitialized,
		Price:        intent.Price,
		TriggerPrice: intent.TriggerPrice,
		Qty:          intent.Qty,
		ExpireTs:     intent.ExpireTs,
		TsCreated:    ts,
		TsUpdated:    ts,
	}
	if err := m.cache.AddOrder(order); err != nil {
		return schema.Order{}, err
	}
	return order, nil
}

// Transition moves an order to a new status.
func (m *StateMachine) Transition(orderID uint64, to schema.OrderStatus, ts int64) (schema.Order, error) {
	var out schema.Order
	err := m.cache.UpdateOrder(orderID, func(o *schema.Order) {
		out = *o
	})
	if err != nil {
		return schema.Order{}, err
	}
	if !canTransition(out.Status, to) {
		return out, fmt.Errorf("%w: order=%d %s -> %s", ErrInvalidTransition, orderID, out.Status, to)
	}
	err = m.cache.UpdateOrder(orderID, func(o *schema.Order) {
		o.Status = to
		o.TsUpdated = ts
		out = *o
	})
	return out, err
}

// ApplyFill folds a fill into the order: filled quantity, average fill
// price, and the resulting status (PartiallyFilled or Filled).
func (m *StateMachine) ApplyFill(orderID uint64, price schema.Price, qty schema.Quantity, ts int64) (schema.Order, error) {
	if qty <= 0 {
		return schema.Order{}, fmt.Errorf("%w: %d", ErrInvalidFill, qty)
	}
	var out schema.Order
	var applyErr error
	err := m.cache.UpdateOrder(orderID, func(o *schema.Order) {
		if o.Status.IsTerminal() {
			applyErr = fmt.Errorf("%w: order=%d already %s", ErrInvalidTransition, orderID, o.Status)
			return
		}
		leaves := int64(o.Qty) - int64(o.FilledQty)
		if int64(qty) > leaves {
			applyErr = fmt.Errorf("%w: order=%d fill=%d leaves=%d", ErrOverfill, orderID, qty, leaves)
			return
		}

		prevFilled := int64(o.FilledQty)
		newFilled := prevFilled + int64(qty)
		weighted := int64(o.AvgFillPrice)*prevFilled + int64(price)*int64(qty)
		o.AvgFillPrice = schema.Price(weighted / newFilled)
		o.FilledQty = schema.Quantity(newFilled)
		if o.FilledQty == o.Qty {
			o.Status = schema.OrderStatusFilled
		} else {
			o.Status = schema.OrderStatusPartiallyFilled
		}
		o.TsUpdated = ts
		out = *o
	})
	if err != nil {
		return schema.Order{}, err
	}
	return out, applyErr
}
