// Package cache is the single source of truth for instrument, order, and
// position records. The order book and matching engine hold only ids into
// it. Writers are exactly the execution engine (order lifecycle) and fill
// application (positions); everything else reads copies.
package cache

import (
	"errors"
	"fmt"
	"sort"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder = errors.New("order already cached")
	ErrUnknownOrder   = errors.New("order not cached")
)

// Cache holds the canonical records. It is written only from the owner
// goroutine; mutations are atomic with respect to a dispatch cycle because
// nothing suspends mid-event.
type Cache struct {
	registry  *schema.Registry
	orders    map[uint64]*schema.Order
	positions map[schema.InstrumentID]*schema.Position
}

// New creates a cache over an instrument registry.
func New(registry *schema.Registry) *Cache {
	return &Cache{
		registry:  registry,
		orders:    make(map[uint64]*schema.Order),
		positions: make(map[schema.InstrumentID]*schema.Position),
	}
}

// Registry returns the instrument registry.
func (c *Cache) Registry() *schema.Registry {
	return c.registry
}

// Instrument returns an instrument definition.
func (c *Cache) Instrument(id schema.InstrumentID) (schema.Instrument, bool) {
	return c.registry.Instrument(id)
}

// AddOrder stores a new order record.
func (c *Cache) AddOrder(order schema.Order) error {
	if order.ID == 0 {
		return fmt.Errorf("%w: zero id", ErrUnknownOrder)
	}
	if _, ok := c.orders[order.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, order.ID)
	}
	copied := order
	c.orders[order.ID] = &copied
	return nil
}

// Order returns a copy of an order record.
func (c *Cache) Order(id uint64) (schema.Order, bool) {
	o, ok := c.orders[id]
	if !ok {
		return schema.Order{}, false
	}
	return *o, true
}

// UpdateOrder applies a mutation to an order record. Only the execution
// engine calls this.
func (c *Cache) UpdateOrder(id uint64, fn func(*schema.Order)) error {
	o, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	fn(o)
	return nil
}

// OpenOrders returns copies of all non-terminal orders, sorted by id.
func (c *Cache) OpenOrders() []schema.Order {
	out := make([]schema.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if !o.Status.IsTerminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OrderCount returns the number of cached orders.
func (c *Cache) OrderCount() int {
	return len(c.orders)
}

// Position returns a copy of the position for an instrument; a zero-value
// position when flat and never traded.
func (c *Cache) Position(id schema.InstrumentID) schema.Position {
	p, ok := c.positions[id]
	if !ok {
		return schema.Position{InstrumentID: id}
	}
	return *p
}

// Positions returns copies of all non-flat positions, sorted by instrument.
func (c *Cache) Positions() []schema.Position {
	out := make([]schema.Position, 0, len(c.positions))
	for _, p := range c.positions {
		if p.Qty != 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// ApplyFill folds a fill into the instrument's position. side is the side
// of our own order in the fill. Positions move only on fills.
func (c *Cache) ApplyFill(side schema.Side, fill schema.Fill, ts int64) schema.Position {
	p, ok := c.positions[fill.InstrumentID]
	if !ok {
		p = &schema.Position{InstrumentID: fill.InstrumentID}
		c.positions[fill.InstrumentID] = p
	}

	signed := int64(fill.Qty)
	if side == schema.SideSell {
		signed = -signed
	}

	oldQty := int64(p.Qty)
	newQty := oldQty + signed

	switch {
	case oldQty == 0 || sameSign(oldQty, signed):
		// Opening or extending: volume-weighted average entry price.
		total := abs64(oldQty) + abs64(signed)
		if total > 0 {
			weighted := int64(p.AvgPrice)*abs64(oldQty) + int64(fill.Price)*abs64(signed)
			p.AvgPrice = schema.Price(weighted / total)
		}
	case sameSign(oldQty, newQty):
		// Reducing: entry price of the remainder is unchanged.
	case newQty == 0:
		p.AvgPrice = 0
	default:
		// Flipped through flat: remainder opened at the fill price.
		p.AvgPrice = fill.Price
	}

	p.Qty = schema.Quantity(newQty)
	p.TsUpdated = ts
	return *p
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
