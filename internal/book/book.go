package book

import (
	"errors"
	"fmt"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder = errors.New("order already resting in book")
	ErrUnknownOrder   = errors.New("order not found in book")
	ErrBadSide        = errors.New("invalid order side")
	ErrBadPrice       = errors.New("price must be > 0")
	ErrBadQty         = errors.New("quantity must be > 0")
)

// Type selects the book's depth model.
type Type uint16

const (
	// L2 is an aggregated book: deltas referencing unknown order ids are
	// tolerated as no-ops, since the upstream feed aggregates by level.
	L2 Type = iota + 1
	// L3 tracks every resting order individually; an unknown order id in a
	// delta indicates an upstream protocol violation.
	L3
)

// InvariantError reports a corrupted book. It indicates a logic defect, not
// a recoverable data condition; the driving loop aborts on it.
type InvariantError struct {
	InstrumentID schema.InstrumentID
	Detail       string
	BestBid      schema.Price
	BestAsk      schema.Price
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("book invariant violated: instrument=%d %s (best_bid=%d best_ask=%d)",
		e.InstrumentID, e.Detail, e.BestBid, e.BestAsk)
}

// PriceLevel is one aggregated rung of a snapshot.
type PriceLevel struct {
	Price  schema.Price
	Qty    schema.Quantity
	Orders int
}

// Snapshot is a depth-limited aggregated view, best-to-worst per side.
type Snapshot struct {
	InstrumentID schema.InstrumentID
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// Book is a single-instrument price-time-priority order book. Bids are kept
// descending, asks ascending; within a level, entries are FIFO by arrival.
//
// The book stores lightweight handles (order id, open quantity); the cache
// owns the canonical order records.
type Book struct {
	instrumentID schema.InstrumentID
	bookType     Type
	bids         *ladder
	asks         *ladder
	orders       map[uint64]orderRef
	arrivalSeq   uint64
}

type orderRef struct {
	side  schema.Side
	price schema.Price
}

// New creates an empty book for one instrument.
func New(instrumentID schema.InstrumentID, bookType Type) *Book {
	return &Book{
		instrumentID: instrumentID,
		bookType:     bookType,
		bids:         newLadder(schema.SideBuy),
		asks:         newLadder(schema.SideSell),
		orders:       make(map[uint64]orderRef),
	}
}

// InstrumentID returns the instrument this book tracks.
func (b *Book) InstrumentID() schema.InstrumentID {
	return b.instrumentID
}

// Type returns the book's depth model.
func (b *Book) Type() Type {
	return b.bookType
}

// Add inserts an order at the tail of its price level, creating the level
// if absent. Duplicate order ids are an error regardless of book type.
func (b *Book) Add(orderID uint64, side schema.Side, price schema.Price, qty schema.Quantity) error {
	switch {
	case side != schema.SideBuy && side != schema.SideSell:
		return fmt.Errorf("%w: %d", ErrBadSide, side)
	case price <= 0:
		return fmt.Errorf("%w: %d", ErrBadPrice, price)
	case qty <= 0:
		return fmt.Errorf("%w: %d", ErrBadQty, qty)
	}
	if _, ok := b.orders[orderID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, orderID)
	}

	b.arrivalSeq++
	b.sideLadder(side).getOrCreate(price).append(Entry{
		OrderID: orderID,
		Qty:     qty,
		Arrival: b.arrivalSeq,
	})
	b.orders[orderID] = orderRef{side: side, price: price}
	return nil
}

// Update changes the resting quantity of an order. A decrease keeps the
// order's queue position; an increase re-queues it to the tail of its level,
// per standard venue convention.
func (b *Book) Update(orderID uint64, newQty schema.Quantity) error {
	if newQty <= 0 {
		return fmt.Errorf("%w: %d", ErrBadQty, newQty)
	}
	ref, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, orderID)
	}
	lv, ok := b.sideLadder(ref.side).get(ref.price)
	if !ok {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       fmt.Sprintf("order %d indexed at missing level %d", orderID, ref.price),
		}
	}
	entry := lv.find(orderID)
	if entry == nil {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       fmt.Sprintf("order %d missing from level %d", orderID, ref.price),
		}
	}

	if newQty <= entry.Qty {
		lv.total += newQty - entry.Qty
		entry.Qty = newQty
		return nil
	}

	// Size increase loses time priority.
	lv.remove(orderID)
	b.arrivalSeq++
	lv.append(Entry{OrderID: orderID, Qty: newQty, Arrival: b.arrivalSeq})
	return nil
}

// Delete removes an order, dropping its level if it becomes empty.
// Deleting an unknown order is a no-op, so replayed deletes are idempotent.
func (b *Book) Delete(orderID uint64) {
	ref, ok := b.orders[orderID]
	if !ok {
		return
	}
	delete(b.orders, orderID)
	side := b.sideLadder(ref.side)
	if lv, ok := side.get(ref.price); ok {
		lv.remove(orderID)
		side.dropIfEmpty(lv)
	}
}

// Contains reports whether the order is resting in the book.
func (b *Book) Contains(orderID uint64) bool {
	_, ok := b.orders[orderID]
	return ok
}

// RestingQty returns the open quantity of a resting order.
func (b *Book) RestingQty(orderID uint64) (schema.Quantity, bool) {
	ref, ok := b.orders[orderID]
	if !ok {
		return 0, false
	}
	lv, ok := b.sideLadder(ref.side).get(ref.price)
	if !ok {
		return 0, false
	}
	entry := lv.find(orderID)
	if entry == nil {
		return 0, false
	}
	return entry.Qty, true
}

// ApplyDeltas applies a sequence of deltas as a unit and verifies the book
// invariants afterwards. For an L2 book, update/delete referencing an
// unknown order id is a no-op; for L3 it is an error.
func (b *Book) ApplyDeltas(deltas []schema.BookDelta) error {
	for i, d := range deltas {
		if err := b.applyDelta(d); err != nil {
			return fmt.Errorf("delta %d/%d (%d on order %d): %w",
				i+1, len(deltas), d.Action, d.OrderID, err)
		}
	}
	return b.Check()
}

func (b *Book) applyDelta(d schema.BookDelta) error {
	switch d.Action {
	case schema.BookActionAdd:
		return b.Add(d.OrderID, d.Side, d.Price, d.Qty)
	case schema.BookActionUpdate:
		err := b.Update(d.OrderID, d.Qty)
		if errors.Is(err, ErrUnknownOrder) && b.bookType == L2 {
			return nil
		}
		return err
	case schema.BookActionDelete:
		if b.bookType == L3 && !b.Contains(d.OrderID) {
			return fmt.Errorf("%w: %d", ErrUnknownOrder, d.OrderID)
		}
		b.Delete(d.OrderID)
		return nil
	case schema.BookActionClear:
		b.Clear()
		return nil
	default:
		return fmt.Errorf("unknown book action: %d", d.Action)
	}
}

// Clear empties both ladders.
func (b *Book) Clear() {
	b.bids.clear()
	b.asks.clear()
	b.orders = make(map[uint64]orderRef)
}

// BestBid returns the top bid price and aggregated quantity.
func (b *Book) BestBid() (schema.Price, schema.Quantity, bool) {
	lv, ok := b.bids.best()
	if !ok {
		return 0, 0, false
	}
	return lv.price, lv.total, true
}

// BestAsk returns the top ask price and aggregated quantity.
func (b *Book) BestAsk() (schema.Price, schema.Quantity, bool) {
	lv, ok := b.asks.best()
	if !ok {
		return 0, 0, false
	}
	return lv.price, lv.total, true
}

// Head returns the first FIFO entry of the best level on a side.
func (b *Book) Head(side schema.Side) (Entry, schema.Price, bool) {
	lv, ok := b.sideLadder(side).best()
	if !ok || len(lv.entries) == 0 {
		return Entry{}, 0, false
	}
	return lv.entries[0], lv.price, true
}

// Fill reduces a resting order's open quantity in place, keeping queue
// position, and removes it when fully consumed. Used by the matching engine.
func (b *Book) Fill(orderID uint64, qty schema.Quantity) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrBadQty, qty)
	}
	ref, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, orderID)
	}
	side := b.sideLadder(ref.side)
	lv, ok := side.get(ref.price)
	if !ok {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       fmt.Sprintf("order %d indexed at missing level %d", orderID, ref.price),
		}
	}
	entry := lv.find(orderID)
	if entry == nil {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       fmt.Sprintf("order %d missing from level %d", orderID, ref.price),
		}
	}
	if qty > entry.Qty {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       fmt.Sprintf("fill %d exceeds resting qty %d on order %d", qty, entry.Qty, orderID),
		}
	}
	entry.Qty -= qty
	lv.total -= qty
	if entry.Qty == 0 {
		lv.remove(orderID)
		delete(b.orders, orderID)
		side.dropIfEmpty(lv)
	}
	return nil
}

// AvailableUpTo sums liquidity on a side that is marketable against limit,
// capped at upTo. A zero limit means no price bound (market order).
// Used for the FOK dry-run.
func (b *Book) AvailableUpTo(side schema.Side, limit schema.Price, upTo schema.Quantity) schema.Quantity {
	var available schema.Quantity
	b.sideLadder(side).walk(func(lv *level) bool {
		if limit > 0 && !priceCrosses(side, limit, lv.price) {
			return false
		}
		available += lv.total
		return available < upTo
	})
	if available > upTo {
		return upTo
	}
	return available
}

// WalkLevels iterates a side best-first, exposing each level's price and a
// read-only copy of its FIFO entries.
func (b *Book) WalkLevels(side schema.Side, fn func(price schema.Price, entries []Entry) bool) {
	b.sideLadder(side).walk(func(lv *level) bool {
		entries := make([]Entry, len(lv.entries))
		copy(entries, lv.entries)
		return fn(lv.price, entries)
	})
}

// Snapshot returns the top depth levels per side with aggregated
// quantities, best-to-worst. Zero depth means all levels.
func (b *Book) Snapshot(depth int) Snapshot {
	return Snapshot{
		InstrumentID: b.instrumentID,
		Bids:         topLevels(b.bids, depth),
		Asks:         topLevels(b.asks, depth),
	}
}

func topLevels(l *ladder, depth int) []PriceLevel {
	if depth <= 0 {
		depth = l.len()
	}
	out := make([]PriceLevel, 0, depth)
	l.walk(func(lv *level) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, PriceLevel{
			Price:  lv.price,
			Qty:    lv.total,
			Orders: len(lv.entries),
		})
		return true
	})
	return out
}

// Check validates the book invariants: strictly ordered ladders, positive
// quantities, FIFO arrival order within levels, no price on both sides, and
// an uncrossed top of book.
func (b *Book) Check() error {
	if err := b.checkLadder(b.bids); err != nil {
		return err
	}
	if err := b.checkLadder(b.asks); err != nil {
		return err
	}

	bid, _, hasBid := b.BestBid()
	ask, _, hasAsk := b.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		return &InvariantError{
			InstrumentID: b.instrumentID,
			Detail:       "crossed ladder",
			BestBid:      bid,
			BestAsk:      ask,
		}
	}
	return nil
}

func (b *Book) checkLadder(l *ladder) error {
	var prev schema.Price
	var err error
	first := true
	l.walk(func(lv *level) bool {
		if !first {
			ordered := lv.price < prev
			if l.side == schema.SideSell {
				ordered = lv.price > prev
			}
			if !ordered {
				err = &InvariantError{
					InstrumentID: b.instrumentID,
					Detail:       fmt.Sprintf("%s ladder not strictly ordered at price %d", l.side, lv.price),
				}
				return false
			}
		}
		first = false
		prev = lv.price

		var total schema.Quantity
		var lastArrival uint64
		for _, e := range lv.entries {
			if e.Qty <= 0 {
				err = &InvariantError{
					InstrumentID: b.instrumentID,
					Detail:       fmt.Sprintf("non-positive resting qty %d on order %d", e.Qty, e.OrderID),
				}
				return false
			}
			if e.Arrival <= lastArrival {
				err = &InvariantError{
					InstrumentID: b.instrumentID,
					Detail:       fmt.Sprintf("FIFO order broken at price %d order %d", lv.price, e.OrderID),
				}
				return false
			}
			lastArrival = e.Arrival
			total += e.Qty
		}
		if total != lv.total {
			err = &InvariantError{
				InstrumentID: b.instrumentID,
				Detail:       fmt.Sprintf("level total mismatch at price %d: cached=%d actual=%d", lv.price, lv.total, total),
			}
			return false
		}

		if other, ok := b.otherLadder(l).get(lv.price); ok && len(other.entries) > 0 {
			err = &InvariantError{
				InstrumentID: b.instrumentID,
				Detail:       fmt.Sprintf("price %d present on both sides", lv.price),
			}
			return false
		}
		return true
	})
	return err
}

func (b *Book) sideLadder(side schema.Side) *ladder {
	if side == schema.SideBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) otherLadder(l *ladder) *ladder {
	if l == b.bids {
		return b.asks
	}
	return b.bids
}

// priceCrosses reports whether an aggressor limit on `side` is marketable
// against a resting price on the opposite side.
func priceCrosses(restingSide schema.Side, limit, restingPrice schema.Price) bool {
	if restingSide == schema.SideSell {
		// Aggressor is a buyer hitting asks.
		return limit >= restingPrice
	}
	// Aggressor is a seller hitting bids.
	return limit <= restingPrice
}
