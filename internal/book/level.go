package book

import (
	"github.com/google/btree"

	"main/internal/schema"
)

// Entry is one resting order inside a price level. FIFO position within the
// level is given by the arrival counter, assigned by the book on insert or
// re-queue.
type Entry struct {
	OrderID uint64
	Qty     schema.Quantity
	Arrival uint64
}

// level is a single rung of a ladder: a price and the FIFO queue of orders
// resting at it.
type level struct {
	price   schema.Price
	total   schema.Quantity
	entries []Entry
}

func (l *level) append(e Entry) {
	l.entries = append(l.entries, e)
	l.total += e.Qty
}

func (l *level) remove(orderID uint64) bool {
	for i := range l.entries {
		if l.entries[i].OrderID == orderID {
			l.total -= l.entries[i].Qty
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *level) find(orderID uint64) *Entry {
	for i := range l.entries {
		if l.entries[i].OrderID == orderID {
			return &l.entries[i]
		}
	}
	return nil
}

// ladder is one side of the book. The btree comparator is side-specific so
// that ascending iteration always yields best price first: descending price
// for bids, ascending for asks.
type ladder struct {
	side   schema.Side
	levels *btree.BTreeG[*level]
	byPrice map[schema.Price]*level
}

const ladderDegree = 32

func newLadder(side schema.Side) *ladder {
	less := func(a, b *level) bool { return a.price < b.price }
	if side == schema.SideBuy {
		less = func(a, b *level) bool { return a.price > b.price }
	}
	return &ladder{
		side:    side,
		levels:  btree.NewG(ladderDegree, less),
		byPrice: make(map[schema.Price]*level),
	}
}

func (l *ladder) getOrCreate(price schema.Price) *level {
	if lv, ok := l.byPrice[price]; ok {
		return lv
	}
	lv := &level{price: price}
	l.levels.ReplaceOrInsert(lv)
	l.byPrice[price] = lv
	return lv
}

func (l *ladder) get(price schema.Price) (*level, bool) {
	lv, ok := l.byPrice[price]
	return lv, ok
}

func (l *ladder) dropIfEmpty(lv *level) {
	if len(lv.entries) == 0 {
		l.levels.Delete(lv)
		delete(l.byPrice, lv.price)
	}
}

// best returns the top level of the ladder.
func (l *ladder) best() (*level, bool) {
	return l.levels.Min()
}

// walk iterates levels best-first until fn returns false.
func (l *ladder) walk(fn func(*level) bool) {
	l.levels.Ascend(fn)
}

func (l *ladder) len() int {
	return l.levels.Len()
}

func (l *ladder) clear() {
	l.levels.Clear(false)
	l.byPrice = make(map[schema.Price]*level)
}
