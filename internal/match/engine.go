// Package match is the simulation venue: a price-time-priority matching
// engine over the shared order book. It implements exec.ExecutionClient, so
// the rest of the system cannot tell it apart from a live gateway.
package match

import (
	"fmt"
	"sort"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/exec"
	"main/internal/schema"
)

// Config tunes the simulated venue.
type Config struct {
	MakerFeeBps int64 `json:"maker_fee_bps"`
	TakerFeeBps int64 `json:"taker_fee_bps"`
}

// Engine matches aggressive orders against the book and manages parked
// stop orders and GTD expiry. Not concurrency-safe: it runs on the single
// owner goroutine, same as the bus and the book.
type Engine struct {
	cfg    Config
	books  *book.Manager
	cache  *cache.Cache
	sm     *exec.StateMachine
	outbox *exec.Outbox
	clk    clock.Clock

	tradeID uint64
	stops   map[uint64]schema.Order
}

// NewEngine creates the simulation matching engine.
func NewEngine(cfg Config, books *book.Manager, c *cache.Cache, sm *exec.StateMachine, outbox *exec.Outbox, clk clock.Clock) *Engine {
	return &Engine{
		cfg:    cfg,
		books:  books,
		cache:  c,
		sm:     sm,
		outbox: outbox,
		clk:    clk,
		stops:  make(map[uint64]schema.Order),
	}
}

// Wire subscribes the venue's market data handlers. The delta handler
// must be registered before the book manager's: an incoming level that
// crosses a resting strategy order fills it before the manager applies the
// delta, so the shared ladder never crosses.
func (e *Engine) Wire(b *bus.Bus) error {
	if _, err := b.Subscribe("data.delta.>", e.onDelta); err != nil {
		return err
	}
	if _, err := b.Subscribe("data.trade.>", e.onTrade); err != nil {
		return err
	}
	if _, err := b.Subscribe("data.quote.>", e.onQuote); err != nil {
		return err
	}
	return nil
}

// Submit accepts a validated order and matches it, parks it (stop orders),
// or rests it on the book.
func (e *Engine) Submit(order schema.Order) error {
	now := e.clk.Now()
	accepted, err := e.sm.Transition(order.ID, schema.OrderStatusAccepted, now)
	if err != nil {
		return err
	}
	e.report(accepted, schema.ExecReasonNone)

	if order.Type.IsStop() && !e.triggered(accepted) {
		e.stops[accepted.ID] = accepted
		return nil
	}
	return e.matchAggressor(accepted)
}

// Cancel removes an open order from the book or the stop park.
func (e *Engine) Cancel(intent schema.CancelIntent) error {
	order, ok := e.cache.Order(intent.OrderID)
	if !ok {
		return fmt.Errorf("%w: %d", cache.ErrUnknownOrder, intent.OrderID)
	}
	if order.Status.IsTerminal() {
		// Too late: report the final state instead of cancelling.
		e.report(order, schema.ExecReasonUnknownOrder)
		return nil
	}
	delete(e.stops, order.ID)
	e.books.Book(order.InstrumentID).Delete(order.ID)
	e.clk.CancelTimer(gtdTimerName(order.ID))

	canceled, err := e.sm.Transition(order.ID, schema.OrderStatusCanceled, e.clk.Now())
	if err != nil {
		return err
	}
	e.report(canceled, schema.ExecReasonUserCanceled)
	return nil
}

// Modify amends the price or quantity of an open order. A quantity
// decrease keeps queue position; a quantity increase or any price change
// loses it, and a price change re-enters the order as an aggressor.
func (e *Engine) Modify(intent schema.ModifyIntent) error {
	order, ok := e.cache.Order(intent.OrderID)
	if !ok {
		return fmt.Errorf("%w: %d", cache.ErrUnknownOrder, intent.OrderID)
	}
	if order.Status.IsTerminal() {
		e.report(order, schema.ExecReasonUnknownOrder)
		return nil
	}
	if intent.NewQty > 0 && intent.NewQty <= order.FilledQty {
		e.report(order, schema.ExecReasonInvalidQty)
		return nil
	}

	now := e.clk.Now()
	priceChanged := intent.NewPrice > 0 && intent.NewPrice != order.Price
	err := e.cache.UpdateOrder(order.ID, func(o *schema.Order) {
		if intent.NewPrice > 0 {
			o.Price = intent.NewPrice
		}
		if intent.NewQty > 0 {
			o.Qty = intent.NewQty
		}
		o.TsUpdated = now
	})
	if err != nil {
		return err
	}
	order, _ = e.cache.Order(order.ID)

	if parked, ok := e.stops[order.ID]; ok {
		parked.Price = order.Price
		parked.Qty = order.Qty
		e.stops[order.ID] = parked
		e.report(order, schema.ExecReasonNone)
		return nil
	}

	bk := e.books.Book(order.InstrumentID)
	if !bk.Contains(order.ID) {
		e.report(order, schema.ExecReasonNone)
		return nil
	}
	if priceChanged {
		bk.Delete(order.ID)
		e.report(order, schema.ExecReasonNone)
		return e.matchAggressor(order)
	}
	if err := bk.Update(order.ID, order.LeavesQty()); err != nil {
		return err
	}
	e.report(order, schema.ExecReasonNone)
	return nil
}

// matchAggressor walks the opposing ladder while the order is marketable,
// then disposes of any remainder according to time-in-force.
func (e *Engine) matchAggressor(order schema.Order) error {
	bk := e.books.Book(order.InstrumentID)
	opposing := order.Side.Opposite()
	limit := e.effectiveLimit(order)

	if order.TimeInForce == schema.TimeInForceFOK {
		available := bk.AvailableUpTo(opposing, limit, order.LeavesQty())
		if available < order.LeavesQty() {
			// All or nothing: the whole order is rejected with zero fills.
			return e.reject(order.ID, schema.ExecReasonInsufficientLiquidity)
		}
	}

	for order.LeavesQty() > 0 {
		head, restingPrice, ok := bk.Head(opposing)
		if !ok || !marketable(order.Side, limit, restingPrice) {
			break
		}
		fillQty := order.LeavesQty()
		if head.Qty < fillQty {
			fillQty = head.Qty
		}
		if err := bk.Fill(head.OrderID, fillQty); err != nil {
			return err
		}

		e.tradeID++
		fill := schema.Fill{
			TradeID:       e.tradeID,
			InstrumentID:  order.InstrumentID,
			AggressorSide: order.Side,
			Price:         restingPrice,
			Qty:           fillQty,
			Fee:           feeFor(restingPrice, fillQty, e.cfg.TakerFeeBps),
			MakerOrderID:  head.OrderID,
			TakerOrderID:  order.ID,
		}
		now := e.clk.Now()

		taker, err := e.sm.ApplyFill(order.ID, restingPrice, fillQty, now)
		if err != nil {
			return err
		}
		order = taker
		e.cache.ApplyFill(order.Side, fill, now)
		e.report(taker, schema.ExecReasonNone)

		if maker, ok := e.cache.Order(head.OrderID); ok && !maker.Status.IsTerminal() {
			updated, err := e.sm.ApplyFill(maker.ID, restingPrice, fillQty, now)
			if err != nil {
				return err
			}
			makerFill := fill
			makerFill.Fee = feeFor(restingPrice, fillQty, e.cfg.MakerFeeBps)
			e.cache.ApplyFill(opposing, makerFill, now)
			e.report(updated, schema.ExecReasonNone)
			if updated.Status == schema.OrderStatusFilled {
				e.clk.CancelTimer(gtdTimerName(updated.ID))
			}
		}

		e.outbox.PublishFill(fill, 0)
	}

	if order.LeavesQty() == 0 {
		return nil
	}
	return e.restOrCancel(order, bk)
}

func (e *Engine) restOrCancel(order schema.Order, bk *book.Book) error {
	switch {
	case order.TimeInForce == schema.TimeInForceIOC:
		return e.cancelRemainder(order.ID, schema.ExecReasonUnfilledIOC)
	case order.Type == schema.OrderTypeMarket || order.Type == schema.OrderTypeStopMarket:
		// Market orders never rest.
		return e.cancelRemainder(order.ID, schema.ExecReasonInsufficientLiquidity)
	}

	if err := bk.Add(order.ID, order.Side, order.Price, order.LeavesQty()); err != nil {
		return err
	}
	if order.TimeInForce == schema.TimeInForceGTD {
		return e.clk.SetTimer(gtdTimerName(order.ID), order.ExpireTs, func(ev clock.TimeEvent) {
			e.expire(order.ID, ev.Ts)
		})
	}
	return nil
}

func (e *Engine) cancelRemainder(orderID uint64, reason schema.ExecReason) error {
	canceled, err := e.sm.Transition(orderID, schema.OrderStatusCanceled, e.clk.Now())
	if err != nil {
		return err
	}
	e.report(canceled, reason)
	return nil
}

func (e *Engine) reject(orderID uint64, reason schema.ExecReason) error {
	rejected, err := e.sm.Transition(orderID, schema.OrderStatusRejected, e.clk.Now())
	if err != nil {
		return err
	}
	e.report(rejected, reason)
	return nil
}

func (e *Engine) expire(orderID uint64, ts int64) {
	order, ok := e.cache.Order(orderID)
	if !ok || order.Status.IsTerminal() {
		return
	}
	e.books.Book(order.InstrumentID).Delete(orderID)
	expired, err := e.sm.Transition(orderID, schema.OrderStatusExpired, ts)
	if err != nil {
		logs.Errorf("expire order %d: %v", orderID, err)
		return
	}
	e.report(expired, schema.ExecReasonExpired)
}

// onDelta lifts resting strategy orders out of the way of an incoming book
// level that crosses them. The market trading through a resting price is
// full liquidity at that price: the order fills completely as a maker at
// its own price and leaves the book before the new level lands.
func (e *Engine) onDelta(m bus.Message) {
	delta, ok := m.Payload.(schema.BookDelta)
	if !ok || delta.Action != schema.BookActionAdd {
		return
	}
	bk := e.books.Book(delta.InstrumentID)
	resting := delta.Side.Opposite()

	var crossed []uint64
	bk.WalkLevels(resting, func(price schema.Price, entries []book.Entry) bool {
		if !marketable(delta.Side, delta.Price, price) {
			return false
		}
		for _, en := range entries {
			// Only orders tracked by the cache are ours; the rest of the
			// level is market data and stays put.
			if _, ours := e.cache.Order(en.OrderID); ours {
				crossed = append(crossed, en.OrderID)
			}
		}
		return true
	})

	for _, orderID := range crossed {
		if err := e.fillAtRest(orderID, delta.Side); err != nil {
			logs.Errorf("fill crossed order %d: %v", orderID, err)
		}
	}
}

// fillAtRest fills a resting order's full open quantity at its resting
// price, with the incoming market flow as the taker.
func (e *Engine) fillAtRest(orderID uint64, aggressor schema.Side) error {
	order, ok := e.cache.Order(orderID)
	if !ok || order.Status.IsTerminal() {
		return nil
	}
	bk := e.books.Book(order.InstrumentID)
	qty, ok := bk.RestingQty(orderID)
	if !ok || qty <= 0 {
		return nil
	}
	if err := bk.Fill(orderID, qty); err != nil {
		return err
	}

	e.tradeID++
	fill := schema.Fill{
		TradeID:       e.tradeID,
		InstrumentID:  order.InstrumentID,
		AggressorSide: aggressor,
		Price:         order.Price,
		Qty:           qty,
		Fee:           feeFor(order.Price, qty, e.cfg.MakerFeeBps),
		MakerOrderID:  order.ID,
	}
	now := e.clk.Now()
	updated, err := e.sm.ApplyFill(order.ID, order.Price, qty, now)
	if err != nil {
		return err
	}
	e.cache.ApplyFill(order.Side, fill, now)
	e.report(updated, schema.ExecReasonNone)
	if updated.Status == schema.OrderStatusFilled {
		e.clk.CancelTimer(gtdTimerName(order.ID))
	}
	e.outbox.PublishFill(fill, 0)
	return nil
}

func (e *Engine) onTrade(m bus.Message) {
	trade, ok := m.Payload.(schema.Trade)
	if !ok {
		return
	}
	e.checkTriggers(trade.InstrumentID, trade.Price, trade.Price)
}

func (e *Engine) onQuote(m bus.Message) {
	quote, ok := m.Payload.(schema.Quote)
	if !ok {
		return
	}
	e.checkTriggers(quote.InstrumentID, quote.AskPrice, quote.BidPrice)
}

// checkTriggers releases parked stops whose trigger is crossed, in order id
// order so release is deterministic. Buy stops trigger at or above the
// reference, sell stops at or below.
func (e *Engine) checkTriggers(id schema.InstrumentID, buyRef, sellRef schema.Price) {
	var fired []uint64
	for orderID, order := range e.stops {
		if order.InstrumentID != id {
			continue
		}
		ref := buyRef
		if order.Side == schema.SideSell {
			ref = sellRef
		}
		if stopCrossed(order.Side, order.TriggerPrice, ref) {
			fired = append(fired, orderID)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i] < fired[j] })
	for _, orderID := range fired {
		order := e.stops[orderID]
		delete(e.stops, orderID)
		if err := e.matchAggressor(order); err != nil {
			logs.Errorf("trigger order %d: %v", orderID, err)
		}
	}
}

func (e *Engine) triggered(order schema.Order) bool {
	bk := e.books.Book(order.InstrumentID)
	if order.Side == schema.SideBuy {
		if ask, _, ok := bk.BestAsk(); ok {
			return stopCrossed(order.Side, order.TriggerPrice, ask)
		}
		return false
	}
	if bid, _, ok := bk.BestBid(); ok {
		return stopCrossed(order.Side, order.TriggerPrice, bid)
	}
	return false
}

func (e *Engine) report(order schema.Order, reason schema.ExecReason) {
	e.outbox.PublishReport(schema.ExecutionReport{
		OrderID:      order.ID,
		StrategyID:   order.StrategyID,
		InstrumentID: order.InstrumentID,
		Status:       order.Status,
		Reason:       reason,
		Price:        order.AvgFillPrice,
		FilledQty:    order.FilledQty,
		LeavesQty:    order.LeavesQty(),
	}, 0)
}

func (e *Engine) effectiveLimit(order schema.Order) schema.Price {
	switch order.Type {
	case schema.OrderTypeLimit, schema.OrderTypeStopLimit:
		return order.Price
	default:
		return 0
	}
}

func gtdTimerName(orderID uint64) string {
	return fmt.Sprintf("gtd-expire:%d", orderID)
}

// marketable reports whether an aggressor at limit crosses restingPrice.
// A zero limit means no bound.
func marketable(aggressorSide schema.Side, limit, restingPrice schema.Price) bool {
	if limit == 0 {
		return true
	}
	if aggressorSide == schema.SideBuy {
		return restingPrice <= limit
	}
	return restingPrice >= limit
}

func stopCrossed(side schema.Side, trigger, ref schema.Price) bool {
	if side == schema.SideBuy {
		return ref >= trigger
	}
	return ref <= trigger
}

const maxInt64 = int64(^uint64(0) >> 1)

// feeFor charges bps on the fill notional, dividing last so sub-10000
// notionals still accrue a fee. An overflowing product falls back to
// dividing the notional first.
func feeFor(price schema.Price, qty schema.Quantity, bps int64) schema.Fee {
	if bps == 0 {
		return 0
	}
	notional := int64(price) * int64(qty)
	if notional > maxInt64/bps {
		return schema.Fee(notional / 10_000 * bps)
	}
	return schema.Fee(notional * bps / 10_000)
}
