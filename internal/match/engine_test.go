package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/book"
	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/exec"
	"main/internal/schema"
)

type matchHarness struct {
	bus     *bus.Bus
	clk     *clock.SimClock
	cache   *cache.Cache
	books   *book.Manager
	sm      *exec.StateMachine
	engine  *Engine
	reports []schema.ExecutionReport
	fills   []schema.Fill

	nextID uint64
}

func newMatchHarness(t *testing.T, cfg Config) *matchHarness {
	t.Helper()
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		VenueID:  venue,
		Symbol:   "BTC-USD",
		TickSize: 1,
		LotSize:  1,
		Tradable: true,
	})
	require.NoError(t, err)

	h := &matchHarness{
		bus:   bus.New(),
		clk:   clock.NewSimClock(1000),
		cache: cache.New(reg),
		books: book.NewManager(book.L3),
	}
	h.sm = exec.NewStateMachine(h.cache)
	outbox := exec.NewOutbox(h.bus, bus.NewSequencer(0), h.clk, 65000)
	h.engine = NewEngine(cfg, h.books, h.cache, h.sm, outbox, h.clk)
	require.NoError(t, h.engine.Wire(h.bus))

	_, err = h.bus.Subscribe("exec.report.>", func(m bus.Message) {
		h.reports = append(h.reports, m.Payload.(schema.ExecutionReport))
	})
	require.NoError(t, err)
	_, err = h.bus.Subscribe("exec.fill.>", func(m bus.Message) {
		h.fills = append(h.fills, m.Payload.(schema.Fill))
	})
	require.NoError(t, err)
	return h
}

func (h *matchHarness) submit(t *testing.T, side schema.Side, typ schema.OrderType, tif schema.TimeInForce, price, trigger schema.Price, qty schema.Quantity) schema.Order {
	t.Helper()
	h.nextID++
	intent := schema.OrderIntent{
		OrderID:      h.nextID,
		StrategyID:   1,
		InstrumentID: 1,
		Side:         side,
		Type:         typ,
		TimeInForce:  tif,
		Price:        price,
		TriggerPrice: trigger,
		Qty:          qty,
	}
	order, err := h.sm.Create(intent, h.clk.Now())
	require.NoError(t, err)
	order, err = h.sm.Transition(order.ID, schema.OrderStatusSubmitted, h.clk.Now())
	require.NoError(t, err)
	require.NoError(t, h.engine.Submit(order))
	out, ok := h.cache.Order(order.ID)
	require.True(t, ok)
	return out
}

func (h *matchHarness) rest(t *testing.T, side schema.Side, price schema.Price, qty schema.Quantity) schema.Order {
	t.Helper()
	return h.submit(t, side, schema.OrderTypeLimit, schema.TimeInForceGTC, price, 0, qty)
}

func (h *matchHarness) lastReport(t *testing.T) schema.ExecutionReport {
	t.Helper()
	require.NotEmpty(t, h.reports)
	return h.reports[len(h.reports)-1]
}

func TestLimitOrderRestsWhenNotMarketable(t *testing.T) {
	h := newMatchHarness(t, Config{})
	order := h.rest(t, schema.SideBuy, 100, 10)

	require.Equal(t, schema.OrderStatusAccepted, order.Status)
	bid, qty, ok := h.books.Book(1).BestBid()
	require.True(t, ok)
	require.Equal(t, schema.Price(100), bid)
	require.Equal(t, schema.Quantity(10), qty)
}

func TestMarketBuyWalksLevelsAtRestingPrices(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	h.rest(t, schema.SideSell, 102, 10)

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeMarket, schema.TimeInForceGTC, 0, 0, 12)
	require.Equal(t, schema.OrderStatusFilled, taker.Status)
	require.Equal(t, schema.Quantity(12), taker.FilledQty)

	require.Len(t, h.fills, 2)
	require.Equal(t, schema.Price(101), h.fills[0].Price)
	require.Equal(t, schema.Quantity(5), h.fills[0].Qty)
	require.Equal(t, schema.Price(102), h.fills[1].Price)
	require.Equal(t, schema.Quantity(7), h.fills[1].Qty)

	// 5@101 + 7@102 averages to 101 in integer math.
	require.Equal(t, schema.Price((101*5+102*7)/12), taker.AvgFillPrice)
}

func TestLimitBuyStopsAtLimitAndRestsRemainder(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	h.rest(t, schema.SideSell, 103, 10)

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 102, 0, 8)
	require.Equal(t, schema.OrderStatusPartiallyFilled, taker.Status)
	require.Equal(t, schema.Quantity(5), taker.FilledQty)

	bid, qty, ok := h.books.Book(1).BestBid()
	require.True(t, ok)
	require.Equal(t, schema.Price(102), bid)
	require.Equal(t, schema.Quantity(3), qty)
}

func TestMakerReceivesFillReports(t *testing.T) {
	h := newMatchHarness(t, Config{})
	maker := h.rest(t, schema.SideSell, 101, 5)

	h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 101, 0, 5)

	updated, ok := h.cache.Order(maker.ID)
	require.True(t, ok)
	require.Equal(t, schema.OrderStatusFilled, updated.Status)
	require.Equal(t, schema.Quantity(5), updated.FilledQty)
	require.Len(t, h.fills, 1)
	require.Equal(t, maker.ID, h.fills[0].MakerOrderID)
}

func TestFillsMovePositions(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 101, 0, 5)

	// Both sides trade against themselves in simulation, so the long and
	// short legs net out on the same instrument.
	pos := h.cache.Position(1)
	require.Zero(t, pos.Qty)
}

func TestIOCCancelsRemainder(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceIOC, 101, 0, 8)
	require.Equal(t, schema.OrderStatusCanceled, taker.Status)
	require.Equal(t, schema.Quantity(5), taker.FilledQty)
	require.Equal(t, schema.ExecReasonUnfilledIOC, h.lastReport(t).Reason)
	require.False(t, h.books.Book(1).Contains(taker.ID))
}

func TestFOKRequiresFullQuantity(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceFOK, 101, 0, 8)
	require.Equal(t, schema.OrderStatusRejected, taker.Status)
	require.Zero(t, taker.FilledQty, "fill-or-kill must not partially execute")
	require.Equal(t, schema.ExecReasonInsufficientLiquidity, h.lastReport(t).Reason)

	// Resting liquidity is untouched.
	_, qty, ok := h.books.Book(1).BestAsk()
	require.True(t, ok)
	require.Equal(t, schema.Quantity(5), qty)
}

func TestFOKFullyFillsWhenLiquiditySuffices(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	h.rest(t, schema.SideSell, 102, 5)

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceFOK, 102, 0, 8)
	require.Equal(t, schema.OrderStatusFilled, taker.Status)
}

func TestMarketOrderNeverRests(t *testing.T) {
	h := newMatchHarness(t, Config{})

	taker := h.submit(t, schema.SideBuy, schema.OrderTypeMarket, schema.TimeInForceGTC, 0, 0, 5)
	require.Equal(t, schema.OrderStatusCanceled, taker.Status)
	require.Equal(t, schema.ExecReasonInsufficientLiquidity, h.lastReport(t).Reason)
}

func TestGTDExpiresViaTimer(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.nextID++
	intent := schema.OrderIntent{
		OrderID:      h.nextID,
		InstrumentID: 1,
		Side:         schema.SideBuy,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTD,
		Price:        100,
		Qty:          10,
		ExpireTs:     5000,
	}
	order, err := h.sm.Create(intent, h.clk.Now())
	require.NoError(t, err)
	_, err = h.sm.Transition(order.ID, schema.OrderStatusSubmitted, h.clk.Now())
	require.NoError(t, err)
	require.NoError(t, h.engine.Submit(order))

	require.NoError(t, h.clk.AdvanceTo(4999))
	got, _ := h.cache.Order(order.ID)
	require.Equal(t, schema.OrderStatusAccepted, got.Status)

	require.NoError(t, h.clk.AdvanceTo(5000))
	got, _ = h.cache.Order(order.ID)
	require.Equal(t, schema.OrderStatusExpired, got.Status)
	require.False(t, h.books.Book(1).Contains(order.ID))
	require.Equal(t, schema.ExecReasonExpired, h.lastReport(t).Reason)
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	h := newMatchHarness(t, Config{})
	order := h.rest(t, schema.SideBuy, 100, 10)

	require.NoError(t, h.engine.Cancel(schema.CancelIntent{OrderID: order.ID, InstrumentID: 1}))
	got, _ := h.cache.Order(order.ID)
	require.Equal(t, schema.OrderStatusCanceled, got.Status)
	require.False(t, h.books.Book(1).Contains(order.ID))
	require.Equal(t, schema.ExecReasonUserCanceled, h.lastReport(t).Reason)
}

func TestCancelTerminalOrderReportsWithoutTransition(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 101, 0, 5)
	require.Equal(t, schema.OrderStatusFilled, taker.Status)

	require.NoError(t, h.engine.Cancel(schema.CancelIntent{OrderID: taker.ID, InstrumentID: 1}))
	got, _ := h.cache.Order(taker.ID)
	require.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestModifyQtyDecreaseKeepsQueuePosition(t *testing.T) {
	h := newMatchHarness(t, Config{})
	first := h.rest(t, schema.SideBuy, 100, 10)
	h.rest(t, schema.SideBuy, 100, 10)

	require.NoError(t, h.engine.Modify(schema.ModifyIntent{OrderID: first.ID, InstrumentID: 1, NewQty: 5}))
	head, _, ok := h.books.Book(1).Head(schema.SideBuy)
	require.True(t, ok)
	require.Equal(t, first.ID, head.OrderID)
	require.Equal(t, schema.Quantity(5), head.Qty)
}

func TestModifyPriceReentersAsAggressor(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 105, 5)
	buyer := h.rest(t, schema.SideBuy, 100, 5)

	require.NoError(t, h.engine.Modify(schema.ModifyIntent{OrderID: buyer.ID, InstrumentID: 1, NewPrice: 105}))
	got, _ := h.cache.Order(buyer.ID)
	require.Equal(t, schema.OrderStatusFilled, got.Status)
	require.Len(t, h.fills, 1)
	require.Equal(t, schema.Price(105), h.fills[0].Price)
}

func TestModifyBelowFilledQtyRejected(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 101, 5)
	taker := h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 101, 0, 8)
	require.Equal(t, schema.Quantity(5), taker.FilledQty)

	require.NoError(t, h.engine.Modify(schema.ModifyIntent{OrderID: taker.ID, InstrumentID: 1, NewQty: 4}))
	require.Equal(t, schema.ExecReasonInvalidQty, h.lastReport(t).Reason)
	got, _ := h.cache.Order(taker.ID)
	require.Equal(t, schema.Quantity(8), got.Qty)
}

func TestStopBuyParksUntilTradeTriggers(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 106, 10)

	stop := h.submit(t, schema.SideBuy, schema.OrderTypeStopMarket, schema.TimeInForceGTC, 0, 105, 5)
	require.Equal(t, schema.OrderStatusAccepted, stop.Status)
	require.Empty(t, h.fills)

	// A trade below the trigger does nothing.
	h.bus.Publish(schema.TopicTrade(1), bus.Message{
		Header:  schema.NewHeader(schema.EventTrade, 1, 1, 2000, 2000),
		Payload: schema.Trade{InstrumentID: 1, Price: 104, Qty: 1},
	})
	require.Empty(t, h.fills)

	h.bus.Publish(schema.TopicTrade(1), bus.Message{
		Header:  schema.NewHeader(schema.EventTrade, 1, 2, 2001, 2001),
		Payload: schema.Trade{InstrumentID: 1, Price: 105, Qty: 1},
	})
	require.Len(t, h.fills, 1)
	got, _ := h.cache.Order(stop.ID)
	require.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestStopSellTriggersOnQuoteBid(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideBuy, 94, 10)

	stop := h.submit(t, schema.SideSell, schema.OrderTypeStopMarket, schema.TimeInForceGTC, 0, 95, 5)
	require.Equal(t, schema.OrderStatusAccepted, stop.Status)

	h.bus.Publish(schema.TopicQuote(1), bus.Message{
		Header:  schema.NewHeader(schema.EventQuote, 1, 1, 2000, 2000),
		Payload: schema.Quote{InstrumentID: 1, BidPrice: 95, AskPrice: 96, BidQty: 1, AskQty: 1},
	})
	require.Len(t, h.fills, 1)
	require.Equal(t, schema.Price(94), h.fills[0].Price)
}

func TestStopAlreadyTriggeredMatchesImmediately(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 104, 10)

	// Best ask already at or above the trigger.
	stop := h.submit(t, schema.SideBuy, schema.OrderTypeStopMarket, schema.TimeInForceGTC, 0, 104, 5)
	got, _ := h.cache.Order(stop.ID)
	require.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestCanceledStopNeverTriggers(t *testing.T) {
	h := newMatchHarness(t, Config{})
	h.rest(t, schema.SideSell, 106, 10)
	stop := h.submit(t, schema.SideBuy, schema.OrderTypeStopMarket, schema.TimeInForceGTC, 0, 105, 5)

	require.NoError(t, h.engine.Cancel(schema.CancelIntent{OrderID: stop.ID, InstrumentID: 1}))
	h.bus.Publish(schema.TopicTrade(1), bus.Message{
		Header:  schema.NewHeader(schema.EventTrade, 1, 1, 2000, 2000),
		Payload: schema.Trade{InstrumentID: 1, Price: 110, Qty: 1},
	})
	require.Empty(t, h.fills)
}

func TestIncomingDeltaCrossingRestingOrderFillsIt(t *testing.T) {
	h := newMatchHarness(t, Config{})
	var fatal *book.InvariantError
	require.NoError(t, h.books.SubscribeDeltas(h.bus,
		func(err error) { t.Fatalf("delta error: %v", err) },
		func(ie *book.InvariantError) { fatal = ie },
	))

	resting := h.rest(t, schema.SideBuy, 100, 10)

	publishAsk := func(seq uint64, price schema.Price, qty schema.Quantity) {
		h.bus.Publish(schema.TopicDelta(1), bus.Message{
			Header: schema.NewHeader(schema.EventBookDelta, 1, seq, 2000, 2000),
			Payload: schema.BookDelta{
				InstrumentID: 1,
				Action:       schema.BookActionAdd,
				Side:         schema.SideSell,
				OrderID:      9000 + seq,
				Price:        price,
				Qty:          qty,
			},
		})
	}

	// An ask above the resting bid does not touch it.
	publishAsk(1, 101, 4)
	require.Empty(t, h.fills)
	require.Nil(t, fatal)

	// An ask through the bid fills it at its resting price before the
	// level lands, so the ladder never crosses.
	publishAsk(2, 99, 4)
	require.Nil(t, fatal)
	require.Len(t, h.fills, 1)
	require.Equal(t, schema.Price(100), h.fills[0].Price)
	require.Equal(t, resting.ID, h.fills[0].MakerOrderID)

	got, _ := h.cache.Order(resting.ID)
	require.Equal(t, schema.OrderStatusFilled, got.Status)
	require.Equal(t, schema.Quantity(10), got.FilledQty)
	require.False(t, h.books.Book(1).Contains(resting.ID))

	ask, qty, ok := h.books.Book(1).BestAsk()
	require.True(t, ok)
	require.Equal(t, schema.Price(99), ask)
	require.Equal(t, schema.Quantity(4), qty)
	require.NoError(t, h.books.Book(1).Check())
}

func TestFeesAppliedPerSide(t *testing.T) {
	h := newMatchHarness(t, Config{MakerFeeBps: 1, TakerFeeBps: 2})
	h.rest(t, schema.SideSell, 10_000, 5)
	h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 10_000, 0, 5)

	require.Len(t, h.fills, 1)
	// Taker fee on the published fill: 10000*5*2/10000.
	require.Equal(t, schema.Fee(10), h.fills[0].Fee)
}

func TestFeeKeepsSubUnitNotionalPrecision(t *testing.T) {
	h := newMatchHarness(t, Config{TakerFeeBps: 7})
	h.rest(t, schema.SideSell, 3_333, 1)
	h.submit(t, schema.SideBuy, schema.OrderTypeLimit, schema.TimeInForceGTC, 3_333, 0, 1)

	require.Len(t, h.fills, 1)
	// 3333*7/10000 = 2; dividing the notional by 10000 first truncates to 0.
	require.Equal(t, schema.Fee(2), h.fills[0].Fee)
}
