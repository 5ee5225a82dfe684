package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/risk"
	"main/internal/schema"
)

type fakeClient struct {
	submitted []schema.Order
	canceled  []schema.CancelIntent
	modified  []schema.ModifyIntent
	submitErr error
	cancelErr error
	modifyErr error
}

func (f *fakeClient) Submit(order schema.Order) error {
	f.submitted = append(f.submitted, order)
	return f.submitErr
}

func (f *fakeClient) Cancel(intent schema.CancelIntent) error {
	f.canceled = append(f.canceled, intent)
	return f.cancelErr
}

func (f *fakeClient) Modify(intent schema.ModifyIntent) error {
	f.modified = append(f.modified, intent)
	return f.modifyErr
}

type execHarness struct {
	bus     *bus.Bus
	cache   *cache.Cache
	engine  *Engine
	client  *fakeClient
	reports []schema.ExecutionReport
	risk    []schema.RiskDecision
}

func newExecHarness(t *testing.T, riskCfg risk.Config) *execHarness {
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

	h := &execHarness{bus: bus.New(), cache: cache.New(reg), client: &fakeClient{}}
	clk := clock.NewSimClock(1000)
	seq := bus.NewSequencer(0)
	outbox := NewOutbox(h.bus, seq, clk, 65000)
	h.engine = NewEngine(h.cache, risk.NewEngine(riskCfg), outbox, clk)
	h.engine.SetClient(h.client)
	require.NoError(t, h.engine.Wire(h.bus))

	_, err = h.bus.Subscribe("exec.report.>", func(m bus.Message) {
		h.reports = append(h.reports, m.Payload.(schema.ExecutionReport))
	})
	require.NoError(t, err)
	_, err = h.bus.Subscribe(schema.TopicRiskDecision, func(m bus.Message) {
		h.risk = append(h.risk, m.Payload.(schema.RiskDecision))
	})
	require.NoError(t, err)
	return h
}

func (h *execHarness) submit(t *testing.T, intent schema.OrderIntent) {
	t.Helper()
	require.NoError(t, h.bus.Send(schema.EndpointSubmitOrder, bus.Message{
		Header:  schema.NewHeader(schema.EventOrderIntent, 65001, 0, 1000, 1000),
		Payload: intent,
	}))
}

func intent(id uint64) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID:      id,
		StrategyID:   1,
		InstrumentID: 1,
		Side:         schema.SideBuy,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTC,
		Price:        100,
		Qty:          10,
	}
}

func TestSubmitAllowedReachesClient(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	h.submit(t, intent(1))

	require.Len(t, h.client.submitted, 1)
	require.Equal(t, schema.OrderStatusSubmitted, h.client.submitted[0].Status)
	require.Len(t, h.risk, 1)
	require.Equal(t, schema.RiskActionAllow, h.risk[0].Action)

	order, ok := h.cache.Order(1)
	require.True(t, ok)
	require.Equal(t, schema.OrderStatusSubmitted, order.Status)
}

func TestSubmitDeniedPublishesRejection(t *testing.T) {
	h := newExecHarness(t, risk.Config{KillSwitch: true})
	h.submit(t, intent(1))

	require.Empty(t, h.client.submitted)
	require.Len(t, h.risk, 1)
	require.Equal(t, schema.RiskActionDeny, h.risk[0].Action)
	require.Len(t, h.reports, 1)
	require.Equal(t, schema.OrderStatusRejected, h.reports[0].Status)
	require.Equal(t, schema.ExecReasonRiskKillSwitch, h.reports[0].Reason)

	order, ok := h.cache.Order(1)
	require.True(t, ok)
	require.Equal(t, schema.OrderStatusRejected, order.Status)
}

func TestSubmitDuplicateOrderIDRejected(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	h.submit(t, intent(1))
	h.submit(t, intent(1))

	require.Len(t, h.client.submitted, 1)
	require.Len(t, h.reports, 1)
	require.Equal(t, schema.ExecReasonDuplicateOrder, h.reports[0].Reason)
}

func TestSubmitVenueTimeoutKeepsOrderState(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	h.client.submitErr = ErrPendingTimeout
	h.submit(t, intent(1))

	require.Len(t, h.reports, 1)
	require.Equal(t, schema.ExecReasonVenueTimeout, h.reports[0].Reason)
	require.Equal(t, schema.OrderStatusSubmitted, h.reports[0].Status)
}

func TestSubmitClientErrorPropagates(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	h.client.submitErr = errors.New("venue down")
	err := h.bus.Send(schema.EndpointSubmitOrder, bus.Message{
		Header:  schema.NewHeader(schema.EventOrderIntent, 65001, 0, 1000, 1000),
		Payload: intent(1),
	})
	require.Error(t, err)
}

func TestCancelUnknownOrderRejected(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	require.NoError(t, h.bus.Send(schema.EndpointCancelOrder, bus.Message{
		Payload: schema.CancelIntent{OrderID: 99, StrategyID: 1, InstrumentID: 1},
	}))
	require.Empty(t, h.client.canceled)
	require.Len(t, h.reports, 1)
	require.Equal(t, schema.ExecReasonUnknownOrder, h.reports[0].Reason)
}

func TestCancelKnownOrderForwards(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	h.submit(t, intent(1))
	require.NoError(t, h.bus.Send(schema.EndpointCancelOrder, bus.Message{
		Payload: schema.CancelIntent{OrderID: 1, StrategyID: 1, InstrumentID: 1},
	}))
	require.Len(t, h.client.canceled, 1)
	require.Equal(t, uint64(1), h.client.canceled[0].OrderID)
}

func TestModifyUnknownOrderRejected(t *testing.T) {
	h := newExecHarness(t, risk.Config{})
	require.NoError(t, h.bus.Send(schema.EndpointModifyOrder, bus.Message{
		Payload: schema.ModifyIntent{OrderID: 99, StrategyID: 1, InstrumentID: 1, NewQty: 5},
	}))
	require.Empty(t, h.client.modified)
	require.Len(t, h.reports, 1)
	require.Equal(t, schema.ExecReasonUnknownOrder, h.reports[0].Reason)
}

func TestCollarUsesLastTrade(t *testing.T) {
	h := newExecHarness(t, risk.Config{MaxPriceDeviationBps: 100})
	h.bus.Publish(schema.TopicTrade(1), bus.Message{
		Header:  schema.NewHeader(schema.EventTrade, 1, 1, 1000, 1000),
		Payload: schema.Trade{InstrumentID: 1, Price: 100, Qty: 1},
	})

	wide := intent(1)
	wide.Price = 150
	h.submit(t, wide)

	require.Empty(t, h.client.submitted)
	require.Len(t, h.reports, 1)
	require.Equal(t, schema.ExecReasonRiskPriceCollar, h.reports[0].Reason)
}

func TestSetRiskAppliesNewLimits(t *testing.T) {
	h := newExecHarness(t, risk.Config{})

	h.submit(t, intent(1))
	require.Len(t, h.client.submitted, 1)

	// A hot-reloaded kill switch gates the very next submit.
	h.engine.SetRisk(risk.NewEngine(risk.Config{KillSwitch: true}))
	h.submit(t, intent(2))
	require.Len(t, h.client.submitted, 1)
	last := h.reports[len(h.reports)-1]
	require.Equal(t, schema.OrderStatusRejected, last.Status)
	require.Equal(t, schema.ExecReasonRiskKillSwitch, last.Reason)
}

func TestStateMachineTransitions(t *testing.T) {
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{VenueID: venue, Symbol: "X", TickSize: 1, LotSize: 1, Tradable: true})
	require.NoError(t, err)
	sm := NewStateMachine(cache.New(reg))

	order, err := sm.Create(intent(1), 1)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusInitialized, order.Status)

	_, err = sm.Transition(1, schema.OrderStatusFilled, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)

	order, err = sm.Transition(1, schema.OrderStatusSubmitted, 2)
	require.NoError(t, err)
	order, err = sm.Transition(1, schema.OrderStatusAccepted, 3)
	require.NoError(t, err)
	order, err = sm.Transition(1, schema.OrderStatusCanceled, 4)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusCanceled, order.Status)

	// Terminal states absorb.
	_, err = sm.Transition(1, schema.OrderStatusAccepted, 5)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// An accepted order can still be rejected by the venue.
	order, err = sm.Create(intent(2), 6)
	require.NoError(t, err)
	_, err = sm.Transition(2, schema.OrderStatusSubmitted, 7)
	require.NoError(t, err)
	_, err = sm.Transition(2, schema.OrderStatusAccepted, 8)
	require.NoError(t, err)
	order, err = sm.Transition(2, schema.OrderStatusRejected, 9)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusRejected, order.Status)
}

func TestStateMachineApplyFill(t *testing.T) {
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{VenueID: venue, Symbol: "X", TickSize: 1, LotSize: 1, Tradable: true})
	require.NoError(t, err)
	sm := NewStateMachine(cache.New(reg))

	_, err = sm.Create(intent(1), 1)
	require.NoError(t, err)
	_, err = sm.Transition(1, schema.OrderStatusSubmitted, 1)
	require.NoError(t, err)
	_, err = sm.Transition(1, schema.OrderStatusAccepted, 1)
	require.NoError(t, err)

	order, err := sm.ApplyFill(1, 100, 4, 2)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusPartiallyFilled, order.Status)
	require.Equal(t, schema.Quantity(4), order.FilledQty)

	// 4 @ 100 + 6 @ 110 averages to 106.
	order, err = sm.ApplyFill(1, 110, 6, 3)
	require.NoError(t, err)
	require.Equal(t, schema.OrderStatusFilled, order.Status)
	require.Equal(t, schema.Price(106), order.AvgFillPrice)

	_, err = sm.ApplyFill(1, 110, 1, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachineOverfillRejected(t *testing.T) {
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{VenueID: venue, Symbol: "X", TickSize: 1, LotSize: 1, Tradable: true})
	require.NoError(t, err)
	sm := NewStateMachine(cache.New(reg))

	_, err = sm.Create(intent(1), 1)
	require.NoError(t, err)
	_, err = sm.Transition(1, schema.OrderStatusSubmitted, 1)
	require.NoError(t, err)

	_, err = sm.ApplyFill(1, 100, 11, 2)
	require.ErrorIs(t, err, ErrOverfill)
	_, err = sm.ApplyFill(1, 100, 0, 2)
	require.ErrorIs(t, err, ErrInvalidFill)
}
