package strategy

import (
	"fmt"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// Quoter is a minimal reference strategy: it keeps one resting GTC bid a
// fixed number of ticks below the best bid and re-quotes when the market
// moves. It stops quoting once its position reaches MaxPosition.
type Quoter struct {
	Instrument  schema.InstrumentID
	OffsetTicks int64
	Qty         schema.Quantity
	MaxPosition schema.Quantity

	tick    schema.Price
	orderID uint64
	quoted  schema.Price
}

func (q *Quoter) Name() string { return "quoter" }

func (q *Quoter) OnStart(ctx *Context) error {
	inst, ok := ctx.Cache().Instrument(q.Instrument)
	if !ok {
		return fmt.Errorf("instrument not registered: %d", q.Instrument)
	}
	q.tick = inst.TickSize
	if err := ctx.Subscribe(schema.TopicQuote(q.Instrument)); err != nil {
		return err
	}
	return ctx.Subscribe(schema.TopicExecReport(q.Instrument))
}

func (q *Quoter) OnEvent(ctx *Context, m bus.Message) {
	switch p := m.Payload.(type) {
	case schema.Quote:
		q.onQuote(ctx, p)
	case schema.ExecutionReport:
		if p.OrderID == q.orderID && p.Status.IsTerminal() {
			q.orderID = 0
			q.quoted = 0
		}
	}
}

func (q *Quoter) onQuote(ctx *Context, quote schema.Quote) {
	if quote.BidPrice == 0 {
		return
	}
	pos := ctx.Cache().Position(q.Instrument)
	if q.MaxPosition > 0 && pos.Qty >= q.MaxPosition {
		if q.orderID != 0 {
			ctx.CancelOrder(q.orderID, q.Instrument)
			q.orderID = 0
			q.quoted = 0
		}
		return
	}

	want := quote.BidPrice - schema.Price(q.OffsetTicks*int64(q.tick))
	if want <= 0 || want == q.quoted {
		return
	}
	if q.orderID != 0 {
		ctx.ModifyOrder(schema.ModifyIntent{
			OrderID:      q.orderID,
			InstrumentID: q.Instrument,
			NewPrice:     want,
			NewQty:       q.Qty,
		})
		q.quoted = want
		return
	}
	q.orderID = ctx.SubmitOrder(schema.OrderIntent{
		InstrumentID: q.Instrument,
		Side:         schema.SideBuy,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTC,
		Price:        want,
		Qty:          q.Qty,
	})
	q.quoted = want
}

func (q *Quoter) OnStop(ctx *Context) {
	if q.orderID != 0 {
		ctx.CancelOrder(q.orderID, q.Instrument)
	}
	pos := ctx.Cache().Position(q.Instrument)
	logs.Infof("quoter stopped: position=%d avg=%d", pos.Qty, pos.AvgPrice)
}
