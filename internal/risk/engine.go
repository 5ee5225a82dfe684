// Package risk is the pre-trade validation gate. It is stateless beyond
// reading the current cache view; a denied command never reaches the book.
package risk

import (
	"time"

	"main/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config defines static risk limits. Zero values disable a check.
type Config struct {
	Version              uint16          `json:"version"`
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          schema.Quantity `json:"maxOrderQty"`
	MaxOrderNotional     schema.Notional `json:"maxOrderNotional"`
	MaxPosition          schema.Quantity `json:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// View provides the cache state a decision depends on.
type View struct {
	Position       schema.Quantity
	LastTradePrice schema.Price
	Now            int64
}

// Engine evaluates order intents against the configured limits.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate checks an order intent. The first failing check decides; the
// intent never reaches the matching engine on a deny.
func (e *Engine) Evaluate(intent schema.OrderIntent, inst schema.Instrument, known bool, view View) schema.RiskDecision {
	decision := schema.RiskDecision{
		OrderID:       intent.OrderID,
		StrategyID:    intent.StrategyID,
		InstrumentID:  intent.InstrumentID,
		Action:        schema.RiskActionAllow,
		Reason:        schema.ExecReasonNone,
		Flags:         e.cfg.Version,
		ProposedQty:   intent.Qty,
		ProposedPrice: intent.Price,
		CurrentPos:    view.Position,
		MaxPos:        e.cfg.MaxPosition,
		MaxNotional:   e.cfg.MaxOrderNotional,
	}
	deny := func(reason schema.ExecReason) schema.RiskDecision {
		decision.Action = schema.RiskActionDeny
		decision.Reason = reason
		return decision
	}

	if e.cfg.KillSwitch {
		return deny(schema.ExecReasonRiskKillSwitch)
	}
	if !known {
		return deny(schema.ExecReasonUnknownInstrument)
	}
	if !inst.Tradable {
		return deny(schema.ExecReasonNotTradable)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		now := view.Now
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(schema.ExecReasonRiskMaxQty)
		}
	}

	if intent.Qty <= 0 {
		return deny(schema.ExecReasonInvalidQty)
	}
	if inst.LotSize > 0 && int64(intent.Qty)%int64(inst.LotSize) != 0 {
		return deny(schema.ExecReasonLotSize)
	}
	if e.cfg.MaxOrderQty > 0 && intent.Qty > e.cfg.MaxOrderQty {
		return deny(schema.ExecReasonRiskMaxQty)
	}

	needsPrice := intent.Type == schema.OrderTypeLimit || intent.Type == schema.OrderTypeStopLimit
	if needsPrice {
		if intent.Price <= 0 {
			return deny(schema.ExecReasonInvalidPrice)
		}
		if inst.TickSize > 0 && int64(intent.Price)%int64(inst.TickSize) != 0 {
			return deny(schema.ExecReasonTickSize)
		}
	}
	if intent.Type.IsStop() && intent.TriggerPrice <= 0 {
		return deny(schema.ExecReasonInvalidPrice)
	}

	if e.cfg.MaxPriceDeviationBps > 0 && needsPrice {
		ref := int64(view.LastTradePrice)
		if ref > 0 {
			diff := absInt64(int64(intent.Price) - ref)
			if exceedsDeviation(diff, ref, e.cfg.MaxPriceDeviationBps) {
				return deny(schema.ExecReasonRiskPriceCollar)
			}
		}
	}

	if needsPrice || intent.Price > 0 {
		notional, overflow := mulNotional(intent.Price, intent.Qty)
		if overflow {
			return deny(schema.ExecReasonRiskMaxNotional)
		}
		if e.cfg.MaxOrderNotional > 0 && notional > e.cfg.MaxOrderNotional {
			return deny(schema.ExecReasonRiskMaxNotional)
		}
	}

	nextPos := applySide(view.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition > 0 && absQuantity(nextPos) > e.cfg.MaxPosition {
		return deny(schema.ExecReasonRiskPositionLimit)
	}

	return decision
}

func mulNotional(price schema.Price, qty schema.Quantity) (schema.Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return schema.Notional(int64(price) * int64(qty)), false
}

func applySide(pos schema.Quantity, side schema.Side, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.SideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.SideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff int64, ref int64, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10000 {
		return true
	}
	lhs := diff * 10000
	if ref > maxInt64/bps {
		return true
	}
	rhs := ref * bps
	return lhs > rhs
}
