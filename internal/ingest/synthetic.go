// Package ingest adapts external market data into feed queues. Each source
// normalizes its input into schema events; timestamp ordering and sequence
// assignment stay with the feed engine.
package ingest

import (
	"context"
	"fmt"
	"math/rand"

	"main/internal/bus"
	"main/internal/schema"
)

// SyntheticConfig tunes the synthetic market data generator.
type SyntheticConfig struct {
	Seed      int64           `json:"seed"`
	BasePrice schema.Price    `json:"base_price"`
	BaseQty   schema.Quantity `json:"base_qty"`
	Spread    schema.Price    `json:"spread"`
	// Interval is the simulated gap between ticks in nanoseconds.
	Interval int64 `json:"interval"`
	// Ticks is the total number of ticks to generate. Zero means unbounded.
	Ticks int64 `json:"ticks"`
}

type syntheticLevel struct {
	orderID uint64
	price   schema.Price
}

// Synthetic generates a deterministic random walk per instrument, emitting
// a book delta pair, a quote, and a trade each tick. The same seed always
// produces the same event sequence.
type Synthetic struct {
	cfg      SyntheticConfig
	source   schema.SourceID
	rng      *rand.Rand
	registry *schema.Registry

	mids        map[schema.InstrumentID]schema.Price
	bids        map[schema.InstrumentID]syntheticLevel
	asks        map[schema.InstrumentID]syntheticLevel
	nextOrderID uint64
	nextTradeID uint64
	index       int
	now         int64
	emitted     int64
}

// NewSynthetic creates a generator over every instrument in the registry.
func NewSynthetic(cfg SyntheticConfig, source schema.SourceID, reg *schema.Registry, startTs int64) (*Synthetic, error) {
	if reg == nil || reg.InstrumentCount() == 0 {
		return nil, fmt.Errorf("registry has no instruments")
	}
	if cfg.BasePrice <= 0 {
		return nil, fmt.Errorf("base price must be positive, got %d", cfg.BasePrice)
	}
	if cfg.BaseQty <= 0 {
		cfg.BaseQty = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = int64(1_000_000) // 1ms
	}
	return &Synthetic{
		cfg:      cfg,
		source:   source,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		registry: reg,
		mids:     make(map[schema.InstrumentID]schema.Price),
		bids:     make(map[schema.InstrumentID]syntheticLevel),
		asks:     make(map[schema.InstrumentID]syntheticLevel),
		// High namespace so synthetic maker ids never collide with
		// strategy order ids.
		nextOrderID: uint64(source) << 48,
		now:         startTs,
	}, nil
}

// Next generates the messages for one tick of one instrument, round-robin
// across the registry. It returns nil when the configured tick count is
// exhausted.
func (s *Synthetic) Next() []bus.Message {
	if s.cfg.Ticks > 0 && s.emitted >= s.cfg.Ticks {
		return nil
	}
	s.emitted++
	s.now += s.cfg.Interval

	inst, ok := s.registry.InstrumentAt(s.index)
	s.index = (s.index + 1) % s.registry.InstrumentCount()
	if !ok {
		return nil
	}

	mid, ok := s.mids[inst.ID]
	if !ok {
		mid = s.cfg.BasePrice
	}
	step := schema.Price(s.rng.Int63n(3)-1) * inst.TickSize
	mid += step
	if mid < inst.TickSize {
		mid = inst.TickSize
	}
	s.mids[inst.ID] = mid

	spread := s.cfg.Spread
	if spread < inst.TickSize {
		spread = inst.TickSize
	}
	bid := mid - spread
	ask := mid + spread

	var msgs []bus.Message
	msgs = append(msgs, s.levelDeltas(inst.ID, schema.SideBuy, bid)...)
	msgs = append(msgs, s.levelDeltas(inst.ID, schema.SideSell, ask)...)

	msgs = append(msgs, s.message(schema.EventQuote, schema.Quote{
		InstrumentID: inst.ID,
		BidPrice:     bid,
		BidQty:       s.cfg.BaseQty,
		AskPrice:     ask,
		AskQty:       s.cfg.BaseQty,
	}))

	s.nextTradeID++
	aggressor := schema.SideBuy
	if s.rng.Intn(2) == 1 {
		aggressor = schema.SideSell
	}
	msgs = append(msgs, s.message(schema.EventTrade, schema.Trade{
		InstrumentID:  inst.ID,
		AggressorSide: aggressor,
		Price:         mid,
		Qty:           s.cfg.BaseQty,
		TradeID:       s.nextTradeID,
	}))

	return msgs
}

// Run pushes generated ticks into the queue until the tick budget or the
// context runs out. Both drivers consume the generator this way; Next is
// exported for tests that want single ticks.
func (s *Synthetic) Run(ctx context.Context, queue *bus.Queue) error {
	for {
		msgs := s.Next()
		if msgs == nil {
			return nil
		}
		for _, m := range msgs {
			if err := queue.Publish(ctx, m); err != nil {
				return err
			}
		}
	}
}

// levelDeltas moves one synthetic resting level: unchanged prices update
// quantity in place, moved prices delete and re-add.
func (s *Synthetic) levelDeltas(id schema.InstrumentID, side schema.Side, price schema.Price) []bus.Message {
	levels := s.bids
	if side == schema.SideSell {
		levels = s.asks
	}

	var msgs []bus.Message
	current, exists := levels[id]
	if exists && current.price == price {
		msgs = append(msgs, s.message(schema.EventBookDelta, schema.BookDelta{
			InstrumentID: id,
			Action:       schema.BookActionUpdate,
			Side:         side,
			OrderID:      current.orderID,
			Price:        price,
			Qty:          s.cfg.BaseQty,
		}))
		return msgs
	}
	if exists {
		msgs = append(msgs, s.message(schema.EventBookDelta, schema.BookDelta{
			InstrumentID: id,
			Action:       schema.BookActionDelete,
			Side:         side,
			OrderID:      current.orderID,
			Price:        current.price,
		}))
	}
	s.nextOrderID++
	levels[id] = syntheticLevel{orderID: s.nextOrderID, price: price}
	msgs = append(msgs, s.message(schema.EventBookDelta, schema.BookDelta{
		InstrumentID: id,
		Action:       schema.BookActionAdd,
		Side:         side,
		OrderID:      s.nextOrderID,
		Price:        price,
		Qty:          s.cfg.BaseQty,
	}))
	return msgs
}

func (s *Synthetic) message(t schema.EventType, payload any) bus.Message {
	return bus.Message{
		Header:  schema.NewHeader(t, s.source, 0, s.now, s.now),
		Payload: payload,
	}
}
