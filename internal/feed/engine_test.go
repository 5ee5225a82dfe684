package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/clock"
	"main/internal/schema"
)

func newTestEngine(t *testing.T, cfg Config, clk clock.Clock, nSources int) (*Engine, []*bus.Queue) {
	t.Helper()
	e := NewEngine(cfg, bus.New(), clk, bus.NewSequencer(0))
	queues := make([]*bus.Queue, nSources)
	for i := range queues {
		q, err := e.AttachSource(schema.SourceID(i+1), "src")
		require.NoError(t, err)
		queues[i] = q
	}
	return e, queues
}

func trade(source schema.SourceID, ts int64) bus.Message {
	return bus.Message{
		Header:  schema.NewHeader(schema.EventTrade, source, 0, ts, ts),
		Payload: schema.Trade{InstrumentID: 1, Price: 100_0000, Qty: 1_000, TradeID: uint64(ts)},
	}
}

func TestMergeEmitsGlobalOrder(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	require.NoError(t, queues[0].TryPublish(trade(1, 105)))
	require.NoError(t, queues[1].TryPublish(trade(2, 102)))
	queues[0].Close()
	queues[1].Close()

	var order []int64
	for {
		m, ok := e.Next()
		if !ok {
			break
		}
		order = append(order, m.Header.TsEvent)
	}
	require.Equal(t, []int64{100, 102, 105}, order)
	require.True(t, e.Done())
}

func TestMergeAssignsMonotonicSeq(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 1)
	require.NoError(t, queues[0].TryPublish(trade(1, 10)))
	require.NoError(t, queues[0].TryPublish(trade(1, 20)))
	queues[0].Close()

	m1, ok := e.Next()
	require.True(t, ok)
	m2, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, uint64(1), m1.Header.Seq)
	require.Equal(t, uint64(2), m2.Header.Seq)
}

func TestMergeHoldsForSilentSource(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	require.NoError(t, queues[0].TryPublish(trade(1, 40)))
	require.NoError(t, queues[1].TryPublish(trade(2, 50)))
	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, int64(40), m.Header.TsEvent)

	// Source 1's watermark at 40 holds the candidate at 50 until source 1
	// produces something at or past it.
	_, ok = e.Next()
	require.False(t, ok, "source 1 watermark at 40 must hold an event at 50")

	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	m, ok = e.Next()
	require.True(t, ok)
	require.Equal(t, int64(50), m.Header.TsEvent)

	queues[1].Close()
	m, ok = e.Next()
	require.True(t, ok)
	require.Equal(t, int64(100), m.Header.TsEvent)
}

func TestMergeHoldsForSourceThatNeverProduced(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	// Source 2 has no watermark yet; its first event may carry any
	// timestamp, so nothing is safe until it produces or finishes.
	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	_, ok := e.Next()
	require.False(t, ok, "a source that never produced must hold the merge")

	queues[1].Close()
	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, int64(100), m.Header.TsEvent)
}

func TestMergeWaitsForLateFirstEvent(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	// Source 1 races ahead before source 2 delivers anything. The earlier
	// event from source 2 must still come out in order, not be dropped.
	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	require.NoError(t, queues[0].TryPublish(trade(1, 105)))
	_, ok := e.Next()
	require.False(t, ok)

	require.NoError(t, queues[1].TryPublish(trade(2, 102)))
	queues[0].Close()
	queues[1].Close()

	var order []int64
	for {
		m, ok := e.Next()
		if !ok {
			break
		}
		order = append(order, m.Header.TsEvent)
	}
	require.Equal(t, []int64{100, 102, 105}, order)
	require.Zero(t, e.Dropped())
}

func TestMergeStalenessBoundReleasesHold(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{MaxSilence: 1000}, clk, 2)

	require.NoError(t, queues[0].TryPublish(trade(1, 40)))
	require.NoError(t, queues[1].TryPublish(trade(2, 50)))
	_, ok := e.Next()
	require.True(t, ok)

	_, ok = e.Next()
	require.False(t, ok)

	require.NoError(t, clk.AdvanceTo(2000))
	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, int64(50), m.Header.TsEvent)
}

func TestMergeDoneSourceStopsHolding(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	require.NoError(t, queues[0].TryPublish(trade(1, 40)))
	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	require.NoError(t, queues[1].TryPublish(trade(2, 50)))
	_, ok := e.Next()
	require.True(t, ok)
	_, ok = e.Next()
	require.True(t, ok)

	// Source 2's watermark at 50 holds the candidate at 100.
	_, ok = e.Next()
	require.False(t, ok)

	e.SourceDone(2)
	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, int64(100), m.Header.TsEvent)
}

func TestMergeEqualTimestampUsesTypePriority(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	// Execution reports carry lower priority than trades at equal ts.
	report := bus.Message{
		Header:  schema.NewHeader(schema.EventExecutionReport, 1, 0, 100, 100),
		Payload: schema.ExecutionReport{InstrumentID: 1},
	}
	require.NoError(t, queues[0].TryPublish(report))
	require.NoError(t, queues[1].TryPublish(trade(2, 100)))
	queues[0].Close()
	queues[1].Close()

	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, schema.EventTrade, m.Header.Type)
	m, ok = e.Next()
	require.True(t, ok)
	require.Equal(t, schema.EventExecutionReport, m.Header.Type)
}

func TestMergeEqualTimestampTieBreaksOnSourceID(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 2)

	require.NoError(t, queues[1].TryPublish(trade(2, 100)))
	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	queues[0].Close()
	queues[1].Close()

	m, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, schema.SourceID(1), m.Header.Source)
	m, ok = e.Next()
	require.True(t, ok)
	require.Equal(t, schema.SourceID(2), m.Header.Source)
}

func TestMergeDropsOutOfOrderWithinSource(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 1)

	require.NoError(t, queues[0].TryPublish(trade(1, 100)))
	require.NoError(t, queues[0].TryPublish(trade(1, 90)))
	require.NoError(t, queues[0].TryPublish(trade(1, 110)))
	queues[0].Close()

	var order []int64
	for {
		m, ok := e.Next()
		if !ok {
			break
		}
		order = append(order, m.Header.TsEvent)
	}
	require.Equal(t, []int64{100, 110}, order)
	require.Equal(t, uint64(1), e.Dropped())
}

func TestMergeClosedQueueFinishesSource(t *testing.T) {
	clk := clock.NewSimClock(0)
	e, queues := newTestEngine(t, Config{}, clk, 1)

	require.False(t, e.Done())
	queues[0].Close()
	require.True(t, e.Done())
}

func TestAttachSourceRejectsDuplicateID(t *testing.T) {
	e := NewEngine(Config{}, bus.New(), clock.NewSimClock(0), bus.NewSequencer(0))
	_, err := e.AttachSource(1, "a")
	require.NoError(t, err)
	_, err = e.AttachSource(1, "b")
	require.Error(t, err)
}

func TestDrainEmitsEverything(t *testing.T) {
	clk := clock.NewSimClock(0)
	b := bus.New()
	e := NewEngine(Config{}, b, clk, bus.NewSequencer(0))
	q1, err := e.AttachSource(1, "a")
	require.NoError(t, err)
	q2, err := e.AttachSource(2, "b")
	require.NoError(t, err)

	var published int
	_, err = b.Subscribe(">", func(bus.Message) { published++ })
	require.NoError(t, err)

	require.NoError(t, q1.TryPublish(trade(1, 10)))
	require.NoError(t, q2.TryPublish(trade(2, 5)))
	require.NoError(t, q1.TryPublish(trade(1, 20)))

	require.Equal(t, 3, e.Drain())
	require.Equal(t, 3, published)
}

func TestPublishUsesInstrumentTopic(t *testing.T) {
	clk := clock.NewSimClock(0)
	b := bus.New()
	e := NewEngine(Config{}, b, clk, bus.NewSequencer(0))

	var got int64
	_, err := b.Subscribe(schema.TopicTrade(1), func(m bus.Message) { got = m.Header.TsEvent })
	require.NoError(t, err)

	e.Publish(trade(1, 42))
	require.Equal(t, int64(42), got)
}
