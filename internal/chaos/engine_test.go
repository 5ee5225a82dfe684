package chaos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/schema"
)

func msg(seq uint64, ts int64) bus.Message {
	return bus.Message{Header: schema.NewHeader(schema.EventTrade, 1, seq, ts, ts)}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	require.Error(t, Config{DropRate: 1.5, ReorderWindow: 1}.Validate())
	require.Error(t, Config{DuplicateRate: -0.1, ReorderWindow: 1}.Validate())
	require.Error(t, Config{ReorderWindow: 0}.Validate())
	require.Error(t, Config{ReorderWindow: 1, MaxDelay: -1}.Validate())
	require.NoError(t, Config{ReorderWindow: 1}.Validate())
}

func TestNoFaultsPassesThrough(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, ReorderWindow: 1})
	require.NoError(t, err)

	in := msg(1, 100)
	out := e.Process(in)
	require.Len(t, out, 1)
	require.Equal(t, in, out[0])
	require.Empty(t, e.Flush())
}

func TestSameSeedSameFaults(t *testing.T) {
	cfg := Config{Seed: 42, DropRate: 0.3, DuplicateRate: 0.2, ReorderWindow: 4}
	run := func() []uint64 {
		e, err := NewEngine(cfg)
		require.NoError(t, err)
		var seqs []uint64
		for i := uint64(1); i <= 100; i++ {
			for _, m := range e.Process(msg(i, int64(i))) {
				seqs = append(seqs, m.Header.Seq)
			}
		}
		for _, m := range e.Flush() {
			seqs = append(seqs, m.Header.Seq)
		}
		return seqs
	}
	require.Equal(t, run(), run())
}

func TestDropRateOneDropsEverything(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1, ReorderWindow: 1})
	require.NoError(t, err)
	for i := uint64(1); i <= 10; i++ {
		require.Empty(t, e.Process(msg(i, int64(i))))
	}
	require.Empty(t, e.Flush())
}

func TestDuplicateRateOneDoublesEverything(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DuplicateRate: 1, ReorderWindow: 1})
	require.NoError(t, err)
	out := e.Process(msg(1, 100))
	require.Len(t, out, 2)
	require.Equal(t, out[0].Header.Seq, out[1].Header.Seq)
}

func TestReorderWindowHoldsThenReleasesAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, ReorderWindow: 4})
	require.NoError(t, err)

	var released []uint64
	for i := uint64(1); i <= 10; i++ {
		for _, m := range e.Process(msg(i, int64(i))) {
			released = append(released, m.Header.Seq)
		}
	}
	for _, m := range e.Flush() {
		released = append(released, m.Header.Seq)
	}

	// No loss, no duplication: every message comes out exactly once.
	require.Len(t, released, 10)
	seen := make(map[uint64]bool, 10)
	for _, seq := range released {
		require.False(t, seen[seq])
		seen[seq] = true
	}
}

func TestDelayOnlyMovesRecvTime(t *testing.T) {
	e, err := NewEngine(Config{Seed: 3, MaxDelay: 1000, ReorderWindow: 1})
	require.NoError(t, err)

	for i := uint64(1); i <= 20; i++ {
		in := msg(i, 5000)
		out := e.Process(in)
		require.Len(t, out, 1)
		require.Equal(t, int64(5000), out[0].Header.TsEvent, "event time is never touched")
		require.GreaterOrEqual(t, out[0].Header.TsRecv, int64(5000))
		require.LessOrEqual(t, out[0].Header.TsRecv, int64(6000))
	}
}

func TestWrapSourceDeliversProducerOutput(t *testing.T) {
	e, err := NewEngine(Config{Seed: 5, ReorderWindow: 3})
	require.NoError(t, err)

	producer := func(ctx context.Context, q *bus.Queue) error {
		for i := uint64(1); i <= 5; i++ {
			if err := q.Publish(ctx, msg(i, int64(i*100))); err != nil {
				return err
			}
		}
		return nil
	}

	out := bus.NewQueue(64)
	require.NoError(t, e.WrapSource(producer)(context.Background(), out))

	var count int
	for {
		if _, ok := out.TryPop(); !ok {
			break
		}
		count++
	}
	require.Equal(t, 5, count)
}
