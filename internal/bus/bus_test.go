package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func msg(seq uint64) Message {
	return Message{Header: schema.NewHeader(schema.EventTrade, 1, seq, int64(seq), int64(seq))}
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	_, err := b.Subscribe("data.trade.1", func(Message) { order = append(order, 1) })
	require.NoError(t, err)
	_, err = b.Subscribe("data.trade.*", func(Message) { order = append(order, 2) })
	require.NoError(t, err)
	_, err = b.Subscribe(">", func(Message) { order = append(order, 3) })
	require.NoError(t, err)
	_, err = b.Subscribe("data.quote.1", func(Message) { order = append(order, 4) })
	require.NoError(t, err)

	b.Publish("data.trade.1", msg(1))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"data.trade.1", "data.trade.1", true},
		{"data.trade.1", "data.trade.2", false},
		{"data.*.1", "data.trade.1", true},
		{"data.*.1", "data.quote.1", true},
		{"data.*", "data.trade.1", false},
		{"data.>", "data.trade.1", true},
		{"data.>", "data", false},
		{">", "anything.at.all", true},
		{"data.trade", "data.trade.1", false},
	}
	for _, tc := range cases {
		b := New()
		hit := false
		_, err := b.Subscribe(tc.pattern, func(Message) { hit = true })
		require.NoError(t, err)
		b.Publish(tc.topic, msg(1))
		require.Equal(t, tc.want, hit, "pattern %q topic %q", tc.pattern, tc.topic)
	}
}

func TestSubscribeDuringDispatchIsDeferred(t *testing.T) {
	b := New()
	var lateHits int
	_, err := b.Subscribe("t", func(Message) {
		_, serr := b.Subscribe("t", func(Message) { lateHits++ })
		require.NoError(t, serr)
	})
	require.NoError(t, err)

	b.Publish("t", msg(1))
	require.Zero(t, lateHits, "late subscriber must not see the triggering publish")

	b.Publish("t", msg(2))
	require.Equal(t, 1, lateHits)
}

func TestUnsubscribeDuringDispatchIsDeferred(t *testing.T) {
	b := New()
	var hits int
	var id uint64
	_, err := b.Subscribe("t", func(Message) { b.Unsubscribe(id) })
	require.NoError(t, err)
	id, err = b.Subscribe("t", func(Message) { hits++ })
	require.NoError(t, err)

	b.Publish("t", msg(1))
	require.Equal(t, 1, hits, "removal applies after the current dispatch")

	b.Publish("t", msg(2))
	require.Equal(t, 1, hits)
}

func TestEndpointSingleHandler(t *testing.T) {
	b := New()
	var got uint64
	require.NoError(t, b.Register("exec.submit", func(m Message) error {
		got = m.Header.Seq
		return nil
	}))
	require.ErrorIs(t, b.Register("exec.submit", func(Message) error { return nil }), ErrDuplicateEndpoint)

	require.NoError(t, b.Send("exec.submit", msg(7)))
	require.Equal(t, uint64(7), got)

	require.ErrorIs(t, b.Send("exec.missing", msg(1)), ErrUnknownEndpoint)

	b.Unregister("exec.submit")
	require.ErrorIs(t, b.Send("exec.submit", msg(1)), ErrUnknownEndpoint)
}

func TestNestedPublishKeepsDeferral(t *testing.T) {
	b := New()
	var lateHits int
	_, err := b.Subscribe("outer", func(Message) {
		_, serr := b.Subscribe("inner", func(Message) { lateHits++ })
		require.NoError(t, serr)
		b.Publish("inner", msg(2))
	})
	require.NoError(t, err)

	b.Publish("outer", msg(1))
	require.Zero(t, lateHits)

	b.Publish("inner", msg(3))
	require.Equal(t, 1, lateHits)
}

func TestSequencerMonotonic(t *testing.T) {
	s := NewSequencer(10)
	require.Equal(t, uint64(11), s.Next())
	require.Equal(t, uint64(12), s.Next())
	require.Equal(t, uint64(12), s.Last())
}

func TestQueuePublishAndClose(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(msg(1)))
	require.NoError(t, q.TryPublish(msg(2)))
	require.ErrorIs(t, q.TryPublish(msg(3)), ErrQueueFull)
	require.Equal(t, 2, q.Len())

	q.Close()
	require.True(t, q.Closed())
	require.ErrorIs(t, q.TryPublish(msg(4)), ErrQueueClosed)

	// Queued messages stay readable after close.
	m, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(1), m.Header.Seq)
	m, ok = q.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(2), m.Header.Seq)
	_, ok = q.TryPop()
	require.False(t, ok)
}

func TestQueuePublishBlocksUntilConsumed(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(msg(1)))

	done := make(chan error, 1)
	go func() {
		done <- q.Publish(context.Background(), msg(2))
	}()

	m, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(1), m.Header.Seq)
	require.NoError(t, <-done)
}

func TestQueuePublishHonorsContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(msg(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.Publish(ctx, msg(2)), context.Canceled)
}
