package ingest

import (
	"context"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
)

// Replay feeds recorded WAL segments back through a feed queue. Only
// market data events are replayed; execution events are re-derived by the
// matching path.
type Replay struct {
	playback *recorder.Playback
	source   schema.SourceID
}

// NewReplay creates a replay source over a WAL directory.
func NewReplay(cfg recorder.PlaybackConfig, source schema.SourceID) (*Replay, error) {
	playback, err := recorder.NewPlayback(cfg)
	if err != nil {
		return nil, err
	}
	return &Replay{playback: playback, source: source}, nil
}

// Run decodes records and pushes them into the queue in file order.
func (r *Replay) Run(ctx context.Context, queue *bus.Queue) error {
	return r.playback.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if !header.Type.IsMarketData() {
			return nil
		}
		decoded, ok := codec.DecodePayload(header.Type, payload)
		if !ok {
			return nil
		}
		// Seq is reassigned at emission; the recorded source id is
		// replaced with the replay source's.
		header.Seq = 0
		header.Source = r.source
		return queue.Publish(ctx, bus.Message{Header: header, Payload: decoded})
	})
}
