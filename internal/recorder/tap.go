package recorder

import (
	"errors"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
)

// AttachTap subscribes the WAL writer to every bus topic. Events without a
// wire format are skipped. Append failures are diagnostic, not fatal; a
// full queue loses the record rather than stalling the hot path.
func AttachTap(b *bus.Bus, w *Writer, m *obs.Metrics) (uint64, error) {
	return b.Subscribe(">", func(msg bus.Message) {
		payload, ok := codec.EncodePayload(nil, msg.Header.Type, msg.Payload)
		if !ok {
			return
		}
		err := w.TryAppend(msg.Header, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueFull):
			m.IncQueueDrop()
		case errors.Is(err, ErrClosed):
			m.IncQueueClosed()
		default:
			logs.Warnf("wal append seq %d: %v", msg.Header.Seq, err)
		}
	})
}
