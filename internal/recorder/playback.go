package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// PlaybackConfig controls WAL playback behavior. Speed 0 replays as fast as
// the handler allows; Speed 1 paces at the recorded inter-event gaps, 2 at
// twice that rate, and so on.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	Speed           float64
	UseRecvTime     bool
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return fmt.Errorf("invalid playback config: Dir is empty")
	case c.Speed < 0:
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return fmt.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Playback replays the records of a WAL directory in segment-name order,
// which is write order because segment names carry a timestamp and counter.
type Playback struct {
	cfg PlaybackConfig
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg}, nil
}

// Run replays every record through the handler. A handler error stops the
// replay and is returned as-is.
func (p *Playback) Run(ctx context.Context, handler func(schema.EventHeader, []byte) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	segments, err := filepath.Glob(filepath.Join(p.cfg.Dir, p.cfg.FilePrefix+"-*.wal"))
	if err != nil {
		return err
	}
	sort.Strings(segments)

	pace := pacer{speed: p.cfg.Speed, useRecv: p.cfg.UseRecvTime}
	for _, path := range segments {
		if err := p.replaySegment(ctx, path, handler, &pace); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) replaySegment(ctx context.Context, path string, handler func(schema.EventHeader, []byte) error, pace *pacer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	r := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, payload, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := pace.wait(ctx, header); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

// pacer sleeps the recorded gap between consecutive events, scaled by speed.
// Gaps across segments pace the same as gaps within one.
type pacer struct {
	speed   float64
	useRecv bool
	prev    int64
}

func (p *pacer) wait(ctx context.Context, header schema.EventHeader) error {
	if p.speed <= 0 {
		return nil
	}
	ts := header.TsEvent
	if p.useRecv {
		ts = header.TsRecv
	}
	if ts <= 0 {
		return nil
	}
	prev := p.prev
	p.prev = ts
	if prev <= 0 || ts <= prev {
		return nil
	}

	timer := time.NewTimer(time.Duration(float64(ts-prev) / p.speed))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
