package core

import (
	"fmt"

	"main/internal/ingest"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
)

// buildSource resolves a configured source into its producer. The id must
// be the one the feed engine will assign on attach.
func buildSource(src ops.SourceConfig, id schema.SourceID, reg *schema.Registry, startTs int64) (SourceFunc, error) {
	switch src.Kind {
	case "synthetic":
		gen, err := ingest.NewSynthetic(*src.Synthetic, id, reg, startTs)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return gen.Run, nil
	case "csv":
		return ingest.NewCSVTrades(src.Path, id, reg).Run, nil
	case "replay":
		rp, err := ingest.NewReplay(recorder.PlaybackConfig{Dir: src.Path}, id)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return rp.Run, nil
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
	}
}

// AddConfiguredSources attaches every source from the loaded config.
func (bt *Backtest) AddConfiguredSources(loaded ops.Loaded, startTs int64) error {
	for _, src := range loaded.Sources {
		run, err := buildSource(src, bt.nextID+1, loaded.Registry, startTs)
		if err != nil {
			return err
		}
		if err := bt.AddSource(src.Name, run); err != nil {
			return err
		}
	}
	return nil
}

// AddConfiguredSources attaches every source from the loaded config.
func (l *Live) AddConfiguredSources(loaded ops.Loaded, startTs int64) error {
	for _, src := range loaded.Sources {
		run, err := buildSource(src, l.nextID+1, loaded.Registry, startTs)
		if err != nil {
			return err
		}
		if err := l.AddSource(src.Name, run); err != nil {
			return err
		}
	}
	return nil
}
