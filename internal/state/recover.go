// Package state rebuilds the cache at process start from the latest
// snapshot plus the WAL tail recorded after it.
package state

import (
	"context"
	"fmt"

	"main/internal/cache"
	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
)

// Synthetic book liquidity uses order ids at or above this floor; ids below
// it belong to strategy orders.
const syntheticIDFloor = uint64(1) << 48

// RecoverConfig controls snapshot + WAL recovery.
type RecoverConfig struct {
	WALDir          string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
	// Store supplies the snapshot; nil recovers from the WAL alone.
	Store cache.SnapshotStore
}

// RecoverResult carries recovery metadata.
type RecoverResult struct {
	LastSeq     uint64
	LastEventTs int64
	Applied     int
}

// Recover restores the cache from the newest snapshot, then replays the WAL
// tail with Seq beyond it: fills rebuild positions, execution reports
// restore order statuses.
func Recover(ctx context.Context, c *cache.Cache, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, fmt.Errorf("wal dir is empty")
	}

	var result RecoverResult
	if cfg.Store != nil {
		snap, err := cfg.Store.Load(ctx)
		if err != nil {
			return RecoverResult{}, fmt.Errorf("load snapshot: %w", err)
		}
		c.Restore(snap)
		result.LastSeq = snap.LastSeq
		result.LastEventTs = snap.Timestamp
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if header.Seq <= result.LastSeq {
			return nil
		}
		result.LastSeq = header.Seq
		if header.TsEvent > result.LastEventTs {
			result.LastEventTs = header.TsEvent
		}

		switch header.Type {
		case schema.EventFill:
			fill, ok := codec.DecodeFill(payload)
			if !ok {
				return fmt.Errorf("seq %d: decode fill failed", header.Seq)
			}
			applyFill(c, fill, header.TsEvent)
			result.Applied++
		case schema.EventExecutionReport:
			report, ok := codec.DecodeExecutionReport(payload)
			if !ok {
				return fmt.Errorf("seq %d: decode execution report failed", header.Seq)
			}
			applyReport(c, report, header.TsEvent)
			result.Applied++
		}
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return result, nil
}

// applyFill replays a fill for whichever sides belonged to strategy orders.
func applyFill(c *cache.Cache, fill schema.Fill, ts int64) {
	if fill.TakerOrderID < syntheticIDFloor {
		c.ApplyFill(fill.AggressorSide, fill, ts)
	}
	if fill.MakerOrderID < syntheticIDFloor {
		c.ApplyFill(fill.AggressorSide.Opposite(), fill, ts)
	}
}

// applyReport restores the last observed status of a known order. Orders
// created after the snapshot have no cache entry and are skipped; their
// position impact is already covered by fills.
func applyReport(c *cache.Cache, report schema.ExecutionReport, ts int64) {
	_ = c.UpdateOrder(report.OrderID, func(o *schema.Order) {
		o.Status = report.Status
		o.FilledQty = report.FilledQty
		if report.Price > 0 {
			o.AvgFillPrice = report.Price
		}
		o.TsUpdated = ts
	})
}
