package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/cache"
	"main/internal/core"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("trader: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	riskReload := flag.Duration("risk-reload-interval", 5*time.Second, "Risk config reload interval (0=disable)")
	recoverEnabled := flag.Bool("recover", false, "Restore cache from snapshot + WAL before starting")
	quoteInstrument := flag.Uint("quote-instrument", 0, "Run the reference quoter on this instrument id (0=disable)")
	quoteQty := flag.Int64("quote-qty", 1, "Quoter order quantity (scaled)")
	quoteOffset := flag.Int64("quote-offset-ticks", 1, "Quoter offset below best bid, in ticks")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("missing config; use -config")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if loaded.Features.Profiling {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   "http://localhost:4040",
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	var store cache.SnapshotStore
	if loaded.Features.EnableSnapshot {
		s, closeStore, err := loaded.Snapshot.Open()
		if err != nil {
			return err
		}
		store = s
		defer func() { _ = closeStore() }()
	}

	startSeq := uint64(0)
	var restore *cache.Snapshot
	if *recoverEnabled {
		scratch := cache.New(loaded.Registry)
		res, err := state.Recover(ctx, scratch, state.RecoverConfig{
			WALDir: loaded.Wal.Dir,
			Store:  store,
		})
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		snap := scratch.Snapshot(res.LastSeq)
		restore = &snap
		startSeq = res.LastSeq
		logs.Infof("recovered: last_seq=%d applied=%d positions=%d",
			res.LastSeq, res.Applied, len(snap.Positions))
	}

	live, err := core.NewLive(loaded, startSeq)
	if err != nil {
		return err
	}
	if restore != nil {
		live.Platform.Cache.Restore(*restore)
	}
	if err := live.AddConfiguredSources(loaded, live.Platform.Clock.Now()); err != nil {
		return err
	}

	if *quoteInstrument > 0 {
		live.Platform.Runner.Add(1, &strategy.Quoter{
			Instrument:  schema.InstrumentID(*quoteInstrument),
			OffsetTicks: *quoteOffset,
			Qty:         schema.Quantity(*quoteQty),
		})
	}

	if loaded.Features.EnableWal {
		w, err := recorder.NewWriter(loaded.Wal)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		if _, err := recorder.AttachTap(live.Platform.Bus, w, live.Platform.Metrics); err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logs.Warnf("wal close: %v", err)
			}
		}()
	}

	if *riskReload > 0 {
		go ops.WatchRisk(ctx, *configPath, *riskReload, func(cfg risk.Config) {
			live.Platform.Exec.SetRisk(risk.NewEngine(cfg))
		})
	}

	runErr := live.Run(ctx)

	if store != nil {
		snap := live.Platform.Cache.Snapshot(live.Platform.Seq.Last())
		if err := store.Save(context.Background(), snap); err != nil {
			logs.Errorf("snapshot save: %v", err)
		} else {
			logs.Infof("snapshot saved: positions=%d last_seq=%d", len(snap.Positions), snap.LastSeq)
		}
	}

	m := live.Platform.Metrics.Snapshot()
	logs.Infof("metrics: events=%v exec_reasons=%v", m.EventCounts, m.ExecReasonCounts)
	return runErr
}
