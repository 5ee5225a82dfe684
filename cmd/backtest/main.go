package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yanun0323/logs"

	"main/internal/core"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("backtest: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	startTs := flag.Int64("start-ts", 1_000_000_000, "Simulated clock start, nanoseconds")
	quoteInstrument := flag.Uint("quote-instrument", 1, "Run the reference quoter on this instrument id (0=disable)")
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

	ctx := context.Background()
	bt, err := core.NewBacktest(loaded, *startTs)
	if err != nil {
		return err
	}
	if err := bt.AddConfiguredSources(loaded, *startTs); err != nil {
		return err
	}

	if *quoteInstrument > 0 {
		bt.Platform.Runner.Add(1, &strategy.Quoter{
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
		if _, err := recorder.AttachTap(bt.Platform.Bus, w, bt.Platform.Metrics); err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logs.Warnf("wal close: %v", err)
			}
		}()
	}

	runErr := bt.Run(ctx)

	if loaded.Features.EnableSnapshot {
		store, closeStore, err := loaded.Snapshot.Open()
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()
		snap := bt.Platform.Cache.Snapshot(bt.Platform.Seq.Last())
		if err := store.Save(ctx, snap); err != nil {
			return fmt.Errorf("snapshot save: %w", err)
		}
		logs.Infof("snapshot saved: positions=%d last_seq=%d", len(snap.Positions), snap.LastSeq)
	}

	for _, pos := range bt.Platform.Cache.Positions() {
		logs.Infof("position: instrument=%d qty=%d avg=%d", pos.InstrumentID, pos.Qty, pos.AvgPrice)
	}
	m := bt.Platform.Metrics.Snapshot()
	logs.Infof("metrics: events=%v exec_reasons=%v", m.EventCounts, m.ExecReasonCounts)
	return runErr
}
