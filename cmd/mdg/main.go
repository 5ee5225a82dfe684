// mdg records a synthetic market data stream into a WAL, for replay sources
// and tooling tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/ingest"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	if err := run(); err != nil {
		log.Printf("mdg: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config (registry)")
	walDir := flag.String("wal-dir", "testdata/wal", "WAL output directory")
	ticks := flag.Int64("ticks", 100, "Number of ticks to generate")
	seed := flag.Int64("seed", 1, "Random walk seed")
	basePrice := flag.Int64("base-price", 100_000, "Base price (scaled)")
	baseQty := flag.Int64("base-qty", 10, "Base quantity (scaled)")
	spread := flag.Int64("spread", 0, "Half spread (scaled, 0=one tick)")
	interval := flag.Int64("interval-ns", 1_000_000, "Simulated gap between ticks, nanoseconds")
	startTs := flag.Int64("start-ts", 1_000_000_000, "First tick timestamp, nanoseconds")
	source := flag.Uint("source", 1, "Source id stamped on records")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("missing config; use -config")
	}
	if *ticks <= 0 {
		return fmt.Errorf("ticks must be > 0")
	}
	registry, err := ops.LoadRegistry(*configPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	gen, err := ingest.NewSynthetic(ingest.SyntheticConfig{
		Seed:      *seed,
		BasePrice: schema.Price(*basePrice),
		BaseQty:   schema.Quantity(*baseQty),
		Spread:    schema.Price(*spread),
		Interval:  *interval,
		Ticks:     *ticks,
	}, schema.SourceID(*source), registry, *startTs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	w, err := recorder.NewWriter(recorder.DefaultConfig(*walDir))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	seq := bus.NewSequencer(0)
	var records int
	for {
		msgs := gen.Next()
		if msgs == nil {
			break
		}
		for _, m := range msgs {
			m.Header.Seq = seq.Next()
			payload, ok := codec.EncodePayload(nil, m.Header.Type, m.Payload)
			if !ok {
				return fmt.Errorf("encode %d failed", m.Header.Type)
			}
			if err := w.TryAppend(m.Header, payload); err != nil {
				return err
			}
			records++
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d records to %s", records, *walDir)
	return nil
}
