package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"main/internal/cache"
	"main/internal/codec"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
	"main/internal/state"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	quiet := flag.Bool("quiet", false, "Suppress per-record output")
	configPath := flag.String("config", "", "JSON config, required for -verify-snapshot")
	verify := flag.Bool("verify-snapshot", false, "Rebuild positions from the WAL and compare against the configured snapshot")
	flag.Parse()

	cfg := recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	var index int
	counts := make(map[schema.EventType]int)
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		counts[header.Type]++
		if *quiet {
			return nil
		}
		fmt.Printf("%06d seq=%d type=%s source=%d ts_event=%d ts_recv=%d len=%d\n",
			index, header.Seq, eventTypeName(header.Type), header.Source, header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}
	fmt.Printf("total=%d counts=%v\n", index, counts)

	if *verify {
		if err := verifySnapshot(ctx, *configPath, cfg); err != nil {
			log.Fatalf("snapshot verify failed: %v", err)
		}
		fmt.Println("snapshot verified")
	}
}

// verifySnapshot rebuilds positions from the WAL alone and checks them
// against the persisted snapshot.
func verifySnapshot(ctx context.Context, configPath string, cfg recorder.PlaybackConfig) error {
	if configPath == "" {
		return fmt.Errorf("missing config; use -config")
	}
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := loaded.Snapshot.Open()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	expected, err := store.Load(ctx)
	if err != nil {
		return err
	}

	rebuilt := cache.New(loaded.Registry)
	res, err := state.Recover(ctx, rebuilt, state.RecoverConfig{
		WALDir:          cfg.Dir,
		FilePrefix:      cfg.FilePrefix,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return err
	}
	if res.LastSeq != expected.LastSeq {
		return fmt.Errorf("last seq mismatch: wal=%d snapshot=%d", res.LastSeq, expected.LastSeq)
	}
	return cache.CompareSnapshots(expected, rebuilt.Snapshot(res.LastSeq))
}

func eventTypeName(t schema.EventType) string {
	switch t {
	case schema.EventTrade:
		return "Trade"
	case schema.EventQuote:
		return "Quote"
	case schema.EventBookDelta:
		return "BookDelta"
	case schema.EventInstrumentDef:
		return "InstrumentDef"
	case schema.EventOrderIntent:
		return "OrderIntent"
	case schema.EventCancelIntent:
		return "CancelIntent"
	case schema.EventModifyIntent:
		return "ModifyIntent"
	case schema.EventExecutionReport:
		return "ExecutionReport"
	case schema.EventFill:
		return "Fill"
	case schema.EventRiskDecision:
		return "RiskDecision"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	decoded, ok := codec.DecodePayload(t, payload)
	if !ok {
		fmt.Println("  decode failed")
		return
	}
	switch p := decoded.(type) {
	case schema.Trade:
		fmt.Printf("  trade instrument=%d side=%d price=%d qty=%d id=%d\n",
			p.InstrumentID, p.AggressorSide, p.Price, p.Qty, p.TradeID)
	case schema.Quote:
		fmt.Printf("  quote instrument=%d bid=%d/%d ask=%d/%d\n",
			p.InstrumentID, p.BidPrice, p.BidQty, p.AskPrice, p.AskQty)
	case schema.BookDelta:
		fmt.Printf("  delta instrument=%d action=%d side=%d order=%d price=%d qty=%d\n",
			p.InstrumentID, p.Action, p.Side, p.OrderID, p.Price, p.Qty)
	case schema.InstrumentDef:
		fmt.Printf("  instrument id=%d venue=%d symbol=%s tick=%d lot=%d\n",
			p.ID, p.VenueID, p.SymbolString(), p.TickSize, p.LotSize)
	case schema.OrderIntent:
		fmt.Printf("  intent order=%d strategy=%d instrument=%d side=%d type=%d tif=%d price=%d qty=%d\n",
			p.OrderID, p.StrategyID, p.InstrumentID, p.Side, p.Type, p.TimeInForce, p.Price, p.Qty)
	case schema.CancelIntent:
		fmt.Printf("  cancel order=%d strategy=%d instrument=%d\n", p.OrderID, p.StrategyID, p.InstrumentID)
	case schema.ModifyIntent:
		fmt.Printf("  modify order=%d price=%d qty=%d\n", p.OrderID, p.NewPrice, p.NewQty)
	case schema.ExecutionReport:
		fmt.Printf("  report order=%d status=%s reason=%s price=%d filled=%d leaves=%d\n",
			p.OrderID, p.Status, p.Reason, p.Price, p.FilledQty, p.LeavesQty)
	case schema.Fill:
		fmt.Printf("  fill trade=%d instrument=%d side=%d price=%d qty=%d fee=%d maker=%d taker=%d\n",
			p.TradeID, p.InstrumentID, p.AggressorSide, p.Price, p.Qty, p.Fee, p.MakerOrderID, p.TakerOrderID)
	case schema.RiskDecision:
		fmt.Printf("  risk order=%d action=%d reason=%s qty=%d price=%d pos=%d\n",
			p.OrderID, p.Action, p.Reason, p.ProposedQty, p.ProposedPrice, p.CurrentPos)
	}
}
