// Package ops loads and resolves the JSON runtime configuration.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"main/internal/cache"
	"main/internal/feed"
	"main/internal/ingest"
	"main/internal/match"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig     `json:"registry"`
	Feed     FeedConfig         `json:"feed"`
	Risk     risk.Config        `json:"risk"`
	Match    match.Config       `json:"match"`
	Wal      WalConfig          `json:"wal"`
	Snapshot SnapshotConfig     `json:"snapshot"`
	Sources  []SourceConfig     `json:"sources"`
	Features FeatureFlagsConfig `json:"features"`
}

// RegistryConfig defines venue and instrument mappings.
type RegistryConfig struct {
	Venues      []VenueConfig      `json:"venues"`
	Instruments []InstrumentConfig `json:"instruments"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
}

// InstrumentConfig describes an instrument entry. Tick and lot sizes are
// decimal strings converted to the instrument's scales.
type InstrumentConfig struct {
	Symbol     string          `json:"symbol"`
	Venue      string          `json:"venue"`
	PriceScale schema.Scale    `json:"priceScale"`
	QtyScale   schema.Scale    `json:"qtyScale"`
	TickSize   decimal.Decimal `json:"tickSize"`
	LotSize    decimal.Decimal `json:"lotSize"`
	Tradable   *bool           `json:"tradable"`
}

// FeedConfig describes the merge stage.
type FeedConfig struct {
	QueueCapacity int   `json:"queueCapacity"`
	MaxSilenceMs  int64 `json:"maxSilenceMs"`
}

// Build resolves the feed engine config with default priorities.
func (c FeedConfig) Build() feed.Config {
	return feed.Config{
		QueueCapacity: c.QueueCapacity,
		MaxSilence:    c.MaxSilenceMs * int64(time.Millisecond),
		Priorities:    feed.DefaultPriorities(),
	}
}

// WalConfig describes WAL recording.
type WalConfig struct {
	Dir             string `json:"dir"`
	SegmentMaxMB    int64  `json:"segmentMaxMb"`
	FlushIntervalMs int64  `json:"flushIntervalMs"`
	SyncIntervalMs  int64  `json:"syncIntervalMs"`
}

// Build resolves the recorder config.
func (c WalConfig) Build() recorder.Config {
	cfg := recorder.DefaultConfig(c.Dir)
	if c.SegmentMaxMB > 0 {
		cfg.SegmentMaxBytes = c.SegmentMaxMB << 20
	}
	if c.FlushIntervalMs > 0 {
		cfg.FlushInterval = time.Duration(c.FlushIntervalMs) * time.Millisecond
	}
	if c.SyncIntervalMs > 0 {
		cfg.SyncInterval = time.Duration(c.SyncIntervalMs) * time.Millisecond
	}
	return cfg
}

// SnapshotConfig describes cache snapshot persistence. PostgresDSN wins
// over Path when both are set.
type SnapshotConfig struct {
	Path        string `json:"path"`
	PostgresDSN string `json:"postgresDsn"`
	Session     string `json:"session"`
}

// Open resolves the configured snapshot backend. The cleanup function
// closes the backing connection, if any.
func (c SnapshotConfig) Open() (cache.SnapshotStore, func() error, error) {
	if c.PostgresDSN != "" {
		client, err := conn.New(conn.Option{ConnString: c.PostgresDSN})
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot postgres: %w", err)
		}
		session := c.Session
		if session == "" {
			session = uuid.NewString()
		}
		store, err := cache.NewPGStore(client, session)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	}
	if c.Path == "" {
		return nil, nil, fmt.Errorf("snapshot backend not configured")
	}
	return cache.FileStore{Path: c.Path}, func() error { return nil }, nil
}

// SourceConfig describes one market data source.
type SourceConfig struct {
	Name string `json:"name"`
	// Kind is one of synthetic, csv, replay.
	Kind      string                  `json:"kind"`
	Path      string                  `json:"path"`
	Synthetic *ingest.SyntheticConfig `json:"synthetic"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableWal      *bool `json:"enableWal"`
	EnableSnapshot *bool `json:"enableSnapshot"`
	Profiling      *bool `json:"profiling"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableWal      bool
	EnableSnapshot bool
	Profiling      bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry *schema.Registry
	Feed     feed.Config
	Risk     risk.Config
	Match    match.Config
	Wal      recorder.Config
	Snapshot SnapshotConfig
	Sources  []SourceConfig
	Features FeatureFlags
}

// Load reads a JSON config file and builds the registry.
func Load(path string) (Loaded, error) {
	cfg, err := read(path)
	if err != nil {
		return Loaded{}, err
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	for _, src := range cfg.Sources {
		if err := validateSource(src); err != nil {
			return Loaded{}, err
		}
	}
	return Loaded{
		Registry: registry,
		Feed:     cfg.Feed.Build(),
		Risk:     cfg.Risk,
		Match:    cfg.Match,
		Wal:      cfg.Wal.Build(),
		Snapshot: cfg.Snapshot,
		Sources:  cfg.Sources,
		Features: resolveFeatures(cfg.Features),
	}, nil
}

// LoadRegistry reads a JSON config file and only builds the registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	return buildRegistry(cfg.Registry)
}

func read(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, ic := range cfg.Instruments {
		venueID, ok := reg.VenueIDByName(ic.Venue)
		if !ok {
			return nil, fmt.Errorf("venue not found: %s", ic.Venue)
		}
		tick, err := schema.ParseScaled(ic.TickSize.String(), ic.PriceScale)
		if err != nil {
			return nil, fmt.Errorf("tick size for %s: %w", ic.Symbol, err)
		}
		lot, err := schema.ParseScaled(ic.LotSize.String(), ic.QtyScale)
		if err != nil {
			return nil, fmt.Errorf("lot size for %s: %w", ic.Symbol, err)
		}
		tradable := true
		if ic.Tradable != nil {
			tradable = *ic.Tradable
		}
		if _, err := reg.AddInstrument(schema.Instrument{
			VenueID:    venueID,
			Symbol:     ic.Symbol,
			PriceScale: ic.PriceScale,
			QtyScale:   ic.QtyScale,
			TickSize:   schema.Price(tick),
			LotSize:    schema.Quantity(lot),
			Tradable:   tradable,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateSource(src SourceConfig) error {
	if src.Name == "" {
		return fmt.Errorf("source name is empty")
	}
	switch src.Kind {
	case "synthetic":
		if src.Synthetic == nil {
			return fmt.Errorf("source %s: synthetic config missing", src.Name)
		}
	case "csv", "replay":
		if src.Path == "" {
			return fmt.Errorf("source %s: path is empty", src.Name)
		}
	default:
		return fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
	}
	return nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableWal:      true,
		EnableSnapshot: true,
	}
	if cfg.EnableWal != nil {
		flags.EnableWal = *cfg.EnableWal
	}
	if cfg.EnableSnapshot != nil {
		flags.EnableSnapshot = *cfg.EnableSnapshot
	}
	if cfg.Profiling != nil {
		flags.Profiling = *cfg.Profiling
	}
	return flags
}

// WatchRisk polls the config file and applies the risk section when the
// file changes. Only the risk limits are hot-reloadable; everything else
// requires a restart.
func WatchRisk(ctx context.Context, path string, interval time.Duration, apply func(risk.Config)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("stat config %s: %v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			cfg, err := read(path)
			if err != nil {
				logs.Warnf("reload config %s: %v", path, err)
				continue
			}
			apply(cfg.Risk)
			logs.Infof("risk config reloaded from %s", path)
		}
	}
}
