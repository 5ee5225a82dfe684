package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `{
	"registry": {
		"venues": [{"name": "SIM"}],
		"instruments": [{
			"symbol": "BTC-USD",
			"venue": "SIM",
			"priceScale": 2,
			"qtyScale": 3,
			"tickSize": "0.01",
			"lotSize": "0.001"
		}]
	},
	"feed": {"queueCapacity": 64, "maxSilenceMs": 50},
	"risk": {"maxOrderQty": 1000},
	"match": {"maker_fee_bps": 1, "taker_fee_bps": 2},
	"wal": {"dir": "testdata/wal", "segmentMaxMb": 4},
	"snapshot": {"path": "testdata/snapshot.json"},
	"sources": [{
		"name": "gen",
		"kind": "synthetic",
		"synthetic": {"seed": 1, "base_price": 10000, "base_qty": 100}
	}]
}`

func TestLoadBuildsRegistryFromDecimals(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	id, ok := loaded.Registry.InstrumentIDBySymbol("BTC-USD")
	require.True(t, ok)
	inst, ok := loaded.Registry.Instrument(id)
	require.True(t, ok)

	// "0.01" at price scale 2 and "0.001" at qty scale 3 are both one unit.
	require.Equal(t, schema.Price(1), inst.TickSize)
	require.Equal(t, schema.Quantity(1), inst.LotSize)
	require.True(t, inst.Tradable)
}

func TestLoadResolvesFeedAndWal(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, 64, loaded.Feed.QueueCapacity)
	require.Equal(t, int64(50_000_000), loaded.Feed.MaxSilence)
	require.NotEmpty(t, loaded.Feed.Priorities)

	require.Equal(t, int64(4<<20), loaded.Wal.SegmentMaxBytes)
	require.Equal(t, "testdata/wal", loaded.Wal.Dir)

	require.Equal(t, schema.Quantity(1000), loaded.Risk.MaxOrderQty)
	require.Equal(t, int64(1), loaded.Match.MakerFeeBps)
	require.Equal(t, int64(2), loaded.Match.TakerFeeBps)
}

func TestLoadDefaultsFeatureFlags(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.True(t, loaded.Features.EnableWal)
	require.True(t, loaded.Features.EnableSnapshot)
	require.False(t, loaded.Features.Profiling)
}

func TestLoadRejectsUnknownVenue(t *testing.T) {
	cfg := `{
		"registry": {
			"venues": [{"name": "SIM"}],
			"instruments": [{
				"symbol": "BTC-USD", "venue": "NOPE",
				"priceScale": 2, "qtyScale": 3,
				"tickSize": "0.01", "lotSize": "0.001"
			}]
		}
	}`
	_, err := Load(writeConfig(t, cfg))
	require.ErrorContains(t, err, "venue not found")
}

func TestLoadValidatesSources(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"missing name", `{"kind": "csv", "path": "x.csv"}`},
		{"unknown kind", `{"name": "s", "kind": "bogus"}`},
		{"csv without path", `{"name": "s", "kind": "csv"}`},
		{"synthetic without config", `{"name": "s", "kind": "synthetic"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := `{"registry": {"venues": [], "instruments": []}, "sources": [` + tt.source + `]}`
			_, err := Load(writeConfig(t, cfg))
			require.Error(t, err)
		})
	}
}

func TestSnapshotConfigRequiresBackend(t *testing.T) {
	_, _, err := SnapshotConfig{}.Open()
	require.Error(t, err)
}

func TestSnapshotConfigFileBackend(t *testing.T) {
	store, closeStore, err := SnapshotConfig{Path: "x.json"}.Open()
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, closeStore())
}
