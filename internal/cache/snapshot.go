package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot captures cached orders and positions at a point in time, plus
// the sequence high-water mark, so a restarted process can resume.
type Snapshot struct {
	Timestamp int64             `json:"timestamp"`
	LastSeq   uint64            `json:"lastSeq"`
	Orders    []schema.Order    `json:"orders"`
	Positions []schema.Position `json:"positions"`
}

// SnapshotStore is the persistence collaborator boundary. The storage
// format is an external concern; implementations here are a JSON file and
// a Postgres table.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Snapshot builds a snapshot of the current cache contents.
func (c *Cache) Snapshot(lastSeq uint64) Snapshot {
	orders := make([]schema.Order, 0, len(c.orders))
	for _, o := range c.orders {
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Orders:    orders,
		Positions: c.Positions(),
	}
}

// Restore replaces cache contents with a snapshot.
func (c *Cache) Restore(snap Snapshot) {
	c.orders = make(map[uint64]*schema.Order, len(snap.Orders))
	for _, o := range snap.Orders {
		copied := o
		c.orders[o.ID] = &copied
	}
	c.positions = make(map[schema.InstrumentID]*schema.Position, len(snap.Positions))
	for _, p := range snap.Positions {
		copied := p
		c.positions[p.InstrumentID] = &copied
	}
}

// FileStore persists snapshots as a JSON file.
type FileStore struct {
	Path string
}

// Load reads the snapshot file.
func (s FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return snap, nil
}

// Save writes the snapshot file, creating parent directories.
func (s FileStore) Save(_ context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// CompareSnapshots checks that two snapshots hold the same positions.
// Used by replay verification.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot position count mismatch: expected=%d actual=%d",
			len(expected.Positions), len(actual.Positions))
	}
	want := make(map[schema.InstrumentID]schema.Position, len(expected.Positions))
	for _, p := range expected.Positions {
		want[p.InstrumentID] = p
	}
	for _, p := range actual.Positions {
		w, ok := want[p.InstrumentID]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %d", p.InstrumentID)
		}
		if w.Qty != p.Qty || w.AvgPrice != p.AvgPrice {
			return fmt.Errorf("snapshot position mismatch: instrument=%d expected=%d@%d actual=%d@%d",
				p.InstrumentID, w.Qty, w.AvgPrice, p.Qty, p.AvgPrice)
		}
	}
	return nil
}
