package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"main/pkg/conn"
)

// snapshotRow is the Postgres row layout for persisted snapshots. Orders
// and positions are stored as JSON documents; the row key is the session.
type snapshotRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index;size:36"`
	Timestamp int64
	LastSeq   uint64
	Orders    []byte `gorm:"type:jsonb"`
	Positions []byte `gorm:"type:jsonb"`
}

func (snapshotRow) TableName() string {
	return "cache_snapshots"
}

// PGStore persists cache snapshots to PostgreSQL. Each Save appends a row
// for the session; Load returns the most recent row for the session, or
// the most recent overall when the session is new.
type PGStore struct {
	client    *conn.Client
	sessionID string
}

// NewPGStore creates a store bound to a session and ensures the table
// exists. An empty sessionID gets a generated one.
func NewPGStore(client *conn.Client, sessionID string) (*PGStore, error) {
	if client == nil {
		return nil, fmt.Errorf("postgres client is nil")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if err := client.DB().AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate cache_snapshots: %w", err)
	}
	return &PGStore{client: client, sessionID: sessionID}, nil
}

// SessionID returns the session this store reads and writes.
func (s *PGStore) SessionID() string {
	return s.sessionID
}

// Load returns the latest snapshot for the session, falling back to the
// latest snapshot of any session when none exists yet.
func (s *PGStore) Load(ctx context.Context) (Snapshot, error) {
	var row snapshotRow
	err := s.client.DB().WithContext(ctx).
		Where("session_id = ?", s.sessionID).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.client.DB().WithContext(ctx).
			Order("id DESC").
			First(&row).Error
	}
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Timestamp: row.Timestamp,
		LastSeq:   row.LastSeq,
	}
	if len(row.Orders) > 0 {
		if err := json.Unmarshal(row.Orders, &snap.Orders); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot orders: %w", err)
		}
	}
	if len(row.Positions) > 0 {
		if err := json.Unmarshal(row.Positions, &snap.Positions); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot positions: %w", err)
		}
	}
	return snap, nil
}

// Save appends a snapshot row for the session.
func (s *PGStore) Save(ctx context.Context, snap Snapshot) error {
	orders, err := json.Marshal(snap.Orders)
	if err != nil {
		return err
	}
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return err
	}
	row := snapshotRow{
		SessionID: s.sessionID,
		Timestamp: snap.Timestamp,
		LastSeq:   snap.LastSeq,
		Orders:    orders,
		Positions: positions,
	}
	return s.client.DB().WithContext(ctx).Create(&row).Error
}
