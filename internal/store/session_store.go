package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vbonduro/stocktake/internal/domain"
)

// PausedSnapshot is everything needed to resume a paused session exactly
// where it left off: the session record, the queue in its current order,
// skip counters, and the decisions recorded so far.
type PausedSnapshot struct {
	Session          domain.StockSession                `json:"session"`
	ItemOrder        []domain.AreaItem                  `json:"item_order"`
	Skips            map[int64]int                      `json:"skips"`
	Updates          map[int64]domain.SessionItemUpdate `json:"updates"`
	ReturnLocationID string                             `json:"return_location_id,omitempty"`
	PausedAt         time.Time                          `json:"paused_at"`
}

// SessionStore persists paused session snapshots, one per area. Snapshots
// survive process restarts; resuming deletes the row.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) SavePaused(ctx context.Context, areaID int64, snap *PausedSnapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paused_sessions (area_id, snapshot, paused_at) VALUES (?, ?, ?)
		ON CONFLICT(area_id) DO UPDATE SET snapshot = excluded.snapshot, paused_at = excluded.paused_at
	`, areaID, string(blob), snap.PausedAt)
	if err != nil {
		return fmt.Errorf("failed to save paused session: %w", err)
	}
	return nil
}

// LoadPaused returns the paused snapshot for the area, or nil if none exists.
func (s *SessionStore) LoadPaused(ctx context.Context, areaID int64) (*PausedSnapshot, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot FROM paused_sessions WHERE area_id = ?
	`, areaID).Scan(&blob)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load paused session: %w", err)
	}

	snap := &PausedSnapshot{}
	if err := json.Unmarshal([]byte(blob), snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *SessionStore) DeletePaused(ctx context.Context, areaID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM paused_sessions WHERE area_id = ?
	`, areaID)
	if err != nil {
		return fmt.Errorf("failed to delete paused session: %w", err)
	}
	return nil
}
