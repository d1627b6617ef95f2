package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vbonduro/stocktake/internal/domain"
)

// PendingStore persists updates awaiting remote acknowledgment. Entries
// survive process restarts and leave the table only when the remote write is
// acknowledged or the entry is explicitly abandoned.
type PendingStore struct {
	db *sql.DB
}

func NewPendingStore(db *sql.DB) *PendingStore {
	return &PendingStore{db: db}
}

func (s *PendingStore) Enqueue(ctx context.Context, u *domain.PendingUpdate) error {
	payload, err := json.Marshal(u.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_updates (id, area_item_id, payload, attempts, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.AreaItemID, string(payload), u.Attempts, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending update: %w", err)
	}
	return nil
}

// Oldest returns the front of the queue (FIFO by creation, insertion order
// breaking ties), or nil if the queue is empty.
func (s *PendingStore) Oldest(ctx context.Context) (*domain.PendingUpdate, error) {
	u := &domain.PendingUpdate{}
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, area_item_id, payload, attempts, created_at FROM pending_updates
		ORDER BY created_at ASC, seq ASC LIMIT 1
	`).Scan(&u.ID, &u.AreaItemID, &payload, &u.Attempts, &u.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest pending update: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &u.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return u, nil
}

func (s *PendingStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_updates WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPendingNotFound
	}
	return nil
}

func (s *PendingStore) IncrementAttempts(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_updates SET attempts = attempts + 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}
	return nil
}

func (s *PendingStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_updates`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending updates: %w", err)
	}
	return n, nil
}

func (s *PendingStore) List(ctx context.Context) ([]*domain.PendingUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, area_item_id, payload, attempts, created_at FROM pending_updates
		ORDER BY created_at ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending updates: %w", err)
	}
	defer rows.Close()

	var updates []*domain.PendingUpdate
	for rows.Next() {
		u := &domain.PendingUpdate{}
		var payload string
		if err := rows.Scan(&u.ID, &u.AreaItemID, &payload, &u.Attempts, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending update: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &u.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending updates: %w", err)
	}
	return updates, nil
}
