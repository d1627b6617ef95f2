package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AlertStore records which sessions have already fired their critical-stock
// alert, so replaying a completion cannot double-alert.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// MarkAlerted records the alert for the session and reports whether this was
// the first time (true = caller should fire the notification).
func (s *AlertStore) MarkAlerted(ctx context.Context, sessionID string, criticalCount int, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO session_alerts (session_id, critical_count, created_at)
		VALUES (?, ?, ?)
	`, sessionID, criticalCount, at)
	if err != nil {
		return false, fmt.Errorf("failed to record session alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
