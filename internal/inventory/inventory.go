package inventory

import (
	"context"

	"github.com/vbonduro/stocktake/internal/domain"
)

// Service is the remote inventory backend the engine counts against. All
// calls may fail with network errors; the engine never lets those failures
// reach the user as anything harder than a pending count.
type Service interface {
	// FetchAreaItems returns the items assigned to a storage area, in the
	// order the backend wants them counted.
	FetchAreaItems(ctx context.Context, areaID int64) ([]domain.AreaItem, error)
	// PersistItemUpdate writes one quantity decision. An error means no
	// acknowledgment; the caller must keep the update queued.
	PersistItemUpdate(ctx context.Context, areaItemID int64, payload domain.UpdatePayload) error
	// CommitSession archives a completed session with its final update set.
	CommitSession(ctx context.Context, sessionID string, updates []domain.SessionItemUpdate) error
}
