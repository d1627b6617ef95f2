package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Lifecycle and validation errors surfaced synchronously by the engine.
// Remote write failures are never surfaced through these; they stay in the
// pending queue and are only visible as the pending count.
var (
	ErrSessionConflict  = errors.New("an active session already exists")
	ErrNoActiveSession  = errors.New("no active session")
	ErrNoPausedSession  = errors.New("no paused session for area")
	ErrInvalidQuantity  = errors.New("quantity must be non-negative")
	ErrInvalidMethod    = errors.New("unknown count method")
	ErrItemNotFound     = errors.New("item not part of this session")
	ErrSkippedImmutable = errors.New("skipped item must be recounted before editing")
	ErrPendingNotFound  = errors.New("pending update not found")
)

// IncompleteDecisionsError blocks session completion and names the items
// that were never counted or skipped.
type IncompleteDecisionsError struct {
	ItemNames []string
}

func (e *IncompleteDecisionsError) Error() string {
	return fmt.Sprintf("session has undecided items: %s", strings.Join(e.ItemNames, ", "))
}
