package session

import "time"

// EventType identifies what happened on the engine's observer channel.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionCompleted EventType = "session_completed"
	EventDecisionRecorded EventType = "decision_recorded"
	EventItemSkipped      EventType = "item_skipped"
	EventPhotoDropped     EventType = "photo_dropped"
)

// Event is one engine notification. The channel is best-effort: a slow
// consumer loses events rather than blocking the engine.
type Event struct {
	Type         EventType
	SessionID    string
	AreaID       int64
	AreaItemID   int64
	SkipCount    int
	PendingCount int
	Message      string
	At           time.Time
}
