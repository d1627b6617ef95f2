package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a StockSession.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// CountMethod records how a quantity decision (or session start) was made.
type CountMethod string

const (
	MethodManual CountMethod = "manual"
	MethodNFC    CountMethod = "nfc"
	MethodQR     CountMethod = "qr"
)

// Valid reports whether m is one of the known count methods.
func (m CountMethod) Valid() bool {
	switch m {
	case MethodManual, MethodNFC, MethodQR:
		return true
	}
	return false
}

// UpdateStatus says whether an item was counted or deferred within a session.
type UpdateStatus string

const (
	UpdateCounted UpdateStatus = "counted"
	UpdateSkipped UpdateStatus = "skipped"
)

// StorageArea is a physical counting zone. Immutable during a session.
type StorageArea struct {
	ID   int64
	Name string
}

// AreaItem is one countable line assigned to a storage area.
type AreaItem struct {
	ID              int64           `json:"id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitType        string          `json:"unit_type"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	MinQuantity     decimal.Decimal `json:"min_quantity"`
}

// StockSession is one pass through an area's items. Exactly one session may
// be active per area at a time; it is mutated only by the session engine.
type StockSession struct {
	ID           string        `json:"id"`
	AreaID       int64         `json:"area_id"`
	Status       SessionStatus `json:"status"`
	StartMethod  CountMethod   `json:"start_method"`
	StartedAt    time.Time     `json:"started_at"`
	ItemsChecked int           `json:"items_checked"`
	ItemsSkipped int           `json:"items_skipped"`
	Cursor       int           `json:"cursor"`
}

// SessionItemUpdate is the decision recorded for one item in a session. An
// item has at most one update per session; later writes overwrite it.
type SessionItemUpdate struct {
	AreaItemID       int64           `json:"area_item_id"`
	PreviousQuantity decimal.Decimal `json:"previous_quantity"`
	NewQuantity      decimal.Decimal `json:"new_quantity"`
	Status           UpdateStatus    `json:"status"`
	Method           CountMethod     `json:"method"`
	Note             string          `json:"note,omitempty"`
	PhotoURL         string          `json:"photo_url,omitempty"`
}

// FinalQuantity is the quantity the session resolved for the item: the
// counted value, or the pre-session quantity if the item was only skipped.
func (u SessionItemUpdate) FinalQuantity() decimal.Decimal {
	if u.Status == UpdateCounted {
		return u.NewQuantity
	}
	return u.PreviousQuantity
}

// UpdatePayload is the remote write body carried by a PendingUpdate.
type UpdatePayload struct {
	Quantity decimal.Decimal `json:"quantity"`
	Method   CountMethod     `json:"method"`
	Note     string          `json:"note,omitempty"`
	PhotoURL string          `json:"photo_url,omitempty"`
}

// PendingUpdate is a durable record of a write not yet acknowledged by the
// remote inventory service. It is removed only on confirmed acknowledgment,
// never on the optimistic local apply.
type PendingUpdate struct {
	ID         string
	AreaItemID int64
	Payload    UpdatePayload
	CreatedAt  time.Time
	Attempts   int
}
