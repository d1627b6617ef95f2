package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vbonduro/stocktake/internal/domain"
	"github.com/vbonduro/stocktake/internal/queue"
	"github.com/vbonduro/stocktake/internal/store"
)

// inventoryService is the subset of inventory.Service the engine calls
// directly. Item writes go through the syncer instead, so a network failure
// can never lose a decision.
type inventoryService interface {
	FetchAreaItems(ctx context.Context, areaID int64) ([]domain.AreaItem, error)
	CommitSession(ctx context.Context, sessionID string, updates []domain.SessionItemUpdate) error
}

// updateSyncer is the subset of pending.Syncer the engine requires.
type updateSyncer interface {
	Enqueue(ctx context.Context, u *domain.PendingUpdate) error
	Abandon(ctx context.Context, id string) error
	Drain(ctx context.Context)
	Len() int
}

// photoUploader is the subset of blobstore.BlobStore the engine requires.
type photoUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// pausedSessionRepository is the subset of store.SessionStore the engine
// requires.
type pausedSessionRepository interface {
	SavePaused(ctx context.Context, areaID int64, snap *store.PausedSnapshot) error
	LoadPaused(ctx context.Context, areaID int64) (*store.PausedSnapshot, error)
	DeletePaused(ctx context.Context, areaID int64) error
}

// networkMonitor is the subset of netmon.Monitor the engine requires.
type networkMonitor interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// DecisionOpts carries the optional parts of a quantity decision.
type DecisionOpts struct {
	Note      string
	PhotoPath string
}

// Status is a read-only snapshot of the active session for callers that
// render progress.
type Status struct {
	Session          domain.StockSession `json:"session"`
	Current          *domain.AreaItem    `json:"current,omitempty"`
	CurrentSkips     int                 `json:"current_skips"`
	Position         int                 `json:"position"`
	QueueLen         int                 `json:"queue_len"`
	IsFirst          bool                `json:"is_first"`
	IsLast           bool                `json:"is_last"`
	PendingCount     int                 `json:"pending_count"`
	ReturnLocationID string              `json:"return_location_id,omitempty"`
}

// Engine owns the stock-counting session state machine:
//
//	NotStarted -> Active <-> Paused, Active -> Completed
//
// One session is driven by one user interaction stream at a time. All
// operations are short local state transitions; the only blocking work is
// the initial item fetch, remote write attempts (via the syncer), and photo
// uploads. Local optimistic state is always updated before any remote
// attempt, so callers are never blocked on the network.
type Engine struct {
	inv      inventoryService
	syncer   updateSyncer
	photos   photoUploader
	sessions pausedSessionRepository
	monitor  networkMonitor
	agg      *Aggregator
	logger   *slog.Logger

	now   func() time.Time
	newID func() string

	events        chan Event
	cancelMonitor func()

	mu               sync.Mutex
	session          *domain.StockSession
	queue            *queue.ItemQueue
	items            map[int64]domain.AreaItem
	updates          map[int64]domain.SessionItemUpdate
	returnLocationID string
}

// NewEngine wires the engine to its ports and subscribes to connectivity
// transitions: every reconnect triggers a drain of the pending queue.
func NewEngine(
	inv inventoryService,
	syncer updateSyncer,
	photos photoUploader,
	sessions pausedSessionRepository,
	monitor networkMonitor,
	agg *Aggregator,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		inv:      inv,
		syncer:   syncer,
		photos:   photos,
		sessions: sessions,
		monitor:  monitor,
		agg:      agg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		events:   make(chan Event, 64),
	}

	e.cancelMonitor = monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		e.logger.Info("back online, draining pending updates")
		e.syncer.Drain(context.Background())
	})
	return e
}

// Close cancels the engine's connectivity subscription.
func (e *Engine) Close() {
	if e.cancelMonitor != nil {
		e.cancelMonitor()
	}
}

// Events is the engine's observer channel.
func (e *Engine) Events() <-chan Event { return e.events }

// StartSession loads the area's items and begins an active session with the
// cursor on the first item. Only one session may be active at a time.
func (e *Engine) StartSession(ctx context.Context, areaID int64, method domain.CountMethod) (*domain.StockSession, error) {
	if !method.Valid() {
		return nil, domain.ErrInvalidMethod
	}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		return nil, domain.ErrSessionConflict
	}
	e.mu.Unlock()

	items, err := e.inv.FetchAreaItems(ctx, areaID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil, domain.ErrSessionConflict
	}

	e.queue = queue.New(items)
	e.items = make(map[int64]domain.AreaItem, len(items))
	for _, it := range items {
		e.items[it.ID] = it
	}
	e.updates = make(map[int64]domain.SessionItemUpdate)
	e.returnLocationID = ""
	e.session = &domain.StockSession{
		ID:          e.newID(),
		AreaID:      areaID,
		Status:      domain.SessionActive,
		StartMethod: method,
		StartedAt:   e.now(),
	}

	e.logger.Info("session started", "session_id", e.session.ID, "area_id", areaID, "items", len(items), "method", method)
	e.emit(Event{Type: EventSessionStarted, SessionID: e.session.ID, AreaID: areaID})

	sess := *e.session
	return &sess, nil
}

// PauseSession persists the full session snapshot locally and releases the
// engine. In-flight remote writes are not cancelled; pausing only stops
// further user-driven decisions until resume.
func (e *Engine) PauseSession(ctx context.Context, returnLocationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.ErrNoActiveSession
	}

	e.refreshCounts()
	sess := *e.session
	sess.Status = domain.SessionPaused
	sess.Cursor = e.queue.Position()

	snap := &store.PausedSnapshot{
		Session:          sess,
		ItemOrder:        e.queue.Items(),
		Skips:            e.queue.Skips(),
		Updates:          cloneUpdates(e.updates),
		ReturnLocationID: returnLocationID,
		PausedAt:         e.now(),
	}
	if err := e.sessions.SavePaused(ctx, sess.AreaID, snap); err != nil {
		return err
	}

	e.logger.Info("session paused", "session_id", sess.ID, "area_id", sess.AreaID, "cursor", sess.Cursor)
	e.emit(Event{Type: EventSessionPaused, SessionID: sess.ID, AreaID: sess.AreaID})
	e.clearSession()
	return nil
}

// ResumeSession restores the paused session for the area exactly as it was
// saved: queue order, cursor, skip counters, and recorded decisions. It
// returns the session and the return location given at pause time.
func (e *Engine) ResumeSession(ctx context.Context, areaID int64) (*domain.StockSession, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil, "", domain.ErrSessionConflict
	}

	snap, err := e.sessions.LoadPaused(ctx, areaID)
	if err != nil {
		return nil, "", err
	}
	if snap == nil {
		return nil, "", domain.ErrNoPausedSession
	}

	e.queue = queue.Restore(snap.ItemOrder, snap.Session.Cursor, snap.Skips)
	e.items = make(map[int64]domain.AreaItem, len(snap.ItemOrder))
	for _, it := range snap.ItemOrder {
		e.items[it.ID] = it
	}
	e.updates = cloneUpdates(snap.Updates)
	e.returnLocationID = snap.ReturnLocationID

	sess := snap.Session
	sess.Status = domain.SessionActive
	e.session = &sess

	if err := e.sessions.DeletePaused(ctx, areaID); err != nil {
		e.logger.Error("failed to clear paused snapshot after resume", "area_id", areaID, "error", err)
	}

	e.logger.Info("session resumed", "session_id", sess.ID, "area_id", areaID, "cursor", sess.Cursor)
	e.emit(Event{Type: EventSessionResumed, SessionID: sess.ID, AreaID: areaID})

	out := sess
	return &out, snap.ReturnLocationID, nil
}

// Next advances the cursor and returns the item now in front of the worker.
// On the last item it stays put.
func (e *Engine) Next() (domain.AreaItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.AreaItem{}, domain.ErrNoActiveSession
	}

	e.queue.Next()
	e.session.Cursor = e.queue.Position()
	cur, ok := e.queue.Current()
	if !ok {
		return domain.AreaItem{}, domain.ErrItemNotFound
	}
	return cur, nil
}

// Previous moves the cursor back; a no-op on the first item.
func (e *Engine) Previous() (domain.AreaItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.AreaItem{}, domain.ErrNoActiveSession
	}

	e.queue.Previous()
	e.session.Cursor = e.queue.Position()
	cur, ok := e.queue.Current()
	if !ok {
		return domain.AreaItem{}, domain.ErrItemNotFound
	}
	return cur, nil
}

// Skip defers the current item to the end of the pass and returns the item
// now under the cursor. A skipped item that was never counted gets a skipped
// decision record; skipping an already-counted item only reorders it.
func (e *Engine) Skip() (domain.AreaItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.AreaItem{}, domain.ErrNoActiveSession
	}

	skipped, count := e.queue.Skip()
	if count == 0 {
		return domain.AreaItem{}, domain.ErrItemNotFound
	}

	if u, ok := e.updates[skipped.ID]; !ok || u.Status != domain.UpdateCounted {
		e.updates[skipped.ID] = domain.SessionItemUpdate{
			AreaItemID:       skipped.ID,
			PreviousQuantity: skipped.CurrentQuantity,
			NewQuantity:      skipped.CurrentQuantity,
			Status:           domain.UpdateSkipped,
			Method:           domain.MethodManual,
		}
	}
	e.refreshCounts()
	e.session.Cursor = e.queue.Position()

	e.logger.Debug("item skipped", "session_id", e.session.ID, "area_item_id", skipped.ID, "skip_count", count)
	e.emit(Event{Type: EventItemSkipped, SessionID: e.session.ID, AreaID: e.session.AreaID, AreaItemID: skipped.ID, SkipCount: count})

	cur, ok := e.queue.Current()
	if !ok {
		return domain.AreaItem{}, domain.ErrItemNotFound
	}
	return cur, nil
}

// RecordDecision validates and applies a quantity decision to local state,
// then queues it for remote persistence. If the device is online the queue
// is drained immediately; a failed attempt simply leaves the entry queued.
// A photo taken while offline is dropped with a warning event; the quantity
// decision still proceeds.
func (e *Engine) RecordDecision(ctx context.Context, itemID int64, qty decimal.Decimal, method domain.CountMethod, opts DecisionOpts) error {
	if qty.Sign() < 0 {
		return domain.ErrInvalidQuantity
	}
	if !method.Valid() {
		return domain.ErrInvalidMethod
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	item, ok := e.items[itemID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrItemNotFound
	}

	photoURL := e.uploadPhotoLocked(ctx, itemID, opts.PhotoPath)

	prev, existed := e.updates[itemID]
	e.updates[itemID] = domain.SessionItemUpdate{
		AreaItemID:       itemID,
		PreviousQuantity: item.CurrentQuantity,
		NewQuantity:      qty,
		Status:           domain.UpdateCounted,
		Method:           method,
		Note:             opts.Note,
		PhotoURL:         photoURL,
	}
	e.refreshCounts()

	u := &domain.PendingUpdate{
		ID:         e.newID(),
		AreaItemID: itemID,
		Payload: domain.UpdatePayload{
			Quantity: qty,
			Method:   method,
			Note:     opts.Note,
			PhotoURL: photoURL,
		},
		CreatedAt: e.now(),
	}
	if err := e.syncer.Enqueue(ctx, u); err != nil {
		// A decision must be applied locally AND queued, or not at all.
		if existed {
			e.updates[itemID] = prev
		} else {
			delete(e.updates, itemID)
		}
		e.refreshCounts()
		e.mu.Unlock()
		return err
	}

	sessID := e.session.ID
	areaID := e.session.AreaID
	e.emit(Event{Type: EventDecisionRecorded, SessionID: sessID, AreaID: areaID, AreaItemID: itemID, PendingCount: e.syncer.Len()})
	e.logger.Debug("decision recorded", "session_id", sessID, "area_item_id", itemID, "quantity", qty.String(), "method", method)
	e.mu.Unlock()

	if e.monitor.IsOnline() {
		e.syncer.Drain(ctx)
	}
	return nil
}

// uploadPhotoLocked resolves a decision's photo to a remote URL, or "" when
// there is no photo or it cannot be uploaded right now.
func (e *Engine) uploadPhotoLocked(ctx context.Context, itemID int64, photoPath string) string {
	if photoPath == "" {
		return ""
	}
	if !e.monitor.IsOnline() {
		e.logger.Warn("photo dropped: device offline", "area_item_id", itemID)
		e.emit(Event{Type: EventPhotoDropped, SessionID: e.session.ID, AreaID: e.session.AreaID, AreaItemID: itemID, Message: "photo unavailable offline"})
		return ""
	}

	url, err := e.photos.Upload(ctx, photoPath)
	if err != nil {
		e.logger.Warn("photo dropped: upload failed", "area_item_id", itemID, "error", err)
		e.emit(Event{Type: EventPhotoDropped, SessionID: e.session.ID, AreaID: e.session.AreaID, AreaItemID: itemID, Message: "photo upload failed"})
		return ""
	}
	return url
}

// SetSessionItemQuantity revises a counted decision before final commit and
// returns the item's new band. Skipped entries stay immutable until the item
// is recounted through RecordDecision.
func (e *Engine) SetSessionItemQuantity(itemID int64, qty decimal.Decimal) (domain.Band, error) {
	if qty.Sign() < 0 {
		return "", domain.ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return "", domain.ErrNoActiveSession
	}
	u, ok := e.updates[itemID]
	if !ok {
		return "", domain.ErrItemNotFound
	}
	if u.Status == domain.UpdateSkipped {
		return "", domain.ErrSkippedImmutable
	}

	u.NewQuantity = qty
	e.updates[itemID] = u

	band := domain.Classify(qty, e.items[itemID].MinQuantity)
	e.logger.Debug("decision revised", "session_id", e.session.ID, "area_item_id", itemID, "quantity", qty.String(), "band", band)
	return band, nil
}

// CompleteSession reconciles the session. Every queue item must carry a
// decision (counted or skipped); otherwise completion fails naming the
// undecided items. The remote commit and the final pending-queue flush are
// best-effort and never block completion.
func (e *Engine) CompleteSession(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	}

	var undecided []string
	items := e.queue.Items()
	for _, it := range items {
		if _, ok := e.updates[it.ID]; !ok {
			undecided = append(undecided, it.Name)
		}
	}
	if len(undecided) > 0 {
		e.mu.Unlock()
		return nil, &domain.IncompleteDecisionsError{ItemNames: undecided}
	}

	e.refreshCounts()
	sess := *e.session
	sess.Status = domain.SessionCompleted
	sess.Cursor = e.queue.Position()

	summary := e.agg.Summarize(ctx, &sess, items, e.updates)

	finalUpdates := make([]domain.SessionItemUpdate, 0, len(items))
	for _, it := range items {
		finalUpdates = append(finalUpdates, e.updates[it.ID])
	}

	e.logger.Info("session completed", "session_id", sess.ID, "area_id", sess.AreaID,
		"counted", summary.CountedCount, "skipped", summary.SkippedCount, "critical", len(summary.Critical))
	e.emit(Event{Type: EventSessionCompleted, SessionID: sess.ID, AreaID: sess.AreaID, PendingCount: e.syncer.Len()})
	e.clearSession()
	e.mu.Unlock()

	if err := e.inv.CommitSession(ctx, sess.ID, finalUpdates); err != nil {
		e.logger.Warn("session commit failed, updates remain individually queued", "session_id", sess.ID, "error", err)
	}
	if e.monitor.IsOnline() {
		e.syncer.Drain(ctx)
	}
	return summary, nil
}

// PendingCount reports how many updates still await remote persistence. It
// works with or without an active session.
func (e *Engine) PendingCount() int { return e.syncer.Len() }

// AbandonPendingUpdate drops a queued update that will never succeed, for
// example one whose item was deleted on the backend. The local decision it
// came from is untouched.
func (e *Engine) AbandonPendingUpdate(ctx context.Context, id string) error {
	return e.syncer.Abandon(ctx, id)
}

// Status returns a snapshot of the active session.
func (e *Engine) Status() (*Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, domain.ErrNoActiveSession
	}

	e.refreshCounts()
	st := &Status{
		Session:          *e.session,
		Position:         e.queue.Position(),
		QueueLen:         e.queue.Len(),
		IsFirst:          e.queue.IsFirst(),
		IsLast:           e.queue.IsLast(),
		PendingCount:     e.syncer.Len(),
		ReturnLocationID: e.returnLocationID,
	}
	if cur, ok := e.queue.Current(); ok {
		st.Current = &cur
		st.CurrentSkips = e.queue.SkipCount(cur.ID)
	}
	return st, nil
}

// refreshCounts derives the session's checked/skipped tallies from the
// decision map, so they can never drift past the queue length.
func (e *Engine) refreshCounts() {
	checked, skipped := 0, 0
	for _, u := range e.updates {
		if u.Status == domain.UpdateCounted {
			checked++
		} else {
			skipped++
		}
	}
	e.session.ItemsChecked = checked
	e.session.ItemsSkipped = skipped
}

func (e *Engine) clearSession() {
	e.session = nil
	e.queue = nil
	e.items = nil
	e.updates = nil
	e.returnLocationID = ""
}

func (e *Engine) emit(ev Event) {
	ev.At = e.now()
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event dropped, observer channel full", "type", ev.Type)
	}
}

func cloneUpdates(in map[int64]domain.SessionItemUpdate) map[int64]domain.SessionItemUpdate {
	out := make(map[int64]domain.SessionItemUpdate, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
