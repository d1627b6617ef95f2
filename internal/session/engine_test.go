package session

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/stocktake/internal/db"
	"github.com/vbonduro/stocktake/internal/domain"
	"github.com/vbonduro/stocktake/internal/pending"
	"github.com/vbonduro/stocktake/internal/store"
)

// stubInventory is an in-memory inventory backend for tests.
type stubInventory struct {
	mu         sync.Mutex
	items      map[int64][]domain.AreaItem
	fetchErr   error
	persistErr error
	persisted  []domain.UpdatePayload
	commits    int
	commitErr  error
}

func (s *stubInventory) FetchAreaItems(_ context.Context, areaID int64) ([]domain.AreaItem, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.items[areaID], nil
}

func (s *stubInventory) PersistItemUpdate(_ context.Context, _ int64, payload domain.UpdatePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted = append(s.persisted, payload)
	return nil
}

func (s *stubInventory) CommitSession(_ context.Context, _ string, _ []domain.SessionItemUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return s.commitErr
}

func (s *stubInventory) persistedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

func (s *stubInventory) setPersistErr(err error) {
	s.mu.Lock()
	s.persistErr = err
	s.mu.Unlock()
}

// stubNotifier records scheduled alerts.
type stubNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (n *stubNotifier) ScheduleLocalAlert(_ context.Context, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

// stubBlob is a BlobStore that mints URLs without storing anything.
type stubBlob struct {
	err   error
	calls int
}

func (b *stubBlob) Upload(_ context.Context, localPath string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return "https://blobs.example.com/" + localPath, nil
}

// fakeMonitor is a deterministic NetworkMonitor: tests flip connectivity and
// subscribers fire synchronously.
type fakeMonitor struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
}

func (m *fakeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
	return func() {}
}

func (m *fakeMonitor) setOnline(online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range subs {
		fn(online)
	}
}

type fixture struct {
	d        *sql.DB
	inv      *stubInventory
	monitor  *fakeMonitor
	notifier *stubNotifier
	blob     *stubBlob
	pendings *store.PendingStore
	syncer   *pending.Syncer
	engine   *Engine
}

func scenarioItems() []domain.AreaItem {
	return []domain.AreaItem{
		{ID: 1, InventoryItemID: 100, Name: "A", CurrentQuantity: decimal.NewFromInt(10), MinQuantity: decimal.NewFromInt(5)},
		{ID: 2, InventoryItemID: 200, Name: "B", CurrentQuantity: decimal.NewFromInt(3), MinQuantity: decimal.NewFromInt(5)},
		{ID: 3, InventoryItemID: 300, Name: "C", CurrentQuantity: decimal.NewFromInt(8), MinQuantity: decimal.NewFromInt(4)},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	f := &fixture{
		d:        d,
		inv:      &stubInventory{items: map[int64][]domain.AreaItem{7: scenarioItems()}},
		monitor:  &fakeMonitor{online: true},
		notifier: &stubNotifier{},
		blob:     &stubBlob{},
	}
	f.attachEngine(t)
	return f
}

// attachEngine builds a fresh engine over the fixture's database, as a
// process restart would.
func (f *fixture) attachEngine(t *testing.T) {
	t.Helper()
	f.pendings = store.NewPendingStore(f.d)
	syncer, err := pending.NewSyncer(context.Background(), f.pendings, f.inv, slog.Default(), nil)
	require.NoError(t, err)
	f.syncer = syncer

	agg := NewAggregator(f.notifier, store.NewAlertStore(f.d), slog.Default())
	f.engine = NewEngine(f.inv, f.syncer, f.blob, store.NewSessionStore(f.d), f.monitor, agg, slog.Default())
	t.Cleanup(f.engine.Close)
}

func (f *fixture) start(t *testing.T) *domain.StockSession {
	t.Helper()
	sess, err := f.engine.StartSession(context.Background(), 7, domain.MethodManual)
	require.NoError(t, err)
	return sess
}

func (f *fixture) record(t *testing.T, itemID int64, qty int64) {
	t.Helper()
	err := f.engine.RecordDecision(context.Background(), itemID, decimal.NewFromInt(qty), domain.MethodManual, DecisionOpts{})
	require.NoError(t, err)
}

func drainEvents(e *Engine) []Event {
	var out []Event
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)

	sess := f.start(t)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, int64(7), sess.AreaID)
	assert.Equal(t, domain.SessionActive, sess.Status)
	assert.Equal(t, 0, sess.Cursor)

	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, 3, st.QueueLen)
	require.NotNil(t, st.Current)
	assert.Equal(t, "A", st.Current.Name)
	assert.True(t, st.IsFirst)
}

func TestStartSessionConflict(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.engine.StartSession(context.Background(), 8, domain.MethodManual)
	assert.ErrorIs(t, err, domain.ErrSessionConflict)
}

func TestStartSessionInvalidMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.StartSession(context.Background(), 7, domain.CountMethod("carrier pigeon"))
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)
}

func TestStartSessionFetchError(t *testing.T) {
	f := newFixture(t)
	f.inv.fetchErr = errors.New("backend down")

	_, err := f.engine.StartSession(context.Background(), 7, domain.MethodManual)
	assert.Error(t, err)

	// A failed start leaves the engine free for another attempt.
	f.inv.fetchErr = nil
	f.start(t)
}

func TestSkipMovesItemToEndOfPass(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	// Skip A: queue order becomes [B, C, A], cursor still at position 0.
	cur, err := f.engine.Skip()
	require.NoError(t, err)
	assert.Equal(t, "B", cur.Name)

	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, 3, st.QueueLen)
	assert.Equal(t, 1, st.Session.ItemsSkipped)

	// A is revisited only after B and C.
	cur, err = f.engine.Next()
	require.NoError(t, err)
	assert.Equal(t, "C", cur.Name)
	cur, err = f.engine.Next()
	require.NoError(t, err)
	assert.Equal(t, "A", cur.Name)

	st, err = f.engine.Status()
	require.NoError(t, err)
	assert.True(t, st.IsLast)
	assert.Equal(t, 1, st.CurrentSkips)
}

func TestNextPreviousStayInBounds(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	cur, err := f.engine.Previous()
	require.NoError(t, err)
	assert.Equal(t, "A", cur.Name)

	for i := 0; i < 5; i++ {
		cur, err = f.engine.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, "C", cur.Name)

	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position)
}

func TestRecordDecisionOnlinePersistsImmediately(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.record(t, 2, 2)

	assert.Equal(t, 0, f.syncer.Len())
	assert.Equal(t, 1, f.inv.persistedCount())
	assert.True(t, f.inv.persisted[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestRecordDecisionOfflineQueuesAndDrainsOnReconnect(t *testing.T) {
	f := newFixture(t)
	f.monitor.setOnline(false)
	f.start(t)

	f.record(t, 2, 2)

	// Applied locally, queued, nothing persisted remotely.
	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Session.ItemsChecked)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, 0, f.inv.persistedCount())

	f.monitor.setOnline(true)

	assert.Equal(t, 0, f.syncer.Len())
	assert.Equal(t, 1, f.inv.persistedCount())
}

func TestRecordDecisionRemoteFailureStaysQueued(t *testing.T) {
	f := newFixture(t)
	f.inv.setPersistErr(errors.New("connection reset"))
	f.start(t)

	// The network failure is absorbed: the decision succeeds locally and the
	// update waits in the queue.
	f.record(t, 2, 2)
	assert.Equal(t, 1, f.syncer.Len())

	f.inv.setPersistErr(nil)
	f.syncer.Drain(context.Background())
	assert.Equal(t, 0, f.syncer.Len())
}

func TestRecordDecisionNegativeQuantity(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	err := f.engine.RecordDecision(context.Background(), 2, decimal.NewFromInt(-1), domain.MethodManual, DecisionOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	// Rejected synchronously: nothing applied, nothing queued.
	st, serr := f.engine.Status()
	require.NoError(t, serr)
	assert.Zero(t, st.Session.ItemsChecked)
	assert.Zero(t, f.syncer.Len())
}

func TestRecordDecisionUnknownItem(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	err := f.engine.RecordDecision(context.Background(), 99, decimal.NewFromInt(1), domain.MethodManual, DecisionOpts{})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRecordDecisionOverwritesEarlierDecision(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.record(t, 2, 2)
	f.record(t, 2, 4)

	st, err := f.engine.Status()
	require.NoError(t, err)
	// Still one decision for the item, not two.
	assert.Equal(t, 1, st.Session.ItemsChecked)
	// Both writes were queued and synced in order.
	assert.Equal(t, 2, f.inv.persistedCount())
}

func TestPhotoDroppedOffline(t *testing.T) {
	f := newFixture(t)
	f.monitor.setOnline(false)
	f.start(t)
	drainEvents(f.engine)

	err := f.engine.RecordDecision(context.Background(), 2, decimal.NewFromInt(2), domain.MethodManual,
		DecisionOpts{PhotoPath: "/tmp/shelf.jpg"})
	require.NoError(t, err)

	events := drainEvents(f.engine)
	var dropped bool
	for _, ev := range events {
		if ev.Type == EventPhotoDropped {
			dropped = true
		}
	}
	assert.True(t, dropped)
	assert.Zero(t, f.blob.calls)

	// The decision itself still went through without a photo.
	u, err := f.pendings.Oldest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Empty(t, u.Payload.PhotoURL)
}

func TestPhotoUploadedOnline(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	err := f.engine.RecordDecision(context.Background(), 2, decimal.NewFromInt(2), domain.MethodManual,
		DecisionOpts{PhotoPath: "/tmp/shelf.jpg"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.blob.calls)
	assert.Equal(t, 1, f.inv.persistedCount())
	assert.Equal(t, "https://blobs.example.com//tmp/shelf.jpg", f.inv.persisted[0].PhotoURL)
}

func TestPhotoUploadFailureNonFatal(t *testing.T) {
	f := newFixture(t)
	f.blob.err = errors.New("blob store down")
	f.start(t)

	err := f.engine.RecordDecision(context.Background(), 2, decimal.NewFromInt(2), domain.MethodManual,
		DecisionOpts{PhotoPath: "/tmp/shelf.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.inv.persistedCount())
	assert.Empty(t, f.inv.persisted[0].PhotoURL)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.engine.Skip() // order [B, C, A]
	f.record(t, 2, 2)
	_, err := f.engine.Next() // cursor on C
	require.NoError(t, err)

	require.NoError(t, f.engine.PauseSession(context.Background(), "dock-4"))

	_, err = f.engine.Status()
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	sess, returnLoc, err := f.engine.ResumeSession(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, sess.Status)
	assert.Equal(t, "dock-4", returnLoc)

	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Position)
	require.NotNil(t, st.Current)
	assert.Equal(t, "C", st.Current.Name)
	assert.Equal(t, 1, st.Session.ItemsChecked)
	assert.Equal(t, 1, st.Session.ItemsSkipped)

	// The revised decision map survived: B was counted at 2, editing works.
	band, err := f.engine.SetSessionItemQuantity(2, decimal.NewFromInt(6))
	require.NoError(t, err)
	assert.Equal(t, domain.BandLow, band)
}

func TestPauseResumeSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.record(t, 1, 10)
	_, err := f.engine.Next()
	require.NoError(t, err)

	require.NoError(t, f.engine.PauseSession(context.Background(), ""))

	// Simulate a process restart: new engine, same database.
	f.attachEngine(t)

	sess, _, err := f.engine.ResumeSession(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Cursor)
	assert.Equal(t, 1, sess.ItemsChecked)

	// Resuming again finds nothing: the snapshot was consumed.
	require.NoError(t, f.engine.PauseSession(context.Background(), ""))
	_, _, err = f.engine.ResumeSession(context.Background(), 7)
	require.NoError(t, err)
}

func TestResumeNoPausedSession(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.ResumeSession(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNoPausedSession)
}

func TestPauseWithoutActiveSession(t *testing.T) {
	f := newFixture(t)

	err := f.engine.PauseSession(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestCompleteSessionBands(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	// A=10 (min 5, healthy), B=2 (min 5, critical), C=8 (min 4, healthy).
	f.record(t, 1, 10)
	f.record(t, 2, 2)
	f.record(t, 3, 8)

	summary, err := f.engine.CompleteSession(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Critical, 1)
	assert.Equal(t, "B", summary.Critical[0].Item.Name)
	assert.Empty(t, summary.Low)
	require.Len(t, summary.Healthy, 2)
	assert.Equal(t, 3, summary.CountedCount)
	assert.Equal(t, 0, summary.SkippedCount)

	// Exactly one alert, naming one critical item.
	assert.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.notifier.bodies[0], "1 item(s)")

	assert.Equal(t, 1, f.inv.commits)
	_, err = f.engine.Status()
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestCompleteSessionIncompleteDecisions(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.record(t, 1, 10)
	f.record(t, 2, 2)
	// C never counted or skipped.

	_, err := f.engine.CompleteSession(context.Background())
	var incomplete *domain.IncompleteDecisionsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"C"}, incomplete.ItemNames)

	// The session is still active and can be finished.
	f.record(t, 3, 8)
	_, err = f.engine.CompleteSession(context.Background())
	assert.NoError(t, err)
}

func TestCompleteSessionWithSkippedItem(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.engine.Skip() // A deferred, order [B, C, A]
	f.record(t, 2, 8)
	f.record(t, 3, 8)

	summary, err := f.engine.CompleteSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CountedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	// A keeps its pre-session quantity of 10 against min 5: healthy.
	require.Len(t, summary.Healthy, 3)
	assert.Empty(t, summary.Critical)
	assert.Zero(t, f.notifier.count())
}

func TestCompleteSessionCommitFailureNonBlocking(t *testing.T) {
	f := newFixture(t)
	f.inv.commitErr = errors.New("backend down")
	f.start(t)

	f.record(t, 1, 10)
	f.record(t, 2, 6)
	f.record(t, 3, 8)

	summary, err := f.engine.CompleteSession(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summary)
}

func TestSetSessionItemQuantityReclassifies(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.record(t, 1, 10)
	f.record(t, 2, 2)
	f.record(t, 3, 8)

	// A drops from healthy to critical without touching B or C.
	band, err := f.engine.SetSessionItemQuantity(1, decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, domain.BandCritical, band)

	summary, err := f.engine.CompleteSession(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Critical, 2)
	require.Len(t, summary.Healthy, 1)
	assert.Equal(t, "C", summary.Healthy[0].Item.Name)
}

func TestSetSessionItemQuantitySkippedImmutable(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.engine.Skip() // A gets a skipped record

	_, err := f.engine.SetSessionItemQuantity(1, decimal.NewFromInt(4))
	assert.ErrorIs(t, err, domain.ErrSkippedImmutable)

	// Recounting makes it editable again.
	f.record(t, 1, 10)
	band, err := f.engine.SetSessionItemQuantity(1, decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, domain.BandCritical, band)
}

func TestSetSessionItemQuantityValidation(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.record(t, 1, 10)

	_, err := f.engine.SetSessionItemQuantity(1, decimal.NewFromInt(-2))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.engine.SetSessionItemQuantity(3, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestAbandonPendingUpdate(t *testing.T) {
	f := newFixture(t)
	f.monitor.setOnline(false)
	f.start(t)
	f.record(t, 2, 2)

	u, err := f.pendings.Oldest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)

	require.NoError(t, f.engine.AbandonPendingUpdate(context.Background(), u.ID))
	assert.Zero(t, f.syncer.Len())

	err = f.engine.AbandonPendingUpdate(context.Background(), u.ID)
	assert.ErrorIs(t, err, domain.ErrPendingNotFound)
}

func TestEngineEvents(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.record(t, 1, 10)
	f.engine.Skip()

	types := make(map[EventType]bool)
	for _, ev := range drainEvents(f.engine) {
		types[ev.Type] = true
	}
	assert.True(t, types[EventSessionStarted])
	assert.True(t, types[EventDecisionRecorded])
	assert.True(t, types[EventItemSkipped])
}
