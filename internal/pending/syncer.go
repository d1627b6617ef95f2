package pending

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vbonduro/stocktake/internal/domain"
)

// pendingRepository is the subset of store.PendingStore that Syncer requires.
type pendingRepository interface {
	Enqueue(ctx context.Context, u *domain.PendingUpdate) error
	Oldest(ctx context.Context) (*domain.PendingUpdate, error)
	Delete(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// remoteWriter is the single remote call the syncer retries.
type remoteWriter interface {
	PersistItemUpdate(ctx context.Context, areaItemID int64, payload domain.UpdatePayload) error
}

// Syncer drains the durable pending-update queue against the remote
// inventory service. It is the only code path allowed to dequeue; everything
// else enqueues or reads the length. Entries are retried strictly in FIFO
// order: a failed write stays at the front and blocks the rest of the queue
// until a later drain succeeds.
type Syncer struct {
	store   pendingRepository
	remote  remoteWriter
	logger  *slog.Logger
	onCount func(int)

	length atomic.Int64

	mu       sync.Mutex
	draining bool
	rerun    bool
}

// NewSyncer seeds the observable length from whatever survived the last
// process. onCount, if non-nil, is called whenever the length changes.
func NewSyncer(ctx context.Context, store pendingRepository, remote remoteWriter, logger *slog.Logger, onCount func(int)) (*Syncer, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending updates: %w", err)
	}

	s := &Syncer{
		store:   store,
		remote:  remote,
		logger:  logger,
		onCount: onCount,
	}
	s.length.Store(int64(n))
	return s, nil
}

// Len is the number of updates still awaiting remote acknowledgment.
func (s *Syncer) Len() int { return int(s.length.Load()) }

// Enqueue records an update for deferred remote persistence. It never
// attempts the remote write itself; callers trigger Drain when online.
func (s *Syncer) Enqueue(ctx context.Context, u *domain.PendingUpdate) error {
	if err := s.store.Enqueue(ctx, u); err != nil {
		return err
	}
	s.addLen(1)
	s.logger.Debug("pending update enqueued", "id", u.ID, "area_item_id", u.AreaItemID, "pending", s.Len())
	return nil
}

// Abandon drops an update without syncing it. The explicit escape hatch for
// entries that should never reach the remote service.
func (s *Syncer) Abandon(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.addLen(-1)
	s.logger.Info("pending update abandoned", "id", id, "pending", s.Len())
	return nil
}

// Drain retries queued updates until the queue is empty or a write fails.
// It is reentrant-safe: while a pass is in flight, further calls schedule
// one follow-up pass and return immediately.
func (s *Syncer) Drain(ctx context.Context) {
	s.mu.Lock()
	if s.draining {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.drainPass(ctx)

		s.mu.Lock()
		if !s.rerun {
			s.draining = false
			s.mu.Unlock()
			return
		}
		s.rerun = false
		s.mu.Unlock()
	}
}

func (s *Syncer) drainPass(ctx context.Context) {
	for {
		u, err := s.store.Oldest(ctx)
		if err != nil {
			s.logger.Error("failed to read pending queue", "error", err)
			return
		}
		if u == nil {
			return
		}

		if err := s.remote.PersistItemUpdate(ctx, u.AreaItemID, u.Payload); err != nil {
			// Network failures are absorbed here: the entry stays at the
			// front and the whole queue waits for the next drain.
			s.logger.Warn("remote write failed, update stays queued",
				"id", u.ID, "area_item_id", u.AreaItemID, "attempts", u.Attempts+1, "error", err)
			if ierr := s.store.IncrementAttempts(ctx, u.ID); ierr != nil {
				s.logger.Error("failed to record attempt", "id", u.ID, "error", ierr)
			}
			return
		}

		if err := s.store.Delete(ctx, u.ID); err != nil {
			s.logger.Error("failed to remove acknowledged update", "id", u.ID, "error", err)
			return
		}
		s.addLen(-1)
		s.logger.Debug("pending update synced", "id", u.ID, "area_item_id", u.AreaItemID, "pending", s.Len())
	}
}

func (s *Syncer) addLen(delta int64) {
	n := s.length.Add(delta)
	if s.onCount != nil {
		s.onCount(int(n))
	}
}
