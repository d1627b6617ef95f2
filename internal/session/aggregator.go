package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/stocktake/internal/domain"
)

// alertScheduler is the subset of notify.Notifier the aggregator requires.
type alertScheduler interface {
	ScheduleLocalAlert(ctx context.Context, title, body string)
}

// alertLog is the subset of store.AlertStore the aggregator requires.
type alertLog interface {
	MarkAlerted(ctx context.Context, sessionID string, criticalCount int, at time.Time) (bool, error)
}

// BandedItem is one touched item with its session-final quantity and band.
type BandedItem struct {
	Item          domain.AreaItem `json:"item"`
	FinalQuantity decimal.Decimal `json:"final_quantity"`
	Band          domain.Band     `json:"band"`
}

// Summary is the reconciled result of a completed session. Every touched
// item lands in exactly one of the three bands.
type Summary struct {
	SessionID    string       `json:"session_id"`
	AreaID       int64        `json:"area_id"`
	Critical     []BandedItem `json:"critical"`
	Low          []BandedItem `json:"low"`
	Healthy      []BandedItem `json:"healthy"`
	CountedCount int          `json:"counted_count"`
	SkippedCount int          `json:"skipped_count"`
}

// Aggregator classifies a completed session's items into severity bands and
// fires the critical-stock alert at most once per session.
type Aggregator struct {
	notifier alertScheduler
	alerts   alertLog
	logger   *slog.Logger
	now      func() time.Time
}

func NewAggregator(notifier alertScheduler, alerts alertLog, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		notifier: notifier,
		alerts:   alerts,
		logger:   logger,
		now:      time.Now,
	}
}

// Summarize classifies every touched item by its final quantity. Items only
// skipped keep their pre-session quantity; that is still the device's best
// knowledge of the shelf. If any item lands critical, the local alert is
// scheduled, at most once per session, surviving process restarts.
func (a *Aggregator) Summarize(ctx context.Context, sess *domain.StockSession, items []domain.AreaItem, updates map[int64]domain.SessionItemUpdate) *Summary {
	sum := &Summary{SessionID: sess.ID, AreaID: sess.AreaID}

	for _, it := range items {
		u, ok := updates[it.ID]
		if !ok {
			continue // untouched items are rejected before aggregation
		}

		final := u.FinalQuantity()
		banded := BandedItem{Item: it, FinalQuantity: final, Band: domain.Classify(final, it.MinQuantity)}
		switch banded.Band {
		case domain.BandCritical:
			sum.Critical = append(sum.Critical, banded)
		case domain.BandLow:
			sum.Low = append(sum.Low, banded)
		default:
			sum.Healthy = append(sum.Healthy, banded)
		}

		if u.Status == domain.UpdateCounted {
			sum.CountedCount++
		} else {
			sum.SkippedCount++
		}
	}

	if len(sum.Critical) > 0 {
		a.alertOnce(ctx, sess.ID, len(sum.Critical))
	}
	return sum
}

func (a *Aggregator) alertOnce(ctx context.Context, sessionID string, criticalCount int) {
	first, err := a.alerts.MarkAlerted(ctx, sessionID, criticalCount, a.now())
	if err != nil {
		a.logger.Error("failed to record critical alert, skipping notification", "session_id", sessionID, "error", err)
		return
	}
	if !first {
		a.logger.Debug("critical alert already sent for session", "session_id", sessionID)
		return
	}

	a.notifier.ScheduleLocalAlert(ctx, "Critical stock levels",
		fmt.Sprintf("%d item(s) below minimum after stock count", criticalCount))
	a.logger.Info("critical stock alert scheduled", "session_id", sessionID, "critical_count", criticalCount)
}
