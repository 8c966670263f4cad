// Package worker consumes change events published by the dashboard service.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundboard/internal/amqp"
	"fundboard/internal/core"
	"fundboard/internal/log"
)

// recentIDs bounds the redelivery filter.
const recentIDs = 256

// Stats counts handled events.
type Stats struct {
	Changes      int64
	Celebrations int64
	Duplicates   int64
	Invalid      int64
	Raised       decimal.Decimal
	LastEvent    time.Time
}

// CelebrationWorker announces celebrations and keeps running totals of what
// the feed reported.
type CelebrationWorker struct {
	log *log.Logger

	mu    sync.Mutex
	seen  map[int64]struct{}
	order []int64
	stats Stats
}

func NewCelebrationWorker(logger *log.Logger) *CelebrationWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &CelebrationWorker{
		log:  logger.WithComponent(log.ComponentWorker),
		seen: make(map[int64]struct{}),
	}
}

// HandleChangeMessage processes one event. It never returns an error for
// malformed or repeated events, so the broker does not redeliver them.
func (w *CelebrationWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg == nil || msg.Snapshot == "" || (msg.Type != amqp.TypeChange && msg.Type != amqp.TypeCelebration) {
		w.mu.Lock()
		w.stats.Invalid++
		w.mu.Unlock()
		w.log.WarnContext(ctx, "Ignoring malformed change event", log.FieldOperation, log.OpConsume)
		return nil
	}

	w.mu.Lock()
	if msg.HistoryID != 0 {
		if _, dup := w.seen[msg.HistoryID]; dup {
			w.stats.Duplicates++
			w.mu.Unlock()
			w.log.DebugContext(ctx, "Skipping redelivered event", "history_id", msg.HistoryID)
			return nil
		}
		w.remember(msg.HistoryID)
	}
	w.stats.Changes++
	w.stats.LastEvent = msg.ChangedAt
	raised := msg.Raised()
	if msg.Celebrate {
		w.stats.Celebrations++
		w.stats.Raised = w.stats.Raised.Add(raised)
	}
	w.mu.Unlock()

	summary := core.Summary{TotalCollected: msg.Total, GoalAmount: msg.Goal, FixedExpenses: msg.Expenses}
	fields := []any{
		"history_id", msg.HistoryID,
		log.FieldSnapshot, msg.Snapshot,
		log.FieldTotal, core.FormatAmount(msg.Total),
		log.FieldGoal, core.FormatAmount(msg.Goal),
		"percentage", summary.Percentage(),
		"changed_at", msg.ChangedAt,
	}

	if !msg.Celebrate {
		w.log.InfoContext(ctx, "Fundraising figures changed", fields...)
		return nil
	}

	fields = append(fields, "raised", core.FormatAmount(raised))
	if summary.Remaining().IsZero() {
		w.log.InfoContext(ctx, "Goal reached", fields...)
		return nil
	}
	w.log.InfoContext(ctx, "New donation received", fields...)
	return nil
}

func (w *CelebrationWorker) remember(id int64) {
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > recentIDs {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
}

func (w *CelebrationWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// ReportStats logs the running totals every interval until ctx is done.
func (w *CelebrationWorker) ReportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := w.Stats()
			w.log.InfoContext(ctx, "Celebration worker stats",
				"changes", st.Changes,
				"celebrations", st.Celebrations,
				"duplicates", st.Duplicates,
				"invalid", st.Invalid,
				"raised", core.FormatAmount(st.Raised))
		}
	}
}
