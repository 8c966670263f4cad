package worker

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundboard/internal/amqp"
	"fundboard/internal/log"
)

func newWorker(buf *bytes.Buffer) *CelebrationWorker {
	return NewCelebrationWorker(log.New(log.Config{Level: slog.LevelDebug, Output: buf}))
}

func message(id int64, prev, total int64, celebrate bool) *amqp.ChangeMessage {
	typ := amqp.TypeChange
	if celebrate {
		typ = amqp.TypeCelebration
	}
	return &amqp.ChangeMessage{
		Type:          typ,
		HistoryID:     id,
		Snapshot:      decimal.NewFromInt(total).StringFixed(2) + "-50000-4000",
		Total:         decimal.NewFromInt(total),
		PreviousTotal: decimal.NewFromInt(prev),
		Goal:          decimal.NewFromInt(50000),
		Expenses:      "4000",
		Celebrate:     celebrate,
		ChangedAt:     time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC),
	}
}

func TestHandleChangeMessage_Celebration(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)

	require.NoError(t, w.HandleChangeMessage(context.Background(), message(1, 100, 150, true)))

	st := w.Stats()
	assert.Equal(t, int64(1), st.Changes)
	assert.Equal(t, int64(1), st.Celebrations)
	assert.True(t, decimal.NewFromInt(50).Equal(st.Raised))
	assert.Contains(t, buf.String(), "New donation received")
	assert.Contains(t, buf.String(), "component=worker")
}

func TestHandleChangeMessage_PlainChange(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)

	require.NoError(t, w.HandleChangeMessage(context.Background(), message(1, 150, 120, false)))

	st := w.Stats()
	assert.Equal(t, int64(1), st.Changes)
	assert.Zero(t, st.Celebrations)
	assert.True(t, st.Raised.IsZero())
	assert.Contains(t, buf.String(), "Fundraising figures changed")
}

func TestHandleChangeMessage_GoalReached(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)

	require.NoError(t, w.HandleChangeMessage(context.Background(), message(3, 49000, 50500, true)))
	assert.Contains(t, buf.String(), "Goal reached")
}

func TestHandleChangeMessage_SkipsRedelivery(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)
	ctx := context.Background()

	require.NoError(t, w.HandleChangeMessage(ctx, message(7, 100, 150, true)))
	require.NoError(t, w.HandleChangeMessage(ctx, message(7, 100, 150, true)))
	// dry-run publishers send no history id; those are never deduplicated
	require.NoError(t, w.HandleChangeMessage(ctx, message(0, 150, 160, true)))
	require.NoError(t, w.HandleChangeMessage(ctx, message(0, 150, 160, true)))

	st := w.Stats()
	assert.Equal(t, int64(3), st.Changes)
	assert.Equal(t, int64(1), st.Duplicates)
	assert.True(t, decimal.NewFromInt(70).Equal(st.Raised))
}

func TestHandleChangeMessage_InvalidIsAcknowledged(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)
	ctx := context.Background()

	bad := message(1, 0, 10, false)
	bad.Type = "unknown"
	assert.NoError(t, w.HandleChangeMessage(ctx, bad))
	assert.NoError(t, w.HandleChangeMessage(ctx, &amqp.ChangeMessage{Type: amqp.TypeChange}))
	assert.NoError(t, w.HandleChangeMessage(ctx, nil))

	st := w.Stats()
	assert.Equal(t, int64(3), st.Invalid)
	assert.Zero(t, st.Changes)
}

func TestRemember_Bounded(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)
	ctx := context.Background()

	for id := int64(1); id <= recentIDs+10; id++ {
		require.NoError(t, w.HandleChangeMessage(ctx, message(id, 0, id, false)))
	}
	assert.Len(t, w.seen, recentIDs)
	_, oldest := w.seen[1]
	assert.False(t, oldest)

	// evicted ids are handled again
	require.NoError(t, w.HandleChangeMessage(ctx, message(1, 0, 1, false)))
	assert.Equal(t, int64(recentIDs+11), w.Stats().Changes)
}

func TestReportStats_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	w := newWorker(&buf)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.ReportStats(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReportStats did not return")
	}
}
