// Package refresh runs the fetch, extract, detect and persist cycle.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"fundboard/internal/change"
	"fundboard/internal/core"
	"fundboard/internal/csvparse"
	"fundboard/internal/log"
	"fundboard/internal/source"
)

// StateStore persists change-detection state and history.
type StateStore interface {
	LoadState(ctx context.Context) (change.State, error)
	SaveState(ctx context.Context, st change.State) error
	RecordChange(ctx context.Context, rec change.Record) (change.Record, error)
}

// Listener is notified after every successful cycle.
type Listener interface {
	OnRefresh(ctx context.Context, out Outcome)
}

type ListenerFunc func(ctx context.Context, out Outcome)

func (f ListenerFunc) OnRefresh(ctx context.Context, out Outcome) { f(ctx, out) }

// Outcome is the result of one successful cycle.
type Outcome struct {
	change.Result
	// PreviousTotal is where a counter animation starts: the total before a
	// change, zero on the first run, the current total otherwise.
	PreviousTotal decimal.Decimal
	// Rows counts data rows, header excluded.
	Rows      int
	Source    string
	FetchedAt time.Time
	// Record is the stored history entry when the cycle detected a change.
	Record *change.Record
}

// Display computes presentation values with timestamps rendered in loc.
func (o Outcome) Display(loc *time.Location) core.Display {
	return core.NewDisplay(o.Summary, o.PreviousTotal, o.DisplayTimestamp, o.Celebrate, loc)
}

type Options struct {
	Now    func() time.Time
	Logger *log.Logger
	// DryRun keeps every write in memory; the store is only read.
	DryRun bool
}

type Orchestrator struct {
	src    source.RowSource
	store  StateStore
	now    func() time.Time
	dryRun bool
	log    *log.Logger
	events *log.StructuredLogger

	group singleflight.Group

	mu        sync.RWMutex
	loaded    bool
	state     change.State
	latest    *Outcome
	listeners []Listener
}

func New(src source.RowSource, store StateStore, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	logger := opts.Logger.WithComponent(log.ComponentRefresh)
	return &Orchestrator{
		src:    src,
		store:  store,
		now:    opts.Now,
		dryRun: opts.DryRun,
		log:    logger,
		events: log.NewStructuredLogger(logger),
	}
}

// Subscribe registers l for every later cycle.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Load reads the persisted state. Refresh calls it on first use when the
// caller has not.
func (o *Orchestrator) Load(ctx context.Context) error {
	st, err := o.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	o.mu.Lock()
	o.state = st
	o.loaded = true
	o.mu.Unlock()

	o.log.InfoContext(ctx, "Loaded change detection state",
		"has_snapshot", st.LastSnapshot != "",
		"last_change", st.LastChange,
		log.FieldTotal, st.LastTotal.String())
	return nil
}

// Refresh runs one cycle. Concurrent callers share the cycle already in
// flight, including its context. An empty payload yields a nil Outcome and
// a nil error.
func (o *Orchestrator) Refresh(ctx context.Context) (*Outcome, error) {
	v, err, _ := o.group.Do("refresh", func() (interface{}, error) {
		return o.cycle(ctx)
	})
	if err != nil {
		return nil, err
	}
	out, _ := v.(*Outcome)
	if out == nil {
		return nil, nil
	}
	cp := *out
	return &cp, nil
}

func (o *Orchestrator) cycle(ctx context.Context) (*Outcome, error) {
	o.mu.RLock()
	loaded := o.loaded
	o.mu.RUnlock()
	if !loaded {
		if err := o.Load(ctx); err != nil {
			return nil, err
		}
	}

	rows, err := o.src.ReadRows(ctx)
	if errors.Is(err, csvparse.ErrEmptyPayload) {
		o.log.DebugContext(ctx, "Empty payload, skipping cycle", log.FieldSource, o.src.Name())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", o.src.Name(), err)
	}

	summary := core.Extract(rows)
	now := o.now()

	o.mu.RLock()
	prev := o.state
	o.mu.RUnlock()

	res, next := change.Detect(prev, summary, now)
	if res.Persist && !o.dryRun {
		if err := o.store.SaveState(ctx, next); err != nil {
			return nil, fmt.Errorf("persist state: %w", err)
		}
	}

	out := &Outcome{
		Result:    res,
		Rows:      len(rows) - 1,
		Source:    o.src.Name(),
		FetchedAt: now,
	}
	switch {
	case res.Changed:
		out.PreviousTotal = prev.LastTotal
	case prev.LastSnapshot == "":
		out.PreviousTotal = decimal.Zero
	default:
		out.PreviousTotal = summary.TotalCollected
	}

	if res.Changed && !o.dryRun {
		rec, err := o.store.RecordChange(ctx, change.NewRecord(prev, res))
		if err != nil {
			o.events.LogError(ctx, "Failed to record change history", err, log.OpPersist, nil)
		} else {
			out.Record = &rec
		}
	}

	o.mu.Lock()
	o.state = next
	o.latest = out
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()

	o.events.LogRefresh(ctx, log.NewFields().WithOutcome(
		out.Source, res.Snapshot,
		summary.TotalCollected.StringFixed(2), summary.GoalAmount.String(),
		out.Rows, res.Changed, res.Celebrate,
	), res.Changed)

	for _, l := range listeners {
		l.OnRefresh(ctx, *out)
	}
	return out, nil
}

// Latest returns the most recent successful outcome.
func (o *Orchestrator) Latest() (Outcome, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return Outcome{}, false
	}
	return *o.latest, true
}

// State returns the in-memory change-detection state.
func (o *Orchestrator) State() change.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// SourceName names the configured row source.
func (o *Orchestrator) SourceName() string {
	return o.src.Name()
}
