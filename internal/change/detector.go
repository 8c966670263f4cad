// Package change decides whether a fetched summary is a genuine change.
//
// Detection is pure: the caller passes the previous State in and persists
// the returned State when Result.Persist is set.
package change

import (
	"time"

	"github.com/shopspring/decimal"

	"fundboard/internal/core"
)

// CelebrationTolerance absorbs rounding noise when comparing totals.
var CelebrationTolerance = decimal.New(1, -2)

// State is what survives restarts.
type State struct {
	LastSnapshot string
	LastChange   time.Time
	// HasChange is false until a change timestamp has been recorded once.
	HasChange bool
	LastTotal decimal.Decimal
}

// Result is the outcome of one detection.
type Result struct {
	Summary   core.Summary
	Snapshot  string
	Changed   bool
	Celebrate bool
	// DisplayTimestamp is the time of the last genuine change.
	DisplayTimestamp time.Time
	// Persist reports whether the returned State differs from the input.
	Persist bool
}

// Snapshot fingerprints the financially relevant fields of s.
// The format is "<total with 2 decimals>-<goal>-<raw expenses text>".
func Snapshot(s core.Summary) string {
	return s.TotalCollected.StringFixed(2) + "-" + s.GoalAmount.String() + "-" + s.FixedExpenses
}

// Detect compares s against prev at instant now.
//
// On the first run the snapshot becomes the baseline without reporting a
// change. Afterwards any snapshot difference is a change and advances the
// change timestamp; a change celebrates only when the total grew by more than
// CelebrationTolerance.
func Detect(prev State, s core.Summary, now time.Time) (Result, State) {
	snap := Snapshot(s)
	res := Result{Summary: s, Snapshot: snap}
	next := prev

	switch {
	case prev.LastSnapshot == "":
		next.LastSnapshot = snap
		next.LastTotal = s.TotalCollected
		if !prev.HasChange {
			next.LastChange = now
			next.HasChange = true
		}
		res.Persist = true

	case prev.LastSnapshot != snap:
		next.LastSnapshot = snap
		next.LastChange = now
		next.HasChange = true
		next.LastTotal = s.TotalCollected
		res.Changed = true
		res.Celebrate = s.TotalCollected.GreaterThan(prev.LastTotal.Add(CelebrationTolerance))
		res.Persist = true
	}

	res.DisplayTimestamp = next.LastChange
	return res, next
}

// Record is one detected change, kept for history.
type Record struct {
	ID            int64           `json:"id"`
	Snapshot      string          `json:"snapshot"`
	Total         decimal.Decimal `json:"total"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	Goal          decimal.Decimal `json:"goal"`
	Expenses      string          `json:"expenses"`
	Celebrate     bool            `json:"celebrate"`
	ChangedAt     time.Time       `json:"changed_at"`
}

// NewRecord builds the history entry for a change from prev.
func NewRecord(prev State, res Result) Record {
	return Record{
		Snapshot:      res.Snapshot,
		Total:         res.Summary.TotalCollected,
		PreviousTotal: prev.LastTotal,
		Goal:          res.Summary.GoalAmount,
		Expenses:      res.Summary.FixedExpenses,
		Celebrate:     res.Celebrate,
		ChangedAt:     res.DisplayTimestamp,
	}
}
