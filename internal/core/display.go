package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// groupSeparator is the fr-CA thousands separator (no-break space).
const groupSeparator = "\u00a0"

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Display holds the values the dashboard renders.
type Display struct {
	Goal             decimal.Decimal `json:"goal"`
	Remaining        decimal.Decimal `json:"remaining"`
	ExpensesPerMonth decimal.Decimal `json:"expenses_per_month"`
	Total            decimal.Decimal `json:"total"`
	// PreviousTotal is where an animated counter should start from.
	PreviousTotal decimal.Decimal `json:"previous_total"`
	Percentage    float64         `json:"percentage"`

	GoalText      string `json:"goal_text"`
	RemainingText string `json:"remaining_text"`
	ExpensesText  string `json:"expenses_text"`
	TotalText     string `json:"total_text"`

	LastUpdate     time.Time `json:"last_update"`
	LastUpdateText string    `json:"last_update_text"`
	AsOfDate       string    `json:"as_of_date,omitempty"`
	Celebrate      bool      `json:"celebrate"`
}

// NewDisplay computes presentation values. lastChange is rendered in loc;
// a nil loc means time.Local.
func NewDisplay(s Summary, previousTotal decimal.Decimal, lastChange time.Time, celebrate bool, loc *time.Location) Display {
	if loc == nil {
		loc = time.Local
	}
	d := Display{
		Goal:             s.GoalAmount,
		Remaining:        s.Remaining(),
		ExpensesPerMonth: s.Expenses(),
		Total:            s.TotalCollected,
		PreviousTotal:    previousTotal,
		Percentage:       s.Percentage(),
		LastUpdate:       lastChange,
		Celebrate:        celebrate,
	}
	d.GoalText = FormatAmount(d.Goal) + " $"
	d.RemainingText = FormatAmount(d.Remaining) + " $"
	d.ExpensesText = FormatAmount(d.ExpensesPerMonth) + " / mois"
	d.TotalText = FormatAmount(d.Total)
	if !lastChange.IsZero() {
		d.LastUpdateText = "Dernière mise à jour : " + FormatTimestamp(lastChange.In(loc))
	}
	if s.AsOfDate != nil {
		d.AsOfDate = *s.AsOfDate
	}
	return d
}

// FormatAmount formats v the way fr-CA does: two decimals, comma decimal
// separator and no-break space between thousands ("1 234,56").
func FormatAmount(v decimal.Decimal) string {
	fixed := v.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(groupSeparator)
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// FormatTimestamp renders t as "19 octobre 2026 à 14:05".
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d %s %d à %02d:%02d",
		t.Day(), frenchMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}
