package core

import "github.com/shopspring/decimal"

// DefaultExpensesText is used when the sheet has no fixed-expenses value.
const DefaultExpensesText = "4000"

// DefaultGoal is used when the goal cell is missing or zero.
var DefaultGoal = decimal.NewFromInt(50000)

// Summary is the fundraising state derived from one fetch.
type Summary struct {
	TotalCollected decimal.Decimal
	GoalAmount     decimal.Decimal
	// FixedExpenses is the raw cell text; use Expenses for the amount.
	FixedExpenses string
	// AsOfDate is the sheet's own "last updated" cell, if any. Never parsed.
	AsOfDate *string
}

// Expenses returns the fixed expenses as an amount.
func (s Summary) Expenses() decimal.Decimal {
	return CleanAmount(s.FixedExpenses)
}

// Remaining returns how much is left to reach the goal, never negative.
func (s Summary) Remaining() decimal.Decimal {
	r := s.GoalAmount.Sub(s.TotalCollected)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Percentage returns progress towards the goal clamped to [0, 100].
func (s Summary) Percentage() float64 {
	if !s.GoalAmount.IsPositive() {
		return 0
	}
	p := s.TotalCollected.Div(s.GoalAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
