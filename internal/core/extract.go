package core

import (
	"strings"

	"github.com/shopspring/decimal"

	"fundboard/internal/csvparse"
)

// Extract derives a Summary from parsed rows. The first row is the header.
//
// The goal and fixed expenses come from the first data row, the total is the
// sum of the amount column over every data row, and the as-of date is the
// last non-empty value of the date column. Missing cells never fail the
// extraction; they fall back to zero or the documented defaults.
func Extract(rows []csvparse.Row) Summary {
	s := Summary{
		TotalCollected: decimal.Zero,
		GoalAmount:     DefaultGoal,
		FixedExpenses:  DefaultExpensesText,
	}
	if len(rows) == 0 {
		return s
	}

	idx := ResolveHeaders(rows[0])
	data := rows[1:]
	if len(data) == 0 {
		return s
	}

	first := data[0]
	if goal := CleanAmount(safeGet(first, idx.Goal)); !goal.IsZero() {
		s.GoalAmount = goal
	}
	if exp := safeGet(first, idx.Expense); exp != "" {
		s.FixedExpenses = exp
	}

	total := decimal.Zero
	for _, row := range data {
		total = total.Add(CleanAmount(safeGet(row, idx.Amount)))
		if idx.Date != NoColumn {
			if d := strings.TrimSpace(safeGet(row, idx.Date)); d != "" {
				s.AsOfDate = &d
			}
		}
	}
	s.TotalCollected = total

	return s
}
