package core

import "strings"

// Positional fallbacks used when no header matches.
const (
	DefaultAmountColumn  = 1
	DefaultGoalColumn    = 2
	DefaultExpenseColumn = 3
	NoColumn             = -1
)

// HeaderIndex maps each semantic field to a column position.
// Date is NoColumn when the sheet has no recognizable date column.
type HeaderIndex struct {
	Amount  int
	Goal    int
	Expense int
	Date    int
}

var (
	amountKeys  = []string{"montant"}
	goalKeys    = []string{"objectif"}
	expenseKeys = []string{"dépense"}
	dateKeys    = []string{"date", "mise"}
)

// ResolveHeaders locates the amount, goal, expense and date columns by
// case-insensitive substring match on the header row. The first matching
// column wins. It must be called on every fetch since columns move when the
// sheet is edited.
func ResolveHeaders(headers []string) HeaderIndex {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(h)
	}
	return HeaderIndex{
		Amount:  findColumn(lower, amountKeys, DefaultAmountColumn),
		Goal:    findColumn(lower, goalKeys, DefaultGoalColumn),
		Expense: findColumn(lower, expenseKeys, DefaultExpenseColumn),
		Date:    findColumn(lower, dateKeys, NoColumn),
	}
}

func findColumn(headers []string, keys []string, fallback int) int {
	for i, h := range headers {
		for _, k := range keys {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return fallback
}

// safeGet returns row[idx] or "" when idx is out of range.
func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
