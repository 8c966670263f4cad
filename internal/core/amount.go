// Package core derives the fundraising summary from spreadsheet rows.
//
// This file contains the amount normalization applied to every numeric cell.
// Cells are typed by hand in the sheet, so they mix currency symbols,
// thousands separators and both decimal separators.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CleanAmount normalizes a free-text spreadsheet cell into a decimal.
//
// Every character other than ASCII digits, comma and period is removed, the
// first comma becomes a decimal point, and the longest leading number is
// parsed. Anything unparseable is zero. Thousands separators are not
// disambiguated: "1.234,56" parses as 1.234.
//
// Examples:
//
//	CleanAmount("1 234,56 $") -> 1234.56
//	CleanAmount("50 000")     -> 50000
//	CleanAmount("")           -> 0
//	CleanAmount("abc")        -> 0
func CleanAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	num := numericPrefix(strings.Replace(b.String(), ",", ".", 1))
	if num == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// numericPrefix returns the longest prefix of s shaped like digits with at
// most one decimal point, normalized so decimal.NewFromString accepts it.
// It returns "" when the prefix holds no digit.
func numericPrefix(s string) string {
	end, digits, dot := 0, 0, false
scan:
	for end < len(s) {
		switch c := s[end]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break scan
		}
		end++
	}
	if digits == 0 {
		return ""
	}
	p := strings.TrimSuffix(s[:end], ".")
	if strings.HasPrefix(p, ".") {
		p = "0" + p
	}
	return p
}
