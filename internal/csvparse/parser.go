// Package csvparse tokenizes spreadsheet CSV exports.
//
// The tokenizer is deliberately lenient: the delimiter is chosen per line
// (semicolon when the line contains one, comma otherwise), a double quote
// toggles quoted mode and is itself dropped, and every field is trimmed.
// Exports from Google Sheets in French locales switch between both
// delimiters, which is why encoding/csv is not used here.
package csvparse

import (
	"errors"
	"strings"
)

// Row is one spreadsheet line split into fields.
type Row []string

// ErrEmptyPayload is returned by ParseStrict when the payload has no
// non-blank lines.
var ErrEmptyPayload = errors.New("empty csv payload")

// Delimiter returns the separator used for line.
func Delimiter(line string) byte {
	if strings.IndexByte(line, ';') >= 0 {
		return ';'
	}
	return ','
}

// ParseLine splits a single line into trimmed fields.
func ParseLine(line string) Row {
	sep := Delimiter(line)
	var (
		out      Row
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == sep && !inQuotes:
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	out = append(out, strings.TrimSpace(current.String()))

	for i, v := range out {
		out[i] = CleanField(v)
	}
	return out
}

// CleanField trims v, strips one layer of surrounding double quotes and
// trims again.
func CleanField(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	return strings.TrimSpace(v)
}

// SplitLines splits text on "\n" or "\r\n" and drops blank lines.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Parse tokenizes a whole payload. The first row is the header row when the
// payload comes from a sheet export. An empty payload yields nil.
func Parse(text string) []Row {
	lines := SplitLines(text)
	if len(lines) == 0 {
		return nil
	}
	rows := make([]Row, len(lines))
	for i, l := range lines {
		rows[i] = ParseLine(l)
	}
	return rows
}

// ParseStrict is Parse but reports ErrEmptyPayload instead of returning no
// rows.
func ParseStrict(text string) ([]Row, error) {
	rows := Parse(text)
	if len(rows) == 0 {
		return nil, ErrEmptyPayload
	}
	return rows, nil
}

// FormatLine serializes a row so that ParseLine returns the same trimmed
// fields. Semicolon is used when any field contains one; fields containing
// the chosen delimiter are quoted. Double quotes inside fields are dropped
// since the tokenizer has no escape for them.
func FormatLine(row Row) string {
	sep := ","
	for _, f := range row {
		if strings.Contains(f, ";") {
			sep = ";"
			break
		}
	}
	parts := make([]string, len(row))
	for i, f := range row {
		f = strings.ReplaceAll(f, `"`, "")
		if strings.Contains(f, sep) {
			f = `"` + f + `"`
		}
		parts[i] = f
	}
	return strings.Join(parts, sep)
}

// Format serializes rows one per line, terminated with "\r\n" like sheet
// exports.
func Format(rows []Row) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(FormatLine(r))
		b.WriteString("\r\n")
	}
	return b.String()
}
