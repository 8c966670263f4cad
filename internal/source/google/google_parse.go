package google

import (
	"fmt"
	"strings"

	"fundboard/internal/csvparse"
)

// sheetRange quotes the sheet name for A1 notation. An empty name reads the
// first sheet.
func sheetRange(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "A:Z"
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'!A:Z"
}

// valuesToRows converts a values matrix into rows with the same field
// cleanup as the CSV parser. The API trims trailing empty cells and returns
// blank rows as []; every row is padded to the widest one so the result
// matches what the CSV export of the same range tokenizes to. Blank rows
// inside the range are kept, except in a single-column sheet where the
// export writes them as empty lines.
func valuesToRows(values [][]interface{}) []csvparse.Row {
	width := 0
	for _, raw := range values {
		width = max(width, len(raw))
	}
	if width == 0 {
		return nil
	}

	rows := make([]csvparse.Row, 0, len(values))
	for _, raw := range values {
		row := make(csvparse.Row, width)
		blank := true
		for i, cell := range raw {
			if cell == nil {
				continue
			}
			row[i] = csvparse.CleanField(fmt.Sprint(cell))
			if row[i] != "" {
				blank = false
			}
		}
		if blank && width == 1 {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return rows
}
