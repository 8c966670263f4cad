// Package source defines where spreadsheet rows come from.
package source

import (
	"context"

	"fundboard/internal/csvparse"
)

// RowSource yields the current spreadsheet content as parsed rows, header
// first. An empty sheet is reported as csvparse.ErrEmptyPayload.
type RowSource interface {
	ReadRows(ctx context.Context) ([]csvparse.Row, error)
	Name() string
}
