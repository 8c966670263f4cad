// Package memory serves spreadsheet rows from memory or a local CSV file,
// for demos and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"fundboard/internal/csvparse"
	"fundboard/internal/source"
)

type Store struct {
	mu   sync.Mutex
	text string
	// path, when set, is re-read on every call so edits show up live.
	path  string
	reads int
}

var _ source.RowSource = (*Store)(nil)

func New(text string) *Store {
	return &Store{text: text}
}

func NewFromFile(path string) *Store {
	return &Store{path: path}
}

// NewFromRows serializes rows so they parse back to the same fields.
func NewFromRows(rows []csvparse.Row) *Store {
	return New(csvparse.Format(rows))
}

func (s *Store) Name() string { return "memory" }

// SetText replaces the served content. A file-backed store stops reading its
// file.
func (s *Store) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.path = ""
}

// SetRows is SetText for already split rows.
func (s *Store) SetRows(rows []csvparse.Row) {
	s.SetText(csvparse.Format(rows))
}

// Reads reports how many times ReadRows was called.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Store) ReadRows(ctx context.Context) ([]csvparse.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.reads++
	text, path := s.text, s.path
	s.mu.Unlock()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read csv file: %w", err)
		}
		text = string(b)
	}
	return csvparse.ParseStrict(text)
}
