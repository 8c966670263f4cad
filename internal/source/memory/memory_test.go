package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fundboard/internal/csvparse"
)

func TestStore_ReadRows(t *testing.T) {
	s := New("Nom;Montant\nA;\"1 234,56\"\n")
	rows, err := s.ReadRows(context.Background())
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "1 234,56" {
		t.Fatalf("rows = %q", rows)
	}
	if s.Reads() != 1 {
		t.Errorf("Reads() = %d, want 1", s.Reads())
	}
}

func TestStore_Empty(t *testing.T) {
	_, err := New("").ReadRows(context.Background())
	if !errors.Is(err, csvparse.ErrEmptyPayload) {
		t.Fatalf("error = %v, want ErrEmptyPayload", err)
	}
}

func TestStore_SetRowsRoundTrip(t *testing.T) {
	want := []csvparse.Row{
		{"Nom", "Montant", "Objectif"},
		{"A; B", "1 234,56 $", "50 000"},
	}
	s := New("x")
	s.SetRows(want)

	got, err := s.ReadRows(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("cell [%d][%d] = %q, want %q", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestStore_FileIsReRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.csv")
	if err := os.WriteFile(path, []byte("Montant\n10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFromFile(path)

	rows, err := s.ReadRows(context.Background())
	if err != nil || rows[1][0] != "10" {
		t.Fatalf("first read = %q, %v", rows, err)
	}

	if err := os.WriteFile(path, []byte("Montant\n20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err = s.ReadRows(context.Background())
	if err != nil || rows[1][0] != "20" {
		t.Fatalf("second read = %q, %v", rows, err)
	}
}

func TestStore_MissingFile(t *testing.T) {
	s := NewFromFile(filepath.Join(t.TempDir(), "absent.csv"))
	if _, err := s.ReadRows(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("a\n").ReadRows(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
