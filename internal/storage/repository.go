package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fundboard/internal/change"

	_ "modernc.org/sqlite"
)

// Persisted keys.
const (
	KeySnapshot   = "lastDataSnapshot"
	KeyChangeTime = "lastChangeTime"
	KeyTotal      = "lastTotal"
	KeyTheme      = "theme"

	// KeyLegacyContent held the raw CSV of an older change detector. It is
	// never read and is removed on reset.
	KeyLegacyContent = "lastCsvContent"
)

const (
	ThemeDay     = "day"
	ThemeNight   = "night"
	DefaultTheme = ThemeNight
)

var (
	ErrNotFound     = errors.New("key not found")
	ErrInvalidTheme = errors.New("invalid theme")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get returns the raw value stored under key, or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	v, err := r.queries.GetValue(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	if err := r.queries.UpsertValue(ctx, UpsertValueParams{Key: key, Value: value}); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LoadState reads the change-detection state. Missing keys yield zero values;
// malformed ones are logged and treated as missing.
func (r *SQLiteRepository) LoadState(ctx context.Context) (change.State, error) {
	var st change.State

	snap, err := r.Get(ctx, KeySnapshot)
	switch {
	case err == nil:
		st.LastSnapshot = snap
	case !errors.Is(err, ErrNotFound):
		return st, fmt.Errorf("load state: %w", err)
	}

	ts, err := r.Get(ctx, KeyChangeTime)
	switch {
	case err == nil:
		t, perr := time.Parse(time.RFC3339Nano, ts)
		if perr != nil {
			slog.WarnContext(ctx, "Ignoring malformed change timestamp", "value", ts, "error", perr)
			break
		}
		st.LastChange = t
		st.HasChange = true
	case !errors.Is(err, ErrNotFound):
		return st, fmt.Errorf("load state: %w", err)
	}

	total, err := r.Get(ctx, KeyTotal)
	switch {
	case err == nil:
		d, perr := decimal.NewFromString(total)
		if perr != nil {
			slog.WarnContext(ctx, "Ignoring malformed last total", "value", total, "error", perr)
			break
		}
		st.LastTotal = d
	case !errors.Is(err, ErrNotFound):
		return st, fmt.Errorf("load state: %w", err)
	}

	return st, nil
}

// SaveState writes st in one transaction.
func (r *SQLiteRepository) SaveState(ctx context.Context, st change.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	values := []UpsertValueParams{
		{Key: KeySnapshot, Value: st.LastSnapshot},
		{Key: KeyTotal, Value: st.LastTotal.String()},
	}
	if st.HasChange {
		values = append(values, UpsertValueParams{
			Key:   KeyChangeTime,
			Value: st.LastChange.UTC().Format(time.RFC3339Nano),
		})
	}
	for _, v := range values {
		if err := q.UpsertValue(ctx, v); err != nil {
			return fmt.Errorf("save %s: %w", v.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// ResetState forgets the change-detection state so the next refresh adopts a
// fresh baseline. The theme preference is kept.
func (r *SQLiteRepository) ResetState(ctx context.Context) error {
	for _, key := range []string{KeySnapshot, KeyChangeTime, KeyTotal, KeyLegacyContent} {
		if err := r.queries.DeleteValue(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	slog.InfoContext(ctx, "Change detection state reset")
	return nil
}

// RecordChange appends rec to the change history and returns it with its ID.
func (r *SQLiteRepository) RecordChange(ctx context.Context, rec change.Record) (change.Record, error) {
	var celebrate int64
	if rec.Celebrate {
		celebrate = 1
	}
	row, err := r.queries.InsertHistory(ctx, InsertHistoryParams{
		Snapshot:      rec.Snapshot,
		Total:         rec.Total.String(),
		PreviousTotal: rec.PreviousTotal.String(),
		Goal:          rec.Goal.String(),
		Expenses:      rec.Expenses,
		Celebrate:     celebrate,
		ChangedAt:     rec.ChangedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return rec, fmt.Errorf("insert history: %w", err)
	}
	rec.ID = row.ID
	return rec, nil
}

// ListHistory returns up to limit changes, newest first.
func (r *SQLiteRepository) ListHistory(ctx context.Context, limit int) ([]change.Record, error) {
	rows, err := r.queries.ListHistory(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	records := make([]change.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode history %d: %w", row.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *SQLiteRepository) CountHistory(ctx context.Context) (int64, error) {
	n, err := r.queries.CountHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ClearHistory(ctx context.Context) error {
	if err := r.queries.DeleteHistory(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Theme returns the stored theme preference, DefaultTheme when unset.
func (r *SQLiteRepository) Theme(ctx context.Context) (string, error) {
	v, err := r.Get(ctx, KeyTheme)
	if errors.Is(err, ErrNotFound) || (err == nil && !ValidTheme(v)) {
		return DefaultTheme, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *SQLiteRepository) SetTheme(ctx context.Context, theme string) error {
	if !ValidTheme(theme) {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return r.Set(ctx, KeyTheme, theme)
}

func ValidTheme(theme string) bool {
	return theme == ThemeDay || theme == ThemeNight
}

func recordFromRow(row RefreshHistory) (change.Record, error) {
	rec := change.Record{
		ID:        row.ID,
		Snapshot:  row.Snapshot,
		Expenses:  row.Expenses,
		Celebrate: row.Celebrate != 0,
	}
	var err error
	if rec.Total, err = decimal.NewFromString(row.Total); err != nil {
		return rec, fmt.Errorf("total: %w", err)
	}
	if rec.PreviousTotal, err = decimal.NewFromString(row.PreviousTotal); err != nil {
		return rec, fmt.Errorf("previous total: %w", err)
	}
	if rec.Goal, err = decimal.NewFromString(row.Goal); err != nil {
		return rec, fmt.Errorf("goal: %w", err)
	}
	if rec.ChangedAt, err = time.Parse(time.RFC3339Nano, row.ChangedAt); err != nil {
		return rec, fmt.Errorf("changed_at: %w", err)
	}
	return rec, nil
}
