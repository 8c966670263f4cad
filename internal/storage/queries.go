package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type RefreshHistory struct {
	ID            int64
	Snapshot      string
	Total         string
	PreviousTotal string
	Goal          string
	Expenses      string
	Celebrate     int64
	ChangedAt     string
}

const getValue = `-- name: GetValue :one
SELECT value FROM kv WHERE key = ?
`

func (q *Queries) GetValue(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getValue, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const upsertValue = `-- name: UpsertValue :exec
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    updated_at = excluded.updated_at
`

type UpsertValueParams struct {
	Key   string
	Value string
}

func (q *Queries) UpsertValue(ctx context.Context, arg UpsertValueParams) error {
	_, err := q.db.ExecContext(ctx, upsertValue, arg.Key, arg.Value)
	return err
}

const deleteValue = `-- name: DeleteValue :exec
DELETE FROM kv WHERE key = ?
`

func (q *Queries) DeleteValue(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteValue, key)
	return err
}

const insertHistory = `-- name: InsertHistory :one
INSERT INTO refresh_history (snapshot, total, previous_total, goal, expenses, celebrate, changed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id, snapshot, total, previous_total, goal, expenses, celebrate, changed_at
`

type InsertHistoryParams struct {
	Snapshot      string
	Total         string
	PreviousTotal string
	Goal          string
	Expenses      string
	Celebrate     int64
	ChangedAt     string
}

func (q *Queries) InsertHistory(ctx context.Context, arg InsertHistoryParams) (RefreshHistory, error) {
	row := q.db.QueryRowContext(ctx, insertHistory,
		arg.Snapshot,
		arg.Total,
		arg.PreviousTotal,
		arg.Goal,
		arg.Expenses,
		arg.Celebrate,
		arg.ChangedAt,
	)
	var i RefreshHistory
	err := row.Scan(
		&i.ID,
		&i.Snapshot,
		&i.Total,
		&i.PreviousTotal,
		&i.Goal,
		&i.Expenses,
		&i.Celebrate,
		&i.ChangedAt,
	)
	return i, err
}

const listHistory = `-- name: ListHistory :many
SELECT id, snapshot, total, previous_total, goal, expenses, celebrate, changed_at
FROM refresh_history
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListHistory(ctx context.Context, limit int64) ([]RefreshHistory, error) {
	rows, err := q.db.QueryContext(ctx, listHistory, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RefreshHistory
	for rows.Next() {
		var i RefreshHistory
		if err := rows.Scan(
			&i.ID,
			&i.Snapshot,
			&i.Total,
			&i.PreviousTotal,
			&i.Goal,
			&i.Expenses,
			&i.Celebrate,
			&i.ChangedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countHistory = `-- name: CountHistory :one
SELECT COUNT(*) FROM refresh_history
`

func (q *Queries) CountHistory(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countHistory)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteHistory = `-- name: DeleteHistory :exec
DELETE FROM refresh_history
`

func (q *Queries) DeleteHistory(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteHistory)
	return err
}
