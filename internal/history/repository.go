// Package history records every dispatch of the mark set to an external
// consumer. Rows are an audit trail; marks are never loaded back from them.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindProgram = "program"
	KindScript  = "script"

	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSent      = "sent"
)

type Dispatch struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	MediaPath  string     `json:"media_path,omitempty"`
	Marks      []float64  `json:"marks"`
	Flags      []string   `json:"flags"`
	Status     string     `json:"status"`
	Output     string     `json:"output,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, d *Dispatch) error
	Finish(ctx context.Context, id, status, output string) error
	Get(ctx context.Context, id string) (*Dispatch, error)
	List(ctx context.Context, limit int) ([]*Dispatch, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, d *Dispatch) error {
	marks, err := json.Marshal(nonNilMarks(d.Marks))
	if err != nil {
		return fmt.Errorf("encode marks: %w", err)
	}
	flags, err := json.Marshal(nonNilFlags(d.Flags))
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, kind, target, media_path, marks, flags, status, output, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Kind, d.Target, nullString(d.MediaPath), string(marks), string(flags), d.Status,
		nullString(d.Output), d.CreatedAt.UTC().Format(time.RFC3339Nano), nullTime(d.FinishedAt))
	return err
}

func (r *SQLiteRepository) Finish(ctx context.Context, id, status, output string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatches SET status = ?, output = ?, finished_at = ? WHERE id = ?
	`, status, nullString(output), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dispatch %s not found", id)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Dispatch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, kind, target, media_path, marks, flags, status, output, created_at, finished_at
		FROM dispatches WHERE id = ?
	`, id)

	d, err := scanDispatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// List returns the most recent dispatches first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Dispatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, target, media_path, marks, flags, status, output, created_at, finished_at
		FROM dispatches ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row scanner) (*Dispatch, error) {
	var d Dispatch
	var mediaPath, output, finishedAt sql.NullString
	var marks, flags, createdAt string

	err := row.Scan(&d.ID, &d.Kind, &d.Target, &mediaPath, &marks, &flags, &d.Status, &output, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	d.MediaPath = mediaPath.String
	d.Output = output.String
	if err := json.Unmarshal([]byte(marks), &d.Marks); err != nil {
		return nil, fmt.Errorf("decode marks for %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(flags), &d.Flags); err != nil {
		return nil, fmt.Errorf("decode flags for %s: %w", d.ID, err)
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if finishedAt.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err == nil {
			d.FinishedAt = &ft
		}
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nonNilMarks(m []float64) []float64 {
	if m == nil {
		return []float64{}
	}
	return m
}

func nonNilFlags(f []string) []string {
	if f == nil {
		return []string{}
	}
	return f
}
