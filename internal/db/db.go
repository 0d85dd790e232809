// Package db opens the dispatch history database and brings its schema up to
// date from the embedded migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mtpick/timepicker/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Applied per connection through the DSN, so every pooled connection gets them.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

var openConn = sql.Open

// interruptedOutput is stored on dispatches whose program outlived the agent.
const interruptedOutput = "interrupted by restart"

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at dbPath, applies pending
// migrations and closes out dispatches a previous run left running.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	return open(context.Background(), dbPath, migrationsFS, logger)
}

func open(ctx context.Context, dbPath string, migrations fs.FS, logger *slog.Logger) (_ *DB, err error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := openConn("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err = conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := &DB{conn: conn, logger: logging.WithComponent(logger, "db")}
	if err = d.migrate(ctx, migrations); err != nil {
		return nil, err
	}

	n, ierr := d.closeInterrupted(ctx, time.Now())
	switch {
	case ierr != nil:
		d.logger.Warn("failed to close out interrupted dispatches", "error", ierr)
	case n > 0:
		d.logger.Info("closed out interrupted dispatches", "count", n)
	}
	return d, nil
}

func dsn(dbPath string) string {
	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = "_pragma=" + p
	}
	return dbPath + "?" + strings.Join(q, "&")
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies every migrations/*.sql file not yet recorded, in name
// order, each in its own transaction together with its bookkeeping row.
func (d *DB) migrate(ctx context.Context, migrations fs.FS) error {
	if _, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := d.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		name := path.Base(file)
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(migrations, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := d.apply(ctx, name, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (d *DB) apply(ctx context.Context, name, body string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name, applied_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// closeInterrupted fails dispatches still marked running: the process that
// would have recorded their outcome is gone. Timestamps use the same format
// as the history repository.
func (d *DB) closeInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE dispatches SET status = 'failed', output = ?, finished_at = ?
		WHERE status = 'running'`,
		interruptedOutput, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
