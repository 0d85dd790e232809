package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/mtpick/timepicker/internal/history"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	d, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, dbPath
}

func TestNew_SchemaAndPragmas(t *testing.T) {
	d, _ := openTemp(t)
	defer d.Close()

	for _, table := range []string{"dispatches", "_migrations"} {
		var name string
		err := d.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		var got string
		if err := d.Conn().QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s error = %v", tt.pragma, err)
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestNew_MigrationsAppliedOnce(t *testing.T) {
	d, dbPath := openTemp(t)
	d.Close()

	d, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer d.Close()

	var count int
	if err := d.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("migration rows = %d, want 1", count)
	}
}

func TestOpen_AppliesMigrationsInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_b.sql": {Data: []byte(`ALTER TABLE a ADD COLUMN extra TEXT;`)},
		"migrations/001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER PRIMARY KEY);`)},
		"migrations/notes.txt": {Data: []byte(`ignored`)},
	}

	d, err := open(context.Background(), filepath.Join(t.TempDir(), "x.db"), fsys, nil)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	defer d.Close()

	if _, err := d.Conn().Exec(`INSERT INTO a (id, extra) VALUES (1, 'x')`); err != nil {
		t.Errorf("insert after migrations: %v", err)
	}
}

func TestOpen_FailedMigrationClosesConnection(t *testing.T) {
	var opened *sql.DB
	orig := openConn
	openConn = func(driver, dsn string) (*sql.DB, error) {
		conn, err := orig(driver, dsn)
		opened = conn
		return conn, err
	}
	t.Cleanup(func() { openConn = orig })

	fsys := fstest.MapFS{
		"migrations/001_ok.sql":  {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
		"migrations/002_bad.sql": {Data: []byte(`CREATE TABLE broken (`)},
	}

	_, err := open(context.Background(), filepath.Join(t.TempDir(), "x.db"), fsys, nil)
	if err == nil || !strings.Contains(err.Error(), "002_bad.sql") {
		t.Fatalf("open() error = %v, want failure naming 002_bad.sql", err)
	}
	if opened == nil {
		t.Fatal("connection was never opened")
	}
	if err := opened.Ping(); err == nil {
		t.Error("connection still usable after failed open, want it closed")
	}
}

func TestNew_ClosesOutInterruptedDispatches(t *testing.T) {
	d, dbPath := openTemp(t)
	ctx := context.Background()
	repo := history.NewRepository(d.Conn())

	if err := repo.Create(ctx, &history.Dispatch{
		ID:     "d-1",
		Kind:   history.KindProgram,
		Target: "/usr/bin/encode",
		Marks:  []float64{5, 12},
		Status: history.StatusRunning,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &history.Dispatch{
		ID:     "d-2",
		Kind:   history.KindScript,
		Target: "/scripts/clip.js",
		Marks:  []float64{1},
		Status: history.StatusSent,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	d.Close()

	d, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer d.Close()
	repo = history.NewRepository(d.Conn())

	got, err := repo.Get(ctx, "d-1")
	if err != nil || got == nil {
		t.Fatalf("Get(d-1) = %v, %v", got, err)
	}
	if got.Status != history.StatusFailed || got.Output != interruptedOutput {
		t.Errorf("d-1 = %s/%q, want failed/%q", got.Status, got.Output, interruptedOutput)
	}
	if got.FinishedAt == nil {
		t.Error("d-1 finished_at not readable by the history repository")
	}

	other, _ := repo.Get(ctx, "d-2")
	if other == nil || other.Status != history.StatusSent {
		t.Errorf("d-2 = %+v, want untouched", other)
	}
}
