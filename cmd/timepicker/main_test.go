package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mtpick/timepicker/internal/config"
	"github.com/mtpick/timepicker/internal/db"
	"github.com/mtpick/timepicker/internal/history"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "timepicker "+config.Version) {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	out, err := execute(t, "history", "--data-dir", t.TempDir())
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if strings.TrimSpace(out) != "no dispatches yet" {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryCommand_ListsDispatches(t *testing.T) {
	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, config.DBFilename), nil)
	if err != nil {
		t.Fatal(err)
	}
	repo := history.NewRepository(database.Conn())
	repo.Create(context.Background(), &history.Dispatch{
		ID:        "d-1",
		Kind:      history.KindProgram,
		Target:    "/usr/bin/cutter",
		Marks:     []float64{90, 100},
		Flags:     []string{"+clear"},
		Status:    history.StatusSucceeded,
		CreatedAt: time.Now(),
	})
	database.Close()

	out, err := execute(t, "history", "--data-dir", dir, "-n", "5")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	for _, want := range []string{"/usr/bin/cutter", "succeeded", "1m30s 1m40s", "+clear"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommand_RejectsBadPort(t *testing.T) {
	_, err := execute(t, "history", "--data-dir", t.TempDir(), "--port", "70000")
	if err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestRunCommand_MissingSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "absent.sock")
	_, err := execute(t, "run", "--socket", sock, "--data-dir", t.TempDir())
	if err == nil {
		t.Error("run should fail when mpv is not listening")
	}
}
