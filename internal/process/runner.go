// Package process runs external programs with captured output and exit
// status, the way the picker hands marks to encoders and scripts.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxOutputBytes = 64 * 1024 // tail of stdout/stderr kept for reporting
)

// Result is the structured outcome of executing a subprocess.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Err      error         `json:"-"` // set when the process could not be started or was killed
	Duration time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess started and exited cleanly.
func (r Result) IsSuccess() bool { return r.Err == nil && r.ExitCode == 0 }

// Launched reports whether the process ran to an exit status of its own.
func (r Result) Launched() bool { return r.Err == nil }

// Runner executes argv[0] with argv[1:].
type Runner interface {
	Run(ctx context.Context, argv []string) Result
}

// ExecRunner is the production implementation of Runner.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run blocks until the process exits. It never returns a Go error; launch
// failures are carried in Result.Err.
func (r *ExecRunner) Run(ctx context.Context, argv []string) Result {
	start := time.Now()
	if len(argv) == 0 {
		return Result{ExitCode: -1, Err: errors.New("empty command line")}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = io.Writer(&limitedWriter{w: &stdoutBuf, limit: maxOutputBytes})
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxOutputBytes})

	r.logger.Info("executing command", "args", argv)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: elapsed,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// not started, or terminated by a signal
			result.ExitCode = -1
			result.Err = err
		}
	}

	if result.IsSuccess() {
		r.logger.Info("command succeeded", "duration_ms", elapsed.Milliseconds())
	} else {
		r.logger.Warn("command failed",
			"exit_code", result.ExitCode,
			"error", errString(result.Err),
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.Stderr, 512),
		)
	}

	return result
}

// Describe renders a failed result as a single line for notices and logs.
func Describe(r Result) string {
	if r.Err != nil {
		return fmt.Sprintf("subprocess failed: %v", r.Err)
	}
	return fmt.Sprintf("status code: %d, stderr: %s", r.ExitCode, r.Stderr)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
