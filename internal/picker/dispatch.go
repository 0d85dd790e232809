package picker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/logging"
	"github.com/mtpick/timepicker/internal/marks"
	"github.com/mtpick/timepicker/internal/process"
)

var (
	ErrProcessLaunchFailed  = errors.New("process launch failed")
	ErrProcessExitedNonZero = errors.New("process exited non-zero")
	ErrUnknownFlag          = errors.New("unknown flag")
)

// FlagClear empties the store once a dispatch has completed.
const FlagClear = "+clear"

// doneNotice replaces the notice of a program that succeeded silently.
const doneNotice = "done"

// RunProgram launches target with the media path and every mark as
// arguments. It returns as soon as the process is started; the outcome is
// reported on the loop, after which flags are applied. Marks added while the
// program runs are not part of its arguments.
func (c *Controller) RunProgram(ctx context.Context, target string, flags []string) (string, error) {
	if c.store.Len() == 0 {
		c.notice(ctx, marks.ErrEmptyStore.Error(), noticeDuration)
		return "", marks.ErrEmptyStore
	}

	program := c.expand(ctx, target)
	media := c.mediaPath(ctx)
	times := c.store.Times()

	argv := make([]string, 0, len(times)+2)
	argv = append(argv, program, media)
	for _, t := range times {
		argv = append(argv, marks.FormatTime(t))
	}

	d := &history.Dispatch{
		ID:        c.newID(),
		Kind:      history.KindProgram,
		Target:    program,
		MediaPath: media,
		Marks:     times,
		Flags:     flags,
		Status:    history.StatusRunning,
		CreatedAt: time.Now(),
	}
	c.record(ctx, d)

	logger := logging.WithDispatchID(c.logger, d.ID)
	logger.Info("launching program",
		"program", logging.SanitizePath(program),
		"marks", len(times),
	)

	runCtx := context.WithoutCancel(ctx)
	c.runs.Add(1)
	go func() {
		res := c.runner.Run(runCtx, argv)
		posted := c.post(func(loopCtx context.Context) {
			defer c.runs.Done()
			c.finishRun(loopCtx, logger, d, res)
		})
		if !posted {
			defer c.runs.Done()
			logger.Warn("program finished after shutdown", "exit_code", res.ExitCode)
			c.finish(runCtx, d.ID, statusOf(res), outputOf(res))
		}
	}()

	return d.ID, nil
}

func (c *Controller) finishRun(ctx context.Context, logger *slog.Logger, d *history.Dispatch, res process.Result) {
	if res.IsSuccess() {
		logger.Info("program finished", "stdout", res.Stdout, "duration_ms", res.Duration.Milliseconds())
		text := strings.TrimSpace(res.Stdout)
		if text == "" {
			text = doneNotice
		}
		c.notice(ctx, text, resultDuration)
	} else {
		kind := ErrProcessExitedNonZero
		if !res.Launched() {
			kind = ErrProcessLaunchFailed
		}
		msg := process.Describe(res)
		logger.Error("program failed", "error", fmt.Errorf("%w: %s", kind, msg))
		c.notice(ctx, "ERROR: "+msg, resultDuration)
	}

	c.finish(ctx, d.ID, statusOf(res), outputOf(res))
	c.logFlagErrors(logger, c.applyFlags(ctx, d.Flags))
}

// RunScript loads the script at path into the host, once per resolved path,
// and sends it the marks as a JSON array followed by the media path. Delivery
// is one-way; flags are applied right after the message is sent.
func (c *Controller) RunScript(ctx context.Context, path string, flags []string) (string, error) {
	if c.store.Len() == 0 {
		c.notice(ctx, marks.ErrEmptyStore.Error(), noticeDuration)
		return "", marks.ErrEmptyStore
	}

	resolved := c.expand(ctx, path)
	name, loaded := c.scripts[resolved]
	if !loaded {
		if err := c.host.LoadScript(ctx, resolved); err != nil {
			c.notice(ctx, "ERROR: failed to load "+resolved, resultDuration)
			return "", fmt.Errorf("load script %s: %w", logging.SanitizePath(resolved), err)
		}
		name = ScriptName(resolved)
		c.scripts[resolved] = name
		c.logger.Info("script loaded", "script", name)
	}

	times := c.store.Times()
	payload, err := json.Marshal(times)
	if err != nil {
		return "", fmt.Errorf("encode marks: %w", err)
	}
	media := c.mediaPath(ctx)

	now := time.Now()
	d := &history.Dispatch{
		ID:        c.newID(),
		Kind:      history.KindScript,
		Target:    resolved,
		MediaPath: media,
		Marks:     times,
		Flags:     flags,
		Status:    history.StatusSent,
		CreatedAt: now,
	}

	if err := c.host.ScriptMessageTo(ctx, name, name+":run", string(payload), media); err != nil {
		d.Status = history.StatusFailed
		d.Output = err.Error()
		d.FinishedAt = &now
		c.record(ctx, d)
		c.notice(ctx, "ERROR: "+err.Error(), resultDuration)
		return d.ID, fmt.Errorf("message script %s: %w", name, err)
	}
	d.FinishedAt = &now
	c.record(ctx, d)

	logger := logging.WithDispatchID(c.logger, d.ID)
	logger.Info("marks sent to script", "script", name, "marks", len(times))
	c.logFlagErrors(logger, c.applyFlags(ctx, flags))
	return d.ID, nil
}

// applyFlags processes flags in order. Unknown flags do not stop the rest.
func (c *Controller) applyFlags(ctx context.Context, flags []string) error {
	var errs []error
	for _, f := range flags {
		f = strings.TrimSpace(f)
		switch {
		case f == "":
		case strings.EqualFold(f, FlagClear):
			c.ClearMarks(ctx)
		default:
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownFlag, f))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) logFlagErrors(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			logger.Error("flag ignored", "error", e)
		}
		return
	}
	logger.Error("flag ignored", "error", err)
}

// ScriptName is the name the host registers a script under: its file name
// without extension.
func ScriptName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Controller) expand(ctx context.Context, path string) string {
	resolved, err := c.host.ExpandPath(ctx, path)
	if err != nil || resolved == "" {
		c.logger.Warn("path not expanded", "path", logging.SanitizePath(path), "error", err)
		return path
	}
	return resolved
}

func (c *Controller) mediaPath(ctx context.Context) string {
	p, err := c.host.MediaPath(ctx)
	if err != nil {
		c.logger.Warn("media path unavailable", "error", err)
	}
	return p
}

func (c *Controller) record(ctx context.Context, d *history.Dispatch) {
	if c.history == nil {
		return
	}
	if err := c.history.Create(ctx, d); err != nil {
		c.logger.Warn("failed to record dispatch", "dispatch_id", d.ID, "error", err)
	}
}

func (c *Controller) finish(ctx context.Context, id, status, output string) {
	if c.history == nil {
		return
	}
	if err := c.history.Finish(ctx, id, status, output); err != nil {
		c.logger.Warn("failed to update dispatch", "dispatch_id", id, "error", err)
	}
}

func statusOf(res process.Result) string {
	if res.IsSuccess() {
		return history.StatusSucceeded
	}
	return history.StatusFailed
}

func outputOf(res process.Result) string {
	if res.IsSuccess() {
		return res.Stdout
	}
	return process.Describe(res)
}
