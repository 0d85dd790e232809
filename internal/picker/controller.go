package picker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/logging"
	"github.com/mtpick/timepicker/internal/marks"
	"github.com/mtpick/timepicker/internal/overlay"
	"github.com/mtpick/timepicker/internal/process"
)

// ErrStopped is returned by Do once the controller loop has exited.
var ErrStopped = errors.New("controller stopped")

const (
	noticeDuration = 2 * time.Second
	resultDuration = 3 * time.Second
)

type Config struct {
	Host   Host
	Runner process.Runner

	// History and Observer are optional.
	History  history.Repository
	Observer Observer

	Logger         *slog.Logger
	RenderInterval time.Duration
	Clock          func() time.Time
}

// Controller owns the mark store, the overlay and every dispatch. Its methods
// that take a context must only be called from the loop, either while
// handling an event or from a closure passed to Do.
type Controller struct {
	host     Host
	runner   process.Runner
	history  history.Repository
	observer Observer
	logger   *slog.Logger

	store    *marks.Store
	surface  *overlay.Surface
	renderer *overlay.Renderer

	// resolved script path -> script name, loaded at most once each
	scripts map[string]string

	calls chan func(context.Context)
	done  chan struct{}
	once  sync.Once
	runs  sync.WaitGroup
	newID func() string
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var opts []overlay.Option
	if cfg.RenderInterval > 0 {
		opts = append(opts, overlay.WithInterval(cfg.RenderInterval))
	}
	if cfg.Clock != nil {
		opts = append(opts, overlay.WithClock(cfg.Clock))
	}

	surface := overlay.NewSurface(cfg.Host)
	return &Controller{
		host:     cfg.Host,
		runner:   cfg.Runner,
		history:  cfg.History,
		observer: cfg.Observer,
		logger:   logging.WithComponent(logger, "picker"),
		store:    marks.NewStore(),
		surface:  surface,
		renderer: overlay.NewRenderer(surface, opts...),
		scripts:  make(map[string]string),
		calls:    make(chan func(context.Context)),
		done:     make(chan struct{}),
		newID:    uuid.NewString,
	}
}

// Bind registers the gesture keys with the host.
func (c *Controller) Bind(ctx context.Context, b Bindings) error {
	var errs []error
	for _, kb := range []struct{ key, msg string }{
		{b.Pick, MsgPick},
		{b.Remove, MsgRemove},
		{b.Clear, MsgClear},
	} {
		if kb.key == "" {
			continue
		}
		if err := c.host.BindMessage(ctx, kb.key, kb.msg); err != nil {
			errs = append(errs, fmt.Errorf("bind %s to %s: %w", kb.key, kb.msg, err))
			continue
		}
		c.logger.Debug("key bound", "key", kb.key, "message", kb.msg)
	}
	return errors.Join(errs...)
}

// Run processes host events and posted calls until ctx is cancelled, the
// events channel closes or the host reports shutdown. The overlay is removed
// on the way out.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	defer c.once.Do(func() { close(c.done) })
	defer c.teardown(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == EventShutdown {
				c.logger.Info("host shutting down")
				return nil
			}
			c.HandleEvent(ctx, ev)
		case fn := <-c.calls:
			fn(ctx)
		}
	}
}

func (c *Controller) teardown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := c.surface.Destroy(ctx); err != nil {
		c.logger.Debug("overlay not removed", "error", err)
	}
	c.logger.Debug("overlay torn down", "pushes", c.surface.Pushes())
}

// Do runs fn on the controller loop and returns its error.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	call := func(loopCtx context.Context) { result <- fn(loopCtx) }

	select {
	case c.calls <- call:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the loop without waiting for it to run. It reports false
// if the loop has already exited.
func (c *Controller) post(fn func(context.Context)) bool {
	select {
	case c.calls <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Wait blocks until every launched program has finished and its outcome has
// been handled, or ctx is done. After Run has returned, outcomes are still
// written to the history.
func (c *Controller) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		c.runs.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventMessage:
		c.handleMessage(ctx, ev.Args)
	case EventTimeChanged:
		c.render(ctx, true)
	case EventGeometryChanged:
		c.render(ctx, false)
	case EventFileLoaded:
		c.logger.Info("new file loaded, clearing time points")
		c.ClearMarks(ctx)
	}
}

func (c *Controller) handleMessage(ctx context.Context, args []string) {
	if len(args) == 0 {
		return
	}

	var err error
	switch args[0] {
	case MsgPick:
		err = c.Pick(ctx)
	case MsgRemove:
		err = c.removeAtCursor(ctx)
	case MsgClear:
		c.ClearMarks(ctx)
	case MsgRun, MsgRunScript:
		if len(args) < 2 {
			c.logger.Warn("dispatch request without target", "message", args[0])
			return
		}
		if args[0] == MsgRun {
			_, err = c.RunProgram(ctx, args[1], args[2:])
		} else {
			_, err = c.RunScript(ctx, args[1], args[2:])
		}
	default:
		c.logger.Debug("ignoring message", "message", args[0])
		return
	}

	if err != nil {
		c.logger.Info("request not applied", "message", args[0], "error", err)
	}
}

// Pick marks the current playback position.
func (c *Controller) Pick(ctx context.Context) error {
	t, err := c.host.TimePos(ctx)
	if err != nil {
		return fmt.Errorf("query time-pos: %w", err)
	}
	return c.AddMark(ctx, t)
}

func (c *Controller) AddMark(ctx context.Context, t float64) error {
	if err := c.store.Add(t); err != nil {
		c.notice(ctx, err.Error(), noticeDuration)
		return err
	}
	if c.store.Len() == 1 {
		if err := c.host.KeepOpen(ctx); err != nil {
			c.logger.Warn("failed to set keep-open", "error", err)
		}
	}
	c.logger.Debug("time point added", "time", t, "count", c.store.Len())
	c.changed(ctx)
	return nil
}

func (c *Controller) removeAtCursor(ctx context.Context) error {
	if c.store.Len() == 0 {
		c.notice(ctx, marks.ErrEmptyStore.Error(), noticeDuration)
		return marks.ErrEmptyStore
	}
	t, err := c.host.TimePos(ctx)
	if err != nil {
		return fmt.Errorf("query time-pos: %w", err)
	}
	_, err = c.RemoveClosest(ctx, t)
	return err
}

// RemoveClosest removes the mark nearest to t and returns it.
func (c *Controller) RemoveClosest(ctx context.Context, t float64) (float64, error) {
	removed, err := c.store.RemoveClosest(t)
	if err != nil {
		c.notice(ctx, err.Error(), noticeDuration)
		return 0, err
	}
	c.logger.Debug("time point removed", "time", removed, "count", c.store.Len())
	c.changed(ctx)
	return removed, nil
}

func (c *Controller) ClearMarks(ctx context.Context) {
	c.store.Clear()
	c.changed(ctx)
}

// Marks returns the marks in ascending order.
func (c *Controller) Marks() []float64 {
	return c.store.Times()
}

func (c *Controller) changed(ctx context.Context) {
	c.render(ctx, false)
	if c.observer != nil {
		c.observer.MarksChanged(c.store.Times())
	}
}

// render queries the host only for frames the renderer will accept. Time
// ticks with no marks and an already blank overlay have nothing to draw.
func (c *Controller) render(ctx context.Context, rateLimited bool) {
	if rateLimited && (!c.renderer.Due(true) || c.store.Len() == 0 && c.surface.Blank()) {
		return
	}
	geo, err := c.host.Geometry(ctx)
	if err != nil {
		// unknown duration or size still renders, with every mark at x=0
		c.logger.Debug("incomplete geometry", "error", err)
	}
	if _, err := c.renderer.Render(ctx, c.store, geo, rateLimited); err != nil {
		c.logger.Warn("overlay update failed", "error", err)
	}
}

func (c *Controller) notice(ctx context.Context, text string, d time.Duration) {
	if err := c.host.ShowText(ctx, text, d); err != nil {
		c.logger.Warn("failed to show notice", "text", text, "error", err)
	}
}
