package picker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/playback"
	"github.com/mtpick/timepicker/internal/process"
)

type scriptMessage struct {
	target string
	args   []string
}

type fakeHost struct {
	mu sync.Mutex

	pos      float64
	media    string
	duration float64

	overlays   []string
	geometries int
	removed    int
	notices    []string
	keepOpen   int
	bound      map[string]string
	loaded     []string
	messages   []scriptMessage
	messageErr error
	loadErr    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		media:    "/videos/a.mkv",
		duration: 100,
		bound:    make(map[string]string),
	}
}

func (h *fakeHost) UpdateOverlay(_ context.Context, data string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overlays = append(h.overlays, data)
	return nil
}

func (h *fakeHost) RemoveOverlay(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed++
	return nil
}

func (h *fakeHost) TimePos(context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos, nil
}

func (h *fakeHost) setPos(t float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = t
}

func (h *fakeHost) Geometry(context.Context) (playback.Geometry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.geometries++
	return playback.Geometry{Duration: h.duration, Position: h.pos, Aspect: 16.0 / 9}, nil
}

func (h *fakeHost) MediaPath(context.Context) (string, error) {
	return h.media, nil
}

func (h *fakeHost) ExpandPath(_ context.Context, path string) (string, error) {
	return strings.Replace(path, "~~/", "/home/u/.config/mpv/", 1), nil
}

func (h *fakeHost) KeepOpen(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keepOpen++
	return nil
}

func (h *fakeHost) ShowText(_ context.Context, text string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, text)
	return nil
}

func (h *fakeHost) BindMessage(_ context.Context, key, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound[key] = message
	return nil
}

func (h *fakeHost) LoadScript(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadErr != nil {
		return h.loadErr
	}
	h.loaded = append(h.loaded, path)
	return nil
}

func (h *fakeHost) ScriptMessageTo(_ context.Context, target string, args ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.messageErr != nil {
		return h.messageErr
	}
	h.messages = append(h.messages, scriptMessage{target: target, args: args})
	return nil
}

func (h *fakeHost) counts() (geometries, overlays int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.geometries, len(h.overlays)
}

func (h *fakeHost) lastNotice() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.notices) == 0 {
		return ""
	}
	return h.notices[len(h.notices)-1]
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	result process.Result
	gate   chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, argv []string) process.Result {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), argv...))
	gate := r.gate
	res := r.result
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return res
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeHistory struct {
	mu   sync.Mutex
	rows map[string]*history.Dispatch
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rows: make(map[string]*history.Dispatch)}
}

func (f *fakeHistory) Create(_ context.Context, d *history.Dispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeHistory) Finish(_ context.Context, id, status, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return errors.New("not found")
	}
	now := time.Now()
	d.Status = status
	d.Output = output
	d.FinishedAt = &now
	return nil
}

func (f *fakeHistory) Get(_ context.Context, id string) (*history.Dispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeHistory) List(context.Context, int) ([]*history.Dispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*history.Dispatch
	for _, d := range f.rows {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	snapshots [][]float64
}

func (o *recordingObserver) MarksChanged(times []float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, times)
}
