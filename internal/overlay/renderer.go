package overlay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mtpick/timepicker/internal/marks"
	"github.com/mtpick/timepicker/internal/playback"
)

// DefaultInterval is the minimum gap between renders driven by continuous
// time updates.
const DefaultInterval = 100 * time.Millisecond

// Layout ratios, all relative to the logical width.
const (
	barRatio      = 1.0 / 200
	hairlineRatio = 1.0 / playback.BaseResolution
	markerScale   = 1.5 // marker height in bar heights
	cursorScale   = 1.5 // cursor size relative to a mark marker
	boxHairlines  = 4   // mark box width in hairlines
)

const (
	textX        = 8
	textFontSize = 18
	lineBreak    = `\N`
)

type rgba struct{ r, g, b, a uint8 }

var (
	colorBarBase   = rgba{255, 255, 255, 100}
	colorBarActive = rgba{255, 255, 255, 220}
	colorBarSingle = rgba{255, 255, 255, 150}
	colorBorder    = rgba{0, 0, 0, 255}
	colorMark      = rgba{255, 100, 100, 255}
	colorMarkInner = rgba{255, 255, 255, 255}
	colorCursor    = rgba{100, 200, 255, 255}
	colorClosest   = rgba{255, 220, 0, 255}
	colorText      = rgba{255, 255, 255, 255}
)

// Renderer compiles the mark store and the current playback geometry into a
// full overlay frame on every accepted call.
type Renderer struct {
	surface  *Surface
	interval time.Duration
	now      func() time.Time

	lastRender time.Time
}

type Option func(*Renderer)

// WithInterval sets the rate-limit threshold for high-frequency renders.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) { r.interval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

func NewRenderer(surface *Surface, opts ...Option) *Renderer {
	r := &Renderer{
		surface:  surface,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Due reports whether a render issued now would be accepted. It does not
// reserve the slot.
func (r *Renderer) Due(rateLimited bool) bool {
	return r.due(r.now(), rateLimited)
}

func (r *Renderer) due(now time.Time, rateLimited bool) bool {
	return !rateLimited || r.lastRender.IsZero() || now.Sub(r.lastRender) >= r.interval
}

// Render draws one frame. When rateLimited is set and the previous accepted
// render is more recent than the interval, the call is dropped and reports
// false.
func (r *Renderer) Render(ctx context.Context, store *marks.Store, geo playback.Geometry, rateLimited bool) (bool, error) {
	now := r.now()
	if !r.due(now, rateLimited) {
		return false, nil
	}
	r.lastRender = now

	if store.Len() == 0 {
		return true, r.surface.Clear(ctx)
	}

	times := store.Times()
	closest, _ := store.Closest(geo.Position)

	s := r.surface
	s.Start()

	width := geo.Width()
	barH := width * barRatio
	hairline := width * hairlineRatio
	markH := barH * markerScale

	r.drawBar(times, geo, width, barH)
	r.drawCursor(geo.Offset(geo.Position), hairline, markH)

	for _, t := range times {
		x := geo.Offset(t)
		r.drawMark(x, hairline, markH)
		if t == closest {
			side := hairline * 2
			s.setColor(colorClosest)
			s.Rect(x-side/2, markH*3/4-side/2, side, side)
		}
	}

	s.setColor(colorText)
	s.Raw(fmt.Sprintf(`{\an7\pos(%d,%s)\fs%d}`, textX, num(markH*cursorScale+barH*2), textFontSize) + Summary(times))

	return true, s.End(ctx)
}

func (r *Renderer) drawBar(times []float64, geo playback.Geometry, width, barH float64) {
	s := r.surface
	if len(times) < 2 {
		s.setColor(colorBarSingle)
		s.Rect(0, 0, width, barH)
		return
	}

	startX := math.Floor(geo.Offset(times[0]))
	endX := math.Ceil(geo.Offset(times[len(times)-1]))
	s.setColor(colorBarBase)
	s.Rect(0, 0, width, barH)
	s.setColor(colorBarActive)
	s.Rect(startX, 0, endX-startX, barH)
}

// drawCursor layers a border rectangle under a fill rectangle, both larger
// than a mark marker.
func (r *Renderer) drawCursor(x, hairline, markH float64) {
	s := r.surface
	w := hairline * boxHairlines * cursorScale
	h := markH * cursorScale
	border := hairline / 2

	s.setColor(colorBorder)
	s.Rect(x-w/2, 0, w, h)
	s.setColor(colorCursor)
	s.Rect(x-w/2+border, border, w-border*2, h-border*2)
}

// drawMark is a full-height hairline with a colored box on its lower half and
// a white box inset in that.
func (r *Renderer) drawMark(x, hairline, markH float64) {
	s := r.surface
	boxW := hairline * boxHairlines
	border := hairline / 2

	s.setColor(colorBorder)
	s.Rect(x-hairline/2, 0, hairline, markH)
	s.setColor(colorMark)
	s.Rect(x-boxW/2, markH/2, boxW, markH/2)
	s.setColor(colorMarkInner)
	s.Rect(x-boxW/2+border, markH/2+border, boxW-border*2, markH/2-border*2)
}

// Summary renders the text block: a count header and one line per mark with
// its time, the running total since the first mark and, from the third mark
// on, the gap to the previous one.
func Summary(times []float64) string {
	return strings.Join(SummaryLines(times), lineBreak)
}

// SummaryLines is Summary split into its lines.
func SummaryLines(times []float64) []string {
	lines := make([]string, 0, len(times)+1)
	lines = append(lines, countLine(len(times)))

	for i, t := range times {
		line := fmt.Sprintf("%d. %s", i+1, marks.FormatDuration(t))
		switch {
		case i >= 2:
			line += fmt.Sprintf(" (total %s, diff %s)", marks.FormatDuration(t-times[0]), marks.FormatDuration(t-times[i-1]))
		case i == 1:
			line += fmt.Sprintf(" (total %s)", marks.FormatDuration(t-times[0]))
		}
		lines = append(lines, line)
	}
	return lines
}

func countLine(n int) string {
	if n == 1 {
		return "1 time point"
	}
	return fmt.Sprintf("%d time points", n)
}

func (s *Surface) setColor(c rgba) {
	s.SetColor(c.r, c.g, c.b, c.a)
}
