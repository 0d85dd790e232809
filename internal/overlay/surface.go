// Package overlay draws the mark summary onto the player's OSD using ASS
// drawing markup.
package overlay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Backend is the host-side overlay the surface pushes its payload to.
type Backend interface {
	UpdateOverlay(ctx context.Context, data string) error
	RemoveOverlay(ctx context.Context) error
}

// Surface is a retained drawing target. A frame is built between Start and
// End; End only reaches the backend when the payload differs from the last
// one pushed.
type Surface struct {
	backend Backend

	color string
	buf   strings.Builder

	last      string
	committed bool
	pushes    int
}

func NewSurface(backend Backend) *Surface {
	return &Surface{backend: backend}
}

// SetColor takes opacity semantics (255 is fully visible). ASS wants BGR
// order and a transparency value, so both are converted here.
func (s *Surface) SetColor(r, g, b, a uint8) {
	s.color = fmt.Sprintf(`\c&H%02X%02X%02X&\1a&H%02X&`, b, g, r, 255-a)
}

func (s *Surface) Start() {
	s.buf.Reset()
}

// Rect emits a filled, borderless, unshadowed rectangle as a closed
// four-vertex drawing path.
func (s *Surface) Rect(x, y, w, h float64) {
	fmt.Fprintf(&s.buf, `{\bord0\shad0\pos(0,0)%s\p1}m %s %s l %s %s %s %s %s %s{\p0}`+"\n",
		s.color,
		num(x), num(y),
		num(x+w), num(y),
		num(x+w), num(y+h),
		num(x), num(y+h),
	)
}

// Raw emits text in the current color outside drawing mode. Callers put any
// positioning tags at the start of text.
func (s *Surface) Raw(text string) {
	fmt.Fprintf(&s.buf, `{\bord0\shad0%s}%s`+"\n", s.color, text)
}

// End assembles the frame and commits it.
func (s *Surface) End(ctx context.Context) error {
	payload := s.buf.String()
	s.buf.Reset()
	return s.commit(ctx, payload)
}

// Clear always pushes an empty payload, even when the last push was empty.
func (s *Surface) Clear(ctx context.Context) error {
	s.buf.Reset()
	return s.push(ctx, "")
}

// Destroy removes the overlay from the host.
func (s *Surface) Destroy(ctx context.Context) error {
	s.committed = false
	s.last = ""
	return s.backend.RemoveOverlay(ctx)
}

// Pushes reports how many payloads reached the backend.
func (s *Surface) Pushes() int {
	return s.pushes
}

// Blank reports whether the last payload the backend received was empty.
func (s *Surface) Blank() bool {
	return s.committed && s.last == ""
}

func (s *Surface) commit(ctx context.Context, payload string) error {
	if s.committed && payload == s.last {
		return nil
	}
	return s.push(ctx, payload)
}

func (s *Surface) push(ctx context.Context, payload string) error {
	if err := s.backend.UpdateOverlay(ctx, payload); err != nil {
		return fmt.Errorf("update overlay: %w", err)
	}
	s.last = payload
	s.committed = true
	s.pushes++
	return nil
}

// num keeps drawing coordinates short: two decimals, trailing zeros dropped.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
