package playback

// BaseResolution is the logical OSD height; overlay coordinates are laid out
// against it and the width follows the display aspect.
const BaseResolution = 720

const defaultAspect = 16.0 / 9.0

// Geometry is a read-only snapshot of player state, fetched fresh for every
// render and never kept beyond it.
type Geometry struct {
	Duration float64
	Position float64
	Aspect   float64
}

// Width returns the logical overlay width in BaseResolution units.
func (g Geometry) Width() float64 {
	aspect := g.Aspect
	if aspect <= 0 {
		aspect = defaultAspect
	}
	return aspect * BaseResolution
}

// Offset maps a media time to an x coordinate on the logical width.
// Unknown or zero duration maps everything to the left edge.
func (g Geometry) Offset(t float64) float64 {
	if g.Duration <= 0 {
		return 0
	}
	return t / g.Duration * g.Width()
}

// Dimensions mirrors mpv's osd-dimensions property.
type Dimensions struct {
	W      int     `json:"w"`
	H      int     `json:"h"`
	Aspect float64 `json:"aspect"`
}

// DisplayAspect prefers the reported aspect and falls back to w/h.
func (d Dimensions) DisplayAspect() float64 {
	if d.Aspect > 0 {
		return d.Aspect
	}
	if d.W > 0 && d.H > 0 {
		return float64(d.W) / float64(d.H)
	}
	return 0
}
