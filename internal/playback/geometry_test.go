package playback

import (
	"math"
	"testing"
)

func TestGeometry_Width(t *testing.T) {
	tests := []struct {
		name   string
		aspect float64
		want   float64
	}{
		{"widescreen", 16.0 / 9.0, 1280},
		{"four by three", 4.0 / 3.0, 960},
		{"unknown falls back to 16:9", 0, 1280},
		{"negative falls back to 16:9", -1, 1280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Geometry{Aspect: tt.aspect}
			if got := g.Width(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Width() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeometry_Offset(t *testing.T) {
	g := Geometry{Duration: 100, Aspect: 2}

	if got := g.Offset(50); got != 720 {
		t.Errorf("Offset(50) = %v, want 720", got)
	}
	if got := g.Offset(0); got != 0 {
		t.Errorf("Offset(0) = %v, want 0", got)
	}

	g.Duration = 0
	if got := g.Offset(50); got != 0 {
		t.Errorf("Offset with zero duration = %v, want 0", got)
	}
}

func TestDimensions_DisplayAspect(t *testing.T) {
	tests := []struct {
		d    Dimensions
		want float64
	}{
		{Dimensions{W: 1920, H: 1080, Aspect: 1.5}, 1.5},
		{Dimensions{W: 1000, H: 500}, 2},
		{Dimensions{}, 0},
	}

	for _, tt := range tests {
		if got := tt.d.DisplayAspect(); got != tt.want {
			t.Errorf("%+v.DisplayAspect() = %v, want %v", tt.d, got, tt.want)
		}
	}
}
