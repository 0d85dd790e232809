package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxClipNameLen = 64

// Segment is the span between two consecutive marks of one media file.
type Segment struct {
	Name      string
	MediaPath string
	Start     float64
	End       float64
}

// Segments pairs each mark with the next one. A single mark yields no
// segments.
func Segments(times []float64, mediaPath string) []Segment {
	if len(times) < 2 {
		return nil
	}

	base := Title(mediaPath)
	out := make([]Segment, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		out = append(out, Segment{
			Name:      fmt.Sprintf("%s %03d", base, i),
			MediaPath: mediaPath,
			Start:     times[i-1],
			End:       times[i],
		})
	}
	return out
}

// Title is the sanitized media file name without its extension, or
// "segment" when nothing usable is left.
func Title(mediaPath string) string {
	name := filepath.Base(mediaPath)
	name = SanitizeName(strings.TrimSuffix(name, filepath.Ext(name)), maxClipNameLen-4)
	if name == "" || name == "." {
		return "segment"
	}
	return name
}
