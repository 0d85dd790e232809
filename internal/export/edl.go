package export

import (
	"fmt"
	"math"
	"strings"
)

const DefaultFrameRate = 30.0

// GenerateEDL renders segments as a CMX3600 edit list laid end to end on the
// record side. 29.97 and 59.94 are written as drop-frame timecode.
func GenerateEDL(segments []Segment, title string, frameRate float64) string {
	tb := newTimebase(frameRate)

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if tb.drop > 0 {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	record := 0
	for i, seg := range segments {
		in := tb.frames(seg.Start)
		out := tb.frames(seg.End)
		length := out - in

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				tb.timecode(in), tb.timecode(out), tb.timecode(record), tb.timecode(record+length)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", seg.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", seg.MediaPath),
		)

		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// timebase converts seconds to frame counts and frame counts to timecode.
type timebase struct {
	rate    float64 // real frames per second
	nominal int     // frames per timecode second
	drop    int     // frame numbers skipped per minute, 0 for non-drop
}

func newTimebase(frameRate float64) timebase {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	for _, nominal := range []int{30, 60} {
		if math.Abs(frameRate-float64(nominal)*1000/1001) < 0.01 {
			return timebase{rate: float64(nominal) * 1000 / 1001, nominal: nominal, drop: nominal / 15}
		}
	}
	nominal := int(math.Round(frameRate))
	if nominal <= 0 {
		nominal = 1
	}
	return timebase{rate: float64(nominal), nominal: nominal}
}

func (tb timebase) frames(seconds float64) int {
	return int(math.Round(seconds * tb.rate))
}

// timecode labels frame n. Drop-frame skips the first tb.drop labels of every
// minute except each tenth and separates frames with ';'.
func (tb timebase) timecode(n int) string {
	sep := ":"
	if tb.drop > 0 {
		perMinute := tb.nominal*60 - tb.drop
		perTenMinutes := tb.nominal*600 - tb.drop*9
		tens, rem := n/perTenMinutes, n%perTenMinutes
		n += tb.drop * 9 * tens
		if rem > tb.drop {
			n += tb.drop * ((rem - tb.drop) / perMinute)
		}
		sep = ";"
	}

	frames := n % tb.nominal
	totalSeconds := n / tb.nominal
	return fmt.Sprintf("%02d:%02d:%02d%s%02d",
		totalSeconds/3600, totalSeconds/60%60, totalSeconds%60, sep, frames)
}
