package marks

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatDuration renders secs as a compact h/m/s string, omitting units that
// would lead with zero: 90 -> "1m30s", 3600 -> "1h", 0 -> "0s".
// Fractional seconds are kept to millisecond precision.
func FormatDuration(secs float64) string {
	neg := secs < 0
	ms := int64(math.Round(math.Abs(secs) * 1000))

	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if ms > 0 || (h == 0 && m == 0) {
		b.WriteString(formatSeconds(ms))
		b.WriteByte('s')
	}
	return b.String()
}

func formatSeconds(ms int64) string {
	s := strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatTime renders t as the decimal token handed to external programs.
func FormatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
