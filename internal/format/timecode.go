package format

import (
	"fmt"
	"time"
)

// srtTimecode renders elapsed wall-clock time as HH:MM:SS,mmm. Elapsed time
// is never assumed monotonic: out-of-order entry timestamps produce
// out-of-order or negative timecodes, preserved as-is rather than clamped.
func srtTimecode(d time.Duration) string {
	return timecode(d, ',')
}

// vttTimecode renders elapsed wall-clock time as HH:MM:SS.mmm.
func vttTimecode(d time.Duration) string {
	return timecode(d, '.')
}

func timecode(d time.Duration, sep byte) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	ms := d.Milliseconds()
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%s%02d:%02d:%02d%c%03d", sign, h, m, s, sep, ms%1000)
}
