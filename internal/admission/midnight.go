package admission

import "time"

// secondsUntilNextMidnight measures to the next midnight in loc. Building the
// boundary with day+1 lets the time package normalize month ends and DST
// transitions, so 23- and 25-hour days come out right.
func secondsUntilNextMidnight(now time.Time, loc *time.Location) int64 {
	local := now.In(loc)
	year, month, day := local.Date()
	midnight := time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	remaining := midnight.Sub(local)
	secs := int64((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
