package admission

import "time"

// window gives each rate window its shape: when a stored counter no longer
// belongs to the current window, how long a denied caller must wait, and how
// long the record should live in the store. The staleness check is the
// authority; the store TTL is hygiene that keeps dead counters from piling up.
type window interface {
	stale(start, now time.Time) bool
	// retryAfter returns whole seconds until the window containing now closes.
	retryAfter(start, now time.Time) int64
	ttl(now time.Time) time.Duration
}

// burstWindow is a fixed-width window anchored at the first request: it opens
// when a fresh counter is written and closes width later.
type burstWindow struct {
	width time.Duration
}

func (w burstWindow) stale(start, now time.Time) bool {
	return now.Sub(start) >= w.width
}

func (w burstWindow) retryAfter(start, now time.Time) int64 {
	remaining := w.width - now.Sub(start)
	secs := int64((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (w burstWindow) ttl(time.Time) time.Duration { return w.width }

// dailyWindow is a calendar window in the reference timezone. Staleness is a
// date comparison, not an elapsed-time check: a counter written at 23:59
// must be stale one minute later, and one written at 00:01 must survive the
// rest of the day.
type dailyWindow struct {
	loc *time.Location
}

func (w dailyWindow) stale(start, now time.Time) bool {
	sy, sm, sd := start.In(w.loc).Date()
	ny, nm, nd := now.In(w.loc).Date()
	return sy != ny || sm != nm || sd != nd
}

func (w dailyWindow) retryAfter(_, now time.Time) int64 {
	secs := secondsUntilNextMidnight(now, w.loc)
	if secs < 60 {
		secs = 60
	}
	return secs
}

func (w dailyWindow) ttl(now time.Time) time.Duration {
	return time.Duration(secondsUntilNextMidnight(now, w.loc))*time.Second + time.Hour
}
