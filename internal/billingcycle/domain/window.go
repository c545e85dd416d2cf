package domain

import "time"

// Window is a billing cycle. Both bounds are inclusive and in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CurrentBillingMonth returns the billing cycle containing now for a subscription
// anchored on anchorDay. When a month is shorter than anchorDay the cycle starts on
// that month's last day. End is the instant before the next cycle starts, so
// consecutive windows never overlap.
func CurrentBillingMonth(anchorDay int, now time.Time) Window {
	now = now.UTC()

	start := anchorIn(now.Year(), now.Month(), anchorDay)
	if start.After(now) {
		start = anchorIn(now.Year(), now.Month()-1, anchorDay)
	}
	next := anchorIn(start.Year(), start.Month()+1, anchorDay)

	return Window{Start: start, End: next.Add(-time.Nanosecond)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Clip trims [start, end] to the window. ok is false when nothing remains.
func (w Window) Clip(start, end time.Time) (time.Time, time.Time, bool) {
	if start.Before(w.Start) {
		start = w.Start
	}
	if end.After(w.End) {
		end = w.End
	}
	if !end.After(start) {
		return start, start, false
	}
	return start, end, true
}

// anchorIn is midnight UTC of the anchor day in the given month, clamped to the
// month's length. Month values outside 1..12 roll over into adjacent years.
func anchorIn(year int, month time.Month, anchorDay int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if anchorDay < 1 {
		anchorDay = 1
	}
	if last := daysIn(first.Year(), first.Month()); anchorDay > last {
		anchorDay = last
	}
	return time.Date(first.Year(), first.Month(), anchorDay, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
