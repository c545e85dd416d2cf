package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestCurrentBillingMonth(t *testing.T) {
	cases := []struct {
		name      string
		anchorDay int
		now       time.Time
		start     time.Time
		nextStart time.Time
	}{
		{
			name:      "anchor not reached yet this month",
			anchorDay: 15,
			now:       date(2024, time.May, 10, 8, 0),
			start:     date(2024, time.April, 15, 0, 0),
			nextStart: date(2024, time.May, 15, 0, 0),
		},
		{
			name:      "anchor already passed this month",
			anchorDay: 15,
			now:       date(2024, time.May, 20, 8, 0),
			start:     date(2024, time.May, 15, 0, 0),
			nextStart: date(2024, time.June, 15, 0, 0),
		},
		{
			name:      "on the anchor day",
			anchorDay: 15,
			now:       date(2024, time.May, 15, 0, 0),
			start:     date(2024, time.May, 15, 0, 0),
			nextStart: date(2024, time.June, 15, 0, 0),
		},
		{
			name:      "january rolls back into december",
			anchorDay: 20,
			now:       date(2024, time.January, 3, 12, 0),
			start:     date(2023, time.December, 20, 0, 0),
			nextStart: date(2024, time.January, 20, 0, 0),
		},
		{
			name:      "december rolls forward into january",
			anchorDay: 5,
			now:       date(2023, time.December, 28, 12, 0),
			start:     date(2023, time.December, 5, 0, 0),
			nextStart: date(2024, time.January, 5, 0, 0),
		},
		{
			name:      "anchor 31 clamps to end of february",
			anchorDay: 31,
			now:       date(2023, time.February, 28, 9, 0),
			start:     date(2023, time.February, 28, 0, 0),
			nextStart: date(2023, time.March, 31, 0, 0),
		},
		{
			name:      "anchor 31 before the clamped february anchor",
			anchorDay: 31,
			now:       date(2023, time.February, 27, 9, 0),
			start:     date(2023, time.January, 31, 0, 0),
			nextStart: date(2023, time.February, 28, 0, 0),
		},
		{
			name:      "anchor 30 in a leap february",
			anchorDay: 30,
			now:       date(2024, time.March, 10, 9, 0),
			start:     date(2024, time.February, 29, 0, 0),
			nextStart: date(2024, time.March, 30, 0, 0),
		},
		{
			name:      "anchor 31 in a thirty day month",
			anchorDay: 31,
			now:       date(2024, time.April, 30, 23, 0),
			start:     date(2024, time.April, 30, 0, 0),
			nextStart: date(2024, time.May, 31, 0, 0),
		},
		{
			name:      "anchor below one behaves like the first",
			anchorDay: 0,
			now:       date(2024, time.April, 12, 0, 0),
			start:     date(2024, time.April, 1, 0, 0),
			nextStart: date(2024, time.May, 1, 0, 0),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := CurrentBillingMonth(tc.anchorDay, tc.now)
			assert.Equal(t, tc.start, w.Start)
			assert.Equal(t, tc.nextStart.Add(-time.Nanosecond), w.End)
			assert.True(t, w.Contains(tc.now))
		})
	}
}

func TestCurrentBillingMonthEndIsLastInstantOfDay(t *testing.T) {
	w := CurrentBillingMonth(15, date(2024, time.May, 20, 8, 0))
	assert.Equal(t, time.Date(2024, time.June, 14, 23, 59, 59, 999999999, time.UTC), w.End)
}

func TestCurrentBillingMonthNormalizesToUTC(t *testing.T) {
	tz := time.FixedZone("UTC+10", 10*60*60)
	// 2024-05-15 05:00 in UTC+10 is still May 14 in UTC.
	w := CurrentBillingMonth(15, time.Date(2024, time.May, 15, 5, 0, 0, 0, tz))
	assert.Equal(t, date(2024, time.April, 15, 0, 0), w.Start)
}

func TestConsecutiveWindowsAreContiguous(t *testing.T) {
	for _, anchor := range []int{1, 15, 28, 29, 30, 31} {
		now := date(2023, time.January, 1, 0, 0)
		prev := CurrentBillingMonth(anchor, now)
		for i := 0; i < 24; i++ {
			next := CurrentBillingMonth(anchor, prev.End.Add(time.Nanosecond))
			assert.Equal(t, prev.End.Add(time.Nanosecond), next.Start, "anchor %d", anchor)
			prev = next
		}
	}
}

func TestWindowClip(t *testing.T) {
	w := Window{Start: date(2024, time.May, 15, 0, 0), End: date(2024, time.June, 15, 0, 0).Add(-time.Nanosecond)}

	start, end, ok := w.Clip(date(2024, time.May, 14, 23, 50), date(2024, time.May, 15, 0, 10))
	assert.True(t, ok)
	assert.Equal(t, w.Start, start)
	assert.Equal(t, date(2024, time.May, 15, 0, 10), end)

	_, _, ok = w.Clip(date(2024, time.May, 1, 0, 0), date(2024, time.May, 2, 0, 0))
	assert.False(t, ok)

	start, end, ok = w.Clip(date(2024, time.June, 14, 23, 0), date(2024, time.June, 16, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, date(2024, time.June, 14, 23, 0), start)
	assert.Equal(t, w.End, end)
}
