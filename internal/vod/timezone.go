// SPDX-License-Identifier: MIT

package vod

import (
	"fmt"
	"sync"
	"time"

	"github.com/reovod/reovod/internal/reolink"
)

// Timezone models a camera's clock settings. Reolink devices report their
// UTC offset with an inverted sign (UTC+2 arrives as -7200 seconds) plus a
// pair of DST transition rules instead of an IANA zone name.
type Timezone struct {
	std     time.Duration
	shift   time.Duration
	enabled bool
	start   reolink.DstRule
	end     reolink.DstRule

	mu    sync.Mutex
	years map[int][2]time.Time
}

// NewTimezone builds a Timezone from a GetTime reply.
func NewTimezone(dt *reolink.DeviceTime) *Timezone {
	tz := &Timezone{
		std:   -time.Duration(dt.Time.TimeZone) * time.Second,
		years: map[int][2]time.Time{},
	}
	if bool(dt.Dst.Enable) {
		tz.enabled = true
		tz.shift = time.Duration(dt.Dst.Offset) * time.Hour
		tz.start = dt.Dst.Start
		tz.end = dt.Dst.End
	}
	return tz
}

// ruleTime resolves a DST rule to a wall-clock instant within year. Week 5
// means the last occurrence of the weekday in the month. The device counts
// weekdays from Sunday, matching Go's time.Weekday.
func ruleTime(r reolink.DstRule, year int) time.Time {
	first := time.Date(year, time.Month(r.Mon), 1, r.Hour, r.Min, r.Sec, 0, time.UTC)
	days := (r.Weekday - int(first.Weekday()) + 7) % 7
	t := first.AddDate(0, 0, days+(r.Week-1)*7)
	for t.Month() != time.Month(r.Mon) {
		t = t.AddDate(0, 0, -7)
	}
	return t
}

// window returns the DST start and end as naive wall-clock times for year.
func (tz *Timezone) window(year int) (time.Time, time.Time) {
	tz.mu.Lock()
	defer tz.mu.Unlock()
	if w, ok := tz.years[year]; ok {
		return w[0], w[1]
	}
	w := [2]time.Time{ruleTime(tz.start, year), ruleTime(tz.end, year)}
	tz.years[year] = w
	return w[0], w[1]
}

// inDST reports whether the naive wall-clock time falls inside the DST
// window. A window with end before start spans the year boundary, as in the
// southern hemisphere.
func (tz *Timezone) inDST(wall time.Time) bool {
	if !tz.enabled {
		return false
	}
	start, end := tz.window(wall.Year())
	if end.Before(start) {
		return !wall.Before(start) || wall.Before(end)
	}
	return !wall.Before(start) && wall.Before(end)
}

// Offset returns the camera's UTC offset at the absolute instant t.
func (tz *Timezone) Offset(t time.Time) time.Duration {
	wall := t.UTC().Add(tz.std)
	if tz.inDST(wall) {
		return tz.std + tz.shift
	}
	return tz.std
}

func zoneName(off time.Duration) string {
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, int(off.Hours()), int(off.Minutes())%60)
}

// At converts an absolute instant into camera-local time.
func (tz *Timezone) At(t time.Time) time.Time {
	off := tz.Offset(t)
	return t.In(time.FixedZone(zoneName(off), int(off.Seconds())))
}

// Resolve interprets a device wall-clock time as an absolute instant.
// Times inside the repeated hour at the end of DST resolve to the DST
// interpretation.
func (tz *Timezone) Resolve(tt reolink.TimeTable) time.Time {
	wall := time.Date(tt.Year, time.Month(tt.Mon), tt.Day, tt.Hour, tt.Min, tt.Sec, 0, time.UTC)
	off := tz.std
	if tz.inDST(wall) {
		off += tz.shift
	}
	return time.Date(tt.Year, time.Month(tt.Mon), tt.Day, tt.Hour, tt.Min, tt.Sec, 0,
		time.FixedZone(zoneName(off), int(off.Seconds())))
}

// Today returns the camera-local calendar day at instant now.
func (tz *Timezone) Today(now time.Time) Date {
	return DateOf(tz.At(now))
}
