// SPDX-License-Identifier: MIT

package vod

import (
	"fmt"
	"time"
)

// YearMonth identifies one calendar month. The zero value means "unset".
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses "2023-05".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

func (ym YearMonth) ordinal() int {
	return ym.Year*12 + int(ym.Month) - 1
}

// Add moves the month by n (negative moves backward).
func (ym YearMonth) Add(n int) YearMonth {
	o := ym.ordinal() + n
	return YearMonth{Year: o / 12, Month: time.Month(o%12 + 1)}
}

func (ym YearMonth) Next() YearMonth { return ym.Add(1) }
func (ym YearMonth) Prev() YearMonth { return ym.Add(-1) }

// Sub returns the number of months from other to ym.
func (ym YearMonth) Sub(other YearMonth) int {
	return ym.ordinal() - other.ordinal()
}

func (ym YearMonth) Compare(other YearMonth) int {
	switch {
	case ym.ordinal() < other.ordinal():
		return -1
	case ym.ordinal() > other.ordinal():
		return 1
	default:
		return 0
	}
}

func (ym YearMonth) Before(other YearMonth) bool { return ym.Compare(other) < 0 }
func (ym YearMonth) After(other YearMonth) bool  { return ym.Compare(other) > 0 }

// Date returns the given day of the month in loc. Day 0 (or negative) counts
// back from the end of the month.
func (ym YearMonth) Date(day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if day <= 0 {
		return ym.Next().Date(1, loc).AddDate(0, 0, day-1)
	}
	return time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, loc)
}

// Days returns the number of days in the month.
func (ym YearMonth) Days() int {
	return ym.Date(0, time.UTC).Day()
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// MarshalText/UnmarshalText make YearMonth usable as a JSON map key.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// Date is a calendar day in camera-local time.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month}
}

func (d Date) ordinal() int {
	return d.YearMonth().ordinal()*32 + d.Day
}

func (d Date) Compare(other Date) int {
	switch {
	case d.ordinal() < other.ordinal():
		return -1
	case d.ordinal() > other.ordinal():
		return 1
	default:
		return 0
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}
