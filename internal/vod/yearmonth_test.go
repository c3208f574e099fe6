// SPDX-License-Identifier: MIT

package vod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearMonthArithmetic(t *testing.T) {
	ym := YearMonth{Year: 2023, Month: time.January}

	assert.Equal(t, YearMonth{Year: 2022, Month: time.December}, ym.Prev())
	assert.Equal(t, YearMonth{Year: 2023, Month: time.February}, ym.Next())
	assert.Equal(t, YearMonth{Year: 2021, Month: time.November}, ym.Add(-14))
	assert.Equal(t, 14, ym.Sub(YearMonth{Year: 2021, Month: time.November}))
	assert.True(t, ym.Before(ym.Next()))
	assert.True(t, ym.After(ym.Prev()))
	assert.Equal(t, 0, ym.Compare(ym))
}

func TestYearMonthDays(t *testing.T) {
	assert.Equal(t, 28, YearMonth{Year: 2023, Month: time.February}.Days())
	assert.Equal(t, 29, YearMonth{Year: 2024, Month: time.February}.Days())
	assert.Equal(t, 31, YearMonth{Year: 2023, Month: time.December}.Days())
}

func TestYearMonthDate(t *testing.T) {
	ym := YearMonth{Year: 2023, Month: time.May}
	assert.Equal(t, time.Date(2023, 5, 12, 0, 0, 0, 0, time.UTC), ym.Date(12, time.UTC))
	// Day 0 is the last day of the month.
	assert.Equal(t, time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC), ym.Date(0, time.UTC))
}

func TestParseYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2023-05")
	require.NoError(t, err)
	assert.Equal(t, YearMonth{Year: 2023, Month: time.May}, ym)
	assert.Equal(t, "2023-05", ym.String())

	_, err = ParseYearMonth("2023-13")
	assert.Error(t, err)
	_, err = ParseYearMonth("may 2023")
	assert.Error(t, err)
}

func TestDateOrdering(t *testing.T) {
	a := Date{Year: 2023, Month: time.May, Day: 31}
	b := Date{Year: 2023, Month: time.June, Day: 1}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, "2023-05-31", a.String())
}
