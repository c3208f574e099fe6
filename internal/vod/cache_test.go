// SPDX-License-Identifier: MIT

package vod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int, hour int) time.Time {
	return time.Date(2023, 5, d, hour, 0, 0, 0, time.UTC)
}

func seedCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCache()
	c.UpsertStatus(Status{YearMonth: YearMonth{Year: 2023, Month: time.May}, Days: []int{2, 12, 31}})
	c.UpsertFile(day(2, 8), day(2, 8).Add(time.Minute), StreamMain, FileInfo{Name: "a.mp4"})
	c.UpsertFile(day(12, 9), day(12, 9).Add(time.Minute), StreamMain, FileInfo{Name: "b.mp4"})
	c.UpsertFile(day(12, 18), day(12, 18).Add(time.Minute), StreamMain, FileInfo{Name: "c.mp4"})
	c.UpsertFile(day(31, 23), day(31, 23).Add(time.Minute), StreamMain, FileInfo{Name: "d.mp4"})
	return c
}

func TestCacheSliceOrdersAcrossDays(t *testing.T) {
	c := seedCache(t)

	recs := c.Slice(day(1, 0), day(31, 23).Add(time.Hour))
	require.Len(t, recs, 4)
	names := make([]string, len(recs))
	for i, r := range recs {
		_, fi, _ := r.Best()
		names[i] = fi.Name
	}
	assert.Equal(t, []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4"}, names)
}

func TestCacheFindByName(t *testing.T) {
	c := seedCache(t)

	rec, found := c.FindByName("c.mp4")
	require.True(t, found)
	assert.Equal(t, day(12, 18), rec.Start)

	_, found = c.FindByName("nope.mp4")
	assert.False(t, found)
}

func TestCacheSliceBoundaryTimes(t *testing.T) {
	c := seedCache(t)

	// Only the evening recording of May 12 falls inside the window.
	recs := c.Slice(day(12, 10), day(12, 23))
	require.Len(t, recs, 1)
	_, fi, _ := recs[0].Best()
	assert.Equal(t, "c.mp4", fi.Name)

	assert.Empty(t, c.Slice(day(13, 0), day(14, 0)))
}

func TestCacheUpsertFileMergesStreams(t *testing.T) {
	c := NewCache()
	start := day(12, 9)
	c.UpsertStatus(Status{YearMonth: YearMonth{Year: 2023, Month: time.May}, Days: []int{12}})
	c.UpsertFile(start, start.Add(50*time.Second), StreamSub, FileInfo{Name: "low.mp4"})
	c.UpsertFile(start, start.Add(time.Minute), StreamMain, FileInfo{Name: "high.mp4"})

	assert.Equal(t, 1, c.Len())
	rec, ok := c.Get(start)
	require.True(t, ok)
	assert.Len(t, rec.Streams, 2)
	assert.Equal(t, start.Add(time.Minute), rec.End)
}

func TestCacheSliceReturnsDetachedCopies(t *testing.T) {
	c := seedCache(t)

	recs := c.Slice(day(12, 0), day(12, 23))
	require.Len(t, recs, 2)
	require.Len(t, recs[0].Streams, 1)

	// A refresh merging another stream into the same recording must not
	// show up in recordings handed out earlier.
	c.UpsertFile(day(12, 9), day(12, 9).Add(2*time.Minute), StreamSub, FileInfo{Name: "b-sub.mp4"})

	assert.Len(t, recs[0].Streams, 1)
	assert.Equal(t, day(12, 9).Add(time.Minute), recs[0].End)

	latest, ok := c.Latest()
	require.True(t, ok)
	c.UpsertFile(day(31, 23), day(31, 23).Add(time.Minute), StreamExt, FileInfo{Name: "d-ext.mp4"})
	assert.Len(t, latest.Streams, 1)
}

func TestCacheStatusUpdateDropsRecycledDays(t *testing.T) {
	c := seedCache(t)
	require.Equal(t, 4, c.Len())

	// The NVR recycled May 2; the day table no longer lists it.
	c.UpsertStatus(Status{YearMonth: YearMonth{Year: 2023, Month: time.May}, Days: []int{12, 31}})

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get(day(2, 8))
	assert.False(t, ok)
}

func TestCacheCoveredWindow(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Covered(day(1, 0), day(2, 0)))

	c.ExtendCovered(day(10, 0), day(20, 0))
	assert.True(t, c.Covered(day(12, 0), day(13, 0)))
	assert.False(t, c.Covered(day(5, 0), day(13, 0)))
	assert.False(t, c.Covered(day(12, 0), day(25, 0)))

	c.ExtendCovered(day(1, 0), day(5, 0))
	assert.True(t, c.Covered(day(2, 0), day(19, 0)))
}

func TestCacheLatest(t *testing.T) {
	c := NewCache()
	_, ok := c.Latest()
	assert.False(t, ok)

	c = seedCache(t)
	rec, ok := c.Latest()
	require.True(t, ok)
	_, fi, _ := rec.Best()
	assert.Equal(t, "d.mp4", fi.Name)
}

func TestCacheTrim(t *testing.T) {
	c := seedCache(t)
	c.UpsertStatus(Status{YearMonth: YearMonth{Year: 2023, Month: time.March}, Days: []int{1}})
	c.UpsertFile(
		time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 1, 10, 1, 0, 0, time.UTC),
		StreamMain, FileInfo{Name: "old.mp4"},
	)
	require.Equal(t, 5, c.Len())

	c.Trim(YearMonth{Year: 2023, Month: time.May})

	assert.Equal(t, 4, c.Len())
	min, max, ok := c.Months()
	require.True(t, ok)
	assert.Equal(t, YearMonth{Year: 2023, Month: time.May}, min)
	assert.Equal(t, YearMonth{Year: 2023, Month: time.May}, max)
}

func TestCacheAtStartResetsOnOlderStatus(t *testing.T) {
	c := seedCache(t)
	c.MarkAtStart()
	assert.True(t, c.AtStart())

	// Finding an even older month invalidates the start marker.
	c.UpsertStatus(Status{YearMonth: YearMonth{Year: 2023, Month: time.April}, Days: []int{30}})
	assert.False(t, c.AtStart())
}

func TestCacheSnapshotRoundTrip(t *testing.T) {
	c := seedCache(t)
	snaps := c.Snapshot()
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Recordings, 4)

	restored := NewCache()
	for _, snap := range snaps {
		restored.LoadMonth(snap)
	}
	assert.Equal(t, c.Len(), restored.Len())
	rec, ok := restored.Get(day(12, 18))
	require.True(t, ok)
	_, fi, _ := rec.Best()
	assert.Equal(t, "c.mp4", fi.Name)

	// Loaded data never counts as covered on its own.
	_, _, ok = restored.Window()
	assert.False(t, ok)
}
