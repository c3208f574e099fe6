// SPDX-License-Identifier: MIT

package vod

import (
	"sort"
	"sync"
	"time"
)

// MonthSnapshot is the persistable state of one cached month.
type MonthSnapshot struct {
	Status     Status      `json:"status"`
	Recordings []Recording `json:"recordings"`
}

// Cache holds the recording history of one camera channel. Month statuses
// describe which days have recordings at all; per-day recording lists are
// filled lazily as time ranges get fetched. The covered window tracks which
// span of time already has file detail, so repeat lookups inside it never
// hit the device again.
type Cache struct {
	mu sync.RWMutex

	statuses  map[YearMonth]Status
	statusMin YearMonth
	statusMax YearMonth

	days    map[Date][]*Recording
	byStart map[int64]*Recording

	coveredMin time.Time
	coveredMax time.Time

	atStart bool
}

func NewCache() *Cache {
	return &Cache{
		statuses: map[YearMonth]Status{},
		days:     map[Date][]*Recording{},
		byStart:  map[int64]*Recording{},
	}
}

// Len returns the number of cached recordings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byStart)
}

// Months returns the cached month range. ok is false while the cache is
// empty.
func (c *Cache) Months() (min, max YearMonth, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusMin, c.statusMax, !c.statusMin.IsZero()
}

// AtStart reports whether the cache reaches back to the oldest recording
// still on the device.
func (c *Cache) AtStart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.atStart
}

// MarkAtStart records that months before statusMin hold no recordings.
func (c *Cache) MarkAtStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atStart = true
}

// StatusFor returns the cached status of one month.
func (c *Cache) StatusFor(ym YearMonth) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.statuses[ym]
	return st, ok
}

// Statuses returns all cached month statuses in ascending order.
func (c *Cache) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, 0, len(c.statuses))
	for _, st := range c.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth.Before(out[j].YearMonth) })
	return out
}

// UpsertStatus stores a month status. Recordings cached for days the device
// no longer reports get dropped, which happens when an NVR recycles old
// footage.
func (c *Cache) UpsertStatus(st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.statuses[st.YearMonth]; ok {
		for _, day := range prev.Days {
			if !st.Contains(day) {
				c.dropDayLocked(Date{Year: st.Year, Month: st.Month, Day: day})
			}
		}
	}
	c.statuses[st.YearMonth] = st

	if c.statusMin.IsZero() || st.YearMonth.Before(c.statusMin) {
		c.statusMin = st.YearMonth
		c.atStart = false
	}
	if c.statusMax.IsZero() || st.YearMonth.After(c.statusMax) {
		c.statusMax = st.YearMonth
	}
}

func (c *Cache) dropDayLocked(d Date) {
	for _, rec := range c.days[d] {
		delete(c.byStart, rec.Start.UnixNano())
	}
	delete(c.days, d)
}

// UpsertFile merges one stream file into the recording starting at start.
func (c *Cache) UpsertFile(start, end time.Time, stream StreamType, fi FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertFileLocked(start, end, stream, fi)
}

func (c *Cache) upsertFileLocked(start, end time.Time, stream StreamType, fi FileInfo) {
	key := start.UnixNano()
	rec, ok := c.byStart[key]
	if !ok {
		rec = newRecording(start, end)
		c.byStart[key] = rec
		d := DateOf(start)
		recs := c.days[d]
		i := sort.Search(len(recs), func(i int) bool { return recs[i].Start.After(start) })
		recs = append(recs, nil)
		copy(recs[i+1:], recs[i:])
		recs[i] = rec
		c.days[d] = recs
	}
	if end.After(rec.End) {
		rec.End = end
	}
	rec.Streams[stream] = fi
}

// Covered reports whether [start, end] lies inside the window that already
// has file detail.
func (c *Cache) Covered(start, end time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.coveredMin.IsZero() {
		return false
	}
	return !start.Before(c.coveredMin) && !end.After(c.coveredMax)
}

// Window returns the covered window. ok is false before the first fetch.
func (c *Cache) Window() (min, max time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coveredMin, c.coveredMax, !c.coveredMin.IsZero()
}

// ExtendCovered grows the covered window to include [start, end].
func (c *Cache) ExtendCovered(start, end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coveredMin.IsZero() || start.Before(c.coveredMin) {
		c.coveredMin = start
	}
	if end.After(c.coveredMax) {
		c.coveredMax = end
	}
}

// Slice returns the cached recordings overlapping [start, end], ordered by
// start time. Both bounds are camera-local instants.
func (c *Cache) Slice(start, end time.Time) []*Recording {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.statusMin.IsZero() || end.Before(start) {
		return nil
	}
	from := YearMonthOf(start)
	if from.Before(c.statusMin) {
		from = c.statusMin
	}
	to := YearMonthOf(end)
	if c.statusMax.Before(to) {
		to = c.statusMax
	}

	startDate, endDate := DateOf(start), DateOf(end)
	var out []*Recording
	for ym := from; !ym.After(to); ym = ym.Next() {
		st, ok := c.statuses[ym]
		if !ok {
			continue
		}
		for _, day := range st.Days {
			d := Date{Year: st.Year, Month: st.Month, Day: day}
			if d.Before(startDate) || d.After(endDate) {
				continue
			}
			for _, rec := range c.days[d] {
				if rec.End.Before(start) || rec.Start.After(end) {
					continue
				}
				out = append(out, rec.clone())
			}
		}
	}
	return out
}

// Latest returns the most recent cached recording.
func (c *Cache) Latest() (*Recording, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for ym := c.statusMax; !c.statusMin.IsZero() && !ym.Before(c.statusMin); ym = ym.Prev() {
		st, ok := c.statuses[ym]
		if !ok {
			continue
		}
		for i := len(st.Days) - 1; i >= 0; i-- {
			d := Date{Year: st.Year, Month: st.Month, Day: st.Days[i]}
			if recs := c.days[d]; len(recs) > 0 {
				return recs[len(recs)-1].clone(), true
			}
		}
	}
	return nil, false
}

// FindByName returns the recording that owns the stream file name.
func (c *Cache) FindByName(name string) (*Recording, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rec := range c.byStart {
		for _, fi := range rec.Streams {
			if fi.Name == name {
				return rec.clone(), true
			}
		}
	}
	return nil, false
}

// Get returns the recording with the exact start time.
func (c *Cache) Get(start time.Time) (*Recording, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byStart[start.UnixNano()]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Trim drops all months before keep.
func (c *Cache) Trim(keep YearMonth) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ym, st := range c.statuses {
		if !ym.Before(keep) {
			continue
		}
		for _, day := range st.Days {
			c.dropDayLocked(Date{Year: st.Year, Month: st.Month, Day: day})
		}
		delete(c.statuses, ym)
	}
	if c.statusMin.Before(keep) {
		if len(c.statuses) == 0 {
			c.statusMin, c.statusMax = YearMonth{}, YearMonth{}
		} else {
			c.statusMin = keep
			for !c.statusMin.After(c.statusMax) {
				if _, ok := c.statuses[c.statusMin]; ok {
					break
				}
				c.statusMin = c.statusMin.Next()
			}
		}
	}
}

// Snapshot exports every cached month for persistence.
func (c *Cache) Snapshot() []MonthSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]MonthSnapshot, 0, len(c.statuses))
	for ym, st := range c.statuses {
		snap := MonthSnapshot{Status: st}
		for _, day := range st.Days {
			d := Date{Year: ym.Year, Month: ym.Month, Day: day}
			for _, rec := range c.days[d] {
				snap.Recordings = append(snap.Recordings, *rec.clone())
			}
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status.YearMonth.Before(out[j].Status.YearMonth)
	})
	return out
}

// LoadMonth seeds the cache from a persisted snapshot. It does not extend
// the covered window; callers decide which loaded spans count as complete.
func (c *Cache) LoadMonth(snap MonthSnapshot) {
	c.UpsertStatus(snap.Status)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range snap.Recordings {
		for stream, fi := range rec.Streams {
			c.upsertFileLocked(rec.Start, rec.End, stream, fi)
		}
	}
}
