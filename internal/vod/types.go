// SPDX-License-Identifier: MIT

package vod

import (
	"sort"
	"strings"
	"time"

	"github.com/reovod/reovod/internal/reolink"
)

// StreamType identifies a recording stream quality.
type StreamType string

const (
	StreamMain StreamType = "main"
	StreamSub  StreamType = "sub"
	StreamExt  StreamType = "ext"
)

// streamOrder lists streams from best to worst quality.
var streamOrder = []StreamType{StreamMain, StreamSub, StreamExt}

// ParseStreamType maps a device file type to a StreamType.
func ParseStreamType(s string) (StreamType, bool) {
	switch StreamType(strings.ToLower(s)) {
	case StreamMain:
		return StreamMain, true
	case StreamSub:
		return StreamSub, true
	case StreamExt:
		return StreamExt, true
	}
	return "", false
}

// Trigger is a bit set of events that started a recording.
type Trigger uint8

const (
	TriggerMotion Trigger = 1 << iota
	TriggerTimer
	TriggerPerson
	TriggerVehicle
	TriggerPet

	TriggerNone Trigger = 0
)

func (t Trigger) Has(other Trigger) bool { return t&other != 0 }

func (t Trigger) String() string {
	if t == TriggerNone {
		return "none"
	}
	var parts []string
	if t.Has(TriggerMotion) {
		parts = append(parts, "motion")
	}
	if t.Has(TriggerTimer) {
		parts = append(parts, "timer")
	}
	if t.Has(TriggerPerson) {
		parts = append(parts, "person")
	}
	if t.Has(TriggerVehicle) {
		parts = append(parts, "vehicle")
	}
	if t.Has(TriggerPet) {
		parts = append(parts, "pet")
	}
	return strings.Join(parts, ",")
}

// Labels returns the individual trigger names set in t.
func (t Trigger) Labels() []string {
	if t == TriggerNone {
		return nil
	}
	return strings.Split(t.String(), ",")
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func hexNibble(b byte) uint8 {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}

// TriggerFromName decodes the trigger flags a device encodes into a recording
// file name. The flags live in a seven hex digit underscore-separated segment
// of the base name, e.g. "RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4"
// carries "6D28C00"; its last three nibbles hold the event bits.
func TriggerFromName(name string) Trigger {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	for _, field := range strings.Split(base, "_") {
		if len(field) != 7 || !isHex(field) {
			continue
		}
		a := hexNibble(field[4])
		b := hexNibble(field[5])
		c := hexNibble(field[6])

		var t Trigger
		if a&0x8 != 0 || c&0x8 != 0 {
			t |= TriggerMotion
		}
		if a&0x4 != 0 {
			t |= TriggerPerson
		}
		if b&0x1 != 0 {
			t |= TriggerTimer
		}
		if b&0x4 != 0 {
			t |= TriggerPet
		}
		// No firmware observed so far sets a vehicle bit in the name.
		return t
	}
	return TriggerNone
}

// FileInfo describes one stream file of a recording.
type FileInfo struct {
	Name      string  `json:"name"`
	Size      int64   `json:"size"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate int     `json:"frame_rate"`
	Trigger   Trigger `json:"trigger"`
}

// Recording is one recorded event. A device keeps up to one file per stream
// type for the same start time.
type Recording struct {
	Start   time.Time               `json:"start"`
	End     time.Time               `json:"end"`
	Streams map[StreamType]FileInfo `json:"streams"`
}

// Best returns the highest quality stream file available.
func (r *Recording) Best() (StreamType, FileInfo, bool) {
	for _, st := range streamOrder {
		if fi, ok := r.Streams[st]; ok {
			return st, fi, true
		}
	}
	return "", FileInfo{}, false
}

// Stream returns the file for st, falling back to the best available stream.
func (r *Recording) Stream(st StreamType) (StreamType, FileInfo, bool) {
	if fi, ok := r.Streams[st]; ok {
		return st, fi, true
	}
	return r.Best()
}

// Trigger reports the trigger of the best stream file.
func (r *Recording) Trigger() Trigger {
	if _, fi, ok := r.Best(); ok {
		return fi.Trigger
	}
	return TriggerNone
}

// Duration is the recording length.
func (r *Recording) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func newRecording(start, end time.Time) *Recording {
	return &Recording{Start: start, End: end, Streams: map[StreamType]FileInfo{}}
}

// clone returns a detached copy. The cache keeps merging stream files into
// its own recordings, so callers always get a copy they can read freely.
func (r *Recording) clone() *Recording {
	cp := *r
	cp.Streams = make(map[StreamType]FileInfo, len(r.Streams))
	for st, fi := range r.Streams {
		cp.Streams[st] = fi
	}
	return &cp
}

// Status lists the days of one month that have recordings. Days are kept
// sorted ascending.
type Status struct {
	YearMonth
	Days []int `json:"days"`
}

// StatusFromSearch converts a device day table like "0110..." where index i
// marks day i+1.
func StatusFromSearch(st reolink.SearchStatus) Status {
	s := Status{YearMonth: YearMonth{Year: st.Year, Month: time.Month(st.Mon)}}
	for i := 0; i < len(st.Table); i++ {
		if st.Table[i] != '0' {
			s.Days = append(s.Days, i+1)
		}
	}
	return s
}

// Contains reports whether day has recordings.
func (s Status) Contains(day int) bool {
	i := sort.SearchInts(s.Days, day)
	return i < len(s.Days) && s.Days[i] == day
}

// Dates returns the days as calendar dates.
func (s Status) Dates() []Date {
	dates := make([]Date, len(s.Days))
	for i, d := range s.Days {
		dates[i] = Date{Year: s.Year, Month: s.Month, Day: d}
	}
	return dates
}
