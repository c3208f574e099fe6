// SPDX-License-Identifier: MIT

package vod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reovod/reovod/internal/reolink"
)

func TestTriggerFromName(t *testing.T) {
	cases := []struct {
		name string
		file string
		want Trigger
	}{
		{
			"motion high nibble",
			"Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28800_A4DE96.mp4",
			TriggerMotion,
		},
		{
			"motion low nibble",
			"Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28008_A4DE96.mp4",
			TriggerMotion,
		},
		{
			"person implies ai nibble",
			"Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28400_A4DE96.mp4",
			TriggerPerson,
		},
		{
			"timer",
			"Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28010_A4DE96.mp4",
			TriggerTimer,
		},
		{
			"pet",
			"Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28040_A4DE96.mp4",
			TriggerPet,
		},
		{
			"combined motion and person",
			"RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4",
			TriggerMotion | TriggerPerson,
		},
		{
			"no flag segment",
			"Rec_20230512_114100.mp4",
			TriggerNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TriggerFromName(tc.file))
		})
	}
}

func TestTriggerString(t *testing.T) {
	assert.Equal(t, "none", TriggerNone.String())
	assert.Equal(t, "motion,person", (TriggerMotion | TriggerPerson).String())
	assert.Equal(t, []string{"motion", "person"}, (TriggerMotion | TriggerPerson).Labels())
	assert.Nil(t, TriggerNone.Labels())
}

func TestParseStreamType(t *testing.T) {
	st, ok := ParseStreamType("Main")
	assert.True(t, ok)
	assert.Equal(t, StreamMain, st)

	_, ok = ParseStreamType("balanced")
	assert.False(t, ok)
}

func TestRecordingBestStream(t *testing.T) {
	rec := newRecording(time.Now(), time.Now().Add(time.Minute))
	_, _, ok := rec.Best()
	assert.False(t, ok)

	rec.Streams[StreamSub] = FileInfo{Name: "sub.mp4", Trigger: TriggerTimer}
	st, fi, ok := rec.Best()
	assert.True(t, ok)
	assert.Equal(t, StreamSub, st)
	assert.Equal(t, "sub.mp4", fi.Name)

	rec.Streams[StreamMain] = FileInfo{Name: "main.mp4", Trigger: TriggerMotion}
	st, fi, _ = rec.Best()
	assert.Equal(t, StreamMain, st)
	assert.Equal(t, "main.mp4", fi.Name)
	assert.Equal(t, TriggerMotion, rec.Trigger())

	// Requesting a missing stream falls back to the best one.
	st, _, ok = rec.Stream(StreamExt)
	assert.True(t, ok)
	assert.Equal(t, StreamMain, st)
}

func TestStatusFromSearch(t *testing.T) {
	st := StatusFromSearch(reolink.SearchStatus{
		Year:  2023,
		Mon:   5,
		Table: "0100000000010000000000000000001",
	})
	assert.Equal(t, YearMonth{Year: 2023, Month: time.May}, st.YearMonth)
	assert.Equal(t, []int{2, 12, 31}, st.Days)
	assert.True(t, st.Contains(12))
	assert.False(t, st.Contains(13))
	assert.Equal(t, Date{Year: 2023, Month: time.May, Day: 2}, st.Dates()[0])
}
