// SPDX-License-Identifier: MIT

package reolink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// command is the request envelope; the API takes a JSON array of these.
type command struct {
	Cmd    string `json:"cmd"`
	Action int    `json:"action"`
	Param  any    `json:"param,omitempty"`
}

// reply is the response envelope.
type reply struct {
	Cmd   string          `json:"cmd"`
	Code  int             `json:"code"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *cmdError       `json:"error,omitempty"`
}

type cmdError struct {
	RspCode int    `json:"rspCode"`
	Detail  string `json:"detail"`
}

// IntOrString handles fields that some firmwares return as "123" and others as 123.
type IntOrString int64

func (v *IntOrString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*v = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("reolink: invalid numeric string %q", s)
		}
		*v = IntOrString(i)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("reolink: invalid json number: %s", string(b))
	}
	i, err := n.Int64()
	if err != nil {
		// Some firmwares report sizes with a fractional part.
		f, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("reolink: not numeric: %s", n.String())
		}
		i = int64(f)
	}
	*v = IntOrString(i)
	return nil
}

// BoolInt handles flags returned as 0/1 or true/false.
type BoolInt bool

func (v *BoolInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "1", "true":
		*v = true
	case "0", "false", "null", `""`:
		*v = false
	default:
		return fmt.Errorf("reolink: invalid flag value: %s", string(b))
	}
	return nil
}

// TimeTable is the wire form of date/time values.
type TimeTable struct {
	Year int `json:"year"`
	Mon  int `json:"mon"`
	Day  int `json:"day"`
	Hour int `json:"hour"`
	Min  int `json:"min"`
	Sec  int `json:"sec"`
}

// SearchStatus marks the recording days of one month. Table is a "01" string
// with one flag per day.
type SearchStatus struct {
	Year  int    `json:"year"`
	Mon   int    `json:"mon"`
	Table string `json:"table"`
}

// SearchFile is one recorded clip as reported by Search.
type SearchFile struct {
	StartTime TimeTable   `json:"StartTime"`
	EndTime   TimeTable   `json:"EndTime"`
	FrameRate IntOrString `json:"frameRate"`
	Width     IntOrString `json:"width"`
	Height    IntOrString `json:"height"`
	Size      IntOrString `json:"size"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
}

// SearchResult is the value of a Search reply.
type SearchResult struct {
	Channel  int            `json:"channel"`
	Statuses []SearchStatus `json:"Status"`
	Files    []SearchFile   `json:"File"`
}

type searchResultValue struct {
	SearchResult SearchResult `json:"SearchResult"`
}

type searchParam struct {
	Search searchRequest `json:"Search"`
}

type searchRequest struct {
	Channel    int       `json:"channel"`
	OnlyStatus int       `json:"onlyStatus"`
	StreamType string    `json:"streamType"`
	StartTime  TimeTable `json:"StartTime"`
	EndTime    TimeTable `json:"EndTime"`
}

// DstRule is one end of the device's daylight-saving window: the weekday of
// the week'th week of month, at the given wall time.
type DstRule struct {
	Mon     int
	Week    int
	Weekday int
	Hour    int
	Min     int
	Sec     int
}

// Dst carries the device daylight-saving configuration. The wire format is
// flat (startMon, startWeek, ..., endMon, ...), hence the custom decoder.
type Dst struct {
	Enable BoolInt
	Offset int // DST shift in hours
	Start  DstRule
	End    DstRule
}

func (d *Dst) UnmarshalJSON(b []byte) error {
	var flat struct {
		Enable       BoolInt `json:"enable"`
		Offset       int     `json:"offset"`
		StartMon     int     `json:"startMon"`
		StartWeek    int     `json:"startWeek"`
		StartWeekday int     `json:"startWeekday"`
		StartHour    int     `json:"startHour"`
		StartMin     int     `json:"startMin"`
		StartSec     int     `json:"startSec"`
		EndMon       int     `json:"endMon"`
		EndWeek      int     `json:"endWeek"`
		EndWeekday   int     `json:"endWeekday"`
		EndHour      int     `json:"endHour"`
		EndMin       int     `json:"endMin"`
		EndSec       int     `json:"endSec"`
	}
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	d.Enable = flat.Enable
	d.Offset = flat.Offset
	d.Start = DstRule{flat.StartMon, flat.StartWeek, flat.StartWeekday, flat.StartHour, flat.StartMin, flat.StartSec}
	d.End = DstRule{flat.EndMon, flat.EndWeek, flat.EndWeekday, flat.EndHour, flat.EndMin, flat.EndSec}
	return nil
}

// TimeInfo is the Time member of GetTime. TimeZone is seconds with the sign
// inverted relative to UTC offsets (Reolink reports UTC+2 as -7200).
type TimeInfo struct {
	TimeTable
	TimeZone int `json:"timeZone"`
}

// DeviceTime is the value of a GetTime reply.
type DeviceTime struct {
	Dst  Dst      `json:"Dst"`
	Time TimeInfo `json:"Time"`
}

// ChannelStatus describes one channel of a camera or NVR.
type ChannelStatus struct {
	Channel int     `json:"channel"`
	Name    string  `json:"name"`
	Online  BoolInt `json:"online"`
	Type    string  `json:"typeInfo"`
}

type channelStatusValue struct {
	Count  int             `json:"count"`
	Status []ChannelStatus `json:"status"`
}

type loginParam struct {
	User loginUser `json:"User"`
}

type loginUser struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginValue struct {
	Token struct {
		Name      string `json:"name"`
		LeaseTime int    `json:"leaseTime"`
	} `json:"Token"`
}
