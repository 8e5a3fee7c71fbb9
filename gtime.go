// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"math"
	"time"
)

// Seconds in one GPS week
const WEEK_SEC = 604800.0

// GPS time as week number and seconds of week
type GTime struct {
	Week int     `json:"week" yaml:"week"`
	Sec  float64 `json:"sec" yaml:"sec"`
}

func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC).Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

func (p GTime) ToTime() time.Time {
	o := time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC).Unix() // GPS time starts from 1980/1/6 00:00:00
	i := int64(math.Floor(p.Sec))
	t := int64(3600*24*7*p.Week) + i + o
	n := int64(math.Round((p.Sec - float64(i)) * 1e9))
	return time.Unix(t, n) // Unix time is the elapsed seconds since 1970/1/1 00:00:00
}

// Add seconds. The result is normalized into [0, WEEK_SEC).
func (p GTime) Add(sec float64) GTime {
	t := GTime{Week: p.Week, Sec: p.Sec + sec}
	for t.Sec < 0 {
		t.Sec += WEEK_SEC
		t.Week--
	}
	for t.Sec >= WEEK_SEC {
		t.Sec -= WEEK_SEC
		t.Week++
	}
	return t
}

// Difference p - b in seconds
func (p GTime) Diff(b GTime) float64 {
	return float64(p.Week-b.Week)*WEEK_SEC + (p.Sec - b.Sec)
}

func (p GTime) IsZero() bool {
	return p.Week == 0 && p.Sec == 0
}

func (p GTime) Less(b GTime, roundSec bool) bool {
	if p.Week == b.Week {
		if roundSec {
			return math.Round(p.Sec) < math.Round(b.Sec)
		}
		return p.Sec < b.Sec
	}
	return p.Week < b.Week
}

func (p GTime) Before(t time.Time, roundSec bool) bool {
	return p.Less(*NewGTime(t), roundSec)
}

func (p GTime) After(t time.Time, roundSec bool) bool {
	return NewGTime(t).Less(p, roundSec)
}

func (p GTime) Divisible(sec int) bool {
	return int(math.Round(p.Sec))%sec == 0
}

// Format as "2006/01/02 15:04:05.000" in GPST
func (p GTime) String() string {
	return p.ToTime().UTC().Format("2006/01/02 15:04:05.000")
}
