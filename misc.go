// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func ToRad(deg float64) float64 {
	return deg / 180.0 * PI
}

// ------------------------------------
// For command argument parsing (pflag.Value)
// ------------------------------------

// List of satellite systems like "G,E,R"
type SysVar []SysType

func (p *SysVar) Set(s string) error {
	*p = []SysType{}
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if len(a) == 0 {
			continue
		}
		sys := SysType(a[0])
		if !sys.IsValid() {
			return fmt.Errorf("unknown satellite system %q", a)
		}
		*p = append(*p, sys)
	}
	return nil
}

func (p *SysVar) String() string {
	a := make([]string, len(*p))
	for i, s := range *p {
		a[i] = string(rune(s))
	}
	return strings.Join(a, ",")
}

func (p *SysVar) Type() string {
	return "systems"
}

// List of satellites like "C02,E14"
type SatVar []SatType

func (p *SatVar) Set(s string) error {
	*p = []SatType{}
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if len(a) == 0 {
			continue
		}
		if len(a) != 3 {
			return fmt.Errorf("satellite must be like G05, got %q", a)
		}
		*p = append(*p, SatType(a))
	}
	return nil
}

func (p *SatVar) String() string {
	a := make([]string, len(*p))
	for i, s := range *p {
		a[i] = string(s)
	}
	return strings.Join(a, ",")
}

func (p *SatVar) Type() string {
	return "sats"
}

// Date and time in "2006/01/02 15:04:05" (GPST), also used in the options file
type TimeStr time.Time

func (p TimeStr) MarshalText() ([]byte, error) {
	if time.Time(p).IsZero() {
		return []byte{}, nil
	}
	return []byte(time.Time(p).Format("2006/01/02 15:04:05")), nil
}

func (p *TimeStr) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = TimeStr(time.Time{})
		return nil
	}
	t, err := time.Parse("2006/01/02 15:04:05", string(text))
	if err != nil {
		return err
	}
	*p = TimeStr(t)
	return nil
}

func (p *TimeStr) Set(s string) error {
	return p.UnmarshalText([]byte(s))
}

func (p *TimeStr) String() string {
	b, _ := p.MarshalText()
	return string(b)
}

func (p *TimeStr) Type() string {
	return "time"
}

// ------------------------------------
// Others
// ------------------------------------

var sysOrder = map[SysType]int{'G': 0, 'J': 1, 'E': 2, 'R': 3, 'C': 4, 'S': 5}

// Sort the list of satellite names (G, J, E, R, C, S then by number)
func Sorted(s []SatType) []SatType {
	s2 := make([]SatType, len(s))
	copy(s2, s)
	sort.Slice(s2, func(i, j int) bool {
		return satLess(s2[i], s2[j])
	})
	return s2
}

func satLess(a, b SatType) bool {
	if sysOrder[a.Sys()] == sysOrder[b.Sys()] {
		return a < b
	}
	return sysOrder[a.Sys()] < sysOrder[b.Sys()]
}

// Chi-squared test (α=0.001)
func ChiSqr(i int) float64 {
	v := [...]float64{
		10.8, 13.8, 16.3, 18.5, 20.5, 22.5, 24.3, 26.1, 27.9, 29.6,
		31.3, 32.9, 34.5, 36.1, 37.7, 39.3, 40.8, 42.3, 43.8, 45.3,
		46.8, 48.3, 49.7, 51.2, 52.6, 54.1, 55.5, 56.9, 58.3, 59.7,
		61.1, 62.5, 63.9, 65.2, 66.6, 68.0, 69.3, 70.7, 72.1, 73.4,
		74.7, 76.0, 77.3, 78.6, 80.0, 81.3, 82.6, 84.0, 85.4, 86.7,
		88.0, 89.3, 90.6, 91.9, 93.3, 94.7, 96.0, 97.4, 98.7, 100,
		101, 102, 103, 104, 105, 107, 108, 109, 110, 112,
		113, 114, 115, 116, 118, 119, 120, 122, 123, 125,
		126, 127, 128, 129, 131, 132, 133, 134, 135, 137,
		138, 139, 140, 142, 143, 144, 145, 147, 148, 149}
	if i < 0 {
		return 0
	}
	if i < len(v) {
		return v[i]
	}
	return v[len(v)-1]
}
