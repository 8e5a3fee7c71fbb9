// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Type representing satellite name like "G10"
type SatType string

// Type representing satellite system like 'G'
type SysType byte

// Observation code like "1C"
type CodeType string

// Extract satellite system from satellite name
func (p SatType) Sys() SysType {
	if len(p) == 0 {
		return 0
	}
	return SysType(p[0])
}

// Extract satellite number from satellite name
func (p SatType) Num() int {
	if len(p) < 2 {
		return 0
	}
	i, err := strconv.Atoi(string(p[1:]))
	if err != nil {
		return 0
	}
	return i
}

// Check validity of satellite system
func (p SysType) IsValid() bool {
	return p == 'G' || p == 'J' || p == 'E' || p == 'R' || p == 'C' || p == 'S'
}

// Number of carrier frequencies
const NFREQ = 4

// Observation data of one satellite in one epoch
type ObsS struct {
	Sat  SatType         `json:"sat"`
	Pr   [NFREQ]float64  `json:"pr"`   // Pseudorange [m]
	Cp   [NFREQ]float64  `json:"cp"`   // Carrier phase [cycle]
	Dp   [NFREQ]float64  `json:"dp"`   // Doppler frequency [Hz]
	Sn   [NFREQ]float64  `json:"sn"`   // Signal strength [dB-Hz]
	LLI  [NFREQ]byte     `json:"lli"`  // Loss-of-Lock Indicator (0: OK, 1: cycle slip, 2: half-cycle, 3: other)
	Freq [NFREQ]float64  `json:"freq"` // Carrier frequency [Hz]
	Code [NFREQ]CodeType `json:"code"` // Observation code (1C,2X,5I etc.)
}

// Whether frequency slot f carries a usable pseudorange
func (p *ObsS) Valid(f int) bool {
	return f >= 0 && f < NFREQ && p.Pr[f] != 0 && p.Freq[f] > 0
}

// Wavelength of frequency slot f (0 if unknown)
func (p *ObsS) Lambda(f int) float64 {
	if f < 0 || f >= NFREQ || p.Freq[f] <= 0 {
		return 0
	}
	return C / p.Freq[f]
}

// Observation data of all satellites in one epoch
type ObsE struct {
	Time GTime             `json:"time"`
	Rcv  int               `json:"rcv"` // Receiver (1: rover, 2: base)
	DatS map[SatType]*ObsS `json:"sats"`
}

// Return satellites in system/number order
func (p *ObsE) Sats() []SatType {
	s := make([]SatType, 0, len(p.DatS))
	for k := range p.DatS {
		s = append(s, k)
	}
	return Sorted(s)
}

// Return observations in system/number order
func (p *ObsE) List() []*ObsS {
	l := make([]*ObsS, 0, len(p.DatS))
	for _, sat := range p.Sats() {
		l = append(l, p.DatS[sat])
	}
	return l
}

// Observation data of one receiver for all epochs
type Obs struct {
	DatE  []*ObsE                // Sorted by time in ascending order
	Codes map[SysType][]CodeType // List of observation codes
}

// Sort epochs by time, drop duplicates and tag each record with its
// satellite and receiver. Called once while the session is set up.
func (p *Obs) Sort(rcv int) {
	for _, e := range p.DatE {
		e.Rcv = rcv
		for sat, o := range e.DatS {
			o.Sat = sat
		}
	}
	sort.SliceStable(p.DatE, func(i, j int) bool {
		return p.DatE[i].Time.Diff(p.DatE[j].Time) < 0
	})
	n := 0
	for i, e := range p.DatE {
		if i > 0 && math.Abs(e.Time.Diff(p.DatE[n-1].Time)) < DTTOL {
			continue
		}
		p.DatE[n] = e
		n++
	}
	p.DatE = p.DatE[:n]
}

// Display observation data overview
func (p *Obs) String() string {
	if len(p.DatE) == 0 {
		return "NO DATA"
	}
	sl := map[SysType][]SatType{}
	for _, obse := range p.DatE {
		for sat := range obse.DatS {
			if !slices.Contains(sl[sat.Sys()], sat) {
				sl[sat.Sys()] = append(sl[sat.Sys()], sat)
			}
		}
	}
	var sb strings.Builder
	for _, sys := range []SysType{'G', 'J', 'E', 'R', 'C', 'S'} {
		a := sl[sys]
		if len(a) == 0 {
			continue
		}
		a = Sorted(a)
		sb.WriteString(fmt.Sprintf("\t%c (%2d):", sys, len(a)))
		for _, b := range a {
			sb.WriteString(fmt.Sprintf(" %s", b[1:]))
		}
		sb.WriteString("\n")
	}
	return fmt.Sprintf("datetime:\n\t%s - %s (%d)\n\nsats:\n%s",
		p.DatE[0].Time, p.DatE[len(p.DatE)-1].Time, len(p.DatE), sb.String())
}

// Return the epoch closest in time to t within maxAge seconds
func (p *Obs) GetNearest(t GTime, maxAge float64) (*ObsE, error) {
	if len(p.DatE) == 0 {
		return nil, fmt.Errorf("the container is empty")
	}
	// First epoch not earlier than t
	i := sort.Search(len(p.DatE), func(i int) bool {
		return p.DatE[i].Time.Diff(t) >= 0
	})
	var obse *ObsE
	m := math.Inf(1)
	for _, k := range []int{i - 1, i} {
		if k < 0 || k >= len(p.DatE) {
			continue
		}
		d := math.Abs(p.DatE[k].Time.Diff(t))
		if d < m {
			obse, m = p.DatE[k], d
		}
	}
	if m > maxAge {
		return nil, fmt.Errorf("no nearest data is found within %.1f seconds. t=%s, m=%f", maxAge, t, m)
	}
	return obse, nil
}
