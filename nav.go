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
	"strings"
)

// Broadcast ephemeris (navigation data for one satellite, one issue)
type Ephe struct {

	// Common for G,J,E,C,R
	Sat  SatType
	Toc  GTime // Reference time for satellite clock error correction
	Toe  GTime // Reference time for satellite orbit calculation
	Tot  GTime // Transmission time
	Iode int

	// for GPS, QZSS, GALILEO, BEIDOU
	Af0    float64
	Af1    float64
	Af2    float64
	Crs    float64
	DeltaN float64
	M0     float64
	Cuc    float64
	Ecc    float64
	Cus    float64
	SqrtA  float64
	Cic    float64
	Omega0 float64
	Cis    float64
	I0     float64
	Crc    float64
	Omega  float64
	OmegaD float64
	Idot   float64
	Code   int
	Week   int
	Flag   int
	Sva    int
	Svh    int
	Tgd    float64 // GPS, QZS, GAL(E5a/E1), BDS(B1/B3)
	Tgd2   float64 // GAL(E5b/E1), BDS(B2/B3)
	Iodc   int     // GPS, QZS, BDS
	Fit    float64 // GPS, QZS

	// for GLONASS
	TauN   float64
	GammaN float64
	PosX   float64
	VecX   float64
	AccX   float64
	PosY   float64
	VecY   float64
	AccY   float64
	FreqN  int
	PosZ   float64
	VecZ   float64
	AccZ   float64
	Age    int
}

// Navigation data for each satellite
// - Map with satellite name as Key and slice sorted by transmission time (Tot) in ascending order as Value
type Nav map[SatType][]*Ephe

// Sort each satellite's ephemerides by transmission time
func (nav Nav) Sort() {
	for _, navs := range nav {
		sort.SliceStable(navs, func(i, j int) bool {
			return navs[i].Tot.Diff(navs[j].Tot) < 0
		})
	}
}

// Select the ephemeris with ToE closest to the specified time (RTKLIB method)
func (nav Nav) GetEphe(sat SatType, gt GTime) (*Ephe, error) {
	navs, ok := nav[sat]
	if !ok {
		return nil, fmt.Errorf("can't find %s", sat)
	}
	var diffMax float64
	switch sat.Sys() {
	case 'E':
		diffMax = 14400 // MAXDTOE_GAL
	case 'C':
		diffMax = 21601 // MAXDTOE_CMP
	case 'R':
		diffMax = 1800 // MAXDTOE_GLO
	default:
		diffMax = 7201
	}
	j := -1
	for i, eph := range navs {
		// For GALILEO, future ToE is not allowed
		if sat.Sys() == 'E' && eph.Toe.Diff(gt) >= 0 {
			continue
		}
		diff := math.Abs(eph.Toe.Diff(gt))
		if diff < diffMax {
			diffMax = diff
			j = i
		}
	}
	if j < 0 {
		return nil, fmt.Errorf("can't find a valid ephemeris for %s", sat)
	}
	return navs[j], nil
}

// Display navigation data overview
func (nav Nav) String() string {
	keys := []SatType{}
	for k := range nav {
		keys = append(keys, k)
	}
	var sb strings.Builder
	sb.WriteString("toc:\n")
	for _, sat := range Sorted(keys) {
		sb.WriteString(fmt.Sprintf("\t%s: ", sat))
		if n := len(nav[sat]); n > 0 {
			sb.WriteString(fmt.Sprintf("%s - %s (%d)\n", nav[sat][0].Toc, nav[sat][n-1].Toc, n))
		} else {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
