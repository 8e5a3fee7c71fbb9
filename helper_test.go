// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"time"
)

// Satellite seen from the rover at azimuth/elevation [deg]
type skySat struct {
	sat    SatType
	az, el float64
}

var testSky = []skySat{
	{"G01", 10, 80},
	{"G02", 60, 45},
	{"G03", 120, 30},
	{"G04", 180, 55},
	{"G05", 240, 28},
	{"G06", 300, 40},
	{"G07", 30, 25},
	{"G08", 210, 65},
}

var testRover = PosLLH{Lat: ToRad(35.6812), Lon: ToRad(139.7671), Hei: 40}.ToXYZ()

// Zero atmospheric delays with zero variance
type zeroCorr struct{}

func (zeroCorr) IonoDelay(GTime, SatType, PosXYZ, float64, float64) (float64, float64) {
	return 0, 0
}

func (zeroCorr) TropDelay(GTime, PosXYZ, float64, float64) (float64, float64) {
	return 0, 0
}

func testTime(sec float64) GTime {
	t := *NewGTime(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	return t.Add(sec)
}

// Satellite states 22000 km from rr in the directions of sky
func makeStates(rr PosXYZ, sky []skySat) map[SatType]SatState {
	llh := rr.ToLLH()
	states := map[SatType]SatState{}
	for k, s := range sky {
		los := AzElToENU(ToRad(s.az), ToRad(s.el)).Unrotate(llh)
		vel := PosXYZ{X: -los.Y, Y: los.X, Z: 0.3}.Scale(2500)
		states[s.sat] = SatState{
			Pos: rr.Add(los.Scale(2.2e7)),
			Vel: vel,
			Clk: 1e-5 * float64(k+1),
		}
	}
	return states
}

// Exact observations of a static receiver at rr with clock bias dtr [s]
func makeObsE(t GTime, rr PosXYZ, states map[SatType]SatState, dtr float64) *ObsE {
	obse := &ObsE{Time: t, DatS: map[SatType]*ObsS{}}
	for sat, st := range states {
		r, e := GeoDist(st.Pos, rr)
		o := &ObsS{Sat: sat}
		o.Freq[0] = L1
		if sat.Sys() == 'R' {
			o.Freq[0] = G1
		}
		o.Pr[0] = r + C*dtr - C*st.Clk
		o.Sn[0] = 45
		rate := st.Vel.Dot(e) + OMGE/C*(st.Vel.Y*rr.X-st.Vel.X*rr.Y)
		o.Dp[0] = -(rate - C*st.ClkDrift) / o.Lambda(0)
		obse.DatS[sat] = o
	}
	return obse
}

// Rover (and base) observations of n epochs at 1 Hz with their states
func makeSession(n int, rover PosXYZ, base *PosXYZ, sky []skySat) (*Obs, *Obs, *StateTable) {
	tbl := NewStateTable()
	robs := &Obs{}
	var bobs *Obs
	if base != nil {
		bobs = &Obs{}
	}
	states := makeStates(rover, sky)
	for i := range n {
		t := testTime(float64(i))
		for sat, st := range states {
			tbl.Put(t, sat, st)
		}
		robs.DatE = append(robs.DatE, makeObsE(t, rover, states, 1e-4))
		if base != nil {
			bobs.DatE = append(bobs.DatE, makeObsE(t, *base, states, -2e-4))
		}
	}
	return robs, bobs, tbl
}

func testOpt() *ProcOpt {
	opt := NewProcOpt()
	opt.NavSys = SysVar{'G', 'J', 'E', 'R', 'C'}
	return opt
}

func testProviders(tbl *StateTable) *Providers {
	return &Providers{Eph: tbl, Corr: zeroCorr{}}
}
