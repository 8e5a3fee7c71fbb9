// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"math"
)

// Time step of the numerical differentiation of broadcast orbits [s]
const EPH_DT = 1e-3

// EphemerisProvider backed by broadcast navigation data
type BroadcastEphemeris struct {
	Nav Nav
}

func NewBroadcastEphemeris(nav Nav) *BroadcastEphemeris {
	nav.Sort()
	return &BroadcastEphemeris{Nav: nav}
}

// Compute satellite states at transmission time for each observation
// - Transmission time = receiver time - pseudorange / C - satellite clock
// - Velocity and clock drift by differencing over EPH_DT
func (p *BroadcastEphemeris) SatStates(t GTime, obs []*ObsS) []SatState {
	rs := make([]SatState, len(obs))
	for i, o := range obs {
		rs[i].Svh = -1

		// Use the first available pseudorange
		pr := 0.0
		for f := range NFREQ {
			if o.Pr[f] != 0 {
				pr = o.Pr[f]
				break
			}
		}
		if pr == 0 {
			lg().Debug("no pseudorange", "sat", o.Sat, "time", t)
			continue
		}
		tt := t.Add(-pr / C)

		eph, err := p.Nav.GetEphe(o.Sat, tt)
		if err != nil {
			lg().Debug("no broadcast ephemeris", "sat", o.Sat, "time", tt, "err", err)
			continue
		}
		tt = tt.Add(-satClk(eph, tt))

		pos := SatPos(eph, tt)
		pos2 := SatPos(eph, tt.Add(EPH_DT))
		clk := satClk(eph, tt)
		clk2 := satClk(eph, tt.Add(EPH_DT))
		if pos.IsZero() {
			continue
		}
		rs[i] = SatState{
			Pos:      pos,
			Vel:      pos2.Sub(pos).Scale(1 / EPH_DT),
			Clk:      clk,
			ClkDrift: (clk2 - clk) / EPH_DT,
			Var:      uraEphe(o.Sat, eph.Sva),
			Svh:      eph.Svh,
		}
	}
	return rs
}

// Replace nominal GLONASS G1/G2 frequencies by FDMA channel frequencies
func (p *BroadcastEphemeris) AdjustGloFreq(obs *Obs) {
	for _, obse := range obs.DatE {
		for sat, o := range obse.DatS {
			if sat.Sys() != 'R' {
				continue
			}
			eph, err := p.Nav.GetEphe(sat, obse.Time)
			if err != nil {
				continue
			}
			for f := range NFREQ {
				switch o.Freq[f] {
				case G1:
					o.Freq[f] = G1 + G1d*float64(eph.FreqN)
				case G2:
					o.Freq[f] = G2 + G2d*float64(eph.FreqN)
				}
			}
		}
	}
}

// Calculate satellite position (ECEF at transmission time t)
func SatPos(e *Ephe, t GTime) (xyz PosXYZ) {
	dOMGe := OMGE      // Earth rotation angular velocity [rad/s]
	Mue := 3.986005e14 // Earth gravitational constant [m^3/s^2]
	if e.Sat.Sys() == 'E' {
		Mue = 3.986004418e14
	} else if e.Sat.Sys() == 'C' {
		dOMGe = 7.292115e-5
		Mue = 3.986004418e14
	}
	switch e.Sat.Sys() {
	case 'G', 'J', 'E', 'C':
		if e.SqrtA <= 0 {
			return
		}
		tk := t.Diff(e.Toe)
		n := math.Sqrt(Mue)/e.SqrtA/e.SqrtA/e.SqrtA + e.DeltaN
		mk := e.M0 + n*tk
		ek := keplerE(mk, e.Ecc)
		rk := e.SqrtA * e.SqrtA * (1 - e.Ecc*math.Cos(ek))
		vk := math.Atan2(math.Sqrt(1-e.Ecc*e.Ecc)*math.Sin(ek), math.Cos(ek)-e.Ecc)
		pk := vk + e.Omega
		d_uk := e.Cus*math.Sin(2*pk) + e.Cuc*math.Cos(2*pk)
		d_rk := e.Crs*math.Sin(2*pk) + e.Crc*math.Cos(2*pk)
		d_ik := e.Cis*math.Sin(2*pk) + e.Cic*math.Cos(2*pk)
		uk := pk + d_uk
		rk = rk + d_rk
		ik := e.I0 + d_ik + e.Idot*tk
		xk := rk * math.Cos(uk)
		yk := rk * math.Sin(uk)
		toes := e.Toe.Sec
		if e.Sat.Sys() == 'C' {
			toes -= 14 // BDT
		}
		if e.Sat.Sys() == 'C' && (e.Sat.Num() <= 5 || e.Sat.Num() >= 59) { // Beidou geostationary
			omk := e.Omega0 + e.OmegaD*tk - dOMGe*toes
			xg := xk*math.Cos(omk) - yk*math.Sin(omk)*math.Cos(ik)
			yg := xk*math.Sin(omk) + yk*math.Cos(omk)*math.Cos(ik)
			zg := yk * math.Sin(ik)
			sino := math.Sin(dOMGe * tk)
			coso := math.Cos(dOMGe * tk)
			cos5 := math.Cos(ToRad(-5))
			sin5 := math.Sin(ToRad(-5))
			xyz.X = xg*coso + yg*sino*cos5 + zg*sino*sin5
			xyz.Y = -xg*sino + yg*coso*cos5 + zg*coso*sin5
			xyz.Z = -yg*sin5 + zg*cos5
			return
		}
		omk := e.Omega0 + (e.OmegaD-dOMGe)*tk - dOMGe*toes
		xyz.X = xk*math.Cos(omk) - yk*math.Sin(omk)*math.Cos(ik)
		xyz.Y = xk*math.Sin(omk) + yk*math.Cos(omk)*math.Cos(ik)
		xyz.Z = yk * math.Sin(ik)
	case 'R':
		tk := t.Diff(e.Toe)
		x := [6]float64{e.PosX, e.PosY, e.PosZ, e.VecX, e.VecY, e.VecZ}
		acc := [3]float64{e.AccX, e.AccY, e.AccZ}
		const TSTEP = 60.0
		tt := TSTEP
		if tk < 0 {
			tt = -TSTEP
		}
		for math.Abs(tk) > 1e-9 {
			if math.Abs(tk) < TSTEP {
				tt = tk
			}
			glorbit(tt, &x, acc)
			tk -= tt
		}
		xyz = PosXYZ{X: x[0], Y: x[1], Z: x[2]}
	}
	return
}

// Eccentric anomaly by Newton iteration
func keplerE(mk, ecc float64) float64 {
	ek := mk
	for i := 0; i < 30; i++ {
		d := (ek - ecc*math.Sin(ek) - mk) / (1 - ecc*math.Cos(ek))
		ek -= d
		if math.Abs(d) < 1e-13 {
			break
		}
	}
	return ek
}

// Satellite clock offset including the relativistic term, excluding group delay [s]
func satClk(e *Ephe, t GTime) (dts float64) {
	Mue := 3.986005e14
	sys := e.Sat.Sys()
	if sys == 'E' || sys == 'C' {
		Mue = 3.986004418e14
	}
	switch sys {
	case 'G', 'J', 'E', 'C':
		if e.SqrtA <= 0 {
			return 0
		}
		// Clock polynomial (evaluated at the clock-corrected time, two passes)
		tk := t.Diff(e.Toc)
		for i := 0; i < 2; i++ {
			tk -= e.Af0 + e.Af1*tk + e.Af2*tk*tk
		}
		dt := e.Af0 + e.Af1*tk + e.Af2*tk*tk

		// Relativistic correction
		tk = t.Diff(e.Toe)
		n := math.Sqrt(Mue)/e.SqrtA/e.SqrtA/e.SqrtA + e.DeltaN
		ek := keplerE(e.M0+n*tk, e.Ecc)
		tr := -2 * math.Sqrt(Mue) / C / C * e.Ecc * e.SqrtA * math.Sin(ek)
		dts = dt + tr
	case 'R':
		tk := t.Diff(e.Toe) // GLONASS uses Toe
		for i := 0; i < 2; i++ {
			tk -= -e.TauN + e.GammaN*tk
		}
		dts = -e.TauN + e.GammaN*tk
	}
	return
}

// User Range Accuracy (URA) variance of broadcast ephemeris [m^2]
func uraEphe(sat SatType, ura int) float64 {
	uraVal := [...]float64{2.4, 3.4, 4.85, 6.85, 9.65, 13.65, 24.0, 48.0, 96.0, 192.0, 384.0, 768.0, 1536.0, 3072.0, 6144.0}
	switch sat.Sys() {
	case 'E': // Galileo SIS ICD v2.1
		if ura <= 49 {
			return SQ(float64(ura) * 0.01)
		} else if ura <= 74 {
			return SQ(0.5 + (float64(ura)-50)*0.02)
		} else if ura <= 99 {
			return SQ(1.0 + (float64(ura)-75)*0.04)
		} else if ura <= 125 {
			return SQ(2.0 + (float64(ura)-100)*0.16)
		}
		return SQ(500.0)
	case 'R':
		return SQ(5.0)
	default:
		if ura < 0 || ura > 14 {
			return SQ(6144.0)
		}
		return SQ(uraVal[ura])
	}
}

// GLONASS orbit differential equations
func deq(x [6]float64, xdot *[6]float64, acc [3]float64) {
	const dOMGeR = 7.292115e-5 // Earth rotation angular velocity [rad/s] for GLONASS
	const OMG2 = dOMGeR * dOMGeR
	const J2_GLO = 1.0826257e-3
	const MU_GLO = 3.9860044e14
	const RE_GLO = 6378136.0

	r2 := x[0]*x[0] + x[1]*x[1] + x[2]*x[2]
	if r2 <= 0 {
		*xdot = [6]float64{}
		return
	}
	r3 := r2 * math.Sqrt(r2)
	a := 1.5 * J2_GLO * MU_GLO * (RE_GLO * RE_GLO) / r2 / r3
	b := 5.0 * x[2] * x[2] / r2
	c := -MU_GLO/r3 - a*(1.0-b)
	xdot[0] = x[3]
	xdot[1] = x[4]
	xdot[2] = x[5]
	xdot[3] = (c+OMG2)*x[0] + 2.0*dOMGeR*x[4] + acc[0]
	xdot[4] = (c+OMG2)*x[1] - 2.0*dOMGeR*x[3] + acc[1]
	xdot[5] = (c-2.0*a)*x[2] + acc[2]
}

// GLONASS orbit integration by 4th-order Runge-Kutta
func glorbit(t float64, x *[6]float64, acc [3]float64) {
	var k1, k2, k3, k4, w [6]float64
	deq(*x, &k1, acc)
	for i := range 6 {
		w[i] = x[i] + k1[i]*t/2.0
	}
	deq(w, &k2, acc)
	for i := range 6 {
		w[i] = x[i] + k2[i]*t/2.0
	}
	deq(w, &k3, acc)
	for i := range 6 {
		w[i] = x[i] + k3[i]*t
	}
	deq(w, &k4, acc)
	for i := range 6 {
		x[i] += (k1[i] + 2.0*k2[i] + 2.0*k3[i] + k4[i]) * t / 6.0
	}
}

// ------------------------------------
// TGDBias
// ------------------------------------

// CodeBiasProvider from broadcast group delays. Frequency slots are assumed
// to be 0: L1/E1/B1I, 1: L2/E5a/B3I.
type TGDBias struct {
	Nav Nav
}

func (p *TGDBias) CodeBias(t GTime, sat SatType, f int) float64 {
	eph, err := p.Nav.GetEphe(sat, t)
	if err != nil {
		return 0
	}
	switch sat.Sys() {
	case 'G', 'J':
		if f == 0 {
			return eph.Tgd * C
		}
		if f == 1 {
			return SQ(L1/L2) * eph.Tgd * C
		}
	case 'E':
		if f == 0 {
			return eph.Tgd * C
		}
		if f == 1 {
			return SQ(E1/L5) * eph.Tgd * C
		}
	case 'C':
		if f == 0 {
			return eph.Tgd * C // B1I/B3I, B3I is the clock reference
		}
	}
	return 0
}
