// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Estimate the receiver velocity and clock drift from Doppler observations
// of the valid satellites. sol.Vel and sol.Qv are left zero when the
// estimation does not converge.
func estimateVelocity(obs []*ObsS, rs []SatState, sol *Solution) {
	var x [NXV]float64
	for i := 0; i < MAXITR; i++ {
		H, v := dopplerResiduals(obs, rs, sol, x)
		if v == nil {
			tracef("estvel: lack of doppler", "time", sol.Time.String())
			return
		}
		dx, Q, err := SolveLS(H, v)
		if err != nil {
			lg().Debug("estvel: lsq failed", "time", sol.Time.String(), "err", err)
			return
		}
		for j := range NXV {
			x[j] += dx.AtVec(j)
		}
		if floats.Norm(dx.RawVector().Data, 2) < CONV_VEL {
			sol.Vel = PosXYZ{X: x[0], Y: x[1], Z: x[2]}
			sol.Qv = covToArray(Q)
			return
		}
	}
}

// Range-rate residuals at velocity state x. nil if fewer than NXV rows.
func dopplerResiduals(obs []*ObsS, rs []SatState, sol *Solution, x [NXV]float64) (*mat.Dense, *mat.VecDense) {
	rr := sol.Pos
	llh := rr.ToLLH()
	vr := PosXYZ{X: x[0], Y: x[1], Z: x[2]}

	rows := []float64{}
	vals := []float64{}
	for i, o := range obs {
		if i >= len(sol.Sats) || i >= MAXOBS {
			break
		}
		s := sol.Sats[i]
		lam := o.Lambda(0)
		if o.Dp[0] == 0 || lam == 0 || !s.Valid || rs[i].Vel.Norm() <= 0 {
			continue
		}

		// Line-of-sight vector in ECEF
		e := AzElToENU(s.Az, s.El).Unrotate(llh)

		// Satellite velocity relative to the receiver
		vs := rs[i].Vel.Sub(vr)

		// Range rate with earth rotation correction
		rate := vs.Dot(e) + OMGE/C*(rs[i].Vel.Y*rr.X+rs[i].Pos.Y*vr.X-rs[i].Vel.X*rr.Y-rs[i].Pos.X*vr.Y)

		vals = append(vals, -lam*o.Dp[0]-(rate+x[3]-C*rs[i].ClkDrift))
		rows = append(rows, -e.X, -e.Y, -e.Z, 1)
	}
	if len(vals) < NXV {
		return nil, nil
	}
	return mat.NewDense(len(vals), NXV, rows), mat.NewVecDense(len(vals), vals)
}
