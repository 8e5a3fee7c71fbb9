// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Estimate the receiver position, clock bias and system time offsets by
// iterative weighted least squares starting from the geocenter.
//
// The residual set of the last iteration is returned along with the error so
// that callers can report az/el and residuals of a rejected epoch.
func estimatePosition(t GTime, obs []*ObsS, rs []SatState, ec *estContext) (*Solution, *ResidualSet, error) {

	// State: x, y, z, dtr*C, GLO-GPS, GAL-GPS, BDS-GPS [m]
	var x [NX]float64

	var set *ResidualSet
	for i := 0; i < MAXITR; i++ {

		// Pseudorange residuals
		set = buildResiduals(i, t, obs, rs, x, ec)
		nv := set.Nv()
		if nv < NX {
			return nil, set, fmt.Errorf("%w ns=%d", ErrLackOfSats, nv)
		}

		// MAD of the satellite residuals for adaptive weighting
		var fact []float64
		_, mad, debiased := MedianMean(set.V[:set.Ns])
		if ec.opt.AdaptiveWeight {
			fact = adaptiveFactors(debiased, mad)
		}

		// Weight by variance and solve
		H, v := set.weighted(fact)
		dx, Q, err := SolveLS(H, v)
		if err != nil {
			return nil, set, err
		}
		for j := range NX {
			x[j] += dx.AtVec(j)
		}
		tracef("estpos", "iter", i+1, "x", x[0], "y", x[1], "z", x[2], "dtr", x[3], "mad", mad)

		if floats.Norm(dx.RawVector().Data, 2) >= CONV_POS {
			continue
		}

		sol := &Solution{
			Time: t.Add(-x[3] / C),
			Pos:  PosXYZ{X: x[0], Y: x[1], Z: x[2]},
			Dtr:  [4]float64{x[3] / C, x[4] / C, x[5] / C, x[6] / C},
			Qr:   covToArray(Q),
			Ns:   set.Ns,
			Sats: set.Sats,
		}

		// Validate solution
		if err := validateSolution(set, v, ec.opt, sol); err != nil {
			return sol, set, err
		}
		switch {
		case ec.opt.SatEph == EphSBAS:
			sol.Quality = QualitySBAS
		case ec.dgps != nil:
			sol.Quality = QualityDGPS
		default:
			sol.Quality = QualitySingle
		}
		return sol, set, nil
	}
	return nil, set, fmt.Errorf("%w i=%d", ErrDivergent, MAXITR)
}
