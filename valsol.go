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

	"gonum.org/v1/gonum/mat"
)

// Validate the solution by the chi-square test of the weighted residuals and
// the GDOP of the valid satellites. sol.Dop is set on return.
func validateSolution(set *ResidualSet, v mat.Vector, opt *ProcOpt, sol *Solution) error {

	// Chi-square test
	nv := v.Len()
	if !opt.NoChiTest && nv > NX {
		vv := mat.Dot(v, v)
		if cs := ChiSqr(nv - NX - 1); vv > cs {
			return fmt.Errorf("%w nv=%d vv=%.1f cs=%.1f", ErrChiSquare, nv, vv, cs)
		}
	}

	// GDOP test
	az := make([]float64, 0, len(set.Sats))
	el := make([]float64, 0, len(set.Sats))
	for _, s := range set.Sats {
		if !s.Valid {
			continue
		}
		az = append(az, s.Az)
		el = append(el, s.El)
	}
	sol.Dop = Dops(az, el, opt.ElMaskRad())
	if sol.Dop[0] <= 0 || sol.Dop[0] > opt.MaxGDOP {
		return fmt.Errorf("%w nv=%d gdop=%.1f", ErrGDOP, nv, sol.Dop[0])
	}
	return nil
}

// Dilution of precision (GDOP, PDOP, HDOP, VDOP) of satellites at az/el
// above elMask. All zero with fewer than 4 satellites.
func Dops(az, el []float64, elMask float64) [4]float64 {
	var dop [4]float64
	rows := []float64{}
	n := 0
	for i := range az {
		if el[i] < elMask || el[i] <= 0 {
			continue
		}
		cosel := math.Cos(el[i])
		rows = append(rows, cosel*math.Sin(az[i]), cosel*math.Cos(az[i]), math.Sin(el[i]), 1)
		n++
	}
	if n < 4 {
		return dop
	}
	H := mat.NewDense(n, 4, rows)
	A := mat.NewSymDense(4, nil)
	A.SymOuterK(1, H.T())
	Q, err := invSym(A)
	if err != nil {
		return dop
	}
	dop[0] = math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2) + Q.At(3, 3))
	dop[1] = math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2))
	dop[2] = math.Sqrt(Q.At(0, 0) + Q.At(1, 1))
	dop[3] = math.Sqrt(Q.At(2, 2))
	return dop
}
