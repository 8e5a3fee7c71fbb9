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

// Combine the forward (ascending) and backward (descending) solutions into
// one sequence in ascending order of time.
//   - Solutions without a counterpart within DTTOL are passed through.
//   - Of a matched pair with different tiers the better one is taken.
//   - A matched pair of the same tier is fused by the smoother.
func Combine(fwd, bwd *SolutionSequence, opt *ProcOpt) (*SolutionSequence, error) {
	nf, nb := fwd.Len(), bwd.Len()
	out := NewSolutionSequence(nf + nb)

	i, j := 0, nb-1
	for i < nf || j >= 0 {
		var sol Solution
		var ref PosXYZ
		switch {
		case j < 0:
			sol, ref = fwd.Sols[i], fwd.Ref[i]
			i++
		case i >= nf:
			sol, ref = bwd.Sols[j], bwd.Ref[j]
			j--
		default:
			sf, sb := &fwd.Sols[i], &bwd.Sols[j]
			tt := sf.Time.Diff(sb.Time)
			switch {
			case tt < -DTTOL:
				sol, ref = *sf, fwd.Ref[i]
				i++
			case tt > DTTOL:
				sol, ref = *sb, bwd.Ref[j]
				j--
			case sf.Quality.Better(sb.Quality):
				sol, ref = *sf, fwd.Ref[i]
				i++
				j--
			case sb.Quality.Better(sf.Quality):
				sol, ref = *sb, fwd.Ref[i]
				i++
				j--
			default:
				sol = combinePair(sf, sb, tt, opt, out)
				ref = fwd.Ref[i]
				i++
				j--
			}
		}
		if err := out.Append(sol, ref); err != nil {
			return out, err
		}
	}
	lg().Info("combined", "forward", nf, "backward", nb, "solutions", out.Len())
	return out, nil
}

// Fuse a matched pair of the same tier
func combinePair(sf, sb *Solution, tt float64, opt *ProcOpt, out *SolutionSequence) Solution {
	sol := *sf
	sol.Time = sf.Time.Add(-tt / 2)

	// Degrade fix to float if validation failed
	if sol.Quality == QualityFix && opt.ValidateFix && !validateCombined(sf, sb) {
		sol.Quality = QualityFloat
	}

	xs, Qs, err := Smoother(posVec(sf.Pos), sf.PosCov(), posVec(sb.Pos), sb.PosCov())
	if err != nil {
		out.Note(sol.Time, fmt.Sprintf("smoother error: %v", err))
		lg().Warn("smoother failed", "time", sol.Time.String(), "err", err)
		alt := *sf
		if covTrace(sb.Qr) < covTrace(sf.Qr) {
			alt = *sb
		}
		alt.Quality = alt.Quality.Degrade()
		return alt
	}
	sol.Pos = PosXYZ{X: xs.AtVec(0), Y: xs.AtVec(1), Z: xs.AtVec(2)}
	sol.Qr = covToArray(Qs)

	if opt.SmoothVelocity && positiveCov(sf.Qv) && positiveCov(sb.Qv) {
		vs, Qvs, err := Smoother(posVec(sf.Vel), sf.VelCov(), posVec(sb.Vel), sb.VelCov())
		if err == nil {
			sol.Vel = PosXYZ{X: vs.AtVec(0), Y: vs.AtVec(1), Z: vs.AtVec(2)}
			sol.Qv = covToArray(Qvs)
		} else {
			tracef("velocity smoother failed", "time", sol.Time.String(), "err", err)
		}
	}
	return sol
}

// Smoother fuses two estimates with their covariances
//   - Qs = (Qf^-1 + Qb^-1)^-1
//   - xs = Qs (Qf^-1 xf + Qb^-1 xb)
func Smoother(xf mat.Vector, Qf mat.Symmetric, xb mat.Vector, Qb mat.Symmetric) (*mat.VecDense, *mat.SymDense, error) {
	n := xf.Len()
	nf, _ := Qf.Dims()
	nb, _ := Qb.Dims()
	if xb.Len() != n || nf != n || nb != n {
		return nil, nil, fmt.Errorf("invalid dimensions, xf=%d, Qf=%d, xb=%d, Qb=%d", n, nf, xb.Len(), nb)
	}
	invQf, err := invSym(Qf)
	if err != nil {
		return nil, nil, err
	}
	invQb, err := invSym(Qb)
	if err != nil {
		return nil, nil, err
	}
	var sum mat.SymDense
	sum.AddSym(invQf, invQb)
	Qs, err := invSym(&sum)
	if err != nil {
		return nil, nil, err
	}

	var a, b mat.VecDense
	a.MulVec(invQf, xf)
	b.MulVec(invQb, xb)
	a.AddVec(&a, &b)
	xs := mat.NewVecDense(n, nil)
	xs.MulVec(Qs, &a)
	return xs, Qs, nil
}

// Fixed solutions agree within 4 sigma on every axis
func validateCombined(sf, sb *Solution) bool {
	dr := sf.Pos.Sub(sb.Pos).Array()
	for k := range 3 {
		v := sf.Qr[k] + sb.Qr[k]
		if SQ(dr[k]) <= 16*v {
			continue
		}
		lg().Debug("degrade fix to float", "time", sf.Time.String(), "axis", k, "dr", dr[k], "std", math.Sqrt(v))
		return false
	}
	return true
}

func posVec(p PosXYZ) *mat.VecDense {
	return mat.NewVecDense(3, []float64{p.X, p.Y, p.Z})
}

func positiveCov(q [6]float64) bool {
	return q[0] > 0 && q[1] > 0 && q[2] > 0
}
