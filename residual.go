// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Inputs shared by the estimators of one epoch
type estContext struct {
	opt  *ProcOpt
	corr CorrectionProvider
	bias CodeBiasProvider    // nil: no code bias
	dgps map[SatType]float64 // Pseudorange corrections (nil: no DGPS)
}

// Pseudorange residuals of one iteration
type ResidualSet struct {
	V    []float64     // Residuals [m]
	H    [][NX]float64 // Design matrix rows
	Var  []float64     // Error variances [m^2]
	Sats []SatResidual // Parallel to the observations
	Ns   int           // Number of satellite rows (pseudo-rows excluded)
}

func (p *ResidualSet) Nv() int {
	return len(p.V)
}

// Weighted equations (rows scaled by 1/sigma). fact is applied to the sigma of
// satellite rows (nil: 1).
func (p *ResidualSet) weighted(fact []float64) (*mat.Dense, *mat.VecDense) {
	n := len(p.V)
	H := mat.NewDense(n, NX, nil)
	v := mat.NewVecDense(n, nil)
	for i := range n {
		sig := math.Sqrt(p.Var[i])
		if fact != nil && i < p.Ns {
			sig *= fact[i]
		}
		v.SetVec(i, p.V[i]/sig)
		for j := range NX {
			H.Set(i, j, p.H[i][j]/sig)
		}
	}
	return H, v
}

// Build pseudorange residuals at the state x
//   - Observations of the same satellite in a row are both rejected.
//   - Unused system offsets are constrained by pseudo-rows (v=0, var=0.01).
//   - At iteration 0 the broadcast ionosphere and Saastamoinen models are
//     used regardless of the options.
func buildResiduals(iter int, t GTime, obs []*ObsS, rs []SatState, x [NX]float64, ec *estContext) *ResidualSet {
	opt := ec.opt
	rr := PosXYZ{X: x[0], Y: x[1], Z: x[2]}
	llh := rr.ToLLH()

	set := &ResidualSet{
		V:    make([]float64, 0, len(obs)+4),
		H:    make([][NX]float64, 0, len(obs)+4),
		Var:  make([]float64, 0, len(obs)+4),
		Sats: make([]SatResidual, len(obs)),
	}
	mask := [4]bool{}

	n := min(len(obs), MAXOBS)
	for i := 0; i < n; i++ {
		o := obs[i]
		sr := &set.Sats[i]
		sr.Sat = o.Sat
		sr.Sn = o.Sn[0]
		sys := o.Sat.Sys()
		if !sys.IsValid() {
			continue
		}

		// Duplicated observation
		if i < n-1 && o.Sat == obs[i+1].Sat {
			lg().Debug("duplicated observation data", "time", t.String(), "sat", o.Sat)
			set.Sats[i+1].Sat = o.Sat
			i++
			continue
		}

		// Geometric distance, azimuth and elevation
		if !rs[i].HasGeometry() {
			continue
		}
		r, e := GeoDist(rs[i].Pos, rr)
		if r <= 0 {
			continue
		}
		az, el := SatAzEl(llh, e)
		sr.Az, sr.El = az, el
		if el < opt.ElMaskRad() {
			continue
		}

		// Pseudorange with code bias correction
		P, vmeas := prange(o, t, iter, ec)
		if P == 0 {
			continue
		}

		// Excluded satellite
		if excluded(o.Sat, rs[i], opt) {
			continue
		}

		dts := rs[i].Clk
		var dion, vion, dtrp, vtrp float64
		if ec.dgps != nil {
			corr, ok := ec.dgps[o.Sat]
			if !ok {
				tracef("no dgps correction", "sat", o.Sat)
				continue
			}
			P += corr
			dts = 0
		} else {
			dion, vion = ionoCorr(t, o, rr, az, el, iter, ec)
			dtrp, vtrp = tropCorr(t, rr, az, el, iter, ec)
		}

		// Residual and design matrix row
		v := P - (r + x[3] - C*dts + dion + dtrp)
		h := [NX]float64{-e.X, -e.Y, -e.Z, 1}
		switch sys {
		case 'R':
			v -= x[4]
			h[4] = 1
			mask[1] = true
		case 'E':
			v -= x[5]
			h[5] = 1
			mask[2] = true
		case 'C':
			v -= x[6]
			h[6] = 1
			mask[3] = true
		default:
			mask[0] = true
		}

		vr := varErr(opt, sys, el) + rs[i].Var + vmeas + vion + vtrp
		set.V = append(set.V, v)
		set.H = append(set.H, h)
		set.Var = append(set.Var, vr)
		sr.Res, sr.Var, sr.Valid = v, vr, true
		set.Ns++

		tracef("residual", "iter", iter, "sat", o.Sat, "az", ToDeg(az), "el", ToDeg(el), "res", v, "r", r, "dtr", x[3], "dts", C*dts, "ion", dion, "trp", dtrp)
	}

	// Constraints against rank deficiency
	for i := range 4 {
		if mask[i] {
			continue
		}
		h := [NX]float64{}
		h[i+3] = 1
		set.V = append(set.V, 0)
		set.H = append(set.H, h)
		set.Var = append(set.Var, VAR_PSEUDO)
	}
	return set
}

// Satellite exclusion by health and ephemeris variance
func excluded(sat SatType, s SatState, opt *ProcOpt) bool {
	if !opt.Usable(sat) {
		return true
	}
	svh := s.Svh
	if sat.Sys() == 'J' && svh > 0 {
		svh &^= 1 // LSB of QZSS health is ignored
	}
	if svh != 0 {
		lg().Debug("unhealthy satellite", "sat", sat, "svh", svh)
		return true
	}
	if s.Var > MAX_VAR_EPH {
		lg().Debug("invalid ura", "sat", sat, "std", math.Sqrt(s.Var))
		return true
	}
	return false
}

// Pseudorange corrected for code biases. Returns 0 if unusable.
func prange(o *ObsS, t GTime, iter int, ec *estContext) (P, vmeas float64) {
	opt := ec.opt
	bias := func(f int) float64 {
		if ec.bias == nil {
			return 0
		}
		return ec.bias.CodeBias(t, o.Sat, f)
	}
	snrMasked := func(f int) bool {
		return iter > 0 && opt.CnMask > 0 && o.Sn[f] < opt.CnMask
	}

	if !o.Valid(0) || snrMasked(0) {
		return 0, 0
	}
	vmeas = SQ(ERR_CBIAS)
	P1 := o.Pr[0] - bias(0)

	if opt.IonoOpt == IonoIFLC {
		if !o.Valid(1) || snrMasked(1) {
			return 0, 0
		}
		P2 := o.Pr[1] - bias(1)
		gamma := SQ(o.Freq[0] / o.Freq[1])
		return (gamma*P1 - P2) / (gamma - 1), vmeas
	}
	return P1, vmeas
}

// Ionospheric delay on the first frequency and its variance
func ionoCorr(t GTime, o *ObsS, rr PosXYZ, az, el float64, iter int, ec *estContext) (float64, float64) {
	mode := ec.opt.IonoOpt
	if iter == 0 {
		mode = IonoBrdc
	}
	switch mode {
	case IonoBrdc:
		if ec.corr == nil {
			return 0, SQ(ERR_ION)
		}
		ion, vion := ec.corr.IonoDelay(t, o.Sat, rr, az, el)
		return ion * SQ(L1/o.Freq[0]), vion
	case IonoIFLC:
		return 0, 0
	default:
		return 0, SQ(ERR_ION)
	}
}

// Tropospheric delay and its variance
func tropCorr(t GTime, rr PosXYZ, az, el float64, iter int, ec *estContext) (float64, float64) {
	mode := ec.opt.TropOpt
	if iter == 0 {
		mode = TropSaas
	}
	if mode == TropSaas && ec.corr != nil {
		return ec.corr.TropDelay(t, rr, az, el)
	}
	return 0, SQ(ERR_TROP)
}

// Pseudorange error variance by elevation
func varErr(opt *ProcOpt, sys SysType, el float64) float64 {
	fact := EFACT_GPS
	switch sys {
	case 'R':
		fact = EFACT_GLO
	case 'S':
		fact = EFACT_SBS
	}
	varr := SQ(opt.Err[0]) * (SQ(opt.Err[1]) + SQ(opt.Err[2])/math.Sin(el))
	if opt.IonoOpt == IonoIFLC {
		varr *= SQ(3.0)
	}
	return SQ(fact) * varr
}
