// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Implements single point positioning (SPP) of one epoch with pseudorange
// and Doppler observations.

package gopos

import (
	"fmt"
)

// Providers of satellite states, corrections and biases
type Providers struct {
	Eph   EphemerisProvider
	Corr  CorrectionProvider
	Bias  CodeBiasProvider  // nil: no code bias
	Phase PhaseBiasProvider // nil: no phase bias
}

func (p *Providers) validate() error {
	if p == nil || p.Eph == nil {
		return fmt.Errorf("%w: no ephemeris provider", ErrInvalidOption)
	}
	return nil
}

// PntPos computes the receiver position, velocity and clock bias of one epoch
//
// Parameters:
//   - t: Observation time
//   - obs: Observations in system/number order
//   - prv: Satellite states, corrections and biases
//   - opt: Processing options
//   - dgps: Pseudorange corrections from the base station (nil: none)
//
// Returns:
//   - Solution with the residual snapshot
//   - error: Non-fatal rejection of the epoch (see Classify)
func PntPos(t GTime, obs []*ObsS, prv *Providers, opt *ProcOpt, dgps map[SatType]float64) (*Solution, error) {

	if len(obs) == 0 {
		return nil, ErrNoData
	}
	if err := prv.validate(); err != nil {
		return nil, err
	}
	if len(obs) > MAXOBS {
		lg().Warn("too many observations, truncated", "time", t.String(), "n", len(obs), "max", MAXOBS)
		obs = obs[:MAXOBS]
	}

	ec := &estContext{opt: opt, corr: prv.Corr, bias: prv.Bias, dgps: dgps}

	// Satellite positions, velocities and clocks
	rs := prv.Eph.SatStates(t, obs)

	// Estimate receiver position with pseudorange
	sol, _, err := estimatePosition(t, obs, rs, ec)

	// RAIM FDE
	if err != nil && opt.RAIM && len(obs) >= MIN_RAIM {
		rsol, _, exsat, rerr := raimFDE(t, obs, rs, ec)
		if rerr == nil {
			sol, err = rsol, nil
			sol.Exclude = exsat
		} else {
			lg().Debug("raim failed", "time", t.String(), "err", rerr)
		}
	}
	if err != nil {
		return nil, err
	}

	// Estimate receiver velocity with Doppler
	estimateVelocity(obs, rs, sol)

	// Debias the residual snapshot by the dominant cluster
	res := make([]float64, len(sol.Sats))
	for i := range sol.Sats {
		res[i] = sol.Sats[i].Res
	}
	mean, debiased := ClusterMean(res)
	sol.ResMean = mean
	for i := range sol.Sats {
		sol.Sats[i].Debiased = debiased[i]
	}
	return sol, nil
}

// Pseudorange corrections of the base station at the known position ref.
// The correction of a satellite is its geometric range minus the corrected
// pseudorange; the base clock is absorbed by the rover clock estimate.
func DgpsCorrections(base *ObsE, ref PosXYZ, prv *Providers, opt *ProcOpt) (map[SatType]float64, error) {
	if base == nil || len(base.DatS) == 0 {
		return nil, ErrNoBase
	}
	if err := prv.validate(); err != nil {
		return nil, err
	}
	obs := base.List()
	rs := prv.Eph.SatStates(base.Time, obs)
	ec := &estContext{opt: opt, corr: prv.Corr, bias: prv.Bias}

	corr := map[SatType]float64{}
	for i, o := range obs {
		if excluded(o.Sat, rs[i], opt) || !rs[i].HasGeometry() {
			continue
		}
		r, _ := GeoDist(rs[i].Pos, ref)
		if r <= 0 {
			continue
		}
		P, _ := prange(o, base.Time, 0, ec)
		if P == 0 {
			continue
		}
		corr[o.Sat] = r - P
	}
	if len(corr) == 0 {
		return nil, fmt.Errorf("%w: no correction at %s", ErrNoBase, base.Time)
	}
	return corr, nil
}
