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
)

// RAIM FDE (failure detection and exclusion)
// Re-estimates with each observation left out in turn and keeps the candidate
// with the smallest RMS of the valid residuals. The residual set of the
// winner is returned parallel to obs, with the excluded satellite invalid.
func raimFDE(t GTime, obs []*ObsS, rs []SatState, ec *estContext) (*Solution, *ResidualSet, SatType, error) {
	n := len(obs)
	rms := RAIM_RMS

	var best *Solution
	var bestSet *ResidualSet
	var exsat SatType
	exidx := -1

	obsE := make([]*ObsS, 0, n-1)
	rsE := make([]SatState, 0, n-1)
	for i := range n {

		// Leave out observation i
		obsE, rsE = obsE[:0], rsE[:0]
		for j := range n {
			if j == i {
				continue
			}
			obsE = append(obsE, obs[j])
			rsE = append(rsE, rs[j])
		}

		sol, set, err := estimatePosition(t, obsE, rsE, ec)
		if err != nil {
			tracef("raim: estimate failed", "exsat", obs[i].Sat, "err", err)
			continue
		}
		nvsat := 0
		rmsE := 0.0
		for _, s := range set.Sats {
			if !s.Valid {
				continue
			}
			rmsE += SQ(s.Res)
			nvsat++
		}
		if nvsat < MIN_NVS {
			tracef("raim: lack of satellites", "exsat", obs[i].Sat, "nvsat", nvsat)
			continue
		}
		rmsE = math.Sqrt(rmsE / float64(nvsat))
		tracef("raim", "exsat", obs[i].Sat, "rms", rmsE)
		if rmsE > rms {
			continue
		}
		best, bestSet, exsat, exidx, rms = sol, set, obs[i].Sat, i, rmsE
	}
	if best == nil {
		return nil, nil, "", fmt.Errorf("%w: n=%d", ErrRAIMFailed, n)
	}

	// Residual records back in the order of obs
	sats := make([]SatResidual, n)
	for j, k := 0, 0; j < n; j++ {
		if j == exidx {
			sats[j] = SatResidual{Sat: obs[j].Sat, Sn: obs[j].Sn[0]}
			continue
		}
		sats[j] = bestSet.Sats[k]
		k++
	}
	bestSet.Sats = sats
	best.Sats = sats

	lg().Debug("excluded by raim", "time", t.String(), "sat", exsat, "rms", rms)
	return best, bestSet, exsat, nil
}
