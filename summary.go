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
	"strings"

	"github.com/montanaflynn/stats"
)

// Statistics of a solution sequence
type Summary struct {
	N        int             `json:"n"`        // Number of solutions
	Rejected int             `json:"rejected"` // Number of rejected epochs
	Count    map[Quality]int `json:"count"`    // Solutions per tier
	FixRatio float64         `json:"fixratio"` // Fix / all
	MeanPos  PosXYZ          `json:"meanpos"`  // Mean position (ECEF) [m]
	StdENU   [3]float64      `json:"stdenu"`   // Standard deviation about the mean position (E, N, U) [m]
	Sigma50  float64         `json:"sigma50"`  // Median of the formal 3D sigmas [m]
	MeanNs   float64         `json:"meanns"`   // Mean number of valid satellites
	MeanPDOP float64         `json:"meanpdop"` // Mean PDOP
	ResRMS   float64         `json:"resrms"`   // RMS of the debiased residuals of valid satellites [m]
}

// Summarize a solution sequence. An empty sequence gives a zero summary.
func Summarize(seq *SolutionSequence) *Summary {
	sum := &Summary{Count: map[Quality]int{}}
	if seq == nil {
		return sum
	}
	sum.N = seq.Len()
	sum.Rejected = seq.Rejected()
	if sum.N == 0 {
		return sum
	}
	sum.MeanPos = seq.MeanPos()

	var e, n, u, sig, ns, pdop, res stats.Float64Data
	for i := range seq.Sols {
		sol := &seq.Sols[i]
		sum.Count[sol.Quality]++

		enu := sol.Pos.ToENU(sum.MeanPos)
		e = append(e, enu.E)
		n = append(n, enu.N)
		u = append(u, enu.U)
		sig = append(sig, posRMS(sol.Qr))
		ns = append(ns, float64(sol.Ns))
		if sol.Dop[1] > 0 {
			pdop = append(pdop, sol.Dop[1])
		}
		for _, s := range sol.Sats {
			if s.Valid {
				res = append(res, s.Debiased)
			}
		}
	}
	sum.FixRatio = float64(sum.Count[QualityFix]) / float64(sum.N)
	for k, d := range []stats.Float64Data{e, n, u} {
		sum.StdENU[k], _ = stats.StandardDeviation(d)
	}
	sum.Sigma50, _ = stats.Percentile(sig, 50)
	sum.MeanNs, _ = stats.Mean(ns)
	if len(pdop) > 0 {
		sum.MeanPDOP, _ = stats.Mean(pdop)
	}
	if len(res) > 0 {
		ss := 0.0
		for _, r := range res {
			ss += r * r
		}
		sum.ResRMS = math.Sqrt(ss / float64(len(res)))
	}
	return sum
}

func (s *Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "solutions=%d rejected=%d", s.N, s.Rejected)
	for q := QualityFix; q > QualityNone; q-- {
		if c := s.Count[q]; c > 0 {
			fmt.Fprintf(&sb, " %s=%d", q, c)
		}
	}
	fmt.Fprintf(&sb, " fix=%.1f%% std(enu)=%.3f,%.3f,%.3f res=%.3f", s.FixRatio*100, s.StdENU[0], s.StdENU[1], s.StdENU[2], s.ResRMS)
	return sb.String()
}
