// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Robust mean of residuals by MAD screening or density clustering.

package gopos

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

const (
	MED_ZERO    = 1e-6 // Values at or below this magnitude are ignored by Median
	RES_ZERO    = 1e-9 // Residuals below this magnitude are ignored by ClusterMean
	MAD_SCALE   = 0.6745
	MAD_K       = 4.0 // Samples within MAD_K*MAD of the median are kept
	CLUSTER_EPS = 1.5 // DBSCAN radius for residuals [m]
	CLUSTER_MIN = 0.5 // DBSCAN MinPts as a fraction of the samples
)

// Lower median of the non-zero values (0 if none)
func Median(x []float64) float64 {
	a := make([]float64, 0, len(x))
	for _, v := range x {
		if math.Abs(v) > MED_ZERO {
			a = append(a, v)
		}
	}
	if len(a) == 0 {
		return 0
	}
	slices.Sort(a)
	return stat.Quantile(0.5, stat.Empirical, a, nil)
}

// Mean of the samples within 4 MAD of the median.
// Returns the mean, the MAD and the samples minus the mean.
func MedianMean(data []float64) (mean, mad float64, debiased []float64) {
	debiased = make([]float64, len(data))
	if len(data) == 0 {
		return 0, 0, debiased
	}
	med := Median(data)
	vv := make([]float64, len(data))
	for i, v := range data {
		vv[i] = math.Abs(v-med) / MAD_SCALE
	}
	mad = Median(vv)

	nok := 0
	for i, v := range data {
		if vv[i]*MAD_SCALE < MAD_K*mad {
			nok++
			mean += (v - mean) / float64(nok)
		} else {
			tracef("mad outlier", "i", i, "v", v, "median", med, "mad", mad)
		}
	}
	for i, v := range data {
		debiased[i] = v - mean
	}
	return mean, mad, debiased
}

// Mean of the first DBSCAN cluster of the non-negligible residuals.
// Returns the mean and the residuals minus the mean (negligible ones untouched).
func ClusterMean(res []float64) (mean float64, debiased []float64) {
	debiased = make([]float64, len(res))
	copy(debiased, res)

	points := make([]ClusterPoint, 0, len(res))
	for _, r := range res {
		if math.Abs(r) < RES_ZERO {
			continue
		}
		points = append(points, NewClusterPoint(r))
	}
	if len(points) == 0 {
		return 0, debiased
	}
	minPts := int(CLUSTER_MIN * float64(len(points)))
	if minPts < 1 {
		minPts = 1
	}
	if _, err := DBSCAN(points, ClusteringParams{Eps: CLUSTER_EPS, MinPts: minPts}); err != nil {
		lg().Debug("dbscan failed", "err", err)
		return 0, debiased
	}
	n := 0
	for _, p := range points {
		if p.Cluster != 1 {
			continue
		}
		n++
		mean += (p.X[0] - mean) / float64(n)
	}
	for i, r := range res {
		if math.Abs(r) < RES_ZERO {
			continue
		}
		debiased[i] = r - mean
	}
	tracef("cluster mean", "n", len(points), "mean", mean)
	return mean, debiased
}

// Inflation of the standard deviation of a residual from the MAD of the
// epoch (1 inside 3 MAD)
func madFactor(v, mad float64) float64 {
	if mad == 0 || mad >= 5 {
		return 1
	}
	if r := math.Abs(v / mad); r >= 3 {
		return r / 2
	}
	return 1
}

// Variance inflation of each residual measured from the robust mean
func adaptiveFactors(debiased []float64, mad float64) []float64 {
	fact := make([]float64, len(debiased))
	for i, v := range debiased {
		fact[i] = madFactor(v, mad)
	}
	return fact
}
