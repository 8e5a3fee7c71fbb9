// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuality(t *testing.T) {
	assert.True(t, QualityFix.Better(QualityFloat))
	assert.True(t, QualityDGPS.Better(QualitySingle))
	assert.False(t, QualitySingle.Better(QualitySingle))

	assert.Equal(t, QualityFloat, QualityFix.Degrade())
	assert.Equal(t, QualitySingle, QualitySBAS.Degrade())
	assert.Equal(t, QualityNone, QualityNone.Degrade())

	assert.Equal(t, 1, QualityFix.Q())
	assert.Equal(t, 5, QualitySingle.Q())
	assert.Equal(t, "dgps", QualityDGPS.String())
}

func TestSolutionSequence(t *testing.T) {
	seq := NewSolutionSequence(2)
	require.NoError(t, seq.Append(testSol(0, QualitySingle, testRover, 1), testRover))
	require.NoError(t, seq.Append(testSol(1, QualitySingle, testRover.Add(PosXYZ{X: 2}), 1), testRover))

	err := seq.Append(testSol(2, QualitySingle, testRover, 1), testRover)
	require.ErrorIs(t, err, ErrSequenceFull)
	assert.Equal(t, ClassFatal, Classify(err))
	assert.Equal(t, 2, seq.Len())

	assertNear(t, testRover.Add(PosXYZ{X: 1}), seq.MeanPos(), 1e-6)
	assert.True(t, seq.Ascending())

	seq.Reject(testTime(3), ErrGDOP)
	seq.Note(testTime(1), "G05 excluded by raim")
	assert.Equal(t, 1, seq.Rejected())
	assert.Len(t, seq.Diag, 2)
	assert.Contains(t, seq.Diag[0].String(), "gdop error")

	assert.Equal(t, PosXYZ{}, NewSolutionSequence(-1).MeanPos())
}

func TestCovArray(t *testing.T) {
	q := [6]float64{1, 2, 3, 0.1, 0.2, 0.3}
	Q := covFromArray(q)
	assert.Equal(t, 0.1, Q.At(1, 0))
	assert.Equal(t, 0.2, Q.At(2, 1))
	assert.Equal(t, 0.3, Q.At(0, 2))
	assert.Equal(t, q, covToArray(Q))
	assert.Equal(t, 6.0, covTrace(q))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassNone},
		{fmt.Errorf("%w ns=3", ErrLackOfSats), ClassData},
		{fmt.Errorf("%w: n=6", ErrRAIMFailed), ClassData},
		{ErrNoBase, ClassData},
		{fmt.Errorf("%w i=10", ErrDivergent), ClassNumerical},
		{ErrSingular, ClassNumerical},
		{fmt.Errorf("%w nv=9 vv=20.0 cs=13.8", ErrChiSquare), ClassStatistical},
		{ErrGDOP, ClassStatistical},
		{ErrNoRoverData, ClassFatal},
		{errors.New("disk full"), ClassFatal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.True(t, IsRecoverable(nil))
	assert.Equal(t, "statistical", ClassStatistical.String())
}

func TestSummarize(t *testing.T) {
	seq := NewSolutionSequence(4)
	offsets := []PosXYZ{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
	for i, d := range offsets {
		sol := testSol(float64(i), QualitySingle, testRover.Add(d), 1)
		sol.Dop = [4]float64{2, 1.5, 1, 1}
		sol.Sats = []SatResidual{
			{Sat: "G01", Debiased: 0.3, Valid: true},
			{Sat: "G02", Debiased: -0.4, Valid: true},
			{Sat: "G03", Debiased: 100},
		}
		if i == 0 {
			sol.Quality = QualityFix
		}
		require.NoError(t, seq.Append(sol, testRover))
	}
	seq.Reject(testTime(5), ErrLackOfSats)

	sum := Summarize(seq)
	assert.Equal(t, 4, sum.N)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.Count[QualityFix])
	assert.Equal(t, 3, sum.Count[QualitySingle])
	assert.InDelta(t, 0.25, sum.FixRatio, 1e-12)
	assertNear(t, testRover, sum.MeanPos, 1e-6)
	assert.InDelta(t, 1.5, sum.MeanPDOP, 1e-12)
	assert.InDelta(t, 8.0, sum.MeanNs, 1e-12)
	assert.InDelta(t, math.Sqrt((0.09+0.16)/2), sum.ResRMS, 1e-9)
	assert.InDelta(t, 1.7320508, sum.Sigma50, 1e-6)

	// Unit scatter split over the local axes
	v := SQ(sum.StdENU[0]) + SQ(sum.StdENU[1]) + SQ(sum.StdENU[2])
	assert.InDelta(t, 1.0, v, 1e-6)
	assert.Contains(t, sum.String(), "fix=1 single=3")

	empty := Summarize(NewSolutionSequence(0))
	assert.Zero(t, empty.N)
	assert.Zero(t, Summarize(nil).N)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "trace", Format: "json"}, &buf)
	SetLogger(l)
	defer SetLogger(nil)

	tracef("residual", "sat", "G01")
	assert.Contains(t, buf.String(), `"msg":"residual"`)

	buf.Reset()
	SetLogger(NewLogger(LogConfig{Level: "warn"}, &buf))
	lg().Info("hidden")
	lg().Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, LevelTrace, ParseLevel("TRACE"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
