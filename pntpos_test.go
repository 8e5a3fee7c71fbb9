// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epochOf(t *testing.T, sky []skySat, dtr float64) (GTime, []*ObsS, *Providers) {
	t.Helper()
	tt := testTime(0)
	states := makeStates(testRover, sky)
	tbl := NewStateTable()
	for sat, st := range states {
		tbl.Put(tt, sat, st)
	}
	obse := makeObsE(tt, testRover, states, dtr)
	return tt, obse.List(), testProviders(tbl)
}

func assertNear(t *testing.T, want, got PosXYZ, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func TestPntPos(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky, 1e-4)

	sol, err := PntPos(tt, obs, prv, testOpt(), nil)
	require.NoError(t, err)

	assertNear(t, testRover, sol.Pos, 1e-3)
	assert.Equal(t, QualitySingle, sol.Quality)
	assert.Equal(t, len(testSky), sol.Ns)
	assert.InDelta(t, 1e-4, sol.Dtr[0], 1e-11)
	assert.InDelta(t, 0, tt.Add(-1e-4).Diff(sol.Time), 1e-9)
	assert.Empty(t, sol.Exclude)
	assert.Len(t, sol.ValidSats(), len(testSky))

	// Dilution of precision
	assert.Greater(t, sol.Dop[0], sol.Dop[1])
	assert.Greater(t, sol.Dop[1], sol.Dop[2])
	assert.Less(t, sol.Dop[0], 30.0)

	// Covariance is symmetric positive definite
	Q := sol.PosCov()
	for i := range 3 {
		assert.Greater(t, Q.At(i, i), 0.0)
		for j := range 3 {
			assert.Equal(t, Q.At(i, j), Q.At(j, i))
		}
	}
	_, err = invSym(Q)
	assert.NoError(t, err)

	// Static receiver
	assertNear(t, PosXYZ{}, sol.Vel, 1e-3)
	assert.Greater(t, sol.Qv[0], 0.0)

	// Exact observations give a negligible residual mean
	assert.InDelta(t, 0, sol.ResMean, 1e-3)
	for _, s := range sol.Sats {
		assert.True(t, s.Valid, s.Sat)
		assert.InDelta(t, 0, s.Res, 1e-3, s.Sat)
		assert.GreaterOrEqual(t, s.El, ToRad(15))
	}
}

func TestPntPosNoData(t *testing.T) {
	tt, _, prv := epochOf(t, testSky, 0)

	_, err := PntPos(tt, nil, prv, testOpt(), nil)
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, ClassData, Classify(err))
	assert.True(t, IsRecoverable(err))
}

func TestPntPosNoProvider(t *testing.T) {
	tt, obs, _ := epochOf(t, testSky, 0)

	_, err := PntPos(tt, obs, &Providers{}, testOpt(), nil)
	require.ErrorIs(t, err, ErrInvalidOption)
	assert.False(t, IsRecoverable(err))
}

func TestPntPosLackOfSats(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky[:3], 0)

	_, err := PntPos(tt, obs, prv, testOpt(), nil)
	require.ErrorIs(t, err, ErrLackOfSats)
	assert.True(t, IsRecoverable(err))
}

func TestPntPosGlonassOnly(t *testing.T) {
	sky := make([]skySat, 0, len(testSky))
	for i, s := range testSky {
		sky = append(sky, skySat{sat: SatType(fmt.Sprintf("R%02d", i+1)), az: s.az, el: s.el})
	}
	tt, obs, prv := epochOf(t, sky, 1e-4)

	sol, err := PntPos(tt, obs, prv, testOpt(), nil)
	require.NoError(t, err)

	assertNear(t, testRover, sol.Pos, 1e-3)
	assert.Equal(t, len(sky), sol.Ns)

	// The GLONASS offset absorbs what the constrained GPS clock does not
	assert.InDelta(t, 1e-4, sol.Dtr[0]+sol.Dtr[1], 1e-11)
}

func TestPntPosElevationMask(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky, 0)
	opt := testOpt()
	opt.ElMask = 35

	sol, err := PntPos(tt, obs, prv, opt, nil)
	require.NoError(t, err)

	// G03 (30 deg), G05 (28 deg) and G07 (25 deg) are masked
	assert.Equal(t, len(testSky)-3, sol.Ns)
	for _, s := range sol.Sats {
		if s.Sat == "G03" || s.Sat == "G05" || s.Sat == "G07" {
			assert.False(t, s.Valid, s.Sat)
			assert.Greater(t, s.El, 0.0, s.Sat)
		}
	}
}

func TestPntPosExcludedSats(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky, 0)
	opt := testOpt()
	opt.ExSats = SatVar{"G02"}

	sol, err := PntPos(tt, obs, prv, opt, nil)
	require.NoError(t, err)
	assert.Equal(t, len(testSky)-1, sol.Ns)
	assert.NotContains(t, sol.ValidSats(), SatType("G02"))
}

func TestPntPosUnhealthy(t *testing.T) {
	tt := testTime(0)
	states := makeStates(testRover, testSky)
	obse := makeObsE(tt, testRover, states, 0)

	g4 := states["G04"]
	g4.Svh = 1
	states["G04"] = g4
	tbl := NewStateTable()
	for sat, st := range states {
		tbl.Put(tt, sat, st)
	}

	sol, err := PntPos(tt, obse.List(), testProviders(tbl), testOpt(), nil)
	require.NoError(t, err)
	assert.NotContains(t, sol.ValidSats(), SatType("G04"))
}

func TestPntPosRAIM(t *testing.T) {
	sky := testSky[:6]
	tt, obs, prv := epochOf(t, sky, 0)

	// One blunder among sub-metre errors
	errs := map[SatType]float64{"G01": 0.6, "G02": -0.5, "G03": 50, "G04": 0.7, "G05": -0.6, "G06": 0.5}
	for _, o := range obs {
		o.Pr[0] += errs[o.Sat]
	}

	t.Run("without raim", func(t *testing.T) {
		opt := testOpt()
		opt.RAIM = false
		_, err := PntPos(tt, obs, prv, opt, nil)
		require.ErrorIs(t, err, ErrChiSquare)
		assert.Equal(t, ClassStatistical, Classify(err))
	})

	t.Run("with raim", func(t *testing.T) {
		sol, err := PntPos(tt, obs, prv, testOpt(), nil)
		require.NoError(t, err)

		assert.Equal(t, SatType("G03"), sol.Exclude)
		assertNear(t, testRover, sol.Pos, 5)
		assert.Equal(t, 5, sol.Ns)
		require.Len(t, sol.Sats, len(obs))
		for i, s := range sol.Sats {
			assert.Equal(t, obs[i].Sat, s.Sat)
			assert.Equal(t, s.Sat != "G03", s.Valid, s.Sat)
		}
	})
}

func TestPntPosNoChiTest(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky[:6], 0)
	obs[2].Pr[0] += 50
	opt := testOpt()
	opt.RAIM = false
	opt.NoChiTest = true

	sol, err := PntPos(tt, obs, prv, opt, nil)
	require.NoError(t, err)
	assert.Greater(t, sol.Pos.Sub(testRover).Norm(), 0.1)
}

func TestPntPosAdaptiveWeight(t *testing.T) {
	tt, obs, prv := epochOf(t, testSky, 0)
	opt := testOpt()
	opt.AdaptiveWeight = true

	sol, err := PntPos(tt, obs, prv, opt, nil)
	require.NoError(t, err)
	assertNear(t, testRover, sol.Pos, 1e-3)
}

func TestPntPosDGPS(t *testing.T) {
	tt := testTime(0)
	base := testRover.Add(PosXYZ{X: 800, Y: -500, Z: 300})
	states := makeStates(testRover, testSky)
	tbl := NewStateTable()
	for sat, st := range states {
		tbl.Put(tt, sat, st)
	}
	prv := testProviders(tbl)
	opt := testOpt()
	opt.Mode = DGPS
	opt.RefPos = RefFixed
	opt.RefXYZ = base

	bobs := makeObsE(tt, base, states, -2e-4)
	corr, err := DgpsCorrections(bobs, base, prv, opt)
	require.NoError(t, err)
	assert.Len(t, corr, len(testSky))

	robs := makeObsE(tt, testRover, states, 1e-4)
	sol, err := PntPos(tt, robs.List(), prv, opt, corr)
	require.NoError(t, err)
	assert.Equal(t, QualityDGPS, sol.Quality)
	assertNear(t, testRover, sol.Pos, 1e-3)

	// Relative clock of rover and base
	assert.InDelta(t, 3e-4, sol.Dtr[0], 1e-11)

	// Satellites without a correction are not used
	delete(corr, "G01")
	sol, err = PntPos(tt, robs.List(), prv, opt, corr)
	require.NoError(t, err)
	assert.NotContains(t, sol.ValidSats(), SatType("G01"))

	_, err = DgpsCorrections(nil, base, prv, opt)
	assert.ErrorIs(t, err, ErrNoBase)
}

func TestBuildResidualsDuplicate(t *testing.T) {
	tt, obs, _ := epochOf(t, testSky, 0)
	states := makeStates(testRover, testSky)
	rs := make([]SatState, 0, len(obs)+1)
	dup := make([]*ObsS, 0, len(obs)+1)
	for _, o := range obs {
		dup = append(dup, o)
		rs = append(rs, states[o.Sat])
		if o.Sat == "G02" {
			c := *o
			dup = append(dup, &c)
			rs = append(rs, states[o.Sat])
		}
	}
	ec := &estContext{opt: testOpt(), corr: zeroCorr{}}
	x := [NX]float64{testRover.X, testRover.Y, testRover.Z}

	set := buildResiduals(1, tt, dup, rs, x, ec)
	assert.Equal(t, len(testSky)-1, set.Ns)
	require.Len(t, set.Sats, len(dup))
	for _, s := range set.Sats {
		if s.Sat == "G02" {
			assert.False(t, s.Valid)
		}
	}

	// GPS only: three pseudo-rows for the unused system offsets
	assert.Equal(t, set.Ns+3, set.Nv())
	for i := set.Ns; i < set.Nv(); i++ {
		assert.Zero(t, set.V[i])
		assert.Equal(t, VAR_PSEUDO, set.Var[i])
	}
}

func TestBuildResidualsSnrMask(t *testing.T) {
	tt, obs, _ := epochOf(t, testSky, 0)
	states := makeStates(testRover, testSky)
	rs := make([]SatState, len(obs))
	for i, o := range obs {
		rs[i] = states[o.Sat]
	}
	obs[0].Sn[0] = 20
	opt := testOpt()
	opt.CnMask = 30
	ec := &estContext{opt: opt, corr: zeroCorr{}}
	x := [NX]float64{testRover.X, testRover.Y, testRover.Z}

	// Not applied at the first iteration
	assert.Equal(t, len(obs), buildResiduals(0, tt, obs, rs, x, ec).Ns)
	assert.Equal(t, len(obs)-1, buildResiduals(1, tt, obs, rs, x, ec).Ns)
}

func TestVarErr(t *testing.T) {
	opt := testOpt()
	el := ToRad(30)
	base := varErr(opt, 'G', el)
	assert.InDelta(t, SQ(100)*(SQ(0.003)+SQ(0.003)/0.5), base, 1e-12)
	assert.InDelta(t, SQ(EFACT_GLO)*base, varErr(opt, 'R', el), 1e-12)

	opt.IonoOpt = IonoIFLC
	assert.InDelta(t, 9*base, varErr(opt, 'G', el), 1e-12)
}

func TestSolveLS(t *testing.T) {
	tt, obs, _ := epochOf(t, testSky, 0)
	states := makeStates(testRover, testSky)
	rs := make([]SatState, len(obs))
	for i, o := range obs {
		rs[i] = states[o.Sat]
	}
	ec := &estContext{opt: testOpt(), corr: zeroCorr{}}

	_, set, err := estimatePosition(tt, obs, rs, ec)
	require.NoError(t, err)
	H, v := set.weighted(nil)
	dx, Q, err := SolveLS(H, v)
	require.NoError(t, err)
	assert.Equal(t, NX, dx.Len())
	n, m := Q.Dims()
	assert.Equal(t, NX, n)
	assert.Equal(t, NX, m)

	// Fewer equations than unknowns
	_, _, err = SolveLS(H.Slice(0, 3, 0, NX), v.SliceVec(0, 3))
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestDops(t *testing.T) {
	az := []float64{0, ToRad(90), ToRad(180), ToRad(270), 0}
	el := []float64{ToRad(30), ToRad(30), ToRad(30), ToRad(30), ToRad(90)}

	dop := Dops(az, el, ToRad(15))
	for i := range 4 {
		assert.Greater(t, dop[i], 0.0)
	}
	assert.InDelta(t, dop[1], math.Sqrt(SQ(dop[2])+SQ(dop[3])), 1e-9)

	// Masked out
	assert.Equal(t, [4]float64{}, Dops(az, el, ToRad(45)))
}
