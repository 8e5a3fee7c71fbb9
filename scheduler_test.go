// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cancels the pass after n epochs have been computed
type cancelAfter struct {
	EphemerisProvider
	n      int
	cancel context.CancelFunc
}

func (p *cancelAfter) SatStates(t GTime, obs []*ObsS) []SatState {
	p.n--
	if p.n == 0 {
		p.cancel()
	}
	return p.EphemerisProvider.SatStates(t, obs)
}

func newScheduler(n int) *EpochScheduler {
	rover, _, tbl := makeSession(n, testRover, nil, testSky)
	rover.Sort(1)
	return &EpochScheduler{
		Rover: rover,
		Prv:   testProviders(tbl),
		Opt:   testOpt(),
	}
}

func TestSchedulerForward(t *testing.T) {
	s := newScheduler(10)

	seq, err := s.Run(context.Background(), Forward)
	require.NoError(t, err)
	assert.Equal(t, 10, seq.Len())
	assert.Equal(t, 10, seq.Cap())
	assert.True(t, seq.Ascending())
	assert.Zero(t, seq.Rejected())
	for i, sol := range seq.Sols {
		assertNear(t, testRover, sol.Pos, 1e-3)
		assert.Equal(t, PosXYZ{}, seq.Ref[i])
	}
}

func TestSchedulerBackward(t *testing.T) {
	s := newScheduler(10)

	seq, err := s.Run(context.Background(), Backward)
	require.NoError(t, err)
	require.Equal(t, 10, seq.Len())
	for i := 1; i < seq.Len(); i++ {
		assert.Less(t, seq.Sols[i].Time.Diff(seq.Sols[i-1].Time), 0.0)
	}
}

func TestSchedulerAbort(t *testing.T) {
	s := newScheduler(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Prv.Eph = &cancelAfter{EphemerisProvider: s.Prv.Eph, n: 4, cancel: cancel}

	seq, err := s.Run(ctx, Forward)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, seq)
	assert.Equal(t, 4, seq.Len())
	assert.True(t, seq.Ascending())
}

func TestSchedulerCanceled(t *testing.T) {
	s := newScheduler(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq, err := s.Run(ctx, Backward)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, seq.Len())
}

func TestSchedulerReject(t *testing.T) {
	s := newScheduler(5)

	// Leave three satellites in the third epoch
	obse := s.Rover.DatE[2]
	for _, sat := range obse.Sats()[3:] {
		delete(obse.DatS, sat)
	}

	seq, err := s.Run(context.Background(), Forward)
	require.NoError(t, err)
	assert.Equal(t, 4, seq.Len())
	assert.Equal(t, 1, seq.Rejected())
	require.Len(t, seq.Diag, 1)
	assert.ErrorIs(t, seq.Diag[0].Err, ErrLackOfSats)
	assert.Equal(t, obse.Time, seq.Diag[0].Time)
}

func TestSchedulerRAIMNote(t *testing.T) {
	rover, _, tbl := makeSession(2, testRover, nil, testSky[:6])
	rover.DatE[1].DatS["G03"].Pr[0] += 50
	s := &EpochScheduler{Rover: rover, Prv: testProviders(tbl), Opt: testOpt()}

	seq, err := s.Run(context.Background(), Forward)
	require.NoError(t, err)
	assert.Equal(t, 2, seq.Len())
	assert.Zero(t, seq.Rejected())
	require.Len(t, seq.Diag, 1)
	assert.Equal(t, "G03 excluded by raim", seq.Diag[0].Msg)
	assert.Equal(t, SatType("G03"), seq.Sols[1].Exclude)
}

func TestSchedulerTimeWindow(t *testing.T) {
	s := newScheduler(10)
	ts := testTime(2).ToTime()
	te := testTime(7).ToTime()
	s.Opt.StartTime = TimeStr(ts)
	s.Opt.EndTime = TimeStr(te)
	s.Opt.Interval = 2

	seq, err := s.Run(context.Background(), Forward)
	require.NoError(t, err)

	// Epochs 2, 4 and 6
	require.Equal(t, 3, seq.Len())
	for _, sol := range seq.Sols {
		tt := sol.Time.ToTime().Add(time.Millisecond)
		assert.False(t, tt.Before(ts))
		assert.False(t, tt.After(te.Add(time.Second)))
	}
}

func TestSchedulerDGPS(t *testing.T) {
	base := testRover.Add(PosXYZ{X: -300, Y: 200, Z: 900})
	rover, bobs, tbl := makeSession(5, testRover, &base, testSky)
	rover.Sort(1)
	bobs.Sort(2)
	opt := testOpt()
	opt.Mode = DGPS
	opt.RefPos = RefFixed
	opt.RefXYZ = base
	s := &EpochScheduler{Rover: rover, Base: bobs, Prv: testProviders(tbl), Opt: opt, RefPos: base}

	seq, err := s.Run(context.Background(), Forward)
	require.NoError(t, err)
	require.Equal(t, 5, seq.Len())
	for i, sol := range seq.Sols {
		assert.Equal(t, QualityDGPS, sol.Quality)
		assertNear(t, testRover, sol.Pos, 1e-3)
		assert.Equal(t, base, seq.Ref[i])
		assert.Zero(t, sol.Age)
	}

	// No base within the max age
	s.Base = &Obs{DatE: []*ObsE{{Time: testTime(-100), DatS: map[SatType]*ObsS{}}}}
	seq, err = s.Run(context.Background(), Forward)
	require.NoError(t, err)
	assert.Zero(t, seq.Len())
	assert.Equal(t, 5, seq.Rejected())
	assert.ErrorIs(t, seq.Diag[0].Err, ErrNoBase)
}

func TestSchedulerPhaseBias(t *testing.T) {
	s := newScheduler(1)
	for _, o := range s.Rover.DatE[0].DatS {
		o.Cp[0] = 1000
	}
	s.Prv.Phase = constPhaseBias(0.25)

	obs := s.selectObs(s.Rover.DatE[0])
	require.Len(t, obs, len(testSky))
	for _, o := range obs {
		assert.Equal(t, 999.75, o.Cp[0])
	}

	// Original records are untouched
	for _, o := range s.Rover.DatE[0].DatS {
		assert.Equal(t, 1000.0, o.Cp[0])
	}
}

type constPhaseBias float64

func (b constPhaseBias) PhaseBias(GTime, SatType, int) (float64, bool) {
	return float64(b), true
}
