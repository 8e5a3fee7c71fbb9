// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const (
	AVEPOS_MAX = 3600 // Maximum number of base epochs averaged for the reference position
	AVEPOS_DT  = 1.0  // Minimum interval of the averaged base epochs [s]
)

// Session owns the observation tables and providers of one processing run
type Session struct {
	ID       string             // Session identifier
	Opt      *ProcOpt           // Processing options
	Rover    *Obs               // Rover observations
	Base     *Obs               // Base observations (nil: no base)
	Prv      *Providers         // Satellite states, corrections and biases
	RefPos   PosXYZ             // Reference position of the base
	Forward  *SolutionSequence  // Result of the forward pass
	Backward *SolutionSequence  // Result of the backward pass
	Combined *SolutionSequence  // Result of the combination
	log      *slog.Logger
	closed   bool
}

// OpenSession validates the inputs, sorts the observation tables and
// determines the reference position
func OpenSession(rover, base *Obs, prv *Providers, opt *ProcOpt) (*Session, error) {
	if opt == nil {
		opt = NewProcOpt()
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if rover == nil || len(rover.DatE) == 0 {
		return nil, ErrNoRoverData
	}
	if err := prv.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:    uuid.NewString(),
		Opt:   opt,
		Rover: rover,
		Base:  base,
		Prv:   prv,
	}
	s.log = lg().With("session", s.ID)

	rover.Sort(1)
	if base != nil {
		base.Sort(2)
	}

	switch opt.RefPos {
	case RefFixed:
		s.RefPos = opt.RefXYZ
	case RefAverage:
		pos, n, err := s.avePos()
		if err != nil {
			return nil, err
		}
		s.RefPos = pos
		s.log.Info("reference position averaged", "epochs", n, "pos", pos.String())
	}

	s.log.Info("session opened", "rover", len(rover.DatE), "base", baseLen(base), "mode", opt.Mode.String(), "soltype", string(opt.SolType))
	return s, nil
}

func baseLen(base *Obs) int {
	if base == nil {
		return 0
	}
	return len(base.DatE)
}

// Mean of the single point solutions of the base
func (s *Session) avePos() (PosXYZ, int, error) {
	if s.Base == nil || len(s.Base.DatE) == 0 {
		return PosXYZ{}, 0, fmt.Errorf("%w: refpos average needs base observations", ErrNoBase)
	}
	opt := *s.Opt
	opt.Mode = SPP

	var sum PosXYZ
	var prev GTime
	n := 0
	for _, obse := range s.Base.DatE {
		if n >= AVEPOS_MAX {
			break
		}
		if n > 0 && obse.Time.Diff(prev) < AVEPOS_DT-DTTOL {
			continue
		}
		sol, err := PntPos(obse.Time, obse.List(), s.Prv, &opt, nil)
		if err != nil {
			tracef("avepos: epoch skipped", "time", obse.Time.String(), "err", err)
			continue
		}
		sum = sum.Add(sol.Pos)
		prev = obse.Time
		n++
	}
	if n == 0 {
		return PosXYZ{}, 0, fmt.Errorf("%w: no valid solution of the base", ErrNoBase)
	}
	return sum.Scale(1 / float64(n)), n, nil
}

func (s *Session) scheduler() *EpochScheduler {
	return &EpochScheduler{
		Rover:  s.Rover,
		Base:   s.Base,
		Prv:    s.Prv,
		Opt:    s.Opt,
		RefPos: s.RefPos,
		Log:    s.log,
	}
}

// Process runs the passes selected by SolType and returns the final
// sequence. On abort the partial sequence is returned with the error.
func (s *Session) Process(ctx context.Context) (*SolutionSequence, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	sch := s.scheduler()

	switch s.Opt.SolType {
	case SolBackward:
		seq, err := sch.Run(ctx, Backward)
		s.Backward = seq
		return seq, err
	case SolCombined:
		fwd, err := sch.Run(ctx, Forward)
		s.Forward = fwd
		if err != nil {
			return fwd, err
		}
		bwd, err := sch.Run(ctx, Backward)
		s.Backward = bwd
		if err != nil {
			return fwd, err
		}
		comb, err := Combine(fwd, bwd, s.Opt)
		s.Combined = comb
		return comb, err
	default:
		seq, err := sch.Run(ctx, Forward)
		s.Forward = seq
		return seq, err
	}
}

// Close releases the tables. The session cannot be processed afterwards.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.Rover, s.Base, s.Prv = nil, nil, nil
	s.closed = true
	s.log.Info("session closed")
	return nil
}
