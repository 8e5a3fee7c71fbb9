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
	"time"
)

// Direction of a processing pass
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// EpochScheduler walks the rover epochs in one direction and collects the
// solutions of the accepted epochs
type EpochScheduler struct {
	Rover  *Obs         // Rover observations (ascending)
	Base   *Obs         // Base observations (nil: no base)
	Prv    *Providers   // Satellite states, corrections and biases
	Opt    *ProcOpt     // Processing options
	RefPos PosXYZ       // Reference position of the base
	Log    *slog.Logger // nil: package logger
}

func (s *EpochScheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return lg()
}

// Run one pass. Cancellation of ctx is checked before every epoch; the
// solutions appended so far are returned together with ctx.Err().
func (s *EpochScheduler) Run(ctx context.Context, dir Direction) (*SolutionSequence, error) {
	if s.Rover == nil || len(s.Rover.DatE) == 0 {
		return nil, ErrNoRoverData
	}
	if err := s.Prv.validate(); err != nil {
		return nil, err
	}
	log := s.logger().With("pass", dir.String())
	n := len(s.Rover.DatE)
	seq := NewSolutionSequence(n)

	for k := range n {
		if err := ctx.Err(); err != nil {
			log.Info("aborted", "solutions", seq.Len())
			return seq, err
		}
		idx := k
		if dir == Backward {
			idx = n - 1 - k
		}
		obse := s.Rover.DatE[idx]
		if !s.shouldProcessEpoch(obse) {
			continue
		}

		sol, err := s.processEpoch(obse)
		if err != nil {
			if !IsRecoverable(err) {
				return seq, err
			}
			log.Warn("epoch rejected", "time", obse.Time.String(), "class", Classify(err).String(), "err", err)
			seq.Reject(obse.Time, err)
			continue
		}
		if sol.Exclude != "" {
			seq.Note(obse.Time, fmt.Sprintf("%s excluded by raim", sol.Exclude))
		}
		if err := seq.Append(*sol, s.RefPos); err != nil {
			return seq, err
		}
		log.Debug("solution", "time", sol.Time.String(), "q", sol.Quality.String(), "ns", sol.Ns)
	}
	log.Info("pass done", "solutions", seq.Len(), "rejected", seq.Rejected())
	return seq, nil
}

// Filter epochs by the start time, end time and interval
func (s *EpochScheduler) shouldProcessEpoch(obse *ObsE) bool {
	ts, te := time.Time(s.Opt.StartTime), time.Time(s.Opt.EndTime)

	// Skip epochs before processing start time
	if !ts.IsZero() && obse.Time.Before(ts, true) {
		return false
	}

	// Skip epochs after processing end time
	if !te.IsZero() && obse.Time.After(te, true) {
		return false
	}

	// Skip epochs that are not divisible by the specified time interval
	if s.Opt.Interval > 0 && !obse.Time.Divisible(s.Opt.Interval) {
		return false
	}
	return true
}

// Pair with the base epoch and compute the solution of one rover epoch
func (s *EpochScheduler) processEpoch(obse *ObsE) (*Solution, error) {
	var dgps map[SatType]float64
	var age float64

	if s.Opt.Mode == DGPS {
		if s.Base == nil {
			return nil, ErrNoBase
		}
		base, err := s.Base.GetNearest(obse.Time, s.Opt.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoBase, err)
		}
		dgps, err = DgpsCorrections(base, s.RefPos, s.Prv, s.Opt)
		if err != nil {
			return nil, err
		}
		age = obse.Time.Diff(base.Time)
	}

	sol, err := PntPos(obse.Time, s.selectObs(obse), s.Prv, s.Opt, dgps)
	if err != nil {
		return nil, err
	}
	sol.Age = age
	return sol, nil
}

// Copies of the usable observations with phase-bias corrections applied
func (s *EpochScheduler) selectObs(obse *ObsE) []*ObsS {
	obs := make([]*ObsS, 0, len(obse.DatS))
	for _, o := range obse.List() {
		if !s.Opt.Usable(o.Sat) {
			continue
		}
		c := *o
		if s.Prv.Phase != nil {
			for f := range NFREQ {
				if c.Cp[f] == 0 {
					continue
				}
				if b, ok := s.Prv.Phase.PhaseBias(obse.Time, c.Sat, f); ok {
					c.Cp[f] -= b
				}
			}
		}
		obs = append(obs, &c)
	}
	return obs
}
