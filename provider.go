// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Collaborator contracts consumed by the estimation engine.

package gopos

import (
	"fmt"
	"math"
)

// Satellite state at signal transmission time
type SatState struct {
	Pos      PosXYZ  `json:"pos"`       // ECEF position [m]
	Vel      PosXYZ  `json:"vel"`       // ECEF velocity [m/s]
	Clk      float64 `json:"clk"`       // Clock offset [s]
	ClkDrift float64 `json:"clk_drift"` // Clock drift [s/s]
	Var      float64 `json:"var"`       // Orbit and clock error variance [m^2]
	Svh      int     `json:"svh"`       // Health flag (0: healthy, -1: no ephemeris)
}

// A zero position means no geometry for the satellite
func (s *SatState) HasGeometry() bool {
	return !s.Pos.IsZero()
}

// Provides satellite states for the observations of one epoch. The result
// is parallel to obs; unavailable satellites are returned as zero states.
type EphemerisProvider interface {
	SatStates(t GTime, obs []*ObsS) []SatState
}

// Provides atmospheric delays (L1 range, meters) and their variances. Both
// methods return zero when no model applies and never fail.
type CorrectionProvider interface {
	IonoDelay(t GTime, sat SatType, rcv PosXYZ, az, el float64) (delay, variance float64)
	TropDelay(t GTime, rcv PosXYZ, az, el float64) (delay, variance float64)
}

// Provides code biases (TGD/BGD) in meters for frequency slot f
type CodeBiasProvider interface {
	CodeBias(t GTime, sat SatType, f int) float64
}

// Provides carrier-phase biases in cycles for frequency slot f
type PhaseBiasProvider interface {
	PhaseBias(t GTime, sat SatType, f int) (cycles float64, ok bool)
}

// ------------------------------------
// StateTable
// ------------------------------------

// Precomputed satellite states keyed by epoch (millisecond resolution)
type StateTable struct {
	epochs map[int64]map[SatType]SatState
}

func NewStateTable() *StateTable {
	return &StateTable{epochs: map[int64]map[SatType]SatState{}}
}

func stateKey(t GTime) int64 {
	return int64(math.Round((float64(t.Week)*WEEK_SEC + t.Sec) * 1000))
}

// Register the state of sat at receiver epoch t. An epoch holds at most
// MAXSAT satellites.
func (p *StateTable) Put(t GTime, sat SatType, s SatState) error {
	k := stateKey(t)
	if _, ok := p.epochs[k]; !ok {
		p.epochs[k] = map[SatType]SatState{}
	}
	if _, ok := p.epochs[k][sat]; !ok && len(p.epochs[k]) >= MAXSAT {
		return fmt.Errorf("%w at %s, sat=%s", ErrTooManySats, t.String(), sat)
	}
	p.epochs[k][sat] = s
	return nil
}

// Number of registered epochs
func (p *StateTable) Len() int {
	return len(p.epochs)
}

func (p *StateTable) SatStates(t GTime, obs []*ObsS) []SatState {
	rs := make([]SatState, len(obs))
	tbl := p.lookup(t)
	for i, o := range obs {
		if s, ok := tbl[o.Sat]; ok {
			rs[i] = s
		} else {
			rs[i].Svh = -1
		}
	}
	return rs
}

func (p *StateTable) lookup(t GTime) map[SatType]SatState {
	k := stateKey(t)
	tol := int64(DTTOL * 1000)
	for d := int64(0); d <= tol; d++ {
		if m, ok := p.epochs[k+d]; ok {
			return m
		}
		if m, ok := p.epochs[k-d]; ok {
			return m
		}
	}
	return nil
}
