// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	m "github.com/mkhts/gopos"
)

// Session dump. Satellite states are taken from "states" when present,
// otherwise they are computed from the broadcast ephemerides in "nav".
type sessionDump struct {
	Rover  []*m.ObsE    `json:"rover"`
	Base   []*m.ObsE    `json:"base,omitempty"`
	Nav    []*m.Ephe    `json:"nav,omitempty"`
	States []stateEntry `json:"states,omitempty"`
	Ion    []float64    `json:"ion,omitempty"` // Klobuchar alpha0-3, beta0-3
	Humi   *float64     `json:"humi,omitempty"`
}

// Precomputed state of one satellite at one epoch
type stateEntry struct {
	Time m.GTime   `json:"time"`
	Sat  m.SatType `json:"sat"`
	m.SatState
}

// Tables and providers of one session
type sessionInput struct {
	rover *m.Obs
	base  *m.Obs // nil: no base
	nav   m.Nav
	prv   *m.Providers
}

// Read a session dump file
func readSession(fn string) (*sessionInput, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeSession(f)
}

func decodeSession(r io.Reader) (*sessionInput, error) {
	var d sessionDump
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	in := &sessionInput{rover: toObs(d.Rover)}
	if len(in.rover.DatE) == 0 {
		return nil, m.ErrNoRoverData
	}
	if base := toObs(d.Base); len(base.DatE) > 0 {
		in.base = base
	}

	in.nav = m.Nav{}
	for _, e := range d.Nav {
		if e == nil || e.Sat == "" {
			continue
		}
		in.nav[e.Sat] = append(in.nav[e.Sat], e)
	}

	corr := m.NewModelCorrections()
	switch len(d.Ion) {
	case 0:
	case len(corr.Ion):
		copy(corr.Ion[:], d.Ion)
	default:
		return nil, fmt.Errorf("ion must have %d parameters, got %d", len(corr.Ion), len(d.Ion))
	}
	if d.Humi != nil {
		corr.Humi = *d.Humi
	}
	in.prv = &m.Providers{Corr: corr}

	switch {
	case len(d.States) > 0:
		tbl := m.NewStateTable()
		for _, s := range d.States {
			if err := tbl.Put(s.Time, s.Sat, s.SatState); err != nil {
				return nil, err
			}
		}
		in.prv.Eph = tbl
	case len(in.nav) > 0:
		eph := m.NewBroadcastEphemeris(in.nav)
		eph.AdjustGloFreq(in.rover)
		if in.base != nil {
			eph.AdjustGloFreq(in.base)
		}
		in.prv.Eph = eph
	default:
		return nil, fmt.Errorf("session has neither states nor nav")
	}
	if len(in.nav) > 0 {
		in.prv.Bias = &m.TGDBias{Nav: in.nav}
	}
	return in, nil
}

// Collect epochs into an observation table, skipping empty records
func toObs(epochs []*m.ObsE) *m.Obs {
	obs := &m.Obs{}
	for _, e := range epochs {
		if e == nil {
			continue
		}
		for sat, o := range e.DatS {
			if o == nil {
				delete(e.DatS, sat)
			}
		}
		if len(e.DatS) == 0 {
			continue
		}
		obs.DatE = append(obs.DatE, e)
	}
	return obs
}
