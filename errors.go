// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"errors"
)

// Data insufficiency (epoch skipped, processing continues)
var (
	ErrNoData     = errors.New("no observation data")
	ErrLackOfSats = errors.New("lack of valid sats")
	ErrRAIMFailed = errors.New("raim failed")
	ErrNoBase     = errors.New("no base station data")
)

// Numerical failures
var (
	ErrDivergent = errors.New("iteration divergent")
	ErrSingular  = errors.New("lsq error")
)

// Statistical rejection
var (
	ErrChiSquare = errors.New("chi-square error")
	ErrGDOP      = errors.New("gdop error")
)

// Fatal: the session stops
var (
	ErrSequenceFull  = errors.New("solution sequence is full")
	ErrInvalidOption = errors.New("invalid processing option")
	ErrNoRoverData   = errors.New("no rover observation data")
	ErrSessionClosed = errors.New("session is closed")
	ErrTooManySats   = errors.New("too many satellites")
)

// Class of an error
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassData
	ClassNumerical
	ClassStatistical
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassData:
		return "data"
	case ClassNumerical:
		return "numerical"
	case ClassStatistical:
		return "statistical"
	default:
		return "fatal"
	}
}

// Classify an error returned by this package. Unknown errors are fatal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNoData), errors.Is(err, ErrLackOfSats), errors.Is(err, ErrRAIMFailed), errors.Is(err, ErrNoBase):
		return ClassData
	case errors.Is(err, ErrDivergent), errors.Is(err, ErrSingular):
		return ClassNumerical
	case errors.Is(err, ErrChiSquare), errors.Is(err, ErrGDOP):
		return ClassStatistical
	default:
		return ClassFatal
	}
}

// Whether processing may continue with the next epoch
func IsRecoverable(err error) bool {
	c := Classify(err)
	return c != ClassFatal
}
