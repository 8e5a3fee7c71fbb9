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

	"gonum.org/v1/gonum/mat"
)

// Solution quality tier. Larger is better.
type Quality int

const (
	QualityNone Quality = iota
	QualitySingle
	QualitySBAS
	QualityDGPS
	QualityPPP
	QualityFloat
	QualityFix
)

func (q Quality) Better(b Quality) bool {
	return q > b
}

// One tier lower (Fix -> Float -> PPP -> DGPS -> SBAS -> Single -> None)
func (q Quality) Degrade() Quality {
	if q <= QualityNone {
		return QualityNone
	}
	return q - 1
}

// Q flag of the position file
func (q Quality) Q() int {
	switch q {
	case QualityFix:
		return 1
	case QualityFloat:
		return 2
	case QualitySBAS:
		return 3
	case QualityDGPS:
		return 4
	case QualitySingle:
		return 5
	case QualityPPP:
		return 6
	default:
		return 0
	}
}

func (q Quality) String() string {
	switch q {
	case QualityFix:
		return "fix"
	case QualityFloat:
		return "float"
	case QualitySBAS:
		return "sbas"
	case QualityDGPS:
		return "dgps"
	case QualitySingle:
		return "single"
	case QualityPPP:
		return "ppp"
	default:
		return "none"
	}
}

// Residual record of one observation
type SatResidual struct {
	Sat      SatType `json:"sat"`
	Az       float64 `json:"az"`       // Azimuth [rad]
	El       float64 `json:"el"`       // Elevation [rad]
	Res      float64 `json:"res"`      // Pseudorange residual [m]
	Debiased float64 `json:"debiased"` // Residual minus the cluster mean of the epoch [m]
	Var      float64 `json:"var"`      // Error variance [m^2]
	Sn       float64 `json:"sn"`       // Signal strength [dB-Hz]
	Valid    bool    `json:"valid"`    // Used in the solution
}

// Positioning result of one epoch
type Solution struct {
	Time    GTime         `json:"time"`    // Receiver time corrected for the clock bias
	Pos     PosXYZ        `json:"pos"`     // Receiver position (ECEF) [m]
	Vel     PosXYZ        `json:"vel"`     // Receiver velocity (ECEF) [m/s]
	Dtr     [4]float64    `json:"dtr"`     // Receiver clock bias, GLO-GPS, GAL-GPS, BDS-GPS offsets [s]
	Qr      [6]float64    `json:"qr"`      // Position covariance xx, yy, zz, xy, yz, zx [m^2]
	Qv      [6]float64    `json:"qv"`      // Velocity covariance [m^2/s^2]
	Ns      int           `json:"ns"`      // Number of valid satellites
	Dop     [4]float64    `json:"dop"`     // GDOP, PDOP, HDOP, VDOP
	Quality Quality       `json:"quality"` // Solution tier
	Age     float64       `json:"age"`     // Age of differential [s]
	Ratio   float64       `json:"ratio"`   // Ambiguity ratio (0 for code solutions)
	ResMean float64       `json:"resmean"` // Cluster mean of the pseudorange residuals [m]
	Exclude SatType       `json:"exclude"` // Satellite excluded by RAIM
	Sats    []SatResidual `json:"sats"`    // Residual snapshot
}

// Position covariance as a symmetric matrix
func (p *Solution) PosCov() *mat.SymDense {
	return covFromArray(p.Qr)
}

// Velocity covariance as a symmetric matrix
func (p *Solution) VelCov() *mat.SymDense {
	return covFromArray(p.Qv)
}

// Valid satellites of the snapshot
func (p *Solution) ValidSats() []SatType {
	sats := []SatType{}
	for _, s := range p.Sats {
		if s.Valid {
			sats = append(sats, s.Sat)
		}
	}
	return sats
}

func (p *Solution) String() string {
	llh := p.Pos.ToLLH()
	return fmt.Sprintf("%s %14.9f %14.9f %10.4f Q=%d ns=%2d", p.Time, ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei, p.Quality.Q(), p.Ns)
}

// xx, yy, zz, xy, yz, zx of the upper-left 3x3 block
func covToArray(Q mat.Symmetric) [6]float64 {
	return [6]float64{
		Q.At(0, 0), Q.At(1, 1), Q.At(2, 2),
		Q.At(0, 1), Q.At(1, 2), Q.At(2, 0),
	}
}

func covFromArray(q [6]float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		q[0], q[3], q[5],
		q[3], q[1], q[4],
		q[5], q[4], q[2],
	})
}

func covTrace(q [6]float64) float64 {
	return q[0] + q[1] + q[2]
}

// Rejected epoch
type Diagnostic struct {
	Time GTime  `json:"time"`
	Msg  string `json:"msg"`
	Err  error  `json:"-"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Time, d.Msg)
}

// Solutions of one pass with a fixed capacity
type SolutionSequence struct {
	Sols []Solution   // Solutions in processing order
	Ref  []PosXYZ     // Reference (base) position of each solution
	Diag []Diagnostic // Rejected epochs
	max  int
}

func NewSolutionSequence(n int) *SolutionSequence {
	if n < 0 {
		n = 0
	}
	return &SolutionSequence{
		Sols: make([]Solution, 0, n),
		Ref:  make([]PosXYZ, 0, n),
		Diag: []Diagnostic{},
		max:  n,
	}
}

func (p *SolutionSequence) Len() int {
	return len(p.Sols)
}

func (p *SolutionSequence) Cap() int {
	return p.max
}

// Append a solution with its reference position
func (p *SolutionSequence) Append(sol Solution, ref PosXYZ) error {
	if len(p.Sols) >= p.max {
		return fmt.Errorf("%w: capacity=%d, t=%s", ErrSequenceFull, p.max, sol.Time)
	}
	p.Sols = append(p.Sols, sol)
	p.Ref = append(p.Ref, ref)
	return nil
}

// Record a rejected epoch
func (p *SolutionSequence) Reject(t GTime, err error) {
	p.Diag = append(p.Diag, Diagnostic{Time: t, Msg: err.Error(), Err: err})
}

// Record a message for an accepted epoch
func (p *SolutionSequence) Note(t GTime, msg string) {
	p.Diag = append(p.Diag, Diagnostic{Time: t, Msg: msg})
}

// Number of rejected epochs
func (p *SolutionSequence) Rejected() int {
	n := 0
	for _, d := range p.Diag {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Whether the solutions are in ascending order of time
func (p *SolutionSequence) Ascending() bool {
	for i := 1; i < len(p.Sols); i++ {
		if p.Sols[i].Time.Diff(p.Sols[i-1].Time) < 0 {
			return false
		}
	}
	return true
}

// Mean position of the solutions (zero if empty)
func (p *SolutionSequence) MeanPos() PosXYZ {
	var m PosXYZ
	if len(p.Sols) == 0 {
		return m
	}
	for i := range p.Sols {
		m = m.Add(p.Sols[i].Pos)
	}
	return m.Scale(1 / float64(len(p.Sols)))
}

func posRMS(q [6]float64) float64 {
	return math.Sqrt(math.Max(covTrace(q), 0))
}
