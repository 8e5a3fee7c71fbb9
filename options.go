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
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Processing mode (0: SPP, 1: DGPS)
type Mode int

const (
	SPP Mode = iota
	DGPS
)

func (p *Mode) Set(s string) error {
	switch strings.ToLower(s) {
	case "0", "single", "spp":
		*p = SPP
	case "1", "dgps":
		*p = DGPS
	default:
		return fmt.Errorf("unknown mode %q", s)
	}
	return nil
}

func (p Mode) String() string {
	switch p {
	case SPP:
		return "single"
	case DGPS:
		return "dgps"
	default:
		return "mode(" + strconv.Itoa(int(p)) + ")"
	}
}

func (p *Mode) Type() string {
	return "mode"
}

func (p Mode) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Mode) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}

// Solution type of the session
type SolType string

const (
	SolForward  SolType = "forward"
	SolBackward SolType = "backward"
	SolCombined SolType = "combined"
)

// Ionosphere option
type IonoOpt string

const (
	IonoOff  IonoOpt = "off"  // No correction (variance ERR_ION^2)
	IonoBrdc IonoOpt = "brdc" // Broadcast model from the correction provider
	IonoIFLC IonoOpt = "iflc" // Ionosphere-free combination of L1/L2
)

// Troposphere option
type TropOpt string

const (
	TropOff  TropOpt = "off"  // No correction (variance ERR_TROP^2)
	TropSaas TropOpt = "saas" // Saastamoinen model from the correction provider
)

// Satellite ephemeris option
type SatEph string

const (
	EphBrdc SatEph = "brdc"
	EphSBAS SatEph = "sbas"
)

// Reference (base) position option
type RefPos string

const (
	RefNone    RefPos = "none"
	RefFixed   RefPos = "fixed"   // RefXYZ
	RefAverage RefPos = "average" // Average of single solutions of the base
)

// ProcOpt contains the options of one processing session
type ProcOpt struct {
	Mode           Mode       `yaml:"mode" validate:"gte=0,lte=1"`
	SolType        SolType    `yaml:"soltype" validate:"oneof=forward backward combined"`
	NavSys         SysVar     `yaml:"navsys" validate:"min=1"`
	ExSats         SatVar     `yaml:"exsats"`
	ElMask         float64    `yaml:"elmask" validate:"gte=0,lt=90"`
	CnMask         float64    `yaml:"cnmask" validate:"gte=0,lte=60"`
	IonoOpt        IonoOpt    `yaml:"ionoopt" validate:"oneof=off brdc iflc"`
	TropOpt        TropOpt    `yaml:"tropopt" validate:"oneof=off saas"`
	SatEph         SatEph     `yaml:"sateph" validate:"oneof=brdc sbas"`
	MaxGDOP        float64    `yaml:"maxgdop" validate:"gt=0"`
	NoChiTest      bool       `yaml:"nochitest"`
	RAIM           bool       `yaml:"raim"`
	AdaptiveWeight bool       `yaml:"adaptive_weight"`
	Err            [3]float64 `yaml:"err" validate:"dive,gte=0"`
	RefPos         RefPos     `yaml:"refpos" validate:"oneof=none fixed average"`
	RefXYZ         PosXYZ     `yaml:"refxyz"`
	MaxAge         float64    `yaml:"maxage" validate:"gt=0"`
	StartTime      TimeStr    `yaml:"ts"`
	EndTime        TimeStr    `yaml:"te"`
	Interval       int        `yaml:"ti" validate:"gte=0"`
	SmoothVelocity bool       `yaml:"smooth_velocity"`
	ValidateFix    bool       `yaml:"validate_fix"`
	Log            LogConfig  `yaml:"log"`
}

// NewProcOpt creates a new ProcOpt with default values
func NewProcOpt() *ProcOpt {
	return &ProcOpt{
		Mode:           SPP,                             // Single point positioning
		SolType:        SolForward,                      // Forward only
		NavSys:         SysVar{'G', 'J', 'E', 'R', 'C'}, // Use all available systems except SBAS
		ExSats:         SatVar{},                        // No excluded satellites
		ElMask:         15,                              // Elevation mask [deg]
		CnMask:         0,                               // No signal strength mask [dB-Hz]
		IonoOpt:        IonoBrdc,                        // Broadcast ionosphere model
		TropOpt:        TropSaas,                        // Saastamoinen
		SatEph:         EphBrdc,                         // Broadcast ephemeris
		MaxGDOP:        30,                              // GDOP threshold
		NoChiTest:      false,                           // Perform chi-square test
		RAIM:           true,                            // RAIM FDE
		AdaptiveWeight: false,                           // Inert MAD weighting
		Err:            [3]float64{100, 0.003, 0.003},   // Code error model (factor, a, b)
		RefPos:         RefNone,                         // No reference position
		RefXYZ:         PosXYZ{},                        // Reference position (RefFixed)
		MaxAge:         30,                              // Max age of base data [s]
		Interval:       0,                               // All epochs
		SmoothVelocity: true,                            // Fuse velocity in combined mode
		ValidateFix:    true,                            // 4-sigma test of fixed solutions
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

var optValidate = validator.New()

// Validate the options
func (opt *ProcOpt) Validate() error {
	if err := optValidate.Struct(opt); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return fmt.Errorf("%w: %s failed on %q (value %v)", ErrInvalidOption, v.Namespace(), v.Tag(), v.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	for _, s := range opt.NavSys {
		if !s.IsValid() {
			return fmt.Errorf("%w: unknown satellite system %q", ErrInvalidOption, string(rune(s)))
		}
	}
	if opt.RefPos == RefFixed && opt.RefXYZ.IsZero() {
		return fmt.Errorf("%w: refpos is fixed but refxyz is not given", ErrInvalidOption)
	}
	if opt.Mode == DGPS && opt.RefPos == RefNone {
		return fmt.Errorf("%w: dgps needs a reference position", ErrInvalidOption)
	}
	st, et := time.Time(opt.StartTime), time.Time(opt.EndTime)
	if !st.IsZero() && !et.IsZero() && et.Before(st) {
		return fmt.Errorf("%w: te %s is before ts %s", ErrInvalidOption, opt.EndTime.String(), opt.StartTime.String())
	}
	return nil
}

// Elevation mask [rad]
func (opt *ProcOpt) ElMaskRad() float64 {
	return ToRad(opt.ElMask)
}

// Whether the system is enabled and the satellite not excluded
func (opt *ProcOpt) Usable(sat SatType) bool {
	return slices.Contains(opt.NavSys, sat.Sys()) && !slices.Contains(opt.ExSats, sat)
}

// Load options from YAML. Missing keys keep their defaults.
func LoadProcOpt(r io.Reader) (*ProcOpt, error) {
	opt := NewProcOpt()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(opt); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return opt, nil
}

// Write options as YAML
func (opt *ProcOpt) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(opt); err != nil {
		return err
	}
	return enc.Close()
}

// Text form of satellite lists for the options file
func (p SysVar) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SysVar) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}

func (p SatVar) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SatVar) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}
