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
	"strconv"
	"strings"
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat/Lon in radians, height in meters.
type PosLLH struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
	Hei float64 `json:"hei" yaml:"hei"`
}

func (llh PosLLH) ToXYZ() PosXYZ {
	e2 := Fe * (2 - Fe) // Squared eccentricity
	sinp := math.Sin(llh.Lat)
	cosp := math.Cos(llh.Lat)
	n := Re / math.Sqrt(1-e2*sinp*sinp) // Radius of curvature in the prime vertical
	return PosXYZ{
		X: (n + llh.Hei) * cosp * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * cosp * math.Sin(llh.Lon),
		Z: (n*(1-e2) + llh.Hei) * sinp,
	}
}

// Read "lat lon hei" in degrees and meters
func (llh *PosLLH) Set(s string) error {
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("position must be \"lat lon hei\", got %q", s)
	}
	var v [3]float64
	for i := range f {
		a, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return err
		}
		v[i] = a
	}
	llh.Lat, llh.Lon, llh.Hei = ToRad(v[0]), ToRad(v[1]), v[2]
	return nil
}

func (llh *PosLLH) String() string {
	return fmt.Sprintf("%.9f %.9f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

func (llh *PosLLH) Type() string {
	return "llh"
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// ECEF position (or velocity) in meters
type PosXYZ struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (pos PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	a := Re           // Semi-major axis
	b := a * (1 - Fe) // Semi-minor axis
	e2 := Fe * (2 - Fe)

	// Bowring's method
	h := a*a - b*b
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	t := math.Atan2(pos.Z*a, p*b)
	sint := math.Sin(t)
	cost := math.Cos(t)
	lat := math.Atan2(pos.Z+h/b*sint*sint*sint, p-h/a*cost*cost*cost)
	lon := math.Atan2(pos.Y, pos.X)
	n := a / math.Sqrt(1-e2*math.Sin(lat)*math.Sin(lat))
	return PosLLH{Lat: lat, Lon: lon, Hei: p/math.Cos(lat) - n}
}

func (pos PosXYZ) ToENU(base PosXYZ) PosENU {
	return pos.Sub(base).Rotate(base.ToLLH())
}

// Rotate an ECEF vector into the local ENU frame at llh
func (pos PosXYZ) Rotate(llh PosLLH) PosENU {
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)
	return PosENU{
		E: -pos.X*s1 + pos.Y*c1,
		N: -pos.X*c1*s2 - pos.Y*s1*s2 + pos.Z*c2,
		U: pos.X*c1*c2 + pos.Y*s1*c2 + pos.Z*s2,
	}
}

func (pos PosXYZ) Add(b PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X + b.X, Y: pos.Y + b.Y, Z: pos.Z + b.Z}
}

func (pos PosXYZ) Sub(b PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X - b.X, Y: pos.Y - b.Y, Z: pos.Z - b.Z}
}

func (pos PosXYZ) Scale(k float64) PosXYZ {
	return PosXYZ{X: pos.X * k, Y: pos.Y * k, Z: pos.Z * k}
}

func (pos PosXYZ) Dot(b PosXYZ) float64 {
	return pos.X*b.X + pos.Y*b.Y + pos.Z*b.Z
}

func (pos PosXYZ) Norm() float64 {
	return math.Sqrt(pos.Dot(pos))
}

func (pos PosXYZ) IsZero() bool {
	return pos.X == 0 && pos.Y == 0 && pos.Z == 0
}

func (pos PosXYZ) Array() [3]float64 {
	return [3]float64{pos.X, pos.Y, pos.Z}
}

func (pos PosXYZ) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f", pos.X, pos.Y, pos.Z)
}

//-------------------------------------------------------------------
// PosENU
//-------------------------------------------------------------------

type PosENU struct {
	E float64
	N float64
	U float64
}

func (enu PosENU) Elevation() float64 {
	return math.Atan2(enu.U, math.Sqrt(enu.E*enu.E+enu.N*enu.N))
}

func (enu PosENU) Azimuth() float64 {
	az := math.Atan2(enu.E, enu.N)
	if az < 0 {
		az += 2 * PI
	}
	return az
}

// Rotate a local ENU vector at llh back into ECEF
func (enu PosENU) Unrotate(llh PosLLH) PosXYZ {
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)
	return PosXYZ{
		X: -enu.E*s1 - enu.N*c1*s2 + enu.U*c1*c2,
		Y: enu.E*c1 - enu.N*s1*s2 + enu.U*s1*c2,
		Z: enu.N*c2 + enu.U*s2,
	}
}

// Unit ENU vector of azimuth az and elevation el
func AzElToENU(az, el float64) PosENU {
	return PosENU{
		E: math.Sin(az) * math.Cos(el),
		N: math.Cos(az) * math.Cos(el),
		U: math.Sin(el),
	}
}

//-------------------------------------------------------------------
// Geometry between receiver and satellite
//-------------------------------------------------------------------

// Geometric distance including the Sagnac effect and the unit line-of-sight
// vector from receiver to satellite. Returns a negative range if the satellite
// is closer to the geocenter than the Earth's radius.
func GeoDist(rs, rr PosXYZ) (float64, PosXYZ) {
	if rs.Norm() < Re {
		return -1, PosXYZ{}
	}
	d := rs.Sub(rr)
	r := d.Norm()
	e := d.Scale(1 / r)
	return r + OMGE*(rs.X*rr.Y-rs.Y*rr.X)/C, e
}

// Azimuth and elevation of the line-of-sight e at receiver position llh.
// For a receiver at (or below) the geocenter, the satellite is overhead.
func SatAzEl(llh PosLLH, e PosXYZ) (az, el float64) {
	az, el = 0.0, PI/2
	if llh.Hei > -Re {
		enu := e.Rotate(llh)
		if enu.E*enu.E+enu.N*enu.N >= 1e-12 {
			az = enu.Azimuth()
		}
		el = math.Asin(enu.U)
	}
	return
}
