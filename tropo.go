// This code is adapted from RTKLIB.
// The author gratefully acknowledges T.Takasu for his outstanding contribution in developing RTKLIB.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"math"
)

// Default Klobuchar parameters (2004/1/1)
var IonDefault = [8]float64{
	0.1118e-07, -0.7451e-08, -0.5961e-07, 0.1192e-06,
	0.1167e+06, -0.2294e+06, -0.1311e+06, 0.1049e+07,
}

// CorrectionProvider with the broadcast ionosphere model and the
// Saastamoinen troposphere model
type ModelCorrections struct {
	Ion    [8]float64 // Klobuchar alpha/beta (zero: IonDefault)
	Humi   float64    // Relative humidity for Saastamoinen
	MapNMF bool       // Map the zenith delay with NMF instead of the slant Saastamoinen model
}

func NewModelCorrections() *ModelCorrections {
	return &ModelCorrections{
		Ion:    IonDefault,
		Humi:   0.7,
		MapNMF: false,
	}
}

func (p *ModelCorrections) IonoDelay(t GTime, sat SatType, rcv PosXYZ, az, el float64) (float64, float64) {
	ion := IonModel(t, p.Ion, rcv.ToLLH(), az, el)
	return ion, SQ(ion * ERR_BRDCI)
}

func (p *ModelCorrections) TropDelay(t GTime, rcv PosXYZ, az, el float64) (float64, float64) {
	var trp float64
	if p.MapNMF {
		trp = TropModel(rcv, PI/2, p.Humi) * TropMapf(t, rcv, el)
	} else {
		trp = TropModel(rcv, el, p.Humi)
	}
	return trp, SQ(ERR_SAAS / (math.Sin(el) + 0.1))
}

// Klobuchar ionospheric delay on L1 [m]
func IonModel(t GTime, ion [8]float64, llh PosLLH, az, el float64) float64 {
	if llh.Hei < -1e3 || el <= 0 {
		return 0.0
	}
	zero := true
	for _, v := range ion {
		if v != 0 {
			zero = false
			break
		}
	}
	if zero {
		ion = IonDefault
	}

	// Earth centered angle (semi-circle)
	psi := 0.0137/(el/PI+0.11) - 0.022

	// Subionospheric latitude/longitude (semi-circle)
	phi := llh.Lat/PI + psi*math.Cos(az)
	phi = math.Max(-0.416, math.Min(0.416, phi))
	lam := llh.Lon/PI + psi*math.Sin(az)/math.Cos(phi*PI)

	// Geomagnetic latitude (semi-circle)
	phi += 0.064 * math.Cos((lam-1.617)*PI)

	// Local time (s)
	tt := 43200.0*lam + t.Sec
	tt -= math.Floor(tt/86400.0) * 86400.0

	// Slant factor
	f := 1.0 + 16.0*math.Pow(0.53-el/PI, 3.0)

	// Ionospheric delay
	amp := ion[0] + phi*(ion[1]+phi*(ion[2]+phi*ion[3]))
	per := ion[4] + phi*(ion[5]+phi*(ion[6]+phi*ion[7]))
	amp = math.Max(amp, 0.0)
	per = math.Max(per, 72000.0)
	x := 2.0 * PI * (tt - 50400.0) / per
	if math.Abs(x) < 1.57 {
		return C * f * (5e-9 + amp*(1.0+x*x*(-0.5+x*x/24.0)))
	}
	return C * f * 5e-9
}

// Saastamoinen tropospheric delay along elevation el [m]
func TropModel(pos PosXYZ, el, humi float64) float64 {
	const TEMP0 = 15.0
	llh := pos.ToLLH()
	if llh.Hei < -100.0 || 1e4 < llh.Hei || el <= 0 {
		return 0.0
	}
	hgt := math.Max(llh.Hei, 0.0)
	pres := 1013.25 * math.Pow(1.0-2.2557e-5*hgt, 5.2568)
	temp := TEMP0 - 6.5e-3*hgt + 273.16
	e := 6.108 * humi * math.Exp((17.15*temp-4684.0)/(temp-38.45))
	z := PI/2.0 - el
	trph := 0.0022768 * pres / (1.0 - 0.00266*math.Cos(2.0*llh.Lat) - 0.00028*hgt/1e3) / math.Cos(z)
	trpw := 0.002277 * (1255.0/temp + 0.05) * e / math.Cos(z)
	return trph + trpw
}

// Niell mapping function (hydrostatic)
func TropMapf(t GTime, pos PosXYZ, el float64) float64 {
	llh := pos.ToLLH()
	if llh.Hei < -1000.0 || llh.Hei > 20000.0 {
		return 0.0
	}
	return nmf(t, llh, el)
}

func nmf(t GTime, pos PosLLH, elev float64) float64 {
	coef := [9][5]float64{
		{1.2769934e-3, 1.2683230e-3, 1.2465397e-3, 1.2196049e-3, 1.2045996e-3},
		{2.9153695e-3, 2.9152299e-3, 2.9288445e-3, 2.9022565e-3, 2.9024912e-3},
		{62.610505e-3, 62.837393e-3, 63.721774e-3, 63.824265e-3, 64.258455e-3},

		{0.0000000e-0, 1.2709626e-5, 2.6523662e-5, 3.4000452e-5, 4.1202191e-5},
		{0.0000000e-0, 2.1414979e-5, 3.0160779e-5, 7.2562722e-5, 11.723375e-5},
		{0.0000000e-0, 9.0128400e-5, 4.3497037e-5, 84.795348e-5, 170.37206e-5},

		{5.8021897e-4, 5.6794847e-4, 5.8118019e-4, 5.9727542e-4, 6.1641693e-4},
		{1.4275268e-3, 1.5138625e-3, 1.4572752e-3, 1.5007428e-3, 1.7599082e-3},
		{4.3472961e-2, 4.6729510e-2, 4.3908931e-2, 4.4626982e-2, 5.4736038e-2},
	}
	aht := [3]float64{2.53e-5, 5.49e-3, 1.14e-3}
	if elev <= 0.0 {
		return 0.0
	}
	lat := ToDeg(pos.Lat)
	y := (float64(t.ToTime().YearDay()) - 28.0) / 365.25
	if lat < 0.0 {
		y += 0.5
	}
	cosy := math.Cos(2 * PI * y)
	lat = math.Abs(lat)
	ah := [3]float64{}
	for i := range 3 {
		ah[i] = interpc(coef[i], lat) - interpc(coef[i+3], lat)*cosy
	}
	dm := (1.0/math.Sin(elev) - mapf(elev, aht[0], aht[1], aht[2])) * pos.Hei / 1e3
	return mapf(elev, ah[0], ah[1], ah[2]) + dm
}

func interpc(coef [5]float64, lat float64) float64 {
	i := int(lat / 15.0)
	if i < 1 {
		return coef[0]
	} else if i > 4 {
		return coef[4]
	}
	return coef[i-1]*(1.0-lat/15.0+float64(i)) + coef[i]*(lat/15.0-float64(i))
}

func mapf(el, a, b, c float64) float64 {
	sinel := math.Sin(el)
	return (1.0 + a/(1.0+b/(1.0+c))) / (sinel + (a / (sinel + b/(sinel+c))))
}
