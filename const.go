// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

const (
	PI   = 3.1415926535897932  // Pi
	C    = 2.99792458e8        // Speed of light [m/s]
	Re   = 6378137.0           // Earth's radius [m]
	Fe   = 1.0 / 298.257223563 // Earth's flattening
	OMGE = 7.2921151467e-5     // Earth rotation angular velocity (IS-GPS) [rad/s]
	LS   = 18                  // Leap seconds
	L1   = 1575420000.0        // L1 frequency of G/J [Hz]
	L2   = 1227600000.0        // L2 frequency of G/J [Hz]
	L5   = 1176450000.0        // L5 frequency of G/J [Hz]
	B1   = 1561098000.0        // B1 frequency of Beidou [Hz]
	B3   = 1268520000.0        // B3 frequency of Beidou [Hz]
	E1   = 1575420000.0        // E1 frequency of Galileo [Hz]
	E5b  = 1207140000.0        // E5b frequency of Galileo [Hz]
	G1   = 1602000000.0        // G1 frequency of Glonass
	G1d  = 562500.0            // Frequency division step of Glonass G1 [Hz]
	G2   = 1246000000.0        // G2 frequency of Glonass
	G2d  = 437500.0            // Frequency division step of Glonass G2 [Hz]
)

// Estimator dimensions and iteration limits
const (
	NX       = 7    // Position(3) + receiver clock + GLO/GAL/BDS time offsets
	NXV      = 4    // Velocity(3) + clock drift
	MAXITR   = 10   // Maximum number of Gauss-Newton iterations
	CONV_POS = 1e-4 // Convergence threshold of the position solver [m]
	CONV_VEL = 1e-6 // Convergence threshold of the velocity solver [m/s]
	MIN_RAIM = 6    // Minimum number of satellites to try RAIM
	MIN_NVS  = 5    // Minimum number of valid satellites in a RAIM candidate
	RAIM_RMS = 100.0
	DTTOL    = 0.005 // Tolerance of time difference [s]
)

// Capacity limits of one session
const (
	MAXSAT = 221 // Maximum number of satellites (G32 + R27 + E36 + C63 + J10 + S39 + spare)
	MAXOBS = 96  // Maximum number of observations in one epoch
)

// Error model defaults (RTKLIB)
const (
	ERR_ION     = 5.0    // Ionospheric delay std when uncorrected [m]
	ERR_TROP    = 3.0    // Tropospheric delay std when uncorrected [m]
	ERR_SAAS    = 0.3    // Saastamoinen model error std [m]
	ERR_BRDCI   = 0.5    // Broadcast ionosphere model error factor
	ERR_CBIAS   = 0.3    // Code bias error std [m]
	EFACT_GPS   = 1.0    // Error factor of GPS/QZSS/Galileo/BeiDou
	EFACT_GLO   = 1.5    // Error factor of GLONASS
	EFACT_SBS   = 3.0    // Error factor of SBAS
	MAX_VAR_EPH = 300.0 * 300.0
	VAR_PSEUDO  = 0.01 // Variance of the rank-deficiency pseudo observation [m^2]
)
