// Package output defines the published message schemas and the transcoders that fill them from
// device data sets.
package output

import (
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"gonum.org/v1/gonum/num/quat"
)

// Header is carried by every published message.
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Odometry is the INS solution.
type Odometry struct {
	Header Header `json:"header"`
	// Position is north, east, down from the reference position, in meters.
	Position        r3.Vector   `json:"position"`
	Orientation     quat.Number `json:"orientation"`
	LinearVelocity  r3.Vector   `json:"linear_velocity"`
	AngularVelocity r3.Vector   `json:"angular_velocity"`
	Location        *geo.Point  `json:"location"`
	Altitude        float64     `json:"altitude"`
}

// Imu is one IMU sample.
type Imu struct {
	Header             Header    `json:"header"`
	AngularVelocity    r3.Vector `json:"angular_velocity"`
	LinearAcceleration r3.Vector `json:"linear_acceleration"`
}

// GPS is a position fix fused with the velocity of the same epoch.
type GPS struct {
	Header   Header     `json:"header"`
	FixType  uint8      `json:"fix_type"`
	NumSat   uint8      `json:"num_sat"`
	Cno      float32    `json:"cno"`
	Location *geo.Point `json:"location"`
	Altitude float64    `json:"altitude"`
	PosEcef  r3.Vector  `json:"pos_ecef"`
	VelEcef  r3.Vector  `json:"vel_ecef"`
	HMSL     float32    `json:"hmsl"`
	HAcc     float32    `json:"hacc"`
	VAcc     float32    `json:"vacc"`
	PDop     float32    `json:"pdop"`
}

// SatelliteInfo is one tracked satellite.
type SatelliteInfo struct {
	SatID uint8 `json:"sat_id"`
	Cno   uint8 `json:"cno"`
}

// GPSInfo lists tracked satellites.
type GPSInfo struct {
	Header     Header          `json:"header"`
	NumSats    uint32          `json:"num_sats"`
	Satellites []SatelliteInfo `json:"satellite_info"`
}

// MagneticField is a magnetometer sample.
type MagneticField struct {
	Header        Header    `json:"header"`
	MagneticField r3.Vector `json:"magnetic_field"`
}

// FluidPressure is a barometer sample.
type FluidPressure struct {
	Header        Header  `json:"header"`
	FluidPressure float64 `json:"fluid_pressure"`
}

// PreIntIMU is a coning and sculling integral.
type PreIntIMU struct {
	Header Header    `json:"header"`
	DTheta r3.Vector `json:"dtheta"`
	DVel   r3.Vector `json:"dvel"`
	Dt     float64   `json:"dt"`
}

// RTKInfo summarizes the RTK solution inputs.
type RTKInfo struct {
	Header         Header     `json:"header"`
	BaseLLA        [3]float64 `json:"base_lla"`
	CycleSlipCount uint32     `json:"cycle_slip_count"`
	RoverObs       uint32     `json:"rover_obs"`
	BaseObs        uint32     `json:"base_obs"`
	RoverEph       uint32     `json:"rover_eph"`
	BaseEph        uint32     `json:"base_eph"`
	BaseAntCount   uint32     `json:"base_ant_count"`
}

// RTKRel is the rover to base vector.
type RTKRel struct {
	Header          Header    `json:"header"`
	DifferentialAge float32   `json:"differential_age"`
	ArRatio         float32   `json:"ar_ratio"`
	VectorToBase    r3.Vector `json:"vector_to_base"`
	DistanceToBase  float32   `json:"distance_to_base"`
	HeadingToBase   float32   `json:"heading_to_base"`
}

// GTime is a GNSS time split into whole and fractional seconds.
type GTime struct {
	Time int64   `json:"time"`
	Sec  float64 `json:"sec"`
}

// GNSSObservation is one satellite observation.
type GNSSObservation struct {
	Time  GTime   `json:"time"`
	Sat   uint8   `json:"sat"`
	Rcv   uint8   `json:"rcv"`
	SNR   uint8   `json:"snr"`
	LLI   uint8   `json:"lli"`
	Code  uint8   `json:"code"`
	QualL uint8   `json:"qual_l"`
	QualP uint8   `json:"qual_p"`
	L     float64 `json:"l"`
	P     float64 `json:"p"`
	D     float32 `json:"d"`
}

// GNSSObsVec is one epoch of observations.
type GNSSObsVec struct {
	Header Header            `json:"header"`
	Obs    []GNSSObservation `json:"obs"`
}

// GNSSEphemeris is a broadcast ephemeris.
type GNSSEphemeris struct {
	Header Header     `json:"header"`
	Sat    int32      `json:"sat"`
	Iode   int32      `json:"iode"`
	Iodc   int32      `json:"iodc"`
	Sva    int32      `json:"sva"`
	Svh    int32      `json:"svh"`
	Week   int32      `json:"week"`
	Code   int32      `json:"code"`
	Flag   int32      `json:"flag"`
	Toe    GTime      `json:"toe"`
	Toc    GTime      `json:"toc"`
	Ttr    GTime      `json:"ttr"`
	A      float64    `json:"A"`
	E      float64    `json:"e"`
	I0     float64    `json:"i0"`
	OMG0   float64    `json:"OMG0"`
	Omg    float64    `json:"omg"`
	M0     float64    `json:"M0"`
	Deln   float64    `json:"deln"`
	OMGd   float64    `json:"OMGd"`
	Idot   float64    `json:"idot"`
	Crc    float64    `json:"crc"`
	Crs    float64    `json:"crs"`
	Cuc    float64    `json:"cuc"`
	Cus    float64    `json:"cus"`
	Cic    float64    `json:"cic"`
	Cis    float64    `json:"cis"`
	Toes   float64    `json:"toes"`
	Fit    float64    `json:"fit"`
	F0     float64    `json:"f0"`
	F1     float64    `json:"f1"`
	F2     float64    `json:"f2"`
	Tgd    [4]float64 `json:"tgd"`
	Adot   float64    `json:"Adot"`
	Ndot   float64    `json:"ndot"`
}

// GlonassEphemeris is a GLONASS broadcast ephemeris.
type GlonassEphemeris struct {
	Header Header    `json:"header"`
	Sat    int32     `json:"sat"`
	Iode   int32     `json:"iode"`
	Frq    int32     `json:"frq"`
	Svh    int32     `json:"svh"`
	Sva    int32     `json:"sva"`
	Age    int32     `json:"age"`
	Toe    GTime     `json:"toe"`
	Tof    GTime     `json:"tof"`
	Pos    r3.Vector `json:"pos"`
	Vel    r3.Vector `json:"vel"`
	Acc    r3.Vector `json:"acc"`
	Taun   float64   `json:"taun"`
	Gamn   float64   `json:"gamn"`
	Dtaun  float64   `json:"dtaun"`
}

// StrobeTime marks a strobe input event.
type StrobeTime struct {
	Header Header `json:"header"`
	Pin    uint32 `json:"pin"`
	Count  uint32 `json:"count"`
}

// JointState is the subset of a joint state message used for wheel odometry: index 0 is the left
// wheel and index 1 the right.
type JointState struct {
	Header   Header    `json:"header"`
	Name     []string  `json:"name"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
}
