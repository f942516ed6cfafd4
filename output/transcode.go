package output

import (
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/inertialsense/protocol"
)

func vec32(v [3]float32) r3.Vector {
	return r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func vec64(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func gtime(t protocol.GTime) GTime {
	return GTime{Time: t.Time, Sec: t.Sec}
}

// gtimeStamp converts a GNSS time to a wall time stamp.
func gtimeStamp(t protocol.GTime) time.Time {
	return time.Unix(t.Time, int64(t.Sec*1e9)).UTC()
}

// FromIns builds odometry from the INS attitude solution, the latest INS NED position and the
// latest IMU angular rates.
func FromIns(h Header, ins2 *protocol.Ins2, ned [3]float32, rates r3.Vector) Odometry {
	return Odometry{
		Header:   h,
		Position: vec32(ned),
		Orientation: quat.Number{
			Real: float64(ins2.Qn2b[0]),
			Imag: float64(ins2.Qn2b[1]),
			Jmag: float64(ins2.Qn2b[2]),
			Kmag: float64(ins2.Qn2b[3]),
		},
		LinearVelocity:  vec32(ins2.Uvw),
		AngularVelocity: rates,
		Location:        geo.NewPoint(ins2.Lla[0], ins2.Lla[1]),
		Altitude:        ins2.Lla[2],
	}
}

// FromDualImu uses the first IMU of the pair.
func FromDualImu(h Header, msg *protocol.DualImu) Imu {
	return Imu{
		Header:             h,
		AngularVelocity:    vec32(msg.I[0].Pqr),
		LinearAcceleration: vec32(msg.I[0].Acc),
	}
}

// FromGps fuses a position fix with the velocity of the same epoch. Fix type and satellite count
// are split out of the status word.
func FromGps(h Header, pos *protocol.GpsPos, vel *protocol.GpsVel) GPS {
	out := GPS{
		Header:   h,
		FixType:  uint8((pos.Status & protocol.GPSStatusFixMask) >> protocol.GPSStatusFixBitOffset),
		NumSat:   uint8(pos.Status & protocol.GPSStatusNumSatsUsedMask),
		Cno:      pos.CnoMean,
		Location: geo.NewPoint(pos.Lla[0], pos.Lla[1]),
		Altitude: pos.Lla[2],
		PosEcef:  vec64(pos.Ecef),
		HMSL:     pos.HMSL,
		HAcc:     pos.HAcc,
		VAcc:     pos.VAcc,
		PDop:     pos.PDop,
	}
	if vel != nil {
		out.VelEcef = vec32(vel.VelEcef)
	}
	return out
}

// FromGpsSat lists the satellites the receiver reports as tracked.
func FromGpsSat(h Header, msg *protocol.GpsSat) GPSInfo {
	n := int(msg.NumSats)
	if n > protocol.GPSSatCount {
		n = protocol.GPSSatCount
	}
	out := GPSInfo{Header: h, NumSats: msg.NumSats, Satellites: make([]SatelliteInfo, n)}
	for i := 0; i < n; i++ {
		out.Satellites[i] = SatelliteInfo{SatID: msg.Sat[i].SvID, Cno: msg.Sat[i].Cno}
	}
	return out
}

// FromMagnetometer copies a magnetometer sample.
func FromMagnetometer(h Header, msg *protocol.Magnetometer) MagneticField {
	return MagneticField{Header: h, MagneticField: vec32(msg.Mag)}
}

// FromBarometer copies the barometric pressure.
func FromBarometer(h Header, msg *protocol.Barometer) FluidPressure {
	return FluidPressure{Header: h, FluidPressure: float64(msg.Bar)}
}

// FromPreintegratedImu uses the first IMU's integrals.
func FromPreintegratedImu(h Header, msg *protocol.PreintegratedImu) PreIntIMU {
	return PreIntIMU{
		Header: h,
		DTheta: vec32(msg.Theta1),
		DVel:   vec32(msg.Vel1),
		Dt:     float64(msg.Dt),
	}
}

// FromRtkMisc sums observation and ephemeris counts over GPS, GLONASS, Galileo and Beidou.
func FromRtkMisc(h Header, msg *protocol.GpsRtkMisc) RTKInfo {
	return RTKInfo{
		Header:         h,
		BaseLLA:        msg.BaseLla,
		CycleSlipCount: msg.CycleSlipCount,
		RoverObs: msg.RoverGpsObservationCount + msg.RoverGlonassObservationCount +
			msg.RoverGalileoObservationCount + msg.RoverBeidouObservationCount,
		BaseObs: msg.BaseGpsObservationCount + msg.BaseGlonassObservationCount +
			msg.BaseGalileoObservationCount + msg.BaseBeidouObservationCount,
		RoverEph: msg.RoverGpsEphemerisCount + msg.RoverGlonassEphemerisCount +
			msg.RoverGalileoEphemerisCount + msg.RoverBeidouEphemerisCount,
		BaseEph: msg.BaseGpsEphemerisCount + msg.BaseGlonassEphemerisCount +
			msg.BaseGalileoEphemerisCount + msg.BaseBeidouEphemerisCount,
		BaseAntCount: msg.BaseAntennaCount,
	}
}

// FromRtkRel copies the rover to base vector.
func FromRtkRel(h Header, msg *protocol.GpsRtkRel) RTKRel {
	return RTKRel{
		Header:          h,
		DifferentialAge: msg.DifferentialAge,
		ArRatio:         msg.ArRatio,
		VectorToBase:    vec32(msg.VectorToBase),
		DistanceToBase:  msg.DistanceToBase,
		HeadingToBase:   msg.HeadingToBase,
	}
}

// FromObservations copies one epoch of observations, stamped with the first observation's time.
func FromObservations(frameID string, obs []protocol.ObsData) GNSSObsVec {
	out := GNSSObsVec{Header: Header{FrameID: frameID}, Obs: make([]GNSSObservation, len(obs))}
	if len(obs) > 0 {
		out.Header.Stamp = gtimeStamp(obs[0].Time)
	}
	for i, o := range obs {
		out.Obs[i] = GNSSObservation{
			Time:  gtime(o.Time),
			Sat:   o.Sat,
			Rcv:   o.Rcv,
			SNR:   o.SNR,
			LLI:   o.LLI,
			Code:  o.Code,
			QualL: o.QualL,
			QualP: o.QualP,
			L:     o.L,
			P:     o.P,
			D:     o.D,
		}
	}
	return out
}

// FromEphemeris copies a broadcast ephemeris, stamped with its time of ephemeris.
func FromEphemeris(frameID string, e *protocol.Ephemeris) GNSSEphemeris {
	return GNSSEphemeris{
		Header: Header{Stamp: gtimeStamp(e.Toe), FrameID: frameID},
		Sat:    e.Sat,
		Iode:   e.Iode,
		Iodc:   e.Iodc,
		Sva:    e.Sva,
		Svh:    e.Svh,
		Week:   e.Week,
		Code:   e.Code,
		Flag:   e.Flag,
		Toe:    gtime(e.Toe),
		Toc:    gtime(e.Toc),
		Ttr:    gtime(e.Ttr),
		A:      e.A,
		E:      e.E,
		I0:     e.I0,
		OMG0:   e.OMG0,
		Omg:    e.Omg,
		M0:     e.M0,
		Deln:   e.Deln,
		OMGd:   e.OMGd,
		Idot:   e.Idot,
		Crc:    e.Crc,
		Crs:    e.Crs,
		Cuc:    e.Cuc,
		Cus:    e.Cus,
		Cic:    e.Cic,
		Cis:    e.Cis,
		Toes:   e.Toes,
		Fit:    e.Fit,
		F0:     e.F0,
		F1:     e.F1,
		F2:     e.F2,
		Tgd:    e.Tgd,
		Adot:   e.Adot,
		Ndot:   e.Ndot,
	}
}

// FromGlonassEphemeris copies a GLONASS ephemeris, stamped with its time of ephemeris.
func FromGlonassEphemeris(frameID string, e *protocol.GlonassEphemeris) GlonassEphemeris {
	return GlonassEphemeris{
		Header: Header{Stamp: gtimeStamp(e.Toe), FrameID: frameID},
		Sat:    e.Sat,
		Iode:   e.Iode,
		Frq:    e.Frq,
		Svh:    e.Svh,
		Sva:    e.Sva,
		Age:    e.Age,
		Toe:    gtime(e.Toe),
		Tof:    gtime(e.Tof),
		Pos:    vec64(e.Pos),
		Vel:    vec64(e.Vel),
		Acc:    vec64(e.Acc),
		Taun:   e.Taun,
		Gamn:   e.Gamn,
		Dtaun:  e.Dtaun,
	}
}

// FromStrobe copies a strobe event.
func FromStrobe(h Header, msg *protocol.StrobeInTime) StrobeTime {
	return StrobeTime{Header: h, Pin: msg.Pin, Count: msg.Count}
}

// ToWheelEncoder converts a joint state into the device's wheel odometry input. tow is the joint
// state's stamp as GPS time of week. It fails when fewer than two wheels are present.
func ToWheelEncoder(msg *JointState, tow float64) (protocol.WheelEncoder, bool) {
	if len(msg.Position) < 2 || len(msg.Velocity) < 2 {
		return protocol.WheelEncoder{}, false
	}
	return protocol.WheelEncoder{
		TimeOfWeek: tow,
		ThetaL:     float32(msg.Position[0]),
		ThetaR:     float32(msg.Position[1]),
		OmegaL:     float32(msg.Velocity[0]),
		OmegaR:     float32(msg.Velocity[1]),
	}, true
}
