package bridge

import (
	"time"

	"go.viam.com/inertialsense/bus"
	"go.viam.com/inertialsense/combiner"
	"go.viam.com/inertialsense/devicelink"
	"go.viam.com/inertialsense/output"
	"go.viam.com/inertialsense/protocol"
	"go.viam.com/inertialsense/registry"
)

// Topic names.
const (
	TopicINS        = "ins"
	TopicIMU        = "imu"
	TopicGPS        = "gps"
	TopicGPSObs     = "gps/obs"
	TopicGPSEph     = "gps/eph"
	TopicGPSGloEph  = "gps/geph"
	TopicGPSInfo    = "gps/info"
	TopicMag        = "mag"
	TopicBaro       = "baro"
	TopicPreintIMU  = "preint_imu"
	TopicRTKInfo    = "RTK/info"
	TopicRTKRel     = "RTK/rel"
	TopicStrobeTime = "strobe_time"
	TopicJointState = "joint_states"
)

const (
	gpsPart    = "pos"
	gpsVelPart = "vel"
)

var rawGNSSDIDs = []protocol.DID{protocol.DIDGps1Raw, protocol.DIDGps2Raw, protocol.DIDGpsBaseRaw}

func (b *Bridge) header(stamp time.Time) output.Header {
	return output.Header{Stamp: stamp, FrameID: b.cfg.FrameID}
}

func msToSeconds(ms uint32) float64 {
	return float64(ms) / 1e3
}

// watch routes did from the link through the registry and asks the device to broadcast it.
func (b *Bridge) watch(did protocol.DID) error {
	for _, known := range b.broadcasts {
		if known == did {
			return nil
		}
	}
	b.link.Register(did, b.dispatch)
	if err := b.link.GetBroadcast(did, broadcastEveryPeriod); err != nil {
		return err
	}
	b.broadcasts = append(b.broadcasts, did)
	return nil
}

func (b *Bridge) dispatch(f devicelink.Frame) {
	if f.Offset != 0 {
		b.logger.Debugw("ignoring partial data set", "did", f.DID.String(), "offset", f.Offset)
		return
	}
	b.registry.Dispatch(f.DID, f.Data)
}

// requestBroadcasts asks for every watched data set again, as after the device restarts.
func (b *Bridge) requestBroadcasts() error {
	for _, did := range b.broadcasts {
		if err := b.link.GetBroadcast(did, broadcastEveryPeriod); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) channel(name string, enabled bool, topic, topic2 string) (*bus.StreamChannel, error) {
	return bus.NewStreamChannel(b.bus, name, enabled, topic, topic2)
}

func (b *Bridge) publish(ch *bus.StreamChannel, msg interface{}) {
	if !ch.Enabled {
		return
	}
	if err := ch.Publish(msg); err != nil {
		b.logger.Warnw("publish failed", "stream", ch.Name, "error", err)
		return
	}
	b.metrics.Published(ch.Pub.Topic())
}

func (b *Bridge) publish2(ch *bus.StreamChannel, msg interface{}) {
	if !ch.Enabled {
		return
	}
	if err := ch.Publish2(msg); err != nil {
		b.logger.Warnw("publish failed", "stream", ch.Name, "error", err)
		return
	}
	b.metrics.Published(ch.Pub2.Topic())
}

// configureStreams advertises the enabled streams and registers their handlers. GPS position,
// velocity and strobe handlers are always registered since time reconciliation depends on them.
func (b *Bridge) configureStreams() error {
	var err error
	if b.ins, err = b.channel("INS", b.cfg.StreamINS, TopicINS, ""); err != nil {
		return err
	}
	if b.imu, err = b.channel("IMU", b.cfg.StreamIMU, TopicIMU, ""); err != nil {
		return err
	}
	if b.gps, err = b.channel("GPS", b.cfg.StreamGPS, TopicGPS, ""); err != nil {
		return err
	}
	if b.gpsObs, err = b.channel("GPS_obs", b.cfg.StreamGPSRaw, TopicGPSObs, ""); err != nil {
		return err
	}
	if b.gpsEph, err = b.channel("GPS_eph", b.cfg.StreamGPSRaw, TopicGPSEph, TopicGPSGloEph); err != nil {
		return err
	}
	if b.gpsInfo, err = b.channel("GPS_info", b.cfg.StreamGPSInfo, TopicGPSInfo, ""); err != nil {
		return err
	}
	if b.mag, err = b.channel("mag", b.cfg.StreamMag, TopicMag, ""); err != nil {
		return err
	}
	if b.baro, err = b.channel("baro", b.cfg.StreamBaro, TopicBaro, ""); err != nil {
		return err
	}
	if b.preint, err = b.channel("preint_IMU", b.cfg.StreamPreint, TopicPreintIMU, ""); err != nil {
		return err
	}
	b.rtk = &bus.StreamChannel{Name: "RTK"}

	registry.Handle(b.registry, protocol.DIDGps1Pos, b.onGpsPos)
	registry.Handle(b.registry, protocol.DIDGps1Vel, b.onGpsVel)
	registry.Handle(b.registry, protocol.DIDStrobeInTime, b.onStrobe)
	dids := []protocol.DID{protocol.DIDGps1Pos, protocol.DIDGps1Vel, protocol.DIDStrobeInTime}

	if b.ins.Enabled || b.imu.Enabled {
		registry.Handle(b.registry, protocol.DIDIns1, b.onIns1)
		registry.Handle(b.registry, protocol.DIDIns2, b.onIns2)
		registry.Handle(b.registry, protocol.DIDDualIMU, b.onDualImu)
		dids = append(dids, protocol.DIDIns1, protocol.DIDIns2, protocol.DIDDualIMU)
	}
	if b.gpsObs.Enabled {
		for _, did := range rawGNSSDIDs {
			b.registry.SetVariantSelector(did, protocol.RawDataType)
			b.registry.RegisterVariant(did, protocol.RawDataTypeObservation, b.onRawObservations)
			b.registry.RegisterVariant(did, protocol.RawDataTypeEphemeris, b.onRawEphemeris)
			b.registry.RegisterVariant(did, protocol.RawDataTypeGlonassEphemeris, b.onRawGlonassEphemeris)
			dids = append(dids, did)
		}
	}
	if b.gpsInfo.Enabled {
		registry.Handle(b.registry, protocol.DIDGps1Sat, b.onGpsSat)
		dids = append(dids, protocol.DIDGps1Sat)
	}
	if b.mag.Enabled {
		registry.Handle(b.registry, protocol.DIDMagnetometer1, b.onMagnetometer)
		dids = append(dids, protocol.DIDMagnetometer1)
	}
	if b.baro.Enabled {
		registry.Handle(b.registry, protocol.DIDBarometer, b.onBarometer)
		dids = append(dids, protocol.DIDBarometer)
	}
	if b.preint.Enabled {
		registry.Handle(b.registry, protocol.DIDPreintegratedIMU, b.onPreintegratedImu)
		dids = append(dids, protocol.DIDPreintegratedIMU)
	}

	for _, did := range dids {
		if err := b.watch(did); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) configureRTKStreams() error {
	var err error
	if b.rtk, err = b.channel("RTK", true, TopicRTKInfo, TopicRTKRel); err != nil {
		return err
	}
	registry.Handle(b.registry, protocol.DIDGps1RtkMisc, b.onRtkMisc)
	registry.Handle(b.registry, protocol.DIDGps1RtkRel, b.onRtkRel)
	if err := b.watch(protocol.DIDGps1RtkMisc); err != nil {
		return err
	}
	return b.watch(protocol.DIDGps1RtkRel)
}

func (b *Bridge) onGpsPos(msg *protocol.GpsPos) {
	b.timebase.ObserveGPS(msg.Week, msg.TowOffset)
	stamp := b.timebase.FromWeekAndTow(msg.Week, msToSeconds(msg.TimeOfWeekMs))
	b.gpsSlot.Offer(gpsPart, stamp, msg)
}

func (b *Bridge) onGpsVel(msg *protocol.GpsVel) {
	stamp := b.timebase.FromTow(msToSeconds(msg.TimeOfWeekMs))
	b.gpsSlot.Offer(gpsVelPart, stamp, msg)
}

func (b *Bridge) publishGPS(g combiner.Group) {
	pos, _ := g.Parts[gpsPart].(*protocol.GpsPos)
	vel, _ := g.Parts[gpsVelPart].(*protocol.GpsVel)
	if pos == nil {
		return
	}
	b.metrics.Combined(b.gpsSlot.Name())
	b.publish(b.gps, output.FromGps(b.header(g.Stamp), pos, vel))
}

func (b *Bridge) onStrobe(msg *protocol.StrobeInTime) {
	if b.strobe == nil {
		ch, err := b.channel("strobe", true, TopicStrobeTime, "")
		if err != nil {
			b.logger.Warnw("cannot advertise strobe topic", "error", err)
			return
		}
		b.strobe = ch
	}
	stamp := b.timebase.FromWeekAndTow(msg.Week, msToSeconds(msg.TimeOfWeekMs))
	b.publish(b.strobe, output.FromStrobe(b.header(stamp), msg))
}

func (b *Bridge) onIns1(msg *protocol.Ins1) {
	b.ned = msg.Ned
}

func (b *Bridge) onIns2(msg *protocol.Ins2) {
	b.lla = msg.Lla
	b.haveLla = true
	stamp := b.timebase.FromWeekAndTow(msg.Week, msg.TimeOfWeek)
	b.publish(b.ins, output.FromIns(b.header(stamp), msg, b.ned, b.rates))
}

func (b *Bridge) onDualImu(msg *protocol.DualImu) {
	imu := output.FromDualImu(b.header(b.timebase.FromDeviceTime(msg.Time)), msg)
	b.rates = imu.AngularVelocity
	b.publish(b.imu, imu)
}

func (b *Bridge) onGpsSat(msg *protocol.GpsSat) {
	stamp := b.timebase.FromTow(msToSeconds(msg.TimeOfWeekMs))
	b.publish(b.gpsInfo, output.FromGpsSat(b.header(stamp), msg))
}

func (b *Bridge) onMagnetometer(msg *protocol.Magnetometer) {
	b.publish(b.mag, output.FromMagnetometer(b.header(b.timebase.FromDeviceTime(msg.Time)), msg))
}

func (b *Bridge) onBarometer(msg *protocol.Barometer) {
	b.publish(b.baro, output.FromBarometer(b.header(b.timebase.FromDeviceTime(msg.Time)), msg))
}

func (b *Bridge) onPreintegratedImu(msg *protocol.PreintegratedImu) {
	b.publish(b.preint, output.FromPreintegratedImu(b.header(b.timebase.FromDeviceTime(msg.Time)), msg))
}

func (b *Bridge) onRtkMisc(msg *protocol.GpsRtkMisc) {
	stamp := b.timebase.FromTow(msToSeconds(msg.TimeOfWeekMs))
	b.publish(b.rtk, output.FromRtkMisc(b.header(stamp), msg))
}

func (b *Bridge) onRtkRel(msg *protocol.GpsRtkRel) {
	stamp := b.timebase.FromTow(msToSeconds(msg.TimeOfWeekMs))
	b.publish2(b.rtk, output.FromRtkRel(b.header(stamp), msg))
}

func (b *Bridge) onRawObservations(payload []byte) error {
	raw, err := protocol.DecodeRaw(payload)
	if err != nil {
		return err
	}
	b.publish(b.gpsObs, output.FromObservations(b.cfg.FrameID, raw.Observations))
	return nil
}

func (b *Bridge) onRawEphemeris(payload []byte) error {
	raw, err := protocol.DecodeRaw(payload)
	if err != nil {
		return err
	}
	b.publish(b.gpsEph, output.FromEphemeris(b.cfg.FrameID, raw.Ephemeris))
	return nil
}

func (b *Bridge) onRawGlonassEphemeris(payload []byte) error {
	raw, err := protocol.DecodeRaw(payload)
	if err != nil {
		return err
	}
	b.publish2(b.gpsEph, output.FromGlonassEphemeris(b.cfg.FrameID, raw.GloEphemeris))
	return nil
}
