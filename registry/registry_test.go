package registry

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/protocol"
)

type countingObserver struct {
	dispatched, ignored, failed map[protocol.DID]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		dispatched: map[protocol.DID]int{},
		ignored:    map[protocol.DID]int{},
		failed:     map[protocol.DID]int{},
	}
}

func (o *countingObserver) FrameDispatched(did protocol.DID) { o.dispatched[did]++ }
func (o *countingObserver) FrameIgnored(did protocol.DID)    { o.ignored[did]++ }
func (o *countingObserver) FrameFailed(did protocol.DID)     { o.failed[did]++ }

func TestDispatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	obs := newCountingObserver()
	r := New(logger, obs)

	var got []protocol.Barometer
	Handle(r, protocol.DIDBarometer, func(msg *protocol.Barometer) {
		got = append(got, *msg)
	})
	test.That(t, r.Registered(protocol.DIDBarometer), test.ShouldBeTrue)
	test.That(t, r.Registered(protocol.DIDMagnetometer1), test.ShouldBeFalse)

	baro := protocol.Barometer{Time: 12.5, Bar: 101.3, BarTemp: 21}
	test.That(t, r.Dispatch(protocol.DIDBarometer, protocol.MustEncode(&baro)), test.ShouldBeTrue)
	test.That(t, got, test.ShouldResemble, []protocol.Barometer{baro})

	t.Run("unregistered did is ignored", func(t *testing.T) {
		test.That(t, r.Dispatch(protocol.DIDMagnetometer1, []byte{1, 2, 3}), test.ShouldBeFalse)
		test.That(t, obs.ignored[protocol.DIDMagnetometer1], test.ShouldEqual, 1)
	})

	t.Run("short payload is dropped", func(t *testing.T) {
		test.That(t, r.Dispatch(protocol.DIDBarometer, []byte{1, 2}), test.ShouldBeFalse)
		test.That(t, obs.failed[protocol.DIDBarometer], test.ShouldEqual, 1)
		test.That(t, len(got), test.ShouldEqual, 1)
	})

	test.That(t, obs.dispatched[protocol.DIDBarometer], test.ShouldEqual, 1)
}

func TestReplaceHandler(t *testing.T) {
	r := New(logging.NewTestLogger(t), nil)
	var first, second int
	r.Register(protocol.DIDIns1, func([]byte) error { first++; return nil })
	r.Register(protocol.DIDIns1, func([]byte) error { second++; return nil })

	r.Dispatch(protocol.DIDIns1, nil)
	test.That(t, first, test.ShouldEqual, 0)
	test.That(t, second, test.ShouldEqual, 1)
}

func TestVariants(t *testing.T) {
	r := New(logging.NewTestLogger(t), nil)
	r.SetVariantSelector(protocol.DIDGps1Raw, protocol.RawDataType)

	var obsCalls, ephCalls int
	r.RegisterVariant(protocol.DIDGps1Raw, protocol.RawDataTypeObservation, func([]byte) error {
		obsCalls++
		return nil
	})
	r.RegisterVariant(protocol.DIDGps1Raw, protocol.RawDataTypeEphemeris, func([]byte) error {
		ephCalls++
		return nil
	})
	test.That(t, r.Registered(protocol.DIDGps1Raw), test.ShouldBeTrue)

	header := func(kind uint8) []byte {
		return protocol.MustEncode(&protocol.GpsRawHeader{DataType: kind})
	}
	test.That(t, r.Dispatch(protocol.DIDGps1Raw, header(protocol.RawDataTypeObservation)), test.ShouldBeTrue)
	test.That(t, r.Dispatch(protocol.DIDGps1Raw, header(protocol.RawDataTypeEphemeris)), test.ShouldBeTrue)
	test.That(t, r.Dispatch(protocol.DIDGps1Raw, header(protocol.RawDataTypeSBAS)), test.ShouldBeFalse)
	test.That(t, r.Dispatch(protocol.DIDGps1Raw, []byte{0}), test.ShouldBeFalse)
	test.That(t, obsCalls, test.ShouldEqual, 1)
	test.That(t, ephCalls, test.ShouldEqual, 1)
}

func TestDIDs(t *testing.T) {
	r := New(logging.NewTestLogger(t), nil)
	r.Register(protocol.DIDGps1Vel, func([]byte) error { return nil })
	r.Register(protocol.DIDGps1Pos, func([]byte) error { return nil })
	r.RegisterVariant(protocol.DIDGps2Raw, protocol.RawDataTypeObservation, func([]byte) error { return nil })

	test.That(t, r.DIDs(), test.ShouldResemble,
		[]protocol.DID{protocol.DIDGps1Pos, protocol.DIDGps1Vel, protocol.DIDGps2Raw})
}
