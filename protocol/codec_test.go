package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestLayoutSizes(t *testing.T) {
	test.That(t, SizeOf[GpsPos](), test.ShouldEqual, 88)
	test.That(t, SizeOf[GpsVel](), test.ShouldEqual, 24)
	test.That(t, SizeOf[ObsData](), test.ShouldEqual, 44)
	test.That(t, SizeOf[SatInfo](), test.ShouldEqual, 12)
	test.That(t, SizeOf[GpsSat](), test.ShouldEqual, 8+GPSSatCount*12)
	test.That(t, SizeOf[Ephemeris](), test.ShouldEqual, 288)
	test.That(t, SizeOf[FlashConfig](), test.ShouldEqual, 200)
	test.That(t, SizeOf[SystemCommand](), test.ShouldEqual, 8)
}

func TestFlashOffsets(t *testing.T) {
	for _, tc := range []struct {
		field  string
		offset uint32
	}{
		{"StartupNavDtMs", 16},
		{"Ser1BaudRate", 24},
		{"InsRotation", 28},
		{"InsOffset", 40},
		{"Gps1AntOffset", 52},
		{"InsDynModel", 64},
		{"RefLla", 72},
		{"Gps2AntOffset", 140},
		{"MagInclination", 176},
		{"MagDeclination", 180},
		{"RTKCfgBits", 192},
	} {
		t.Run(tc.field, func(t *testing.T) {
			test.That(t, FlashOffset(tc.field), test.ShouldEqual, tc.offset)
		})
	}

	_, err := FieldOffset(FlashConfig{}, "Nope")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, func() { FlashOffset("Nope") }, test.ShouldPanic)

	offset, err := FieldOffset(&MagCal{}, "EnMagRecal")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offset, test.ShouldEqual, 0)
}

func TestDecode(t *testing.T) {
	in := GpsPos{Week: 2200, TimeOfWeekMs: 345600123, Status: 0x0312, HMSL: 10.5, TowOffset: 12.25}
	in.Lla = [3]float64{40.7, -74.0, 12}
	payload := MustEncode(&in)

	var out GpsPos
	test.That(t, Decode(payload, &out), test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)

	t.Run("trailing bytes ignored", func(t *testing.T) {
		var out GpsPos
		test.That(t, Decode(append(payload, 1, 2, 3, 4), &out), test.ShouldBeNil)
		test.That(t, out, test.ShouldResemble, in)
	})

	t.Run("short payload", func(t *testing.T) {
		var out GpsPos
		err := Decode(payload[:40], &out)
		test.That(t, errors.Is(err, ErrShortPayload), test.ShouldBeTrue)
	})

	t.Run("not fixed size", func(t *testing.T) {
		var out []int
		test.That(t, Decode(payload, &out), test.ShouldNotBeNil)
	})
}

func TestDecodeRaw(t *testing.T) {
	obs := []ObsData{
		{Time: GTime{Time: 1700000000, Sec: 0.5}, Sat: 12, SNR: 180, L: 1.5e8, P: 2.2e7, D: -1200.5},
		{Time: GTime{Time: 1700000000, Sec: 0.5}, Sat: 17, SNR: 160, L: 1.1e8, P: 2.3e7, D: 300},
	}
	payload := MustEncode(&GpsRawHeader{DataType: RawDataTypeObservation, ObsCount: uint8(len(obs))})
	for i := range obs {
		payload = append(payload, MustEncode(&obs[i])...)
	}

	kind, ok := RawDataType(payload)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, kind, test.ShouldEqual, RawDataTypeObservation)

	raw, err := DecodeRaw(payload)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.Observations, test.ShouldResemble, obs)
	test.That(t, raw.Ephemeris, test.ShouldBeNil)

	_, err = DecodeRaw(payload[:len(payload)-1])
	test.That(t, errors.Is(err, ErrShortPayload), test.ShouldBeTrue)

	eph := Ephemeris{Sat: 5, Week: 2200, A: 26560000, E: 0.01, Tgd: [4]float64{1e-9, 0, 0, 0}}
	payload = append(MustEncode(&GpsRawHeader{DataType: RawDataTypeEphemeris}), MustEncode(&eph)...)
	raw, err = DecodeRaw(payload)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *raw.Ephemeris, test.ShouldResemble, eph)

	payload = MustEncode(&GpsRawHeader{DataType: RawDataTypeSBAS})
	raw, err = DecodeRaw(payload)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.Observations, test.ShouldBeNil)
	test.That(t, raw.Ephemeris, test.ShouldBeNil)
	test.That(t, raw.GloEphemeris, test.ShouldBeNil)

	_, ok = RawDataType([]byte{0})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDIDString(t *testing.T) {
	test.That(t, DIDGps1Pos.String(), test.ShouldEqual, "gps1_pos")
	test.That(t, DID(250).String(), test.ShouldEqual, "did_250")
}
