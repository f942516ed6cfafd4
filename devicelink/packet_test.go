package devicelink

import (
	"bytes"
	"testing"

	"go.viam.com/test"

	"go.viam.com/inertialsense/protocol"
)

type decoded struct {
	packets []Packet
	foreign [][]byte
	errs    []error
}

func newRecordingDecoder() (*Decoder, *decoded) {
	out := &decoded{}
	return &Decoder{
		OnPacket:  func(p Packet) { out.packets = append(out.packets, p) },
		OnForeign: func(f []byte) { out.foreign = append(out.foreign, f) },
		OnError:   func(err error) { out.errs = append(out.errs, err) },
	}, out
}

func TestPacketRoundTrip(t *testing.T) {
	body := []byte{0x00, startByte, 0x10, endByte, escapeByte, 0x7F}
	wire := EncodePacket(Packet{PID: PIDData, Counter: 9, Body: body})

	test.That(t, wire[0], test.ShouldEqual, byte(startByte))
	test.That(t, wire[len(wire)-1], test.ShouldEqual, byte(endByte))
	test.That(t, bytes.Count(wire, []byte{startByte}), test.ShouldEqual, 1)
	test.That(t, bytes.Count(wire, []byte{endByte}), test.ShouldEqual, 1)

	dec, out := newRecordingDecoder()
	_, err := dec.Write(wire)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.errs, test.ShouldBeEmpty)
	test.That(t, out.packets, test.ShouldHaveLength, 1)
	test.That(t, out.packets[0].PID, test.ShouldEqual, PIDData)
	test.That(t, out.packets[0].Counter, test.ShouldEqual, uint8(9))
	test.That(t, out.packets[0].Body, test.ShouldResemble, body)
}

func TestPacketSplitAcrossWrites(t *testing.T) {
	wire := EncodeData(PIDData, 1, protocol.DIDIns1, []byte{1, 2, 3, 4}, 8)
	dec, out := newRecordingDecoder()
	for _, b := range wire {
		dec.Write([]byte{b})
	}
	test.That(t, out.packets, test.ShouldHaveLength, 1)

	frame, err := DecodeFrame(out.packets[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.DID, test.ShouldEqual, protocol.DIDIns1)
	test.That(t, frame.Offset, test.ShouldEqual, uint32(8))
	test.That(t, frame.Data, test.ShouldResemble, []byte{1, 2, 3, 4})
}

func TestPacketBadChecksum(t *testing.T) {
	wire := EncodePacket(Packet{PID: PIDAck, Body: []byte{1, 2, 3, 4}})
	// Corrupt a body byte that needs no escaping.
	wire[5] ^= 0x01

	good := EncodePacket(Packet{PID: PIDAck, Counter: 2})
	dec, out := newRecordingDecoder()
	dec.Write(append(wire, good...))

	test.That(t, out.errs, test.ShouldHaveLength, 1)
	test.That(t, out.errs[0].Error(), test.ShouldContainSubstring, "checksum")
	test.That(t, out.packets, test.ShouldHaveLength, 1)
	test.That(t, out.packets[0].Counter, test.ShouldEqual, uint8(2))
}

func TestPacketTruncatedByRestart(t *testing.T) {
	wire := EncodePacket(Packet{PID: PIDAck, Body: []byte{1, 2}})
	dec, out := newRecordingDecoder()
	dec.Write(append(wire[:4], wire...))

	test.That(t, out.errs, test.ShouldHaveLength, 1)
	test.That(t, out.packets, test.ShouldHaveLength, 1)
}

func TestDecodeFrameShortData(t *testing.T) {
	hdr := protocol.MustEncode(&protocol.DataHeader{ID: uint32(protocol.DIDIns1), Size: 16})
	_, err := DecodeFrame(Packet{PID: PIDData, Body: append(hdr, 1, 2)})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = DecodeFrame(Packet{PID: PIDData, Body: []byte{1}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestForeignFrames(t *testing.T) {
	rtcm := []byte{rtcm3Preamble, 0x00, 0x02, 0xFF, 0xFE, 0x01, 0x02, 0x03}
	ubx := []byte{ubxSync1, ubxSync2, 0x01, 0x07, 0x02, 0x00, 0xAA, 0xBB, 0x10, 0x20}
	pkt := EncodePacket(Packet{PID: PIDAck, Counter: 3})

	var stream []byte
	stream = append(stream, 0x00, 0x42)
	stream = append(stream, rtcm...)
	stream = append(stream, pkt...)
	stream = append(stream, ubx...)
	stream = append(stream, ubxSync1, 0x00)

	dec, out := newRecordingDecoder()
	dec.Write(stream)

	test.That(t, out.foreign, test.ShouldHaveLength, 2)
	test.That(t, out.foreign[0], test.ShouldResemble, rtcm)
	test.That(t, out.foreign[1], test.ShouldResemble, ubx)
	test.That(t, out.packets, test.ShouldHaveLength, 1)
	test.That(t, out.errs, test.ShouldBeEmpty)
}

func TestChecksumSeed(t *testing.T) {
	test.That(t, checksum(nil), test.ShouldEqual, uint32(checksumSeed))
	test.That(t, checksum([]byte{0x01, 0x02, 0x03, 0x04}), test.ShouldEqual,
		uint32(checksumSeed)^0x030201^0x04)
}
