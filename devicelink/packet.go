package devicelink

import (
	"github.com/pkg/errors"

	"go.viam.com/inertialsense/protocol"
)

// Packet framing bytes.
const (
	startByte  = 0xFF
	endByte    = 0xFE
	escapeByte = 0xFD

	rtcm3Preamble = 0xD3
	ubxSync1      = 0xB5
	ubxSync2      = 0x62

	checksumSeed   = 0x00AAAA
	maxPacketBytes = 4096
)

// Packet identifiers.
const (
	PIDAck                    uint8 = 1
	PIDNack                   uint8 = 2
	PIDGetData                uint8 = 3
	PIDData                   uint8 = 4
	PIDSetData                uint8 = 5
	PIDStopBroadcastsAllPorts uint8 = 6
	PIDStopDIDBroadcast       uint8 = 7
)

// Packet is one unescaped, checksum verified device packet.
type Packet struct {
	PID     uint8
	Counter uint8
	Flags   uint8
	Body    []byte
}

func checksum(data []byte) uint32 {
	sum := uint32(checksumSeed)
	shift := 0
	for _, b := range data {
		sum ^= uint32(b) << shift
		shift += 8
		if shift == 24 {
			shift = 0
		}
	}
	return sum & 0xFFFFFF
}

func needsEscape(b byte) bool {
	return b == startByte || b == endByte || b == escapeByte
}

// EncodePacket frames, checksums and escapes p.
func EncodePacket(p Packet) []byte {
	raw := make([]byte, 0, 3+len(p.Body)+3)
	raw = append(raw, p.PID, p.Counter, p.Flags)
	raw = append(raw, p.Body...)
	sum := checksum(raw)
	raw = append(raw, byte(sum>>16), byte(sum>>8), byte(sum))

	out := make([]byte, 0, len(raw)+8)
	out = append(out, startByte)
	for _, b := range raw {
		if needsEscape(b) {
			out = append(out, escapeByte, ^b)
			continue
		}
		out = append(out, b)
	}
	return append(out, endByte)
}

// EncodeData builds a packet carrying data for did at offset.
func EncodeData(pid, counter uint8, did protocol.DID, data []byte, offset uint32) []byte {
	hdr := protocol.MustEncode(&protocol.DataHeader{ID: uint32(did), Size: uint32(len(data)), Offset: offset})
	return EncodePacket(Packet{PID: pid, Counter: counter, Body: append(hdr, data...)})
}

// DecodeFrame extracts the data set carried by a data packet.
func DecodeFrame(p Packet) (Frame, error) {
	var hdr protocol.DataHeader
	if err := protocol.Decode(p.Body, &hdr); err != nil {
		return Frame{}, err
	}
	data := p.Body[protocol.SizeOf[protocol.DataHeader]():]
	if uint32(len(data)) < hdr.Size {
		return Frame{}, errors.Errorf("data set %d claims %d bytes, packet carries %d", hdr.ID, hdr.Size, len(data))
	}
	return Frame{DID: protocol.DID(hdr.ID), Offset: hdr.Offset, Data: data[:hdr.Size]}, nil
}

type decoderState int

const (
	stateIdle decoderState = iota
	statePacket
	stateForeign
)

// Decoder splits a byte stream into device packets and foreign RTCM3 or UBX frames. Bytes that
// belong to neither are discarded.
type Decoder struct {
	OnPacket  func(Packet)
	OnForeign func([]byte)
	// OnError is told about packets dropped for bad framing or checksum.
	OnError func(error)

	state    decoderState
	buf      []byte
	escaped  bool
	foreignN int
}

// Write feeds bytes to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.feed(b)
	}
	return len(p), nil
}

func (d *Decoder) reset() {
	d.state = stateIdle
	d.buf = d.buf[:0]
	d.escaped = false
	d.foreignN = 0
}

func (d *Decoder) fail(err error) {
	if d.OnError != nil {
		d.OnError(err)
	}
	d.reset()
}

func (d *Decoder) feed(b byte) {
	switch d.state {
	case stateIdle:
		switch b {
		case startByte:
			d.state = statePacket
		case rtcm3Preamble, ubxSync1:
			d.state = stateForeign
			d.buf = append(d.buf, b)
		}
	case statePacket:
		d.feedPacket(b)
	case stateForeign:
		d.feedForeign(b)
	}
}

func (d *Decoder) feedPacket(b byte) {
	switch {
	case b == startByte:
		d.fail(errors.New("packet restarted before end byte"))
		d.state = statePacket
		return
	case b == endByte:
		d.finishPacket()
		return
	case b == escapeByte:
		d.escaped = true
		return
	case d.escaped:
		b = ^b
		d.escaped = false
	}
	d.buf = append(d.buf, b)
	if len(d.buf) > maxPacketBytes {
		d.fail(errors.New("packet too long"))
	}
}

func (d *Decoder) finishPacket() {
	if len(d.buf) < 6 {
		d.fail(errors.New("packet too short"))
		return
	}
	body := d.buf[:len(d.buf)-3]
	tail := d.buf[len(d.buf)-3:]
	want := uint32(tail[0])<<16 | uint32(tail[1])<<8 | uint32(tail[2])
	if got := checksum(body); got != want {
		d.fail(errors.Errorf("bad packet checksum %06x, expected %06x", got, want))
		return
	}
	p := Packet{PID: body[0], Counter: body[1], Flags: body[2], Body: append([]byte(nil), body[3:]...)}
	d.reset()
	if d.OnPacket != nil {
		d.OnPacket(p)
	}
}

func (d *Decoder) feedForeign(b byte) {
	d.buf = append(d.buf, b)
	if d.foreignN == 0 {
		d.foreignN = foreignLength(d.buf)
		if d.foreignN < 0 {
			d.reset()
			return
		}
	}
	if d.foreignN > 0 && len(d.buf) == d.foreignN {
		frame := append([]byte(nil), d.buf...)
		d.reset()
		if d.OnForeign != nil {
			d.OnForeign(frame)
		}
	}
}

// foreignLength returns the full frame length once enough of the header is known, 0 when more
// header bytes are needed and -1 when the bytes are not a valid header.
func foreignLength(buf []byte) int {
	switch buf[0] {
	case rtcm3Preamble:
		if len(buf) < 3 {
			return 0
		}
		if buf[1]&0xFC != 0 {
			return -1
		}
		// Preamble, 10-bit length, payload, 24-bit CRC.
		return 3 + (int(buf[1]&0x03)<<8 | int(buf[2])) + 3
	case ubxSync1:
		if len(buf) < 2 {
			return 0
		}
		if buf[1] != ubxSync2 {
			return -1
		}
		if len(buf) < 6 {
			return 0
		}
		// Sync, class, id, 16-bit length, payload, 2 checksum bytes.
		return 6 + (int(buf[4]) | int(buf[5])<<8) + 2
	}
	return -1
}
