package protocol

import (
	"bytes"
	"encoding/binary"
	"reflect"

	"github.com/pkg/errors"
)

// ByteOrder of every device payload.
var ByteOrder = binary.LittleEndian

// ErrShortPayload is returned when a payload is smaller than the layout it is decoded into.
var ErrShortPayload = errors.New("payload shorter than data set layout")

// Decode reinterprets payload as v, which must be a pointer to a fixed size struct. Trailing bytes
// beyond the layout are ignored so newer firmware that appends fields still decodes.
func Decode(payload []byte, v interface{}) error {
	size := binary.Size(v)
	if size < 0 {
		return errors.Errorf("%T has no fixed binary size", v)
	}
	if len(payload) < size {
		return errors.Wrapf(ErrShortPayload, "%T needs %d bytes, got %d", v, size, len(payload))
	}
	return binary.Read(bytes.NewReader(payload[:size]), ByteOrder, v)
}

// Encode returns the wire form of v.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, ByteOrder, v); err != nil {
		return nil, errors.Wrapf(err, "encoding %T", v)
	}
	return buf.Bytes(), nil
}

// MustEncode is Encode for values whose layout is known to be fixed.
func MustEncode(v interface{}) []byte {
	data, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// SizeOf returns the wire size of T.
func SizeOf[T any]() int {
	var zero T
	return binary.Size(&zero)
}

// FieldOffset returns the wire byte offset of the named field within the struct layout of v.
func FieldOffset(v interface{}, field string) (uint32, error) {
	typ := reflect.TypeOf(v)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return 0, errors.Errorf("%v is not a struct", typ)
	}

	var offset int
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Name == field {
			return uint32(offset), nil
		}
		size := binary.Size(reflect.New(f.Type).Interface())
		if size < 0 {
			return 0, errors.Errorf("field %s of %v has no fixed binary size", f.Name, typ)
		}
		offset += size
	}
	return 0, errors.Errorf("%v has no field %q", typ, field)
}

// FlashOffset returns the offset of a FlashConfig field and panics on unknown names.
func FlashOffset(field string) uint32 {
	offset, err := FieldOffset(FlashConfig{}, field)
	if err != nil {
		panic(err)
	}
	return offset
}

// RawPayload is a decoded raw GNSS message. Exactly one of the union members is set according to
// Header.DataType; unsupported kinds leave all of them empty.
type RawPayload struct {
	Header       GpsRawHeader
	Observations []ObsData
	Ephemeris    *Ephemeris
	GloEphemeris *GlonassEphemeris
}

// DecodeRaw decodes a raw GNSS data set.
func DecodeRaw(payload []byte) (RawPayload, error) {
	var out RawPayload
	if err := Decode(payload, &out.Header); err != nil {
		return out, err
	}
	body := payload[binary.Size(out.Header):]

	switch out.Header.DataType {
	case RawDataTypeObservation:
		obsSize := SizeOf[ObsData]()
		count := int(out.Header.ObsCount)
		if count*obsSize > len(body) {
			return out, errors.Wrapf(ErrShortPayload, "%d observations need %d bytes, got %d",
				count, count*obsSize, len(body))
		}
		out.Observations = make([]ObsData, count)
		for i := range out.Observations {
			if err := Decode(body[i*obsSize:], &out.Observations[i]); err != nil {
				return out, err
			}
		}
	case RawDataTypeEphemeris:
		out.Ephemeris = &Ephemeris{}
		if err := Decode(body, out.Ephemeris); err != nil {
			return out, err
		}
	case RawDataTypeGlonassEphemeris:
		out.GloEphemeris = &GlonassEphemeris{}
		if err := Decode(body, out.GloEphemeris); err != nil {
			return out, err
		}
	}
	return out, nil
}

// RawDataType peeks at the union tag of a raw GNSS payload.
func RawDataType(payload []byte) (uint8, bool) {
	if len(payload) < 2 {
		return 0, false
	}
	return payload[1], true
}
