// Package protocol defines the data identifiers and fixed binary layouts exchanged with an
// Inertial Sense uINS.
package protocol

import "fmt"

// DID identifies a data set on the device.
type DID uint32

// Data sets used by the bridge. Numbering follows the device SDK data set table.
const (
	DIDNull               DID = 0
	DIDDevInfo            DID = 1
	DIDPreintegratedIMU   DID = 3
	DIDIns1               DID = 4
	DIDIns2               DID = 5
	DIDConfig             DID = 7
	DIDASCIIBcastPeriod   DID = 8
	DIDFlashConfig        DID = 12
	DIDGps1Pos            DID = 13
	DIDGps1Sat            DID = 15
	DIDMagCal             DID = 19
	DIDGps1RtkRel         DID = 21
	DIDGps1RtkMisc        DID = 22
	DIDGps1Vel            DID = 30
	DIDMagnetometer1      DID = 52
	DIDBarometer          DID = 53
	DIDDualIMU            DID = 58
	DIDGpsBaseRaw         DID = 60
	DIDStrobeInTime       DID = 68
	DIDGps1Raw            DID = 69
	DIDGps2Raw            DID = 70
	DIDWheelEncoder       DID = 71
	DIDWheelEncoderConfig DID = 82
)

var didNames = map[DID]string{
	DIDNull:               "null",
	DIDDevInfo:            "dev_info",
	DIDPreintegratedIMU:   "preintegrated_imu",
	DIDIns1:               "ins_1",
	DIDIns2:               "ins_2",
	DIDConfig:             "config",
	DIDASCIIBcastPeriod:   "ascii_bcast_period",
	DIDFlashConfig:        "flash_config",
	DIDGps1Pos:            "gps1_pos",
	DIDGps1Sat:            "gps1_sat",
	DIDMagCal:             "mag_cal",
	DIDGps1RtkRel:         "gps1_rtk_rel",
	DIDGps1RtkMisc:        "gps1_rtk_misc",
	DIDGps1Vel:            "gps1_vel",
	DIDMagnetometer1:      "magnetometer_1",
	DIDBarometer:          "barometer",
	DIDDualIMU:            "dual_imu",
	DIDGpsBaseRaw:         "gps_base_raw",
	DIDStrobeInTime:       "strobe_in_time",
	DIDGps1Raw:            "gps1_raw",
	DIDGps2Raw:            "gps2_raw",
	DIDWheelEncoder:       "wheel_encoder",
	DIDWheelEncoderConfig: "wheel_encoder_config",
}

func (did DID) String() string {
	if name, ok := didNames[did]; ok {
		return name
	}
	return fmt.Sprintf("did_%d", uint32(did))
}

// GPS status word masks.
const (
	GPSStatusNumSatsUsedMask uint32 = 0x000000FF
	GPSStatusFixMask         uint32 = 0x0000FF00
	GPSStatusFixBitOffset           = 8
)

// RTK configuration bits written to FlashConfig.RTKCfgBits.
const (
	RTKCfgBitsRover                   uint32 = 0x00000001
	RTKCfgBitsCompassing              uint32 = 0x00000008
	RTKCfgBitsBaseOutputGps1UbloxSer0 uint32 = 0x00000100
)

// Raw GNSS payload kinds carried in GpsRaw.DataType.
const (
	RawDataTypeObservation      uint8 = 1
	RawDataTypeEphemeris        uint8 = 2
	RawDataTypeGlonassEphemeris uint8 = 3
	RawDataTypeSBAS             uint8 = 4
	RawDataTypeBaseAntennaPos   uint8 = 5
	RawDataTypeIonUtcAlm        uint8 = 6
)

// ASCII output port options.
const (
	RMCOptionsPortSer0 uint32 = 0x00000001
	RMCOptionsPortSer1 uint32 = 0x00000002
)

// NMEA message selection bits accepted in configuration.
const (
	NMEAGPGGA = 0x01
	NMEAGPGLL = 0x02
	NMEAGPGSA = 0x04
	NMEAGPRMC = 0x08

	NMEASer0 = 0x01
	NMEASer1 = 0x02
)

// Magnetometer recalibration modes written to MagCal.EnMagRecal.
const (
	MagRecalMultiAxis  uint32 = 0
	MagRecalSingleAxis uint32 = 1
)

// SystemReset is the DIDConfig system command that reboots the device.
const SystemReset uint32 = 99

// GPSSatCount is the number of satellite slots in GpsSat.
const GPSSatCount = 50
