package protocol

// All layouts are little-endian with 4-byte packing, matching the device firmware.

// DevInfo identifies the connected device.
type DevInfo struct {
	Reserved     uint32
	SerialNumber uint32
	HardwareVer  [4]uint8
	FirmwareVer  [4]uint8
	BuildNumber  uint32
	ProtocolVer  [4]uint8
	RepoRevision uint32
	Manufacturer [24]byte
	BuildDate    [4]uint8
	BuildTime    [4]uint8
	AddInfo      [24]byte
}

// GpsPos is a GNSS position fix.
type GpsPos struct {
	Week         uint32
	TimeOfWeekMs uint32
	Status       uint32
	Ecef         [3]float64
	Lla          [3]float64
	HMSL         float32
	HAcc         float32
	VAcc         float32
	PDop         float32
	CnoMean      float32
	// TowOffset is the offset between device time and GPS time of week, in seconds. Zero until the
	// receiver has a fix.
	TowOffset float64
}

// GpsVel is a GNSS velocity in ECEF.
type GpsVel struct {
	TimeOfWeekMs uint32
	VelEcef      [3]float32
	SAcc         float32
	Status       uint32
}

// Ins1 is the INS solution with euler attitude and NED position.
type Ins1 struct {
	Week       uint32
	TimeOfWeek float64
	InsStatus  uint32
	HdwStatus  uint32
	Theta      [3]float32
	Uvw        [3]float32
	Lla        [3]float64
	Ned        [3]float32
}

// Ins2 is the INS solution with quaternion attitude.
type Ins2 struct {
	Week       uint32
	TimeOfWeek float64
	InsStatus  uint32
	HdwStatus  uint32
	Qn2b       [4]float32
	Uvw        [3]float32
	Lla        [3]float64
}

// ImuSample is one IMU's rates and accelerations.
type ImuSample struct {
	Pqr [3]float32
	Acc [3]float32
}

// DualImu carries both onboard IMUs sampled at the same device time.
type DualImu struct {
	Time   float64
	I      [2]ImuSample
	Status uint32
}

// Magnetometer is a magnetometer sample.
type Magnetometer struct {
	Time float64
	Mag  [3]float32
}

// Barometer is a barometer sample.
type Barometer struct {
	Time     float64
	Bar      float32
	MslBar   float32
	BarTemp  float32
	Humidity float32
}

// PreintegratedImu holds coning and sculling integrals over Dt.
type PreintegratedImu struct {
	Time   float64
	Theta1 [3]float32
	Theta2 [3]float32
	Vel1   [3]float32
	Vel2   [3]float32
	Dt     float32
	Status uint32
}

// SatInfo is one tracked satellite.
type SatInfo struct {
	GnssID uint8
	SvID   uint8
	Cno    uint8
	Elev   int8
	Azim   int16
	PrRes  int16
	Flags  uint32
}

// GpsSat lists tracked satellites.
type GpsSat struct {
	TimeOfWeekMs uint32
	NumSats      uint32
	Sat          [GPSSatCount]SatInfo
}

// StrobeInTime is emitted when a strobe input pin fires.
type StrobeInTime struct {
	Week         uint32
	TimeOfWeekMs uint32
	Pin          uint32
	Count        uint32
}

// GpsRtkMisc is RTK solution bookkeeping.
type GpsRtkMisc struct {
	TimeOfWeekMs uint32
	AccuracyPos  [3]float32
	AccuracyCov  [3]float32
	ArThreshold  float32
	GDop         float32
	HDop         float32
	VDop         float32
	BaseLla      [3]float64

	CycleSlipCount uint32

	RoverGpsObservationCount     uint32
	BaseGpsObservationCount      uint32
	RoverGlonassObservationCount uint32
	BaseGlonassObservationCount  uint32
	RoverGalileoObservationCount uint32
	BaseGalileoObservationCount  uint32
	RoverBeidouObservationCount  uint32
	BaseBeidouObservationCount   uint32
	RoverQzsObservationCount     uint32
	BaseQzsObservationCount      uint32

	RoverGpsEphemerisCount     uint32
	BaseGpsEphemerisCount      uint32
	RoverGlonassEphemerisCount uint32
	BaseGlonassEphemerisCount  uint32
	RoverGalileoEphemerisCount uint32
	BaseGalileoEphemerisCount  uint32
	RoverBeidouEphemerisCount  uint32
	BaseBeidouEphemerisCount   uint32
	RoverQzsEphemerisCount     uint32
	BaseQzsEphemerisCount      uint32

	RoverSbasCount             uint32
	BaseSbasCount              uint32
	BaseAntennaCount           uint32
	IonUtcAlmCount             uint32
	CorrectionChecksumFailures uint32
	TimeToFirstFixMs           uint32
}

// GpsRtkRel is the rover position relative to the base.
type GpsRtkRel struct {
	TimeOfWeekMs    uint32
	DifferentialAge float32
	ArRatio         float32
	VectorToBase    [3]float32
	DistanceToBase  float32
	HeadingToBase   float32
}

// GTime is a GNSS time: integer seconds plus fraction.
type GTime struct {
	Time int64
	Sec  float64
}

// ObsData is a single-frequency observation of one satellite.
type ObsData struct {
	Time     GTime
	Sat      uint8
	Rcv      uint8
	SNR      uint8
	LLI      uint8
	Code     uint8
	QualL    uint8
	QualP    uint8
	Reserved uint8
	L        float64
	P        float64
	D        float32
}

// Ephemeris is a GPS/Galileo/Beidou/QZS broadcast ephemeris.
type Ephemeris struct {
	Sat  int32
	Iode int32
	Iodc int32
	Sva  int32
	Svh  int32
	Week int32
	Code int32
	Flag int32
	Toe  GTime
	Toc  GTime
	Ttr  GTime
	A    float64
	E    float64
	I0   float64
	OMG0 float64
	Omg  float64
	M0   float64
	Deln float64
	OMGd float64
	Idot float64
	Crc  float64
	Crs  float64
	Cuc  float64
	Cus  float64
	Cic  float64
	Cis  float64
	Toes float64
	Fit  float64
	F0   float64
	F1   float64
	F2   float64
	Tgd  [4]float64
	Adot float64
	Ndot float64
}

// GlonassEphemeris is a GLONASS broadcast ephemeris.
type GlonassEphemeris struct {
	Sat   int32
	Iode  int32
	Frq   int32
	Svh   int32
	Sva   int32
	Age   int32
	Toe   GTime
	Tof   GTime
	Pos   [3]float64
	Vel   [3]float64
	Acc   [3]float64
	Taun  float64
	Gamn  float64
	Dtaun float64
}

// GpsRawHeader prefixes every raw GNSS payload. The remainder of the payload is a union selected
// by DataType.
type GpsRawHeader struct {
	ReceiverIndex uint8
	DataType      uint8
	ObsCount      uint8
	Reserved      uint8
}

// WheelEncoder is wheel odometry sent to the device.
type WheelEncoder struct {
	TimeOfWeek float64
	Status     uint32
	ThetaL     float32
	OmegaL     float32
	ThetaR     float32
	OmegaR     float32
	WrapCountL uint32
	WrapCountR uint32
}

// WheelEncoderConfig describes the wheel geometry relative to the IMU.
type WheelEncoderConfig struct {
	Bits     uint32
	QI2L     [3]float32
	TI2L     [3]float32
	Distance float32
	Diameter float32
}

// SystemCommand is written to DIDConfig. InvSystem must be the bitwise complement of System.
type SystemCommand struct {
	System    uint32
	InvSystem uint32
}

// MagCal triggers magnetometer recalibration.
type MagCal struct {
	EnMagRecal uint32
}

// ASCIIMessages sets NMEA broadcast periods.
type ASCIIMessages struct {
	Options uint32
	Gpgga   uint32
	Gpgll   uint32
	Gpgsa   uint32
	Gprmc   uint32
}

// FlashConfig is the persistent device configuration record. Writes address individual fields by
// byte offset, see FieldOffset.
type FlashConfig struct {
	Size                  uint32
	Checksum              uint32
	Key                   uint32
	StartupImuDtMs        uint32
	StartupNavDtMs        uint32
	Ser0BaudRate          uint32
	Ser1BaudRate          uint32
	InsRotation           [3]float32
	InsOffset             [3]float32
	Gps1AntOffset         [3]float32
	InsDynModel           uint32
	SysCfgBits            uint32
	RefLla                [3]float64
	LastLla               [3]float64
	LastLlaTimeOfWeekMs   uint32
	LastLlaWeek           uint32
	LastLlaUpdateDistance float32
	IoConfig              uint32
	CBrdConfig            uint32
	Gps2AntOffset         [3]float32
	ZeroVelRotation       [3]float32
	ZeroVelOffset         [3]float32
	MagInclination        float32
	MagDeclination        float32
	GpsTimeSyncPeriodMs   uint32
	StartupGPSDtMs        uint32
	RTKCfgBits            uint32
	SensorConfig          uint32
}

// GetDataRequest asks the device to broadcast a data set every PeriodMultiple navigation periods.
type GetDataRequest struct {
	ID             uint32
	Size           uint32
	Offset         uint32
	PeriodMultiple uint32
}

// DataHeader prefixes every data set carried in a packet.
type DataHeader struct {
	ID     uint32
	Size   uint32
	Offset uint32
}
