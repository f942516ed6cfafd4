// Package config holds the bridge's configuration and reads it from JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusNATS   = "nats"
)

// Config is the bridge configuration. Field names follow the device driver's parameter names.
type Config struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudrate"`
	FrameID  string `json:"frame_id"`

	// NavigationDtMs, when set, is the navigation period the device must be running at. A differing
	// startup period is written and the device is reset.
	NavigationDtMs *uint32 `json:"navigation_dt_ms,omitempty"`

	StreamINS     bool `json:"stream_INS"`
	StreamIMU     bool `json:"stream_IMU"`
	StreamGPS     bool `json:"stream_GPS"`
	StreamGPSRaw  bool `json:"stream_GPS_raw"`
	StreamGPSInfo bool `json:"stream_GPS_info"`
	StreamMag     bool `json:"stream_mag"`
	StreamBaro    bool `json:"stream_baro"`
	StreamPreint  bool `json:"stream_preint_IMU"`

	// EnableLog records the raw device byte stream under LogDir.
	EnableLog     bool   `json:"enable_log"`
	LogDir        string `json:"log_dir"`
	LogMaxSizeMB  int    `json:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups"`

	RTKRover          bool   `json:"RTK_rover"`
	RTKBase           bool   `json:"RTK_base"`
	DualGNSS          bool   `json:"dual_GNSS"`
	RTKServerIP       string `json:"RTK_server_IP"`
	RTKServerPort     int    `json:"RTK_server_port"`
	RTKCorrectionType string `json:"RTK_correction_type"`

	INSRpy     []float64 `json:"INS_rpy"`
	INSXyz     []float64 `json:"INS_xyz"`
	GPSAnt1Xyz []float64 `json:"GPS_ant1_xyz"`
	GPSAnt2Xyz []float64 `json:"GPS_ant2_xyz"`
	GPSRefLla  []float64 `json:"GPS_ref_lla"`

	Inclination  float32 `json:"inclination"`
	Declination  float32 `json:"declination"`
	DynamicModel int     `json:"dynamic_model"`
	Ser1BaudRate int     `json:"ser1_baud_rate"`

	NMEARate          int `json:"NMEA_rate"`
	NMEAConfiguration int `json:"NMEA_configuration"`
	NMEAPorts         int `json:"NMEA_ports"`

	// Wheel encoder geometry. WheelEncoder is false when none of these were given.
	WheelEncoder bool      `json:"-"`
	QWheelEnc    []float64 `json:"q_wheel_enc"`
	TWheelEnc    []float64 `json:"t_wheel_enc"`
	Diameter     float32   `json:"diameter"`
	Distance     float32   `json:"distance"`

	Bus        string `json:"bus"`
	NATSURL    string `json:"nats_url"`
	NATSPrefix string `json:"nats_prefix"`

	MetricsAddr         string  `json:"metrics_addr"`
	LogLevel            string  `json:"log_level"`
	CombinerToleranceMs float64 `json:"combiner_tolerance_ms"`
	QueueSize           int     `json:"queue_size"`

	// FirmwareTool is the external uploader run by the firmware_update service.
	FirmwareTool     string   `json:"firmware_tool"`
	FirmwareToolArgs []string `json:"firmware_tool_args"`
}

// Default returns the configuration used for any parameter a file leaves out.
func Default() *Config {
	return &Config{
		Port:              "/dev/ttyUSB0",
		BaudRate:          921600,
		FrameID:           "body",
		StreamINS:         true,
		LogDir:            ".",
		LogMaxSizeMB:      100,
		LogMaxBackups:     10,
		RTKServerIP:       "127.0.0.1",
		RTKServerPort:     7777,
		RTKCorrectionType: "UBLOX",
		INSRpy:            []float64{0, 0, 0},
		INSXyz:            []float64{0, 0, 0},
		GPSAnt1Xyz:        []float64{0, 0, 0},
		GPSAnt2Xyz:        []float64{0, 0, 0},
		GPSRefLla:         []float64{0, 0, 0},
		Inclination:       1.14878541071,
		Declination:       0.20007290992,
		DynamicModel:      8,
		Ser1BaudRate:      921600,
		Bus:               BusMemory,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSPrefix:        "inertialsense",
		LogLevel:          "info",
	}
}

var wheelEncoderKeys = []string{"q_wheel_enc", "t_wheel_enc", "diameter", "distance"}

// CombinerTolerance is the configured combiner tolerance as a duration.
func (cfg *Config) CombinerTolerance() time.Duration {
	return time.Duration(cfg.CombinerToleranceMs * float64(time.Millisecond))
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Port == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "port")
	}
	if cfg.BaudRate <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("baudrate must be positive, got %d", cfg.BaudRate))
	}
	if cfg.FrameID == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "frame_id")
	}
	for name, v := range map[string][]float64{
		"INS_rpy":      cfg.INSRpy,
		"INS_xyz":      cfg.INSXyz,
		"GPS_ant1_xyz": cfg.GPSAnt1Xyz,
		"GPS_ant2_xyz": cfg.GPSAnt2Xyz,
		"GPS_ref_lla":  cfg.GPSRefLla,
	} {
		if len(v) != 3 {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s must have 3 elements, got %d", name, len(v)))
		}
	}
	if cfg.WheelEncoder {
		if len(cfg.QWheelEnc) != 3 {
			return goutils.NewConfigValidationError(path, errors.Errorf("q_wheel_enc must have 3 elements, got %d", len(cfg.QWheelEnc)))
		}
		if len(cfg.TWheelEnc) != 3 {
			return goutils.NewConfigValidationError(path, errors.Errorf("t_wheel_enc must have 3 elements, got %d", len(cfg.TWheelEnc)))
		}
	}
	if (cfg.RTKRover || cfg.RTKBase) && cfg.RTKServerIP == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "RTK_server_IP")
	}
	if cfg.RTKServerPort <= 0 || cfg.RTKServerPort > 65535 {
		return goutils.NewConfigValidationError(path, errors.Errorf("RTK_server_port %d out of range", cfg.RTKServerPort))
	}
	if cfg.NMEARate < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("NMEA_rate must not be negative, got %d", cfg.NMEARate))
	}
	if cfg.CombinerToleranceMs < 0 {
		return goutils.NewConfigValidationError(path, errors.New("combiner_tolerance_ms must not be negative"))
	}
	switch cfg.Bus {
	case BusMemory:
	case BusNATS:
		if cfg.NATSURL == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "nats_url")
		}
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown bus %q", cfg.Bus))
	}
	return nil
}

// Read reads a config from the given file, expanding environment variables.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", filePath)
	}
	cfg, err := FromReader(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrapf(err, "config %q", filePath)
	}
	return cfg, nil
}

// FromReader decodes a config from JSON. Parameters may sit at the top level or under
// "attributes".
func FromReader(r io.Reader) (*Config, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	if attrs, ok := raw["attributes"].(map[string]interface{}); ok {
		raw = attrs
	}
	return FromAttributes(raw)
}

// FromAttributes decodes a config from an attribute map over the defaults and validates it.
func FromAttributes(attributes map[string]interface{}) (*Config, error) {
	cfg := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode config attributes")
	}
	if len(md.Unused) > 0 {
		return nil, errors.Errorf("unknown config attributes: %s", strings.Join(md.Unused, ", "))
	}
	for _, key := range wheelEncoderKeys {
		if _, ok := attributes[key]; ok {
			cfg.WheelEncoder = true
		}
	}
	if err := cfg.Validate("attributes"); err != nil {
		return nil, err
	}
	return cfg, nil
}
