// Package rtkmode selects the device's RTK operating mode and writes it to the device.
package rtkmode

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/protocol"
)

// Mode is a mutually exclusive device operating mode.
type Mode int

// Operating modes.
const (
	None Mode = iota
	RtkRover
	RtkBase
	DualGnssCompassing
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case RtkRover:
		return "rtk_rover"
	case RtkBase:
		return "rtk_base"
	case DualGnssCompassing:
		return "dual_gnss"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Request holds the independently configured mode flags and correction endpoint.
type Request struct {
	Rover    bool
	Base     bool
	DualGnss bool

	ServerIP       string
	ServerPort     int
	CorrectionType string
}

// Selection is the resolved mode. It is fixed for the life of the process.
type Selection struct {
	Mode Mode
	// Compassing is set when dual GNSS compassing runs alongside the base station.
	Compassing bool
	// Bits is written to FlashConfig.RTKCfgBits.
	Bits uint32
	// Connection is the rover correction source "TYPE:host:port" or the base listen address
	// "host:port". Empty for other modes.
	Connection string
	// Warnings describe requests that were overridden by precedence.
	Warnings []string
}

// RTKStreams reports whether the RTK status data sets are meaningful in this mode.
func (s Selection) RTKStreams() bool {
	return s.Mode == RtkRover || s.Mode == DualGnssCompassing || s.Compassing
}

// Resolve applies precedence to req: dual GNSS beats rover and rover beats base. Dual GNSS and
// base combine; the device compasses and also serves base corrections.
func Resolve(req Request) Selection {
	var sel Selection
	if req.Rover && req.DualGnss {
		sel.Warnings = append(sel.Warnings,
			"unable to configure device as both RTK rover and dual GNSS, defaulting to dual GNSS")
	}
	if req.Rover && req.Base && !req.DualGnss {
		sel.Warnings = append(sel.Warnings,
			"unable to configure device as both RTK rover and base, defaulting to rover")
	}

	hostPort := req.ServerIP + ":" + strconv.Itoa(req.ServerPort)
	rover := req.Rover
	if req.DualGnss {
		sel.Mode = DualGnssCompassing
		sel.Bits |= protocol.RTKCfgBitsCompassing
		rover = false
	}
	switch {
	case rover:
		sel.Mode = RtkRover
		sel.Bits |= protocol.RTKCfgBitsRover
		sel.Connection = req.CorrectionType + ":" + hostPort
	case req.Base:
		sel.Compassing = sel.Mode == DualGnssCompassing
		sel.Mode = RtkBase
		sel.Bits |= protocol.RTKCfgBitsBaseOutputGps1UbloxSer0
		sel.Connection = hostPort
	}
	return sel
}

// Device is the part of the device link the mode machine drives.
type Device interface {
	WriteField(did protocol.DID, data []byte, offset uint32) error
	OpenClientConnection(spec string) error
	CreateServerListener(spec string) error
}

// Outcome tells the caller how startup proceeds after Apply.
type Outcome int

const (
	// Continue means the remaining startup configuration should run.
	Continue Outcome = iota
	// BaseListening is terminal: the base listener is up and the rest of startup is skipped.
	BaseListening
)

func (o Outcome) String() string {
	if o == BaseListening {
		return "base_listening"
	}
	return "continue"
}

// Apply establishes the mode's transport and writes the mode bits. Transport failures are logged
// and do not prevent or roll back the bit write; only a failed write is returned.
func Apply(dev Device, sel Selection, logger logging.Logger) (Outcome, error) {
	outcome := Continue
	switch sel.Mode {
	case DualGnssCompassing:
		logger.Info("configured as dual GNSS (compassing)")
	case RtkRover:
		logger.Info("configured as RTK rover")
		if err := dev.OpenClientConnection(sel.Connection); err != nil {
			logger.Errorw("failed to connect to RTK correction server", "connection", sel.Connection, "error", err)
		} else {
			logger.Infow("connected to RTK correction server", "connection", sel.Connection)
		}
	case RtkBase:
		if sel.Compassing {
			logger.Info("configured as dual GNSS (compassing)")
		}
		logger.Info("configured as RTK base")
		if err := dev.CreateServerListener(sel.Connection); err != nil {
			logger.Errorw("failed to create RTK base server", "connection", sel.Connection, "error", err)
		} else {
			logger.Infow("created RTK base server", "connection", sel.Connection)
			outcome = BaseListening
		}
	case None:
	}

	bits := protocol.MustEncode(&sel.Bits)
	if err := dev.WriteField(protocol.DIDFlashConfig, bits, protocol.FlashOffset("RTKCfgBits")); err != nil {
		return outcome, errors.Wrap(err, "writing RTK configuration bits")
	}
	return outcome, nil
}

// Configure resolves req, logs any precedence warnings, and applies the result.
func Configure(dev Device, req Request, logger logging.Logger) (Selection, Outcome, error) {
	sel := Resolve(req)
	for _, w := range sel.Warnings {
		logger.Warn(w)
	}
	outcome, err := Apply(dev, sel, logger)
	return sel, outcome, err
}
