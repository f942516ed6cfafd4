// Package devicelink talks to an Inertial Sense device: it frames and decodes packets, delivers
// data sets to registered handlers, writes configuration and carries RTK corrections.
package devicelink

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/inertialsense/protocol"
)

// Frame is one decoded data set received from the device.
type Frame struct {
	DID    protocol.DID
	Offset uint32
	Data   []byte
}

// A FrameHandler receives frames for one DID.
type FrameHandler func(Frame)

// Link is a connection to a device. Handlers only ever run inside Update, on the caller's goroutine.
type Link interface {
	// Register routes frames of did to handler, replacing any earlier handler.
	Register(did protocol.DID, handler FrameHandler)
	// WriteField writes data into the data set did starting at offset.
	WriteField(did protocol.DID, data []byte, offset uint32) error
	// Update delivers every frame received since the last call and returns how many were
	// delivered. It never blocks waiting for data.
	Update() int
	// OpenClientConnection connects to an RTK correction source described as "TYPE:host:port" and
	// forwards its corrections to the device.
	OpenClientConnection(spec string) error
	// CreateServerListener serves the device's RTK base corrections to clients on "host:port".
	CreateServerListener(spec string) error
	// StopBroadcasts stops every data set broadcast on every port.
	StopBroadcasts() error
	// GetBroadcast asks the device to broadcast did every periodMultiple navigation periods.
	GetBroadcast(did protocol.DID, periodMultiple uint32) error
	// FlashConfig is the device's persistent configuration as last read.
	FlashConfig() (protocol.FlashConfig, error)
	// DeviceInfo identifies the device.
	DeviceInfo() (protocol.DevInfo, error)
	Close() error
}

// Bootloader uploads a firmware image to a device whose link has been closed.
type Bootloader interface {
	Bootload(ctx context.Context, firmwarePath string) error
}

// Reopener is a link that can be opened again after Close, as after a firmware upload.
type Reopener interface {
	Reopen(ctx context.Context) error
}

// ErrBootloadUnsupported is returned when no firmware upload tool is configured.
var ErrBootloadUnsupported = errors.New("firmware upload is not supported on this link")

// ErrClosed is returned by operations on a closed link.
var ErrClosed = errors.New("device link is closed")
