// Package fake implements an in-memory device link for tests.
package fake

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/inertialsense/devicelink"
	"go.viam.com/inertialsense/protocol"
)

// Write is one recorded WriteField call.
type Write struct {
	DID    protocol.DID
	Data   []byte
	Offset uint32
}

// Link records everything written to it and delivers frames queued with Inject on Update.
// The *Func fields, when set, decide the result of the matching call.
type Link struct {
	mu sync.Mutex

	handlers map[protocol.DID]devicelink.FrameHandler
	pending  []devicelink.Frame

	Writes          []Write
	ClientSpecs     []string
	ServerSpecs     []string
	Broadcasts      map[protocol.DID]uint32
	StopCount       int
	CloseCount      int
	Closed          bool
	Flash           protocol.FlashConfig
	Info            protocol.DevInfo
	BootloadedPaths []string
	ReopenCount     int
	ReopenErr       error
	RawTap          io.Writer

	OpenClientConnectionFunc func(spec string) error
	CreateServerListenerFunc func(spec string) error
	WriteFieldFunc           func(did protocol.DID, data []byte, offset uint32) error
	BootloadFunc             func(ctx context.Context, path string) error
}

// NewLink returns an open fake link.
func NewLink() *Link {
	return &Link{
		handlers:   map[protocol.DID]devicelink.FrameHandler{},
		Broadcasts: map[protocol.DID]uint32{},
	}
}

// Inject queues a data set as if the device had sent it.
func (l *Link) Inject(did protocol.DID, v interface{}) {
	l.InjectRaw(did, protocol.MustEncode(v))
}

// InjectRaw queues raw payload bytes.
func (l *Link) InjectRaw(did protocol.DID, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, devicelink.Frame{DID: did, Data: payload})
}

// Register implements devicelink.Link.
func (l *Link) Register(did protocol.DID, handler devicelink.FrameHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[did] = handler
}

// Handled reports whether a handler is registered for did.
func (l *Link) Handled(did protocol.DID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.handlers[did]
	return ok
}

// WriteField implements devicelink.Link.
func (l *Link) WriteField(did protocol.DID, data []byte, offset uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return devicelink.ErrClosed
	}
	if l.WriteFieldFunc != nil {
		if err := l.WriteFieldFunc(did, data, offset); err != nil {
			return err
		}
	}
	l.Writes = append(l.Writes, Write{DID: did, Data: append([]byte(nil), data...), Offset: offset})
	return nil
}

// WritesTo returns the recorded writes to did.
func (l *Link) WritesTo(did protocol.DID) []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Write
	for _, w := range l.Writes {
		if w.DID == did {
			out = append(out, w)
		}
	}
	return out
}

// LastWriteAt returns the most recent write to did at offset.
func (l *Link) LastWriteAt(did protocol.DID, offset uint32) (Write, bool) {
	writes := l.WritesTo(did)
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].Offset == offset {
			return writes[i], true
		}
	}
	return Write{}, false
}

// Update implements devicelink.Link.
func (l *Link) Update() int {
	l.mu.Lock()
	frames := l.pending
	l.pending = nil
	handlers := make(map[protocol.DID]devicelink.FrameHandler, len(l.handlers))
	for did, h := range l.handlers {
		handlers[did] = h
	}
	l.mu.Unlock()

	delivered := 0
	for _, f := range frames {
		if h, ok := handlers[f.DID]; ok {
			h(f)
			delivered++
		}
	}
	return delivered
}

// OpenClientConnection implements devicelink.Link.
func (l *Link) OpenClientConnection(spec string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ClientSpecs = append(l.ClientSpecs, spec)
	if l.OpenClientConnectionFunc != nil {
		return l.OpenClientConnectionFunc(spec)
	}
	return nil
}

// CreateServerListener implements devicelink.Link.
func (l *Link) CreateServerListener(spec string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ServerSpecs = append(l.ServerSpecs, spec)
	if l.CreateServerListenerFunc != nil {
		return l.CreateServerListenerFunc(spec)
	}
	return nil
}

// StopBroadcasts implements devicelink.Link.
func (l *Link) StopBroadcasts() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StopCount++
	l.Broadcasts = map[protocol.DID]uint32{}
	return nil
}

// GetBroadcast implements devicelink.Link.
func (l *Link) GetBroadcast(did protocol.DID, periodMultiple uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return devicelink.ErrClosed
	}
	l.Broadcasts[did] = periodMultiple
	return nil
}

// FlashConfig implements devicelink.Link.
func (l *Link) FlashConfig() (protocol.FlashConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Flash, nil
}

// DeviceInfo implements devicelink.Link.
func (l *Link) DeviceInfo() (protocol.DevInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Info, nil
}

// Close implements devicelink.Link.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CloseCount++
	l.Closed = true
	return nil
}

// Reopen marks the link open again, for use as the reopen step after a firmware upload.
func (l *Link) Reopen(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ReopenCount++
	if l.ReopenErr != nil {
		return l.ReopenErr
	}
	l.Closed = false
	return ctx.Err()
}

// SetRawTap records w; WriteRaw copies bytes to it.
func (l *Link) SetRawTap(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.RawTap = w
}

// WriteRaw copies p to the raw tap as if it had arrived from the device.
func (l *Link) WriteRaw(p []byte) error {
	l.mu.Lock()
	tap := l.RawTap
	l.mu.Unlock()
	if tap == nil {
		return nil
	}
	_, err := tap.Write(p)
	return err
}

// Bootload implements devicelink.Bootloader. The link must be closed first.
func (l *Link) Bootload(ctx context.Context, path string) error {
	l.mu.Lock()
	closed := l.Closed
	l.BootloadedPaths = append(l.BootloadedPaths, path)
	fn := l.BootloadFunc
	l.mu.Unlock()

	if !closed {
		return errors.New("bootloading requires the link to be closed")
	}
	if fn != nil {
		return fn(ctx, path)
	}
	return nil
}

var (
	_ devicelink.Link       = (*Link)(nil)
	_ devicelink.Bootloader = (*Link)(nil)
	_ devicelink.Reopener   = (*Link)(nil)
)
