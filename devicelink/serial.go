package devicelink

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/protocol"
	"go.viam.com/inertialsense/utils"
)

// SerialConfig configures a serial device link.
type SerialConfig struct {
	Port     string
	BaudRate int
	// QueueSize bounds the frames buffered between the reader and Update. Frames arriving while
	// the queue is full are dropped.
	QueueSize int
	// ResponseTimeout bounds the wait for the device to identify itself on open.
	ResponseTimeout time.Duration
}

const (
	defaultQueueSize       = 1024
	defaultResponseTimeout = 3 * time.Second
	readBufferSize         = 4096
	idleReadBackoff        = 10 * time.Millisecond
)

// PortOpener opens the byte stream to the device.
type PortOpener func(cfg SerialConfig) (io.ReadWriteCloser, error)

// OpenSerialPort opens a serial port with 8N1 framing and a short read timeout so the reader can
// notice shutdown.
func OpenSerialPort(cfg SerialConfig) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              uint(cfg.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
	port, err := serial.Open(options)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %q at %d baud", cfg.Port, cfg.BaudRate)
	}
	return port, nil
}

// Serial is a Link over a serial port.
type Serial struct {
	cfg    SerialConfig
	opener PortOpener
	logger logging.Logger

	mu       sync.Mutex
	port     io.ReadWriteCloser
	reader   utils.StoppableWorkers
	closed   bool
	handlers map[protocol.DID]FrameHandler
	rawTap   io.Writer

	writeMu sync.Mutex
	counter uint8

	frames  chan Frame
	dropped atomic.Uint64
	badPkts atomic.Uint64

	cacheMu   sync.Mutex
	flash     []byte
	devInfo   []byte
	infoReady chan struct{}

	corrections *correctionClient
	base        *baseServer
}

// NewSerial opens the port and waits for the device to identify itself.
func NewSerial(ctx context.Context, cfg SerialConfig, logger logging.Logger) (*Serial, error) {
	return NewSerialWithOpener(ctx, cfg, OpenSerialPort, logger)
}

// NewSerialWithOpener is NewSerial with a custom port opener.
func NewSerialWithOpener(ctx context.Context, cfg SerialConfig, opener PortOpener, logger logging.Logger) (*Serial, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	s := &Serial{
		cfg:      cfg,
		opener:   opener,
		logger:   logger,
		handlers: map[protocol.DID]FrameHandler{},
		frames:   make(chan Frame, cfg.QueueSize),
		flash:    make([]byte, protocol.SizeOf[protocol.FlashConfig]()),
		devInfo:  make([]byte, protocol.SizeOf[protocol.DevInfo]()),
	}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serial) open(ctx context.Context) error {
	port, err := s.opener(s.cfg)
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.infoReady = make(chan struct{})
	s.cacheMu.Unlock()

	s.mu.Lock()
	s.port = port
	s.closed = false
	s.reader = utils.NewStoppableWorkers(func(ctx context.Context) {
		s.readLoop(ctx, port)
	})
	s.mu.Unlock()

	if err := s.requestOnce(protocol.DIDDevInfo); err != nil {
		return multierr.Combine(err, s.Close())
	}
	if err := s.requestOnce(protocol.DIDFlashConfig); err != nil {
		return multierr.Combine(err, s.Close())
	}

	s.cacheMu.Lock()
	ready := s.infoReady
	s.cacheMu.Unlock()
	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		return multierr.Combine(errors.Errorf("no response from device on %q", s.cfg.Port), s.Close())
	case <-ctx.Done():
		return multierr.Combine(ctx.Err(), s.Close())
	}

	info, _ := s.DeviceInfo()
	s.logger.Infow("connected to device", "port", s.cfg.Port, "baud", s.cfg.BaudRate,
		"serial_number", info.SerialNumber)
	return nil
}

// Reopen opens the port again after Close, keeping registered handlers and any raw tap.
func (s *Serial) Reopen(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		return errors.New("device link is still open")
	}
	return s.open(ctx)
}

// SetRawTap copies every byte received from the device to w. Pass nil to stop.
func (s *Serial) SetRawTap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawTap = w
}

func (s *Serial) readLoop(ctx context.Context, port io.Reader) {
	dec := &Decoder{
		OnPacket: s.handlePacket,
		OnForeign: func(frame []byte) {
			s.mu.Lock()
			base := s.base
			s.mu.Unlock()
			if base != nil {
				base.broadcast(frame)
			}
		},
		OnError: func(err error) {
			s.badPkts.Inc()
			s.logger.Debugw("dropping packet", "error", err)
		},
	}

	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if n > 0 {
			s.mu.Lock()
			tap := s.rawTap
			s.mu.Unlock()
			if tap != nil {
				if _, err := tap.Write(buf[:n]); err != nil {
					s.logger.Warnw("raw data log write failed", "error", err)
				}
			}
			_, _ = dec.Write(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			// An idle port times out with no data.
			goutils.SelectContextOrWait(ctx, idleReadBackoff)
		default:
			if !s.isClosed() {
				s.logger.Errorw("reading from device", "error", err)
			}
			return
		}
	}
}

func (s *Serial) handlePacket(p Packet) {
	if p.PID != PIDData {
		return
	}
	frame, err := DecodeFrame(p)
	if err != nil {
		s.badPkts.Inc()
		s.logger.Debugw("dropping data packet", "error", err)
		return
	}

	switch frame.DID {
	case protocol.DIDFlashConfig:
		s.cacheMu.Lock()
		patch(s.flash, frame.Offset, frame.Data)
		s.cacheMu.Unlock()
	case protocol.DIDDevInfo:
		s.cacheMu.Lock()
		patch(s.devInfo, frame.Offset, frame.Data)
		select {
		case <-s.infoReady:
		default:
			close(s.infoReady)
		}
		s.cacheMu.Unlock()
	}

	select {
	case s.frames <- frame:
	default:
		s.dropped.Inc()
	}
}

func patch(dst []byte, offset uint32, data []byte) {
	if int(offset) >= len(dst) {
		return
	}
	copy(dst[offset:], data)
}

// Register implements Link.
func (s *Serial) Register(did protocol.DID, handler FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[did] = handler
}

// Update implements Link.
func (s *Serial) Update() int {
	delivered := 0
	for {
		select {
		case frame := <-s.frames:
			s.mu.Lock()
			handler, ok := s.handlers[frame.DID]
			s.mu.Unlock()
			if ok {
				handler(frame)
				delivered++
			}
		default:
			return delivered
		}
	}
}

// Dropped is the number of frames discarded because the queue was full.
func (s *Serial) Dropped() uint64 {
	return s.dropped.Load()
}

// BadPackets is the number of packets discarded for framing or checksum errors.
func (s *Serial) BadPackets() uint64 {
	return s.badPkts.Load()
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Serial) write(data []byte) error {
	s.mu.Lock()
	port, closed := s.port, s.closed
	s.mu.Unlock()
	if closed || port == nil {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := port.Write(data)
	return err
}

func (s *Serial) nextCounter() uint8 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.counter++
	return s.counter
}

// WriteField implements Link.
func (s *Serial) WriteField(did protocol.DID, data []byte, offset uint32) error {
	if err := s.write(EncodeData(PIDSetData, s.nextCounter(), did, data, offset)); err != nil {
		return errors.Wrapf(err, "writing %d bytes to %s at offset %d", len(data), did, offset)
	}
	if did == protocol.DIDFlashConfig {
		s.cacheMu.Lock()
		patch(s.flash, offset, data)
		s.cacheMu.Unlock()
	}
	return nil
}

// writeRaw sends bytes to the device unframed, as RTK corrections are.
func (s *Serial) writeRaw(data []byte) error {
	return s.write(data)
}

// GetBroadcast implements Link.
func (s *Serial) GetBroadcast(did protocol.DID, periodMultiple uint32) error {
	body := protocol.MustEncode(&protocol.GetDataRequest{ID: uint32(did), PeriodMultiple: periodMultiple})
	pkt := EncodePacket(Packet{PID: PIDGetData, Counter: s.nextCounter(), Body: body})
	return errors.Wrapf(s.write(pkt), "requesting %s", did)
}

func (s *Serial) requestOnce(did protocol.DID) error {
	return s.GetBroadcast(did, 0)
}

// StopBroadcasts implements Link.
func (s *Serial) StopBroadcasts() error {
	pkt := EncodePacket(Packet{PID: PIDStopBroadcastsAllPorts, Counter: s.nextCounter()})
	return errors.Wrap(s.write(pkt), "stopping broadcasts")
}

// FlashConfig implements Link.
func (s *Serial) FlashConfig() (protocol.FlashConfig, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	var cfg protocol.FlashConfig
	err := protocol.Decode(s.flash, &cfg)
	return cfg, err
}

// DeviceInfo implements Link.
func (s *Serial) DeviceInfo() (protocol.DevInfo, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	var info protocol.DevInfo
	err := protocol.Decode(s.devInfo, &info)
	return info, err
}

// OpenClientConnection implements Link.
func (s *Serial) OpenClientConnection(spec string) error {
	client, err := dialCorrections(spec, s.writeRaw, s.logger.Sublogger("corrections"))
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.corrections
	s.corrections = client
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

// CreateServerListener implements Link.
func (s *Serial) CreateServerListener(spec string) error {
	server, err := listenBase(spec, s.logger.Sublogger("base"))
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.base
	s.base = server
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

// Close implements Link. Correction transports are shut down as well.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	port, reader := s.port, s.reader
	corrections, base := s.corrections, s.base
	s.corrections, s.base = nil, nil
	s.mu.Unlock()

	var err error
	if corrections != nil {
		corrections.close()
	}
	if base != nil {
		base.close()
	}
	if port != nil {
		err = multierr.Combine(err, port.Close())
	}
	if reader != nil {
		reader.Stop()
	}
	return err
}

var _ Link = (*Serial)(nil)
