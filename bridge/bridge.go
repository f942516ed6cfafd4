// Package bridge ties a device link to a message bus: it configures the device at startup, routes
// every received data set through the registry, stamps it on the shared time base and publishes the
// transcoded result.
package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/inertialsense/bus"
	"go.viam.com/inertialsense/combiner"
	"go.viam.com/inertialsense/config"
	"go.viam.com/inertialsense/datalog"
	"go.viam.com/inertialsense/devicelink"
	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/metrics"
	"go.viam.com/inertialsense/protocol"
	"go.viam.com/inertialsense/registry"
	"go.viam.com/inertialsense/rtkmode"
	"go.viam.com/inertialsense/timebase"
)

const (
	defaultResetSettle   = 3 * time.Second
	defaultResetRecover  = time.Second
	defaultPollInterval  = time.Millisecond
	requestQueueSize     = 64
	broadcastEveryPeriod = 1
)

// RawTapper is a link that can copy its raw input stream to a writer.
type RawTapper interface {
	SetRawTap(w io.Writer)
}

type linkStats interface {
	Dropped() uint64
	BadPackets() uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock sets the host clock used for time stamps and polling.
func WithClock(clk clock.Clock) Option {
	return func(b *Bridge) {
		b.clock = clk
	}
}

// WithMetrics records dispatch and publish counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithBootloader enables the firmware_update service.
func WithBootloader(bl devicelink.Bootloader) Option {
	return func(b *Bridge) {
		b.bootloader = bl
	}
}

// WithResetDelays overrides how long startup waits before and after resetting the device for a
// navigation rate change.
func WithResetDelays(settle, recover time.Duration) Option {
	return func(b *Bridge) {
		b.resetSettle = settle
		b.resetRecover = recover
	}
}

// WithPollInterval sets how often Run drains the device link.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		b.pollInterval = d
	}
}

// Bridge is a configured device to bus bridge. Handlers, the time base and the combiner are only
// touched from Update, so they need no locking.
type Bridge struct {
	cfg        *config.Config
	link       devicelink.Link
	bus        bus.Bus
	logger     logging.Logger
	clock      clock.Clock
	metrics    *metrics.Metrics
	bootloader devicelink.Bootloader

	resetSettle  time.Duration
	resetRecover time.Duration
	pollInterval time.Duration

	registry   *registry.Registry
	timebase   *timebase.TimeBase
	gpsSlot    *combiner.Slot
	broadcasts []protocol.DID

	ins, imu, gps, gpsObs, gpsEph, gpsInfo *bus.StreamChannel
	mag, baro, preint, rtk, strobe         *bus.StreamChannel

	selection rtkmode.Selection
	outcome   rtkmode.Outcome

	// Latest values folded into the INS odometry.
	ned   [3]float32
	rates r3.Vector
	lla   [3]float64
	// haveLla is set once an INS2 solution has been seen.
	haveLla bool

	dataLog *datalog.Log

	requests  chan func()
	closeOnce sync.Once
	closed    chan struct{}
}

// New configures the device behind link and wires its data sets to b. The caller keeps ownership
// of link and b.
func New(
	ctx context.Context,
	cfg *config.Config,
	link devicelink.Link,
	b bus.Bus,
	logger logging.Logger,
	opts ...Option,
) (*Bridge, error) {
	br := &Bridge{
		cfg:          cfg,
		link:         link,
		bus:          b,
		logger:       logger,
		resetSettle:  defaultResetSettle,
		resetRecover: defaultResetRecover,
		pollInterval: defaultPollInterval,
		requests:     make(chan func(), requestQueueSize),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(br)
	}
	if br.clock == nil {
		br.clock = clock.New()
	}
	br.timebase = timebase.New(br.clock)

	var observer registry.Observer
	if br.metrics != nil {
		observer = br.metrics
	}
	br.registry = registry.New(logger.Sublogger("registry"), observer)

	var err error
	br.gpsSlot, err = combiner.NewSlot("gps", []string{gpsPart, gpsVelPart}, br.publishGPS,
		combiner.WithTolerance(cfg.CombinerTolerance()))
	if err != nil {
		return nil, err
	}

	if err := br.startup(ctx); err != nil {
		return nil, multierr.Combine(err, br.Close())
	}
	return br, nil
}

// Selection is the RTK mode chosen at startup.
func (b *Bridge) Selection() rtkmode.Selection {
	return b.selection
}

// Outcome tells whether startup ran to completion or stopped after bringing up the RTK base.
func (b *Bridge) Outcome() rtkmode.Outcome {
	return b.outcome
}

// TimeBase is the bridge's clock reconciliation state.
func (b *Bridge) TimeBase() *timebase.TimeBase {
	return b.timebase
}

// DataLog is the raw data log, nil unless enabled.
func (b *Bridge) DataLog() *datalog.Log {
	return b.dataLog
}

func (b *Bridge) startup(ctx context.Context) error {
	info, err := b.link.DeviceInfo()
	if err == nil {
		b.logger.Infow("configuring device", "serial_number", info.SerialNumber,
			"port", b.cfg.Port, "baud", b.cfg.BaudRate)
	}

	if err := b.setNavigationRate(ctx); err != nil {
		return err
	}
	if err := b.registerServices(); err != nil {
		return err
	}
	if err := b.link.StopBroadcasts(); err != nil {
		return err
	}
	if err := b.writeParameters(); err != nil {
		return err
	}
	if err := b.configureStreams(); err != nil {
		return err
	}
	if b.cfg.EnableLog {
		if err := b.startDataLog(); err != nil {
			return err
		}
	}
	if err := b.configureRTK(); err != nil {
		return err
	}
	if b.outcome == rtkmode.BaseListening {
		b.logger.Info("RTK base is listening, skipping remaining configuration")
		return nil
	}
	if err := b.configureASCIIOutput(); err != nil {
		return err
	}
	return b.configureWheelEncoder()
}

func (b *Bridge) writeFlash(field string, v interface{}) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	if err := b.link.WriteField(protocol.DIDFlashConfig, data, protocol.FlashOffset(field)); err != nil {
		return errors.Wrapf(err, "writing %s", field)
	}
	return nil
}

func (b *Bridge) setNavigationRate(ctx context.Context) error {
	if b.cfg.NavigationDtMs == nil {
		return nil
	}
	flash, err := b.link.FlashConfig()
	if err != nil {
		return errors.Wrap(err, "reading flash configuration")
	}
	want := *b.cfg.NavigationDtMs
	if want == flash.StartupNavDtMs {
		return nil
	}

	if err := b.writeFlash("StartupNavDtMs", &want); err != nil {
		return err
	}
	b.logger.Infow("navigation rate changed, resetting device",
		"from_ms", flash.StartupNavDtMs, "to_ms", want)
	if !goutils.SelectContextOrWait(ctx, b.resetSettle) {
		return ctx.Err()
	}
	return b.resetDevice(ctx)
}

func (b *Bridge) resetDevice(ctx context.Context) error {
	cmd := protocol.SystemCommand{System: protocol.SystemReset, InvSystem: ^protocol.SystemReset}
	if err := b.link.WriteField(protocol.DIDConfig, protocol.MustEncode(&cmd), 0); err != nil {
		return errors.Wrap(err, "resetting device")
	}
	if !goutils.SelectContextOrWait(ctx, b.resetRecover) {
		return ctx.Err()
	}
	return nil
}

func vector32(v []float64) [3]float32 {
	var out [3]float32
	for i := 0; i < len(v) && i < 3; i++ {
		out[i] = float32(v[i])
	}
	return out
}

func vector64(v []float64) [3]float64 {
	var out [3]float64
	copy(out[:], v)
	return out
}

func (b *Bridge) writeParameters() error {
	rpy := vector32(b.cfg.INSRpy)
	insXyz := vector32(b.cfg.INSXyz)
	ant1 := vector32(b.cfg.GPSAnt1Xyz)
	ant2 := vector32(b.cfg.GPSAnt2Xyz)
	refLla := vector64(b.cfg.GPSRefLla)
	inclination := b.cfg.Inclination
	declination := b.cfg.Declination
	dynModel := uint32(b.cfg.DynamicModel)
	ser1Baud := uint32(b.cfg.Ser1BaudRate)

	for _, w := range []struct {
		field string
		v     interface{}
	}{
		{"InsRotation", &rpy},
		{"InsOffset", &insXyz},
		{"Gps1AntOffset", &ant1},
		{"Gps2AntOffset", &ant2},
		{"RefLla", &refLla},
		{"MagInclination", &inclination},
		{"MagDeclination", &declination},
		{"InsDynModel", &dynModel},
		{"Ser1BaudRate", &ser1Baud},
	} {
		if err := b.writeFlash(w.field, w.v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) startDataLog() error {
	tapper, ok := b.link.(RawTapper)
	if !ok {
		b.logger.Warn("device link cannot record raw data, data log disabled")
		return nil
	}
	log, err := datalog.Start(datalog.Options{
		Dir:        b.cfg.LogDir,
		MaxSizeMB:  b.cfg.LogMaxSizeMB,
		MaxBackups: b.cfg.LogMaxBackups,
		Now:        b.clock.Now,
	})
	if err != nil {
		return err
	}
	b.dataLog = log
	tapper.SetRawTap(log)
	b.logger.Infow("logging raw device data", "dir", log.Session())
	return nil
}

func (b *Bridge) configureRTK() error {
	var err error
	b.selection, b.outcome, err = rtkmode.Configure(b.link, rtkmode.Request{
		Rover:          b.cfg.RTKRover,
		Base:           b.cfg.RTKBase,
		DualGnss:       b.cfg.DualGNSS,
		ServerIP:       b.cfg.RTKServerIP,
		ServerPort:     b.cfg.RTKServerPort,
		CorrectionType: b.cfg.RTKCorrectionType,
	}, b.logger.Sublogger("rtkmode"))
	if err != nil {
		return err
	}
	if b.selection.RTKStreams() {
		return b.configureRTKStreams()
	}
	return nil
}

func (b *Bridge) configureASCIIOutput() error {
	if b.cfg.NMEARate <= 0 || b.cfg.NMEAConfiguration == 0 {
		return nil
	}
	rate := uint32(b.cfg.NMEARate)
	period := func(bit int) uint32 {
		if b.cfg.NMEAConfiguration&bit != 0 {
			return rate
		}
		return 0
	}
	var msgs protocol.ASCIIMessages
	if b.cfg.NMEAPorts&protocol.NMEASer0 != 0 {
		msgs.Options |= protocol.RMCOptionsPortSer0
	}
	if b.cfg.NMEAPorts&protocol.NMEASer1 != 0 {
		msgs.Options |= protocol.RMCOptionsPortSer1
	}
	msgs.Gpgga = period(protocol.NMEAGPGGA)
	msgs.Gpgll = period(protocol.NMEAGPGLL)
	msgs.Gpgsa = period(protocol.NMEAGPGSA)
	msgs.Gprmc = period(protocol.NMEAGPRMC)
	return errors.Wrap(b.link.WriteField(protocol.DIDASCIIBcastPeriod, protocol.MustEncode(&msgs), 0),
		"configuring NMEA output")
}

func (b *Bridge) configureWheelEncoder() error {
	if !b.cfg.WheelEncoder {
		return nil
	}
	wc := protocol.WheelEncoderConfig{
		QI2L:     vector32(b.cfg.QWheelEnc),
		TI2L:     vector32(b.cfg.TWheelEnc),
		Distance: b.cfg.Distance,
		Diameter: b.cfg.Diameter,
	}
	return errors.Wrap(b.link.WriteField(protocol.DIDWheelEncoderConfig, protocol.MustEncode(&wc), 0),
		"configuring wheel encoders")
}

// Update runs queued service requests and then delivers every data set received since the last
// call. It returns the number of data sets delivered.
func (b *Bridge) Update() int {
	b.runRequests()
	n := b.link.Update()
	if stats, ok := b.link.(linkStats); ok {
		b.metrics.LinkStats(stats.Dropped(), stats.BadPackets())
	}
	return n
}

func (b *Bridge) runRequests() {
	for {
		select {
		case req := <-b.requests:
			req()
		default:
			return
		}
	}
}

// Run calls Update until ctx is done or the bridge is closed.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := b.clock.Ticker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return nil
		case req := <-b.requests:
			req()
		case <-ticker.C:
			b.Update()
		}
	}
}

// Close stops accepting requests and closes the data log. The link and bus are left open.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.dataLog != nil {
			if tapper, ok := b.link.(RawTapper); ok {
				tapper.SetRawTap(nil)
			}
			err = b.dataLog.Close()
		}
	})
	return err
}
