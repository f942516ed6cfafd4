package bridge

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/inertialsense/bus"
	"go.viam.com/inertialsense/devicelink"
	"go.viam.com/inertialsense/output"
	"go.viam.com/inertialsense/protocol"
)

// Service names.
const (
	ServiceSetRefLLA      = "set_refLLA"
	ServiceSingleAxisMag  = "single_axis_mag_cal"
	ServiceMultiAxisMag   = "multi_axis_mag_cal"
	ServiceFirmwareUpdate = "firmware_update"
)

// FirmwareUpdateRequest is the body of a firmware_update call.
type FirmwareUpdateRequest struct {
	Filename string `json:"filename"`
}

var errNoPosition = errors.New("no INS position received yet")

func (b *Bridge) registerServices() error {
	for name, fn := range map[string]func(ctx context.Context, request []byte) error{
		ServiceSetRefLLA:      b.setRefLLA,
		ServiceSingleAxisMag:  b.magCal(protocol.MagRecalSingleAxis),
		ServiceMultiAxisMag:   b.magCal(protocol.MagRecalMultiAxis),
		ServiceFirmwareUpdate: b.firmwareUpdate,
	} {
		if err := b.bus.HandleService(name, b.serve(name, fn)); err != nil {
			return errors.Wrapf(err, "registering %s", name)
		}
	}
	return errors.Wrapf(b.bus.Subscribe(TopicJointState, b.onJointState), "subscribing to %s", TopicJointState)
}

// serve runs fn on the update loop so it never races the data set handlers.
func (b *Bridge) serve(name string, fn func(ctx context.Context, request []byte) error) bus.ServiceHandler {
	return func(ctx context.Context, request []byte) bus.Response {
		done := make(chan error, 1)
		select {
		case b.requests <- func() { done <- fn(ctx, request) }:
		case <-ctx.Done():
			return bus.Response{Message: ctx.Err().Error()}
		case <-b.closed:
			return bus.Response{Message: "bridge is closed"}
		}

		select {
		case err := <-done:
			if err != nil {
				b.logger.Warnw("service failed", "service", name, "error", err)
				return bus.Response{Message: err.Error()}
			}
			return bus.Response{Success: true}
		case <-ctx.Done():
			return bus.Response{Message: ctx.Err().Error()}
		case <-b.closed:
			return bus.Response{Message: "bridge is closed"}
		}
	}
}

func (b *Bridge) setRefLLA(context.Context, []byte) error {
	if !b.haveLla {
		return errNoPosition
	}
	lla := b.lla
	if err := b.writeFlash("RefLla", &lla); err != nil {
		return err
	}
	b.logger.Infow("reference position set", "lla", lla)
	return nil
}

func (b *Bridge) magCal(mode uint32) func(context.Context, []byte) error {
	return func(context.Context, []byte) error {
		cal := protocol.MagCal{EnMagRecal: mode}
		return errors.Wrap(b.link.WriteField(protocol.DIDMagCal, protocol.MustEncode(&cal), 0),
			"starting magnetometer calibration")
	}
}

func (b *Bridge) firmwareUpdate(ctx context.Context, request []byte) error {
	var req FirmwareUpdateRequest
	if len(request) > 0 {
		if err := json.Unmarshal(request, &req); err != nil {
			return errors.Wrap(err, "decoding firmware update request")
		}
	}
	if req.Filename == "" {
		return errors.New("firmware update needs a filename")
	}
	if b.bootloader == nil {
		return devicelink.ErrBootloadUnsupported
	}
	reopener, ok := b.link.(devicelink.Reopener)
	if !ok {
		return devicelink.ErrBootloadUnsupported
	}

	b.logger.Infow("updating firmware", "file", req.Filename)
	if err := b.link.Close(); err != nil {
		return errors.Wrap(err, "closing device link")
	}
	bootErr := b.bootloader.Bootload(ctx, req.Filename)
	if err := reopener.Reopen(ctx); err != nil {
		return errors.Wrap(multierr.Combine(bootErr, err), "reopening device link")
	}
	if bootErr != nil {
		return bootErr
	}
	return b.requestBroadcasts()
}

func (b *Bridge) onJointState(data []byte) {
	var msg output.JointState
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Debugw("ignoring malformed joint state", "error", err)
		return
	}
	req := func() {
		enc, ok := output.ToWheelEncoder(&msg, b.timebase.TowFromTime(msg.Header.Stamp))
		if !ok {
			b.logger.Debugw("joint state needs two wheels", "positions", len(msg.Position))
			return
		}
		if err := b.link.WriteField(protocol.DIDWheelEncoder, protocol.MustEncode(&enc), 0); err != nil {
			b.logger.Warnw("forwarding wheel odometry failed", "error", err)
		}
	}
	select {
	case b.requests <- req:
	default:
		b.logger.Debug("request queue full, dropping joint state")
	}
}
