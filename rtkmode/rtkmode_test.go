package rtkmode

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/inertialsense/devicelink/fake"
	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/protocol"
)

func baseRequest() Request {
	return Request{ServerIP: "127.0.0.1", ServerPort: 7777, CorrectionType: "UBLOX"}
}

func rtkBits(t *testing.T, link *fake.Link) uint32 {
	t.Helper()
	w, ok := link.LastWriteAt(protocol.DIDFlashConfig, protocol.FlashOffset("RTKCfgBits"))
	test.That(t, ok, test.ShouldBeTrue)
	var bits uint32
	test.That(t, protocol.Decode(w.Data, &bits), test.ShouldBeNil)
	return bits
}

func TestResolve(t *testing.T) {
	for _, tc := range []struct {
		name       string
		rover      bool
		base       bool
		dual       bool
		mode       Mode
		bits       uint32
		connection string
		warnings   int
	}{
		{"none", false, false, false, None, 0, "", 0},
		{"rover", true, false, false, RtkRover, protocol.RTKCfgBitsRover, "UBLOX:127.0.0.1:7777", 0},
		{"base", false, true, false, RtkBase, protocol.RTKCfgBitsBaseOutputGps1UbloxSer0, "127.0.0.1:7777", 0},
		{"dual", false, false, true, DualGnssCompassing, protocol.RTKCfgBitsCompassing, "", 0},
		{"rover and dual", true, false, true, DualGnssCompassing, protocol.RTKCfgBitsCompassing, "", 1},
		{"rover and base", true, true, false, RtkRover, protocol.RTKCfgBitsRover, "UBLOX:127.0.0.1:7777", 1},
		{"base and dual", false, true, true, RtkBase, protocol.RTKCfgBitsCompassing | protocol.RTKCfgBitsBaseOutputGps1UbloxSer0, "127.0.0.1:7777", 0},
		{"everything", true, true, true, RtkBase, protocol.RTKCfgBitsCompassing | protocol.RTKCfgBitsBaseOutputGps1UbloxSer0, "127.0.0.1:7777", 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest()
			req.Rover, req.Base, req.DualGnss = tc.rover, tc.base, tc.dual
			sel := Resolve(req)
			test.That(t, sel.Mode, test.ShouldEqual, tc.mode)
			test.That(t, sel.Bits, test.ShouldEqual, tc.bits)
			test.That(t, sel.Connection, test.ShouldEqual, tc.connection)
			test.That(t, len(sel.Warnings), test.ShouldEqual, tc.warnings)
		})
	}
}

func TestConfigureWarnings(t *testing.T) {
	t.Run("rover and dual", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()
		req := baseRequest()
		req.Rover, req.DualGnss = true, true

		sel, outcome, err := Configure(link, req, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Continue)
		test.That(t, sel.Mode, test.ShouldEqual, DualGnssCompassing)
		test.That(t, logs.FilterMessageSnippet("defaulting to dual GNSS").Len(), test.ShouldEqual, 1)
		test.That(t, link.ClientSpecs, test.ShouldBeEmpty)
		test.That(t, rtkBits(t, link), test.ShouldEqual, protocol.RTKCfgBitsCompassing)
	})

	t.Run("rover and base", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()
		req := baseRequest()
		req.Rover, req.Base = true, true

		sel, _, err := Configure(link, req, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sel.Mode, test.ShouldEqual, RtkRover)
		test.That(t, logs.FilterMessageSnippet("defaulting to rover").Len(), test.ShouldEqual, 1)
		test.That(t, link.ServerSpecs, test.ShouldBeEmpty)
		test.That(t, link.ClientSpecs, test.ShouldResemble, []string{"UBLOX:127.0.0.1:7777"})
	})

	t.Run("base and dual serve corrections while compassing", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()
		req := baseRequest()
		req.Base, req.DualGnss = true, true

		sel, outcome, err := Configure(link, req, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sel.Mode, test.ShouldEqual, RtkBase)
		test.That(t, sel.Compassing, test.ShouldBeTrue)
		test.That(t, sel.RTKStreams(), test.ShouldBeTrue)
		test.That(t, outcome, test.ShouldEqual, BaseListening)
		test.That(t, logs.FilterMessageSnippet("defaulting").Len(), test.ShouldEqual, 0)
		test.That(t, logs.FilterMessageSnippet("dual GNSS (compassing)").Len(), test.ShouldEqual, 1)
		test.That(t, link.ServerSpecs, test.ShouldResemble, []string{"127.0.0.1:7777"})
		test.That(t, rtkBits(t, link), test.ShouldEqual,
			protocol.RTKCfgBitsCompassing|protocol.RTKCfgBitsBaseOutputGps1UbloxSer0)
	})

	t.Run("none", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()

		sel, outcome, err := Configure(link, baseRequest(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Continue)
		test.That(t, sel.Mode, test.ShouldEqual, None)
		test.That(t, logs.FilterMessageSnippet("defaulting").Len(), test.ShouldEqual, 0)
		test.That(t, rtkBits(t, link), test.ShouldEqual, 0)
	})
}

func TestApplyTransportFailures(t *testing.T) {
	t.Run("rover connection failure still writes bits", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()
		link.OpenClientConnectionFunc = func(string) error { return errors.New("connection refused") }
		req := baseRequest()
		req.Rover = true

		outcome, err := Apply(link, Resolve(req), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Continue)
		test.That(t, logs.FilterMessageSnippet("failed to connect").Len(), test.ShouldEqual, 1)
		test.That(t, rtkBits(t, link), test.ShouldEqual, protocol.RTKCfgBitsRover)
	})

	t.Run("base success is terminal", func(t *testing.T) {
		link := fake.NewLink()
		req := baseRequest()
		req.Base = true

		outcome, err := Apply(link, Resolve(req), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, BaseListening)
		test.That(t, link.ServerSpecs, test.ShouldResemble, []string{"127.0.0.1:7777"})
		test.That(t, rtkBits(t, link), test.ShouldEqual, protocol.RTKCfgBitsBaseOutputGps1UbloxSer0)
	})

	t.Run("base failure continues", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		link := fake.NewLink()
		link.CreateServerListenerFunc = func(string) error { return errors.New("address in use") }
		req := baseRequest()
		req.Base = true

		outcome, err := Apply(link, Resolve(req), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Continue)
		test.That(t, logs.FilterMessageSnippet("failed to create RTK base server").Len(), test.ShouldEqual, 1)
		test.That(t, rtkBits(t, link), test.ShouldEqual, protocol.RTKCfgBitsBaseOutputGps1UbloxSer0)
	})

	t.Run("write failure is returned", func(t *testing.T) {
		link := fake.NewLink()
		link.WriteFieldFunc = func(protocol.DID, []byte, uint32) error { return errors.New("port gone") }
		_, err := Apply(link, Resolve(baseRequest()), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "port gone")
	})
}

func TestStrings(t *testing.T) {
	test.That(t, DualGnssCompassing.String(), test.ShouldEqual, "dual_gnss")
	test.That(t, Mode(42).String(), test.ShouldEqual, "mode(42)")
	test.That(t, BaseListening.String(), test.ShouldEqual, "base_listening")
	test.That(t, Resolve(Request{Rover: true}).RTKStreams(), test.ShouldBeTrue)
	test.That(t, Resolve(Request{Base: true}).RTKStreams(), test.ShouldBeFalse)
}
