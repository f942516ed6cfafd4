// Package main runs the Inertial Sense bridge against a serial device.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/inertialsense/bridge"
	"go.viam.com/inertialsense/bus"
	"go.viam.com/inertialsense/config"
	"go.viam.com/inertialsense/devicelink"
	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/metrics"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"
	flagPort     = "port"
)

func main() {
	app := &cli.App{
		Name:  "inertialsense-bridge",
		Usage: "publish Inertial Sense uINS data on a message bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagPort,
				Usage: "serial `DEVICE`, overrides the configured port",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "one of debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to a size rotated `FILE`",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.Global().Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String(flagConfig); path != "" {
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if port := c.String(flagPort); port != "" {
		cfg.Port = port
	}
	if level := c.String(flagLogLevel); level != "" {
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate("")
}

func run(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := logging.NewLogger("inertialsense")
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if path := c.String(flagLogFile); path != "" {
		appender, closer := logging.NewFileAppender(path)
		logger.AddAppender(appender)
		defer func() {
			err = multierr.Combine(err, closer.Close())
		}()
	}
	logging.ReplaceGlobal(logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var msgBus bus.Bus
	switch cfg.Bus {
	case config.BusNATS:
		msgBus, err = bus.NewNATS(bus.NATSConfig{
			URL:        cfg.NATSURL,
			Prefix:     cfg.NATSPrefix,
			ClientName: "inertialsense-" + uuid.NewString()[:8],
		}, logger.Sublogger("bus"))
		if err != nil {
			return err
		}
	default:
		logger.Warnw("memory bus selected, telemetry is only visible inside this process",
			"bus", cfg.Bus, "hint", "set bus to nats to publish to other nodes")
		msgBus = bus.NewMemory()
	}
	defer func() {
		err = multierr.Combine(err, msgBus.Close())
	}()

	opts := []bridge.Option{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		opts = append(opts, bridge.WithMetrics(m))
		stopServer := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer stopServer()
	}

	link, err := devicelink.NewSerial(ctx, devicelink.SerialConfig{
		Port:      cfg.Port,
		BaudRate:  cfg.BaudRate,
		QueueSize: cfg.QueueSize,
	}, logger.Sublogger("link"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, link.Close())
	}()

	if cfg.FirmwareTool != "" {
		opts = append(opts, bridge.WithBootloader(&devicelink.ExecBootloader{
			Tool:     cfg.FirmwareTool,
			Args:     cfg.FirmwareToolArgs,
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Logger:   logger.Sublogger("bootloader"),
		}))
	}

	b, err := bridge.New(ctx, cfg, link, msgBus, logger.Sublogger("bridge"), opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, b.Close())
	}()

	if logDir := b.DataLog(); logDir != nil {
		logger.Infow("raw data log", "session", filepath.Base(logDir.Session()))
	}
	logger.Infow("bridge running", "port", cfg.Port, "rtk_mode", b.Selection().Mode.String(),
		"bus", cfg.Bus)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	goutils.PanicCapturingGo(func() {
		logger.Infow("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server failed", "error", err)
		}
	})
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnw("stopping metrics server", "error", err)
		}
	}
}
