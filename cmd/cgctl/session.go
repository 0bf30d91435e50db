package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/notnil/cybergear/canbus"
	"github.com/notnil/cybergear/cybergear"
	"github.com/notnil/cybergear/internal/config"
)

// globalFlags are shared by every command that talks to a motor. They win
// over the config file and environment when set explicitly.
type globalFlags struct {
	config    string
	transport string
	iface     string
	port      string
	bitrate   int
	motor     int
	host      int
	checked   bool
	logLevel  string
	logFrames bool
	capture   string
	timeout   time.Duration
}

func (g *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "YAML config file")
	pf.StringVarP(&g.transport, "transport", "t", "", "socketcan, slcan or loopback")
	pf.StringVarP(&g.iface, "iface", "i", "", "SocketCAN interface (e.g. can0)")
	pf.StringVarP(&g.port, "port", "p", "", "SLCAN serial port (e.g. /dev/ttyACM0, COM15)")
	pf.IntVar(&g.bitrate, "bitrate", 0, "CAN bitrate for SLCAN adapters")
	pf.IntVarP(&g.motor, "motor", "m", 0, "motor CAN id")
	pf.IntVar(&g.host, "host", 0, "host CAN id stamped into frames")
	pf.BoolVar(&g.checked, "checked", false, "reject out-of-range setpoints instead of saturating")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&g.logFrames, "log-frames", false, "log every CAN frame")
	pf.StringVar(&g.capture, "capture", "", "write frames to a pcap file")
	pf.DurationVar(&g.timeout, "timeout", 0, "per-operation timeout")
}

// load resolves the configuration: defaults, file, environment, flags.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	if fs.Changed("transport") {
		cfg.Transport = g.transport
	}
	if fs.Changed("iface") {
		cfg.Interface = g.iface
	}
	if fs.Changed("port") {
		cfg.Serial.Port = g.port
	}
	if fs.Changed("bitrate") {
		cfg.Bitrate = g.bitrate
	}
	if fs.Changed("motor") {
		cfg.Motor.ID = g.motor
	}
	if fs.Changed("host") {
		cfg.Motor.Host = g.host
	}
	if fs.Changed("checked") {
		cfg.Motor.Checked = g.checked
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if fs.Changed("log-frames") {
		cfg.Log.Frames = g.logFrames
	}
	if fs.Changed("capture") {
		cfg.Capture = g.capture
	}
	if fs.Changed("timeout") {
		cfg.Timeout = g.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ownedBus closes an extra resource together with the bus.
type ownedBus struct {
	canbus.Bus
	owner io.Closer
}

func (b ownedBus) Close() error {
	return multierr.Append(b.Bus.Close(), b.owner.Close())
}

// openBus dials the configured transport and applies the logging and
// capture decorators. Loopback runs always log frames since nothing else
// would observe them.
func openBus(cfg *config.Config, logger *slog.Logger) (canbus.Bus, error) {
	var (
		bus canbus.Bus
		err error
	)
	switch cfg.Transport {
	case config.TransportSocketCAN:
		bus, err = canbus.DialSocketCAN(cfg.Interface)
	case config.TransportSLCAN:
		bus, err = canbus.DialSLCAN(canbus.SerialOptions{
			Port:    cfg.Serial.Port,
			Baud:    cfg.Serial.Baud,
			Bitrate: uint32(cfg.Bitrate),
		})
	case config.TransportLoopback:
		lb := canbus.NewLoopbackBus()
		bus = ownedBus{Bus: lb.Open(), owner: lb}
	default:
		err = errors.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Log.Frames || cfg.Transport == config.TransportLoopback {
		bus = canbus.NewLoggedBus(bus, logger, slog.LevelInfo, canbus.LogAll, nil)
	}
	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return nil, multierr.Append(errors.Wrap(err, "create capture"), bus.Close())
		}
		cw, err := canbus.NewCaptureWriter(f)
		if err != nil {
			return nil, multierr.Combine(err, f.Close(), bus.Close())
		}
		bus = canbus.NewCaptureBus(bus, cw, f)
	}
	return bus, nil
}

// session is an open bus bound to the configured motor.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	bus    canbus.Bus
	motor  *cybergear.Motor
}

func (g *globalFlags) open(cmd *cobra.Command) (*session, error) {
	cfg, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	bus, err := openBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []cybergear.Option{
		cybergear.WithHostID(uint8(cfg.Motor.Host)),
		cybergear.WithLogger(logger),
	}
	if cfg.Motor.Checked {
		opts = append(opts, cybergear.WithQuantizer(cybergear.Quantizer{Mode: cybergear.Checked}))
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		motor:  cybergear.NewMotor(bus, uint8(cfg.Motor.ID), opts...),
	}, nil
}

// op bounds a single request by the configured timeout.
func (s *session) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *session) Close() error {
	return s.bus.Close()
}

// withSession opens a session, runs fn and closes the session, combining
// both errors.
func (g *globalFlags) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) (err error) {
	s, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()
	return fn(cmd.Context(), s)
}
