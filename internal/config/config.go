// Package config loads cgctl settings from YAML and CYBERGEAR_* environment
// variables.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in Config.Transport.
const (
	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
	TransportLoopback  = "loopback"
)

// Config is the full cgctl configuration.
type Config struct {
	Transport string        `yaml:"transport"`
	Interface string        `yaml:"interface"` // SocketCAN interface, e.g. can0
	Bitrate   int           `yaml:"bitrate"`
	Serial    SerialConfig  `yaml:"serial"`
	Motor     MotorConfig   `yaml:"motor"`
	Log       LogConfig     `yaml:"log"`
	Capture   string        `yaml:"capture"` // pcap output path, empty disables
	Timeout   time.Duration `yaml:"timeout"`
}

// SerialConfig selects the serial port of an SLCAN adapter.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MotorConfig addresses the actuator.
type MotorConfig struct {
	ID      int  `yaml:"id"`
	Host    int  `yaml:"host"`
	Checked bool `yaml:"checked"` // reject out-of-range setpoints instead of saturating
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Frames bool   `yaml:"frames"` // log every frame sent and received
}

// Default returns the configuration used when nothing is set: SocketCAN on
// can0 at 1 Mbit/s, motor 127, host 0.
func Default() *Config {
	return &Config{
		Transport: TransportSocketCAN,
		Interface: "can0",
		Bitrate:   1000000,
		Serial:    SerialConfig{Port: "/dev/ttyACM0", Baud: 115200},
		Motor:     MotorConfig{ID: 0x7F},
		Log:       LogConfig{Level: "info"},
		Timeout:   time.Second,
	}
}

// Load reads path (when non-empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		defer f.Close()
		if err := cfg.Decode(f); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.Wrap(err, "parse YAML")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// environment mirrors the settings that can be overridden from the
// environment. Integers start at -1 so that unset variables are ignored.
type environment struct {
	Transport  string `env:"CYBERGEAR_TRANSPORT"`
	Interface  string `env:"CYBERGEAR_INTERFACE"`
	Bitrate    int    `env:"CYBERGEAR_BITRATE"`
	SerialPort string `env:"CYBERGEAR_SERIAL_PORT"`
	SerialBaud int    `env:"CYBERGEAR_SERIAL_BAUD"`
	MotorID    int    `env:"CYBERGEAR_MOTOR_ID"`
	HostID     int    `env:"CYBERGEAR_HOST_ID"`
	Checked    string `env:"CYBERGEAR_CHECKED"`
	LogLevel   string `env:"CYBERGEAR_LOG_LEVEL"`
	LogFrames  string `env:"CYBERGEAR_LOG_FRAMES"`
	Capture    string `env:"CYBERGEAR_CAPTURE"`
	Timeout    string `env:"CYBERGEAR_TIMEOUT"`
}

// ApplyEnv overrides fields from CYBERGEAR_* variables that are set.
func (c *Config) ApplyEnv() error {
	e := environment{Bitrate: -1, SerialBaud: -1, MotorID: -1, HostID: -1}
	if err := env.Parse(&e); err != nil {
		return errors.Wrap(err, "parse environment")
	}
	setString(&c.Transport, e.Transport)
	setString(&c.Interface, e.Interface)
	setString(&c.Serial.Port, e.SerialPort)
	setString(&c.Log.Level, e.LogLevel)
	setString(&c.Capture, e.Capture)
	setInt(&c.Bitrate, e.Bitrate)
	setInt(&c.Serial.Baud, e.SerialBaud)
	setInt(&c.Motor.ID, e.MotorID)
	setInt(&c.Motor.Host, e.HostID)
	if err := setBool(&c.Motor.Checked, "CYBERGEAR_CHECKED", e.Checked); err != nil {
		return err
	}
	if err := setBool(&c.Log.Frames, "CYBERGEAR_LOG_FRAMES", e.LogFrames); err != nil {
		return err
	}
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil {
			return errors.Wrap(err, "CYBERGEAR_TIMEOUT")
		}
		c.Timeout = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v >= 0 {
		*dst = v
	}
}

func setBool(dst *bool, name, v string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrap(err, name)
	}
	*dst = b
	return nil
}

var slcanBitrates = map[int]bool{
	10000: true, 20000: true, 50000: true, 100000: true, 125000: true,
	250000: true, 500000: true, 800000: true, 1000000: true,
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(c.Transport)
	switch c.Transport {
	case TransportSocketCAN:
		if c.Interface == "" {
			return errors.New("interface is required for socketcan")
		}
	case TransportSLCAN:
		if c.Serial.Port == "" {
			return errors.New("serial.port is required for slcan")
		}
		if !slcanBitrates[c.Bitrate] {
			return errors.Errorf("bitrate %d not supported by slcan", c.Bitrate)
		}
	case TransportLoopback:
	default:
		return errors.Errorf("transport must be %q, %q or %q, got %q",
			TransportSocketCAN, TransportSLCAN, TransportLoopback, c.Transport)
	}
	if c.Bitrate <= 0 {
		return errors.New("bitrate must be > 0")
	}
	if c.Motor.ID < 0 || c.Motor.ID > 0xFF {
		return errors.Errorf("motor.id %d outside 0..255", c.Motor.ID)
	}
	if c.Motor.Host < 0 || c.Motor.Host > 0xFF {
		return errors.Errorf("motor.host %d outside 0..255", c.Motor.Host)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.Wrapf(err, "log.level %q", c.Log.Level)
	}
	return l, nil
}
