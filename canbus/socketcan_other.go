//go:build !linux

package canbus

import "github.com/pkg/errors"

var errNoSocketCAN = errors.New("canbus: SocketCAN is only available on linux")

// RawFilter is a SocketCAN receive filter. See the linux implementation.
type RawFilter struct {
	ID       uint32
	Mask     uint32
	Extended bool
}

// DialSocketCAN always fails outside linux.
func DialSocketCAN(iface string, filters ...RawFilter) (Bus, error) {
	return nil, errors.Wrap(errNoSocketCAN, iface)
}

// ConfigureBitrate always fails outside linux.
func ConfigureBitrate(name string, bitrate uint32) error {
	return errors.Wrap(errNoSocketCAN, name)
}
