//go:build linux

package canbus

import (
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Interface state helpers. Toggling IFF_UP and changing bitrate require
// CAP_NET_ADMIN; without it the kernel answers EPERM.

func interfaceFlags(name string) (uint16, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, errors.Wrapf(err, "canbus: invalid interface name %q", name)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return 0, err
	}
	return ifr.Uint16(), nil
}

func setInterfaceFlags(name string, flags uint16) error {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return errors.Wrapf(err, "canbus: invalid interface name %q", name)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	ifr.SetUint16(flags)
	return RequireCapNetAdmin(unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr))
}

// IsInterfaceUp reports whether the interface has IFF_UP set.
func IsInterfaceUp(name string) (bool, error) {
	flags, err := interfaceFlags(name)
	if err != nil {
		return false, err
	}
	return flags&unix.IFF_UP != 0, nil
}

// SetInterfaceUp sets IFF_UP on the interface.
func SetInterfaceUp(name string) error {
	flags, err := interfaceFlags(name)
	if err != nil {
		return err
	}
	if flags&unix.IFF_UP != 0 {
		return nil
	}
	return setInterfaceFlags(name, flags|unix.IFF_UP)
}

// SetInterfaceDown clears IFF_UP on the interface.
func SetInterfaceDown(name string) error {
	flags, err := interfaceFlags(name)
	if err != nil {
		return err
	}
	if flags&unix.IFF_UP == 0 {
		return nil
	}
	return setInterfaceFlags(name, flags&^unix.IFF_UP)
}

// RequireCapNetAdmin maps EPERM to an error that names the missing capability.
func RequireCapNetAdmin(err error) error {
	if errors.Is(err, unix.EPERM) {
		return errors.Wrap(err, "operation requires CAP_NET_ADMIN (or root)")
	}
	return err
}

// ConfigureBitrate sets the arbitration bitrate of a CAN interface through
// iproute2. The interface is taken down for the change and brought back up.
// The actuator ships configured for 1 Mbit/s.
func ConfigureBitrate(name string, bitrate uint32) error {
	if _, err := unix.NewIfreq(name); err != nil {
		return errors.Wrapf(err, "canbus: invalid interface name %q", name)
	}
	if err := SetInterfaceDown(name); err != nil {
		return err
	}
	cmd := exec.Command("ip", "link", "set", "dev", name, "type", "can", "bitrate", strconv.FormatUint(uint64(bitrate), 10))
	if out, err := cmd.CombinedOutput(); err != nil {
		return RequireCapNetAdmin(errors.Wrapf(err, "ip link set type can failed: %s", out))
	}
	return SetInterfaceUp(name)
}
