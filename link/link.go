// Package link owns the physical transport to the ZiGate dongle: a serial
// UART (USB/DIN/PI variants) or a TCP socket to a Wi-Fi bridge. A Link opens
// and closes the underlying file/socket exclusively, exposes a
// non-blocking Send, and delivers inbound bytes to a Receiver callback as
// they arrive — any assembly of those bytes into frames is the Assembler's
// job, not the Link's.
package link

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
)

// Kind names the four link configurations a dongle can be reached through.
// USB, DIN, and PI are all serial at heart — they differ only in which
// physical port the plugin expects the user to have wired up — so they
// share one implementation (serialLink) opening Config.Device at SerialBaud.
type Kind int

const (
	USB Kind = iota
	DIN
	PI
	Wifi
)

func (k Kind) String() string {
	switch k {
	case USB:
		return "USB"
	case DIN:
		return "DIN"
	case PI:
		return "PI"
	case Wifi:
		return "Wifi"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) isSerial() bool { return k == USB || k == DIN || k == PI }

// SerialBaud is fixed by the dongle's firmware at 115200.
const SerialBaud = 115200

var devicePathPattern = regexp.MustCompile(`^(/dev/|COM)`)

// Config describes how to reach the dongle. Exactly one of (Device) or
// (Address, Port) is meaningful, selected by Kind.
type Config struct {
	Kind    Kind
	Device  string // serial device path, e.g. /dev/ttyUSB0 or COM3
	Address string // TCP host for Wifi links
	Port    int    // TCP port for Wifi links
}

// Validate checks the fields relevant to Kind: a serial device path must
// match /dev/* or COM*, a wifi target needs a non-empty address and a
// valid port.
func (c Config) Validate() error {
	switch {
	case c.Kind.isSerial():
		if !devicePathPattern.MatchString(c.Device) {
			return fmt.Errorf("link: serial device path %q must match /dev/* or COM*", c.Device)
		}
	case c.Kind == Wifi:
		if c.Address == "" {
			return errors.New("link: wifi address must not be empty")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("link: invalid wifi port %d", c.Port)
		}
	default:
		return fmt.Errorf("link: unknown transport kind %v", c.Kind)
	}
	return nil
}

// Receiver is invoked with each chunk of bytes read off the wire, in the
// order received. It must not block — the Assembler it normally feeds only
// appends to a buffer and scans for complete frames.
type Receiver func(chunk []byte)

// Link is the contract the Coordinator/Assembler depend on. Implementations
// are single-threaded cooperative: Send must not block beyond OS buffering,
// and only one goroutine (the read loop) ever calls the Receiver.
type Link interface {
	// Connect opens the underlying transport and starts delivering inbound
	// bytes to the configured Receiver.
	Connect() error
	// Disconnect closes the underlying transport. Safe to call when already
	// disconnected.
	Disconnect() error
	// Reconnect closes the link if currently connected, then opens it again.
	Reconnect() error
	// Send writes b to the wire. Implementations buffer into the OS
	// socket/tty and return without waiting for the remote side.
	Send(b []byte) error
	// Connected reports whether the underlying transport is currently open.
	Connected() bool
}

// ErrNotConnected is returned by Send when the link has not been opened.
var ErrNotConnected = errors.New("link: not connected")

// New builds the Link implementation matching cfg.Kind.
func New(cfg Config, receiver Receiver, logger zerolog.Logger) (Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case cfg.Kind.isSerial():
		return newSerialLink(cfg, receiver, logger), nil
	case cfg.Kind == Wifi:
		return newTCPLink(cfg, receiver, logger), nil
	default:
		return nil, fmt.Errorf("link: unknown transport kind %v", cfg.Kind)
	}
}
