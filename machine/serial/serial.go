// Package serial opens the byte channel to a motor controller.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/mastercactapus/motorctl/spjs"
)

// Port is the transport a controller session owns.
//
// Implementations:
// - tarm: github.com/tarm/serial (default)
// - bugst: go.bug.st/serial
// - spjs: a Serial Port JSON Server bridge (github.com/gorilla/websocket)
type Port interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards any data received but not yet read.
	ResetInputBuffer() error
}

// Driver names accepted by Open.
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
	DriverSPJS  = "spjs"
)

// DefaultBaud is the Grbl default baud rate.
const DefaultBaud = 115200

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	Baud int

	// ReadTimeout bounds a single read so callers can observe cancellation.
	// Zero blocks until data arrives.
	ReadTimeout time.Duration

	// Driver selects the implementation, DriverTarm if empty.
	Driver string

	// BridgeURL is the websocket URL of the SPJS server, for DriverSPJS.
	BridgeURL string
}

// DefaultConfig returns a Grbl configuration for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
		Driver:      DriverTarm,
	}
}

// Open opens the port described by cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("no serial device configured")
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}

	switch cfg.Driver {
	case "", DriverTarm:
		return openTarm(cfg)
	case DriverBugst:
		return openBugst(cfg)
	case DriverSPJS:
		if cfg.BridgeURL == "" {
			return nil, fmt.Errorf("spjs driver needs a bridge url")
		}
		port, err := spjs.Dial(cfg.BridgeURL, cfg.Device, cfg.Baud, cfg.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return nil, fmt.Errorf("unknown serial driver '%s'", cfg.Driver)
}
