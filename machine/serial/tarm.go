package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// TarmPort wraps the tarm/serial implementation.
type TarmPort struct {
	port *serial.Port
}

func openTarm(cfg *Config) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &TarmPort{port: port}, nil
}

func (p *TarmPort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *TarmPort) Write(b []byte) (int, error) { return p.port.Write(b) }

// ResetInputBuffer flushes the port; tarm only exposes a combined input/output flush.
func (p *TarmPort) ResetInputBuffer() error { return p.port.Flush() }

func (p *TarmPort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}
