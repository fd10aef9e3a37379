package serial

import (
	"fmt"

	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// BugstPort wraps the go.bug.st/serial implementation.
type BugstPort struct {
	bugst.Port
}

func openBugst(cfg *Config) (Port, error) {
	port, err := bugst.Open(cfg.Device, &bugst.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if cfg.ReadTimeout > 0 {
		err = port.SetReadTimeout(cfg.ReadTimeout)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
		}
	}
	return &BugstPort{Port: port}, nil
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Product string `json:"product,omitempty"`
}

// List returns the serial ports available on the host.
func List() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	res := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		res = append(res, PortInfo{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Product: p.Product,
		})
	}
	return res, nil
}
