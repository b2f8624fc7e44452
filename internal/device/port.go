package device

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the controller's factory setting.
const DefaultBaudRate = 2400

// PortConfig describes the serial link to the controller.
type PortConfig struct {
	Device   string
	BaudRate int
}

// OpenPort opens the controller port as 8N1 without flow control.
func OpenPort(cfg PortConfig) (io.ReadWriteCloser, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", cfg.Device, err)
	}
	return port, nil
}
