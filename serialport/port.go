package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed indicates an operation on a port that was already closed
// by its own side.
var ErrPortClosed = errors.New("serialport: port closed")

// NoTimeout disables the read timeout; Read blocks until at least one
// byte arrives or the port closes.
const NoTimeout time.Duration = -1

// DefaultBaudRate matches the virtual COM port framing of Thorlabs
// K-Cube controllers.
const DefaultBaudRate = 115200

const defaultDataBits = 8

// Port is the byte transport the driver reads frames from and writes
// commands to.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds a single Read call. After the timeout
	// elapses with no data, Read returns (0, nil). A negative value
	// (NoTimeout) blocks until data arrives.
	SetReadTimeout(t time.Duration) error

	// ResetInputBuffer discards buffered input that has not been read.
	ResetInputBuffer() error
}

// go.bug.st/serial ports satisfy Port directly.
var _ Port = (serial.Port)(nil)

type portConfig struct {
	baudRate int
}

// Option configures Open.
type Option func(*portConfig) error

// WithBaudRate overrides DefaultBaudRate.
func WithBaudRate(baud int) Option {
	return func(c *portConfig) error {
		if baud <= 0 {
			return fmt.Errorf("serialport: invalid baud rate %d", baud)
		}
		c.baudRate = baud

		return nil
	}
}

// Open opens the named OS serial port with 8N1 framing. The returned
// port has no read timeout; polling readers should set one with
// SetReadTimeout.
func Open(name string, opts ...Option) (Port, error) {
	cfg := portConfig{baudRate: DefaultBaudRate}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	mode := &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: defaultDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	return port, nil
}

// List returns the serial port names known to the operating system.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return ports, nil
}
