package kcube

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/serialport"
)

// Default configuration values for a KBD101 connection.
const (
	DefaultBaudRate = serialport.DefaultBaudRate
	DefaultChannel  = 1

	DefaultReplyTimeout = 3 * time.Second  // request/reply exchanges
	DefaultMoveTimeout  = 30 * time.Second // absolute and relative moves
	DefaultHomeTimeout  = 60 * time.Second // homing sequence
	DefaultOpenTimeout  = 10 * time.Second // full open and init sequence
	DefaultCloseTimeout = 3 * time.Second

	DefaultCommandQueueSize = 10
	DefaultStatusInterval   = 500 * time.Millisecond

	// DefaultTravelMin and DefaultTravelMax bound the DDS100 stage travel
	// in millimeters.
	DefaultTravelMin = 0.0
	DefaultTravelMax = 100.0
)

// Configuration range limits.
const (
	MinReplyTimeout = 100 * time.Millisecond
	MaxReplyTimeout = 60 * time.Second

	MinMotionTimeout = 1 * time.Second
	MaxMotionTimeout = 10 * time.Minute

	MinStatusInterval = 50 * time.Millisecond
	MaxStatusInterval = 10 * time.Second

	// MaxChannel is the highest channel number a multi-channel APT
	// controller exposes. The KBD101 has a single channel.
	MaxChannel = 8
)

// ConnectionConfig holds all configuration for a K-Cube serial connection.
type ConnectionConfig struct {
	portName string
	baudRate int

	// channel is the motor channel all commands address. The KBD101 is a
	// single-channel controller, so this is 1 unless talking to a
	// multi-channel unit through the same protocol.
	channel uint16

	// destination is the APT bus address of the controller.
	destination byte

	// Command deadlines by class.
	replyTimeout time.Duration
	moveTimeout  time.Duration
	homeTimeout  time.Duration

	openTimeout  time.Duration
	closeTimeout time.Duration

	// strictInFlight rejects a command with ErrBusy while one of the same
	// class is pending instead of queueing it.
	strictInFlight   bool
	commandQueueSize int

	// statusInterval is the cadence of the status keep-alive. The
	// controller stops streaming updates if it receives no traffic for
	// about one second, so this must stay well below that.
	statusInterval time.Duration

	converter Converter
	travelMin float64
	travelMax float64

	// expectedModel, when non-empty, is checked against the model number
	// reported by the controller during Open.
	expectedModel string

	// port, when non-nil, is used instead of opening portName. Intended
	// for tests driving a pipe.
	port serialport.Port

	logger logger.Logger
}

// NewConnectionConfig creates a new connection configuration.
//
// portName is the serial device path, e.g. "/dev/ttyUSB0" or "COM3".
// opts are functional options applied in order; see With* functions.
func NewConnectionConfig(portName string, opts ...ConnOption) (*ConnectionConfig, error) {
	if portName == "" {
		return nil, errors.New("kcube: port name must not be empty")
	}

	cfg := &ConnectionConfig{
		portName:         portName,
		baudRate:         DefaultBaudRate,
		channel:          DefaultChannel,
		destination:      apt.DeviceAddr,
		replyTimeout:     DefaultReplyTimeout,
		moveTimeout:      DefaultMoveTimeout,
		homeTimeout:      DefaultHomeTimeout,
		openTimeout:      DefaultOpenTimeout,
		closeTimeout:     DefaultCloseTimeout,
		commandQueueSize: DefaultCommandQueueSize,
		statusInterval:   DefaultStatusInterval,
		converter:        DDS100Converter(),
		travelMin:        DefaultTravelMin,
		travelMax:        DefaultTravelMax,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// PortName returns the serial device path.
func (cfg *ConnectionConfig) PortName() string { return cfg.portName }

// BaudRate returns the configured baud rate.
func (cfg *ConnectionConfig) BaudRate() int { return cfg.baudRate }

// Channel returns the motor channel commands address.
func (cfg *ConnectionConfig) Channel() uint16 { return cfg.channel }

// Destination returns the APT bus address of the controller.
func (cfg *ConnectionConfig) Destination() byte { return cfg.destination }

// ReplyTimeout returns the deadline for request/reply exchanges.
func (cfg *ConnectionConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// MoveTimeout returns the deadline for move completion.
func (cfg *ConnectionConfig) MoveTimeout() time.Duration { return cfg.moveTimeout }

// HomeTimeout returns the deadline for homing completion.
func (cfg *ConnectionConfig) HomeTimeout() time.Duration { return cfg.homeTimeout }

// OpenTimeout returns the deadline for the open and init sequence.
func (cfg *ConnectionConfig) OpenTimeout() time.Duration { return cfg.openTimeout }

// CloseTimeout returns the deadline for connection shutdown.
func (cfg *ConnectionConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// StrictInFlight returns whether same-class commands are rejected
// instead of queued.
func (cfg *ConnectionConfig) StrictInFlight() bool { return cfg.strictInFlight }

// CommandQueueSize returns the per-class pending command queue size.
func (cfg *ConnectionConfig) CommandQueueSize() int { return cfg.commandQueueSize }

// StatusInterval returns the status keep-alive cadence.
func (cfg *ConnectionConfig) StatusInterval() time.Duration { return cfg.statusInterval }

// GetConverter returns the unit converter.
func (cfg *ConnectionConfig) GetConverter() Converter { return cfg.converter }

// TravelMin returns the lower travel bound in millimeters.
func (cfg *ConnectionConfig) TravelMin() float64 { return cfg.travelMin }

// TravelMax returns the upper travel bound in millimeters.
func (cfg *ConnectionConfig) TravelMax() float64 { return cfg.travelMax }

// ExpectedModel returns the model number to verify during Open, or ""
// when no check is configured.
func (cfg *ConnectionConfig) ExpectedModel() string { return cfg.expectedModel }

// Port returns the preopened serial port, or nil when portName should be
// opened instead.
func (cfg *ConnectionConfig) Port() serialport.Port { return cfg.port }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- ConnOption ---

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

// WithBaudRate sets the serial baud rate. K-Cube controllers run at
// 115200 regardless, so this only matters for bench setups with
// intermediate hardware.
func WithBaudRate(rate int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if rate <= 0 {
			return fmt.Errorf("kcube: invalid baud rate %d", rate)
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithChannel sets the motor channel commands address. Must be in
// [1, MaxChannel].
func WithChannel(channel uint16) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if channel < 1 || channel > MaxChannel {
			return fmt.Errorf("kcube: channel %d out of range [1, %d]", channel, MaxChannel)
		}
		cfg.channel = channel

		return nil
	})
}

// WithDestination sets the APT bus address of the controller. The
// default addresses a directly attached USB unit; units behind a rack
// controller use slot addresses instead.
func WithDestination(dest byte) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		cfg.destination = dest

		return nil
	})
}

// WithReplyTimeout sets the deadline for request/reply exchanges.
func WithReplyTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinReplyTimeout || d > MaxReplyTimeout {
			return fmt.Errorf("kcube: reply timeout %v out of range [%v, %v]", d, MinReplyTimeout, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithMoveTimeout sets the deadline for move completion.
func WithMoveTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinMotionTimeout || d > MaxMotionTimeout {
			return fmt.Errorf("kcube: move timeout %v out of range [%v, %v]", d, MinMotionTimeout, MaxMotionTimeout)
		}
		cfg.moveTimeout = d

		return nil
	})
}

// WithHomeTimeout sets the deadline for homing completion.
func WithHomeTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinMotionTimeout || d > MaxMotionTimeout {
			return fmt.Errorf("kcube: home timeout %v out of range [%v, %v]", d, MinMotionTimeout, MaxMotionTimeout)
		}
		cfg.homeTimeout = d

		return nil
	})
}

// WithOpenTimeout sets the deadline for the open and init sequence.
func WithOpenTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("kcube: open timeout must be positive")
		}
		cfg.openTimeout = d

		return nil
	})
}

// WithCloseTimeout sets the deadline for connection shutdown.
func WithCloseTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("kcube: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithStrictInFlight rejects a command with ErrBusy while one of the
// same class is pending, instead of queueing it behind the pending one.
// Queueing is the default.
func WithStrictInFlight(strict bool) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		cfg.strictInFlight = strict

		return nil
	})
}

// WithCommandQueueSize sets the per-class pending command queue size.
func WithCommandQueueSize(size int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if size < 1 {
			return errors.New("kcube: command queue size must be >= 1")
		}
		cfg.commandQueueSize = size

		return nil
	})
}

// WithStatusInterval sets the status keep-alive cadence. Intervals above
// one second risk the controller dropping out of update mode.
func WithStatusInterval(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinStatusInterval || d > MaxStatusInterval {
			return fmt.Errorf("kcube: status interval %v out of range [%v, %v]", d, MinStatusInterval, MaxStatusInterval)
		}
		cfg.statusInterval = d

		return nil
	})
}

// WithConverter sets the unit converter for a different stage or scale.
func WithConverter(conv Converter) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if conv.CountsPerMM <= 0 {
			return fmt.Errorf("kcube: converter counts per mm %v must be positive", conv.CountsPerMM)
		}
		cfg.converter = conv

		return nil
	})
}

// WithTravel sets the travel range in millimeters for absolute move
// validation.
func WithTravel(minMM, maxMM float64) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if maxMM <= minMM {
			return fmt.Errorf("kcube: travel range [%v, %v] is empty", minMM, maxMM)
		}
		cfg.travelMin = minMM
		cfg.travelMax = maxMM

		return nil
	})
}

// WithExpectedModel verifies the controller's reported model number
// during Open and fails with ErrModelMismatch on a different model.
func WithExpectedModel(model string) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		cfg.expectedModel = model

		return nil
	})
}

// WithPort supplies a preopened serial port instead of opening portName.
func WithPort(port serialport.Port) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if port == nil {
			return errors.New("kcube: port must not be nil")
		}
		cfg.port = port

		return nil
	})
}

// WithLogger sets the logger for the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("kcube: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
