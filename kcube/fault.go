package kcube

import (
	"fmt"
	"time"

	"github.com/arloliu/go-apt/apt"
)

// FaultCategory classifies the origin of a controller fault.
type FaultCategory uint8

const (
	// FaultUnknown indicates a fault whose source could not be classified.
	FaultUnknown FaultCategory = iota
	// FaultMotionError indicates an excessive position error, usually a
	// stalled or obstructed axis.
	FaultMotionError
	// FaultCurrentLimit indicates that the motor current limit was reached.
	FaultCurrentLimit
	// FaultHardware indicates a fault reported by the controller itself
	// through a response message rather than status bits.
	FaultHardware
)

func (c FaultCategory) String() string {
	switch c {
	case FaultMotionError:
		return "motion-error"
	case FaultCurrentLimit:
		return "current-limit"
	case FaultHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// FaultRecord captures one fault condition reported by the controller.
type FaultRecord struct {
	// Code is the controller error code for response faults, zero for
	// faults derived from status bits.
	Code uint16
	// Category classifies the fault source.
	Category FaultCategory
	// Bits holds the status word that raised the fault, zero for response
	// faults.
	Bits apt.StatusBits
	// Notes carries the controller's textual detail when available.
	Notes string
	// At is the local time the fault was observed.
	At time.Time
}

// FaultError wraps a FaultRecord as an error. It unwraps to
// ErrDeviceFault so callers can test with errors.Is.
type FaultError struct {
	Record FaultRecord
}

func (e *FaultError) Error() string {
	r := e.Record
	if r.Notes != "" {
		return fmt.Sprintf("kcube: device fault (%s): %s", r.Category, r.Notes)
	}
	if r.Bits != 0 {
		return fmt.Sprintf("kcube: device fault (%s): status %s", r.Category, r.Bits)
	}

	return fmt.Sprintf("kcube: device fault (%s): code 0x%04X", r.Category, r.Code)
}

func (e *FaultError) Unwrap() error {
	return ErrDeviceFault
}

// newStatusFault builds a FaultError from a status word with fault bits
// set. Motion error takes precedence when both fault bits are present.
func newStatusFault(bits apt.StatusBits) *FaultError {
	category := FaultUnknown
	switch {
	case bits&apt.StatusMotionError != 0:
		category = FaultMotionError
	case bits&apt.StatusCurrentLimit != 0:
		category = FaultCurrentLimit
	}

	return &FaultError{Record: FaultRecord{
		Category: category,
		Bits:     bits,
		At:       time.Now(),
	}}
}

// newResponseFault builds a FaultError from a hardware response message.
func newResponseFault(code uint16, notes string) *FaultError {
	return &FaultError{Record: FaultRecord{
		Code:     code,
		Category: FaultHardware,
		Notes:    notes,
		At:       time.Now(),
	}}
}
