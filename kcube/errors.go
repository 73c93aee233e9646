package kcube

import "errors"

// Configuration and lifecycle errors.
var (
	// ErrConnConfigNil indicates that the connection configuration is nil.
	ErrConnConfigNil = errors.New("kcube: connection config is nil")
	// ErrConnClosed indicates that the connection is closed or closing.
	ErrConnClosed = errors.New("kcube: connection closed")
	// ErrInvalidState indicates an operation that the current motion phase
	// does not allow.
	ErrInvalidState = errors.New("kcube: invalid state for operation")
	// ErrNotHomed indicates an absolute or relative move requested before
	// the axis has been homed.
	ErrNotHomed = errors.New("kcube: axis not homed")
	// ErrOutOfRange indicates a target position outside the configured
	// travel range.
	ErrOutOfRange = errors.New("kcube: target position out of travel range")
)

// Command flow errors.
var (
	// ErrTimeout indicates that the device did not reply within the
	// command deadline.
	ErrTimeout = errors.New("kcube: command timed out")
	// ErrBusy indicates that a command of the same class is already in
	// flight and queueing is disabled or the queue is full.
	ErrBusy = errors.New("kcube: command already in flight")
	// ErrStopped indicates a move that was terminated by a stop request
	// before reaching its target.
	ErrStopped = errors.New("kcube: move stopped before completion")
	// ErrCancelled indicates a command abandoned because the caller's
	// context ended or the connection shut down.
	ErrCancelled = errors.New("kcube: command cancelled")
)

// Device errors.
var (
	// ErrDeviceFault indicates that the controller reported a fault
	// condition. Errors carrying fault detail wrap this sentinel.
	ErrDeviceFault = errors.New("kcube: device fault")
	// ErrModelMismatch indicates that the connected controller reported a
	// model different from the expected one.
	ErrModelMismatch = errors.New("kcube: unexpected device model")
)
