package kcube

import "sync/atomic"

// ConnectionMetrics tracks connection level counters.
//
// All fields use atomic types, safe for concurrent reads while the
// connection is running.
type ConnectionMetrics struct {
	// FrameSendCount counts frames written to the serial port.
	FrameSendCount atomic.Uint64
	// FrameRecvCount counts well-formed frames decoded from the port.
	FrameRecvCount atomic.Uint64
	// MalformedFrameCount counts resynchronization events in the decoder.
	MalformedFrameCount atomic.Uint64
	// DiscardedByteCount counts bytes dropped while resynchronizing.
	DiscardedByteCount atomic.Uint64
	// CommandTimeoutCount counts commands that expired without a reply.
	CommandTimeoutCount atomic.Uint64
	// CommandInflightCount tracks commands currently awaiting a reply.
	CommandInflightCount atomic.Int64
	// FaultCount counts fault conditions reported by the controller.
	FaultCount atomic.Uint64
	// StatusUpdateCount counts spontaneous status update messages.
	StatusUpdateCount atomic.Uint64
}

func (m *ConnectionMetrics) incFrameSend() {
	m.FrameSendCount.Add(1)
}

func (m *ConnectionMetrics) incFrameRecv() {
	m.FrameRecvCount.Add(1)
}

func (m *ConnectionMetrics) addMalformed(discarded int) {
	m.MalformedFrameCount.Add(1)
	m.DiscardedByteCount.Add(uint64(discarded)) //nolint:gosec // discard counts are small positives
}

func (m *ConnectionMetrics) incCommandTimeout() {
	m.CommandTimeoutCount.Add(1)
}

func (m *ConnectionMetrics) incCommandInflight() {
	m.CommandInflightCount.Add(1)
}

func (m *ConnectionMetrics) decCommandInflight() {
	m.CommandInflightCount.Add(-1)
}

func (m *ConnectionMetrics) incFault() {
	m.FaultCount.Add(1)
}

func (m *ConnectionMetrics) incStatusUpdate() {
	m.StatusUpdateCount.Add(1)
}
