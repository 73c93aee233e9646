package kcube

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/go-apt/apt"
)

// MotionPhase is the coarse motion state of the axis.
type MotionPhase uint8

const (
	// PhaseUninitialized means no status report has been applied yet.
	PhaseUninitialized MotionPhase = iota
	// PhaseIdle means the axis is stationary and accepts motion commands.
	PhaseIdle
	// PhaseHoming means a homing sequence is in progress.
	PhaseHoming
	// PhaseMoving means a commanded move is in progress.
	PhaseMoving
	// PhaseFault means the controller reported a fault. Only ClearFault
	// followed by a fresh homing run leaves this phase.
	PhaseFault
)

func (p MotionPhase) String() string {
	switch p {
	case PhaseUninitialized:
		return "Uninitialized"
	case PhaseIdle:
		return "Idle"
	case PhaseHoming:
		return "Homing"
	case PhaseMoving:
		return "Moving"
	case PhaseFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// StageStatus is a point-in-time snapshot of the axis state.
type StageStatus struct {
	// Phase is the motion phase at snapshot time.
	Phase MotionPhase
	// Position is the last reported encoder position in counts.
	// Only meaningful once Homed is true.
	Position int32
	// PositionMM is Position converted to millimeters.
	PositionMM float64
	// Velocity is the last reported velocity in controller units.
	Velocity uint16
	// Bits is the raw controller status word.
	Bits apt.StatusBits
	// Homed reports whether the home reference has been established.
	Homed bool
	// Enabled reports whether the motor channel is energized.
	Enabled bool
	// Fault holds the active fault record, nil outside PhaseFault.
	Fault *FaultRecord
	// UpdatedAt is the local time of the last applied report.
	UpdatedAt time.Time
}

// motionEngine tracks the motion state machine and the status cache.
//
// All mutations come from decoded controller messages applied on the
// reader task, plus the begin*/rollback calls made by Stage methods
// before their command is written. Waiters block on cond, never the
// reader.
type motionEngine struct {
	mu   sync.Mutex
	cond *sync.Cond

	conv Converter

	phase    MotionPhase
	seeded   bool
	closed   bool
	homed    bool
	enabled  bool
	position int32
	velocity uint16
	bits     apt.StatusBits
	fault    *FaultRecord
	updated  time.Time
}

func newMotionEngine(conv Converter) *motionEngine {
	e := &motionEngine{conv: conv, phase: PhaseUninitialized}
	e.cond = sync.NewCond(&e.mu)

	return e
}

// reset returns the engine to its pre-session state. Called on Open so a
// reconnect re-seeds from live telemetry instead of trusting stale state.
func (e *motionEngine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.phase = PhaseUninitialized
	e.seeded = false
	e.closed = false
	e.homed = false
	e.enabled = false
	e.position = 0
	e.velocity = 0
	e.bits = 0
	e.fault = nil
	e.updated = time.Time{}
}

// markClosed releases all waiters with ErrConnClosed.
func (e *motionEngine) markClosed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.cond.Broadcast()
}

func (e *motionEngine) snapshot() StageStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked()
}

func (e *motionEngine) snapshotLocked() StageStatus {
	st := StageStatus{
		Phase:      e.phase,
		Position:   e.position,
		PositionMM: e.conv.PositionMM(e.position),
		Velocity:   e.velocity,
		Bits:       e.bits,
		Homed:      e.homed,
		Enabled:    e.enabled,
		UpdatedAt:  e.updated,
	}
	if e.fault != nil {
		rec := *e.fault
		st.Fault = &rec
	}

	return st
}

func (e *motionEngine) phaseNow() MotionPhase {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.phase
}

// beginHome transitions to PhaseHoming. Legal from PhaseIdle and
// PhaseUninitialized. Returns the previous phase for rollback when the
// command cannot be written.
func (e *motionEngine) beginHome() (MotionPhase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseIdle, PhaseUninitialized:
		prev := e.phase
		e.phase = PhaseHoming

		return prev, nil
	default:
		return e.phase, ErrInvalidState
	}
}

// beginMove transitions to PhaseMoving. Legal only from PhaseIdle with
// the home reference established.
func (e *motionEngine) beginMove() (MotionPhase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle {
		return e.phase, ErrInvalidState
	}
	if !e.homed {
		return e.phase, ErrNotHomed
	}

	prev := e.phase
	e.phase = PhaseMoving

	return prev, nil
}

// beginStop validates that a stop makes sense. The phase stays put until
// the controller confirms with a stopped event.
func (e *motionEngine) beginStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseMoving && e.phase != PhaseHoming {
		return ErrInvalidState
	}

	return nil
}

// rollback restores the phase after a begin* whose command never made it
// onto the wire. A fault that landed in between takes precedence.
func (e *motionEngine) rollback(prev MotionPhase) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseFault {
		return
	}
	e.phase = prev
	e.cond.Broadcast()
}

// onHomed applies a homing completion event: the home reference is
// established and the axis is idle.
func (e *motionEngine) onHomed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseFault {
		return
	}
	e.homed = true
	e.phase = PhaseIdle
	e.updated = time.Now()
	e.cond.Broadcast()
}

// onMoveEnded applies a move completion or stop event. Returns a fault
// error when the carried status word reports a fault.
func (e *motionEngine) onMoveEnded(st apt.DCStatus) *FaultError {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyStatusLocked(st)

	if fe := e.checkFaultLocked(); fe != nil {
		return fe
	}
	if e.phase == PhaseMoving || e.phase == PhaseHoming {
		e.phase = PhaseIdle
	}
	e.cond.Broadcast()

	return nil
}

// onStatus applies a periodic or requested status report. The first
// report after open seeds the phase from the status bits, so attaching
// to an already homed and idle stage needs no redundant homing run.
// Returns a fault error when fault bits are present and the engine was
// not already faulted.
func (e *motionEngine) onStatus(st apt.DCStatus) *FaultError {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyStatusLocked(st)

	if fe := e.checkFaultLocked(); fe != nil {
		return fe
	}

	if !e.seeded {
		e.seeded = true
		if e.phase == PhaseUninitialized {
			e.phase = phaseFromBits(st.Bits)
			e.cond.Broadcast()
		}
	}

	return nil
}

// applyStatusLocked refreshes the cached telemetry. Reports are applied
// in arrival order; the phase is driven by events, not by bit sampling,
// so a transient bit pattern cannot skip a transition.
func (e *motionEngine) applyStatusLocked(st apt.DCStatus) {
	e.position = st.Position
	e.velocity = st.Velocity
	e.bits = st.Bits
	e.enabled = st.Bits.IsEnabled()
	if st.Bits.IsHomed() {
		e.homed = true
	}
	e.updated = time.Now()
	e.cond.Broadcast()
}

// checkFaultLocked transitions to PhaseFault when the cached bits carry
// a fault and the engine is not already faulted.
func (e *motionEngine) checkFaultLocked() *FaultError {
	if !e.bits.HasFault() || e.phase == PhaseFault {
		return nil
	}

	fe := newStatusFault(e.bits)
	rec := fe.Record
	e.fault = &rec
	e.phase = PhaseFault
	e.cond.Broadcast()

	return fe
}

// enterFault records a fault reported through a response message.
func (e *motionEngine) enterFault(rec FaultRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseFault {
		return
	}
	r := rec
	e.fault = &r
	e.phase = PhaseFault
	e.updated = time.Now()
	e.cond.Broadcast()
}

// clearFault leaves PhaseFault. The home reference is dropped so the
// caller must re-home before the next move. No-op outside PhaseFault.
func (e *motionEngine) clearFault() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseFault {
		return
	}
	e.fault = nil
	e.homed = false
	e.phase = PhaseIdle
	e.cond.Broadcast()
}

// onEnableState applies a channel enable state report.
func (e *motionEngine) onEnableState(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = enabled
	e.updated = time.Now()
}

// onPosCounter applies a position counter report.
func (e *motionEngine) onPosCounter(position int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.position = position
	e.updated = time.Now()
}

// waitIdle blocks until the phase is PhaseIdle or PhaseFault, the
// context ends, or the connection closes. A fault returns the snapshot
// together with the fault error.
func (e *motionEngine) waitIdle(ctx context.Context) (StageStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Wake the cond wait when the context ends; Wait itself cannot
	// observe ctx.
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return e.snapshotLocked(), err
		}
		if e.closed {
			return e.snapshotLocked(), ErrConnClosed
		}

		switch e.phase {
		case PhaseIdle:
			return e.snapshotLocked(), nil
		case PhaseFault:
			return e.snapshotLocked(), &FaultError{Record: *e.fault}
		}

		e.cond.Wait()
	}
}

// phaseFromBits derives the initial phase from a status word when
// attaching to a stage whose state is unknown.
func phaseFromBits(bits apt.StatusBits) MotionPhase {
	switch {
	case bits.HasFault():
		return PhaseFault
	case bits.IsHoming():
		return PhaseHoming
	case bits.IsMoving():
		return PhaseMoving
	default:
		return PhaseIdle
	}
}
