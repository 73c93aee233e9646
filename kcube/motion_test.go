package kcube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-apt/apt"
)

const (
	idleHomedBits = apt.StatusHomed | apt.StatusSettled | apt.StatusEnabled
	movingBits    = apt.StatusMovingFwd | apt.StatusHomed | apt.StatusEnabled
	homingBits    = apt.StatusMovingFwd | apt.StatusHoming | apt.StatusEnabled
	faultBits     = apt.StatusMotionError | apt.StatusHomed | apt.StatusEnabled
)

func idleHomedEngine(t *testing.T) *motionEngine {
	t.Helper()

	e := newMotionEngine(DDS100Converter())
	fe := e.onStatus(apt.DCStatus{Channel: 1, Position: 100, Bits: idleHomedBits})
	require.Nil(t, fe)
	require.Equal(t, PhaseIdle, e.phaseNow())

	return e
}

func TestMotionEngine_InitialState(t *testing.T) {
	e := newMotionEngine(DDS100Converter())

	st := e.snapshot()
	assert.Equal(t, PhaseUninitialized, st.Phase)
	assert.False(t, st.Homed)
	assert.False(t, st.Enabled)
	assert.Nil(t, st.Fault)
	assert.True(t, st.UpdatedAt.IsZero())
}

func TestMotionEngine_SeedFromFirstStatus(t *testing.T) {
	tests := []struct {
		name  string
		bits  apt.StatusBits
		phase MotionPhase
		homed bool
	}{
		{"idle homed", idleHomedBits, PhaseIdle, true},
		{"idle unhomed", apt.StatusEnabled, PhaseIdle, false},
		{"moving", movingBits, PhaseMoving, true},
		{"homing", homingBits, PhaseHoming, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newMotionEngine(DDS100Converter())
			fe := e.onStatus(apt.DCStatus{Channel: 1, Position: 4100, Velocity: 10, Bits: tt.bits})
			require.Nil(t, fe)

			st := e.snapshot()
			assert.Equal(t, tt.phase, st.Phase)
			assert.Equal(t, tt.homed, st.Homed)
			assert.Equal(t, int32(4100), st.Position)
			assert.InDelta(t, 2.0, st.PositionMM, 1e-9)
		})
	}
}

func TestMotionEngine_SeedFault(t *testing.T) {
	e := newMotionEngine(DDS100Converter())

	fe := e.onStatus(apt.DCStatus{Channel: 1, Bits: faultBits})
	require.NotNil(t, fe)
	assert.Equal(t, FaultMotionError, fe.Record.Category)
	assert.Equal(t, PhaseFault, e.phaseNow())
}

func TestMotionEngine_LaterStatusDoesNotDrivePhase(t *testing.T) {
	e := idleHomedEngine(t)

	// A later report with moving bits, for example from a front panel
	// knob turn, updates telemetry but not the phase.
	fe := e.onStatus(apt.DCStatus{Channel: 1, Position: 500, Bits: movingBits})
	require.Nil(t, fe)

	st := e.snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.Bits.IsMoving())
	assert.Equal(t, int32(500), st.Position)
}

func TestMotionEngine_BeginHome(t *testing.T) {
	e := newMotionEngine(DDS100Converter())

	prev, err := e.beginHome()
	require.NoError(t, err)
	assert.Equal(t, PhaseUninitialized, prev)
	assert.Equal(t, PhaseHoming, e.phaseNow())

	// A second home while homing is illegal.
	_, err = e.beginHome()
	assert.ErrorIs(t, err, ErrInvalidState)

	e.onHomed()
	assert.Equal(t, PhaseIdle, e.phaseNow())
	assert.True(t, e.snapshot().Homed)

	// Homing again from idle is fine.
	prev, err = e.beginHome()
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, prev)
}

func TestMotionEngine_BeginMove(t *testing.T) {
	e := newMotionEngine(DDS100Converter())

	// Unseeded axis rejects moves.
	_, err := e.beginMove()
	assert.ErrorIs(t, err, ErrInvalidState)

	// Idle but not homed.
	fe := e.onStatus(apt.DCStatus{Channel: 1, Bits: apt.StatusEnabled})
	require.Nil(t, fe)
	_, err = e.beginMove()
	assert.ErrorIs(t, err, ErrNotHomed)

	// Homed and idle.
	e.onHomed()
	prev, err := e.beginMove()
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, prev)
	assert.Equal(t, PhaseMoving, e.phaseNow())

	// Moving axis rejects another move and a home.
	_, err = e.beginMove()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = e.beginHome()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMotionEngine_BeginStop(t *testing.T) {
	e := idleHomedEngine(t)

	// Nothing to stop while idle.
	assert.ErrorIs(t, e.beginStop(), ErrInvalidState)

	_, err := e.beginMove()
	require.NoError(t, err)
	assert.NoError(t, e.beginStop())

	// The phase stays Moving until the controller confirms.
	assert.Equal(t, PhaseMoving, e.phaseNow())
}

func TestMotionEngine_Rollback(t *testing.T) {
	e := idleHomedEngine(t)

	prev, err := e.beginMove()
	require.NoError(t, err)

	e.rollback(prev)
	assert.Equal(t, PhaseIdle, e.phaseNow())
}

func TestMotionEngine_RollbackKeepsFault(t *testing.T) {
	e := idleHomedEngine(t)

	prev, err := e.beginMove()
	require.NoError(t, err)

	fe := e.onStatus(apt.DCStatus{Channel: 1, Bits: faultBits})
	require.NotNil(t, fe)

	// A fault that landed between begin and send wins over the rollback.
	e.rollback(prev)
	assert.Equal(t, PhaseFault, e.phaseNow())
}

func TestMotionEngine_MoveEnded(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	fe := e.onMoveEnded(apt.DCStatus{Channel: 1, Position: 20100, Bits: idleHomedBits})
	require.Nil(t, fe)

	st := e.snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, int32(20100), st.Position)
	assert.InDelta(t, 10.0, st.PositionMM, 1e-9)
}

func TestMotionEngine_FaultMidMove(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	fe := e.onStatus(apt.DCStatus{Channel: 1, Position: 9000, Bits: faultBits})
	require.NotNil(t, fe)
	assert.ErrorIs(t, fe, ErrDeviceFault)

	st := e.snapshot()
	assert.Equal(t, PhaseFault, st.Phase)
	require.NotNil(t, st.Fault)
	assert.Equal(t, FaultMotionError, st.Fault.Category)

	// Repeated fault reports do not re-trigger.
	fe = e.onStatus(apt.DCStatus{Channel: 1, Position: 9000, Bits: faultBits})
	assert.Nil(t, fe)
}

func TestMotionEngine_ClearFault(t *testing.T) {
	e := idleHomedEngine(t)

	fe := e.onStatus(apt.DCStatus{Channel: 1, Bits: faultBits})
	require.NotNil(t, fe)

	e.clearFault()

	st := e.snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Nil(t, st.Fault)
	// The home reference is dropped; moves need a fresh homing run.
	assert.False(t, st.Homed)
	_, err := e.beginMove()
	assert.ErrorIs(t, err, ErrNotHomed)

	// Clearing an unfaulted axis is a no-op.
	e.clearFault()
	assert.Equal(t, PhaseIdle, e.phaseNow())
}

func TestMotionEngine_EnterFaultFromResponse(t *testing.T) {
	e := idleHomedEngine(t)

	fe := newResponseFault(0x29, "motor current limit exceeded")
	e.enterFault(fe.Record)

	st := e.snapshot()
	assert.Equal(t, PhaseFault, st.Phase)
	require.NotNil(t, st.Fault)
	assert.Equal(t, FaultHardware, st.Fault.Category)
	assert.Equal(t, uint16(0x29), st.Fault.Code)
	assert.Equal(t, "motor current limit exceeded", st.Fault.Notes)
}

func TestMotionEngine_WaitIdle(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.onMoveEnded(apt.DCStatus{Channel: 1, Position: 100, Bits: idleHomedBits})
	}()

	st, err := e.waitIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestMotionEngine_WaitIdleImmediate(t *testing.T) {
	e := idleHomedEngine(t)

	st, err := e.waitIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestMotionEngine_WaitIdleFault(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.onStatus(apt.DCStatus{Channel: 1, Bits: faultBits})
	}()

	st, err := e.waitIdle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceFault)
	assert.Equal(t, PhaseFault, st.Phase)
}

func TestMotionEngine_WaitIdleContextEnds(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = e.waitIdle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 1*time.Second)
}

func TestMotionEngine_WaitIdleClosed(t *testing.T) {
	e := idleHomedEngine(t)

	_, err := e.beginMove()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.markClosed()
	}()

	_, err = e.waitIdle(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestMotionEngine_Reset(t *testing.T) {
	e := idleHomedEngine(t)

	e.markClosed()
	e.reset()

	st := e.snapshot()
	assert.Equal(t, PhaseUninitialized, st.Phase)
	assert.False(t, st.Homed)
	assert.Equal(t, int32(0), st.Position)

	// Reset engines seed again.
	fe := e.onStatus(apt.DCStatus{Channel: 1, Bits: idleHomedBits})
	require.Nil(t, fe)
	assert.Equal(t, PhaseIdle, e.phaseNow())
}

func TestMotionPhase_String(t *testing.T) {
	assert.Equal(t, "Uninitialized", PhaseUninitialized.String())
	assert.Equal(t, "Idle", PhaseIdle.String())
	assert.Equal(t, "Homing", PhaseHoming.String())
	assert.Equal(t, "Moving", PhaseMoving.String())
	assert.Equal(t, "Fault", PhaseFault.String())
}
