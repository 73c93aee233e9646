package kcube

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-apt/apt"
)

// Stage is the motion and query API for the axis a Connection drives.
//
// All methods are safe for concurrent use. Methods that issue commands
// require an opened connection and fail with ErrConnClosed otherwise;
// motion methods additionally enforce the motion state machine.
type Stage struct {
	conn *Connection
}

// Home runs the homing sequence and blocks until the controller
// confirms it, establishing the home reference that absolute moves
// require. Legal while idle or before the first status report; a homing
// or moving axis rejects it with ErrInvalidState.
func (s *Stage) Home(ctx context.Context) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	prev, err := s.conn.engine.beginHome()
	if err != nil {
		return err
	}

	frame := apt.NewMoveHome(s.conn.cfg.Destination(), s.conn.channelByte())
	if _, sent, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.HomeTimeout()); err != nil {
		if !sent {
			s.conn.engine.rollback(prev)
		}

		return err
	}

	return nil
}

// MoveAbsolute moves to an absolute position in encoder counts and
// blocks until the controller reports completion. The axis must be
// homed and idle; targets outside the travel range fail with
// ErrOutOfRange before any byte reaches the device.
func (s *Stage) MoveAbsolute(ctx context.Context, position int32) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	if err := s.checkTravel(position); err != nil {
		return err
	}

	frame := apt.NewMoveAbsolute(s.conn.cfg.Destination(), s.conn.cfg.Channel(), position)

	return s.issueMove(ctx, frame)
}

// MoveAbsoluteMM is MoveAbsolute with the target in millimeters.
func (s *Stage) MoveAbsoluteMM(ctx context.Context, mm float64) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	position := s.conn.cfg.GetConverter().PositionCounts(mm)
	if err := s.checkTravel(position); err != nil {
		return err
	}

	frame := apt.NewMoveAbsolute(s.conn.cfg.Destination(), s.conn.cfg.Channel(), position)

	return s.issueMove(ctx, frame)
}

// MoveRelative moves by a signed distance in encoder counts and blocks
// until the controller reports completion. The axis must be homed and
// idle. Relative targets are not range checked; the controller's limit
// switches bound the travel.
func (s *Stage) MoveRelative(ctx context.Context, distance int32) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	frame := apt.NewMoveRelative(s.conn.cfg.Destination(), s.conn.cfg.Channel(), distance)

	return s.issueMove(ctx, frame)
}

// MoveRelativeMM is MoveRelative with the distance in millimeters.
func (s *Stage) MoveRelativeMM(ctx context.Context, mm float64) error {
	return s.MoveRelative(ctx, s.conn.cfg.GetConverter().DistanceCounts(mm))
}

// issueMove runs the shared move flow: phase transition, command issue,
// and rollback when the frame never reached the device.
func (s *Stage) issueMove(ctx context.Context, frame *apt.Frame) error {
	prev, err := s.conn.engine.beginMove()
	if err != nil {
		return err
	}

	if _, sent, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.MoveTimeout()); err != nil {
		if !sent {
			s.conn.engine.rollback(prev)
		}

		return err
	}

	return nil
}

// checkTravel validates an absolute target against the configured
// travel range.
func (s *Stage) checkTravel(position int32) error {
	mm := s.conn.cfg.GetConverter().PositionMM(position)
	if mm < s.conn.cfg.TravelMin()-travelTol || mm > s.conn.cfg.TravelMax()+travelTol {
		return fmt.Errorf("%w: %.3f mm outside [%.1f, %.1f]",
			ErrOutOfRange, mm, s.conn.cfg.TravelMin(), s.conn.cfg.TravelMax())
	}

	return nil
}

// Stop halts the current move or homing run and blocks until the
// controller confirms the motor stopped. The interrupted command's
// caller receives ErrStopped. Legal only while moving or homing.
func (s *Stage) Stop(ctx context.Context, mode apt.StopMode) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	if err := s.conn.engine.beginStop(); err != nil {
		return err
	}

	frame := apt.NewMoveStop(s.conn.cfg.Destination(), s.conn.channelByte(), mode)
	_, _, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.ReplyTimeout())

	return err
}

// Status returns a snapshot of the latest known axis state without
// blocking. It fails only with ErrConnClosed once the session is
// invalid.
func (s *Stage) Status() (StageStatus, error) {
	if !s.conn.sessionValid() {
		return StageStatus{}, ErrConnClosed
	}

	return s.conn.engine.snapshot(), nil
}

// WaitForIdle blocks until the axis is idle, faulted, or ctx ends. A
// fault returns the snapshot together with the fault error.
func (s *Stage) WaitForIdle(ctx context.Context) (StageStatus, error) {
	if !s.conn.sessionValid() {
		return StageStatus{}, ErrConnClosed
	}

	return s.conn.engine.waitIdle(ctx)
}

// Position returns the last reported position in millimeters. The value
// is only meaningful once the axis is homed.
func (s *Stage) Position() (float64, error) {
	st, err := s.Status()
	if err != nil {
		return 0, err
	}

	return st.PositionMM, nil
}

// QueryPosition reads the position counter from the controller, in
// encoder counts, bypassing the status cache.
func (s *Stage) QueryPosition(ctx context.Context) (int32, error) {
	if err := s.conn.requireOpened(); err != nil {
		return 0, err
	}

	frame := apt.NewReqPosCounter(s.conn.cfg.Destination(), s.conn.channelByte())
	msg, _, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.ReplyTimeout())
	if err != nil {
		return 0, err
	}

	pc, ok := msg.(*apt.PosCounter)
	if !ok {
		return 0, fmt.Errorf("kcube: unexpected reply %s to position query", msg.MsgID().String())
	}

	return pc.Position, nil
}

// ClearFault leaves the Fault phase. The home reference is dropped, so
// the axis must be homed again before the next move. Calling it on an
// unfaulted axis is a no-op.
func (s *Stage) ClearFault() error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	s.conn.engine.clearFault()

	return nil
}

// Info returns the controller's hardware information report. The report
// obtained during Open is cached; it is queried only when no cached
// copy exists.
func (s *Stage) Info(ctx context.Context) (*apt.HWInfo, error) {
	if info := s.conn.info.Load(); info != nil {
		return info, nil
	}

	if err := s.conn.requireOpened(); err != nil {
		return nil, err
	}

	msg, _, err := s.conn.disp.issue(ctx, apt.NewReqHWInfo(s.conn.cfg.Destination()), s.conn.cfg.ReplyTimeout())
	if err != nil {
		return nil, err
	}

	info, ok := msg.(*apt.HWInfo)
	if !ok {
		return nil, fmt.Errorf("kcube: unexpected reply %s to hardware info query", msg.MsgID().String())
	}

	return info, nil
}

// Identify makes the controller flash its front panel display so the
// physical unit can be picked out of a rack.
func (s *Stage) Identify(ctx context.Context) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	return s.conn.disp.sendTracked(ctx, apt.NewIdentify(s.conn.cfg.Destination()))
}

// SetEnabled energizes or de-energizes the motor channel and verifies
// the state took by reading it back.
func (s *Stage) SetEnabled(ctx context.Context, enable bool) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	dest := s.conn.cfg.Destination()
	ch := s.conn.channelByte()

	if err := s.conn.disp.sendTracked(ctx, apt.NewSetChanEnableState(dest, ch, enable)); err != nil {
		return err
	}

	msg, _, err := s.conn.disp.issue(ctx, apt.NewReqChanEnableState(dest, ch), s.conn.cfg.ReplyTimeout())
	if err != nil {
		return err
	}

	if st, ok := msg.(*apt.ChanEnableState); !ok || st.Enabled != enable {
		return errors.New("kcube: channel enable verification failed")
	}

	return nil
}

// Enabled reads the motor channel enable state from the controller.
func (s *Stage) Enabled(ctx context.Context) (bool, error) {
	if err := s.conn.requireOpened(); err != nil {
		return false, err
	}

	frame := apt.NewReqChanEnableState(s.conn.cfg.Destination(), s.conn.channelByte())
	msg, _, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.ReplyTimeout())
	if err != nil {
		return false, err
	}

	st, ok := msg.(*apt.ChanEnableState)
	if !ok {
		return false, fmt.Errorf("kcube: unexpected reply %s to enable state query", msg.MsgID().String())
	}

	return st.Enabled, nil
}

// SetVelocityParams writes the velocity profile: minimum velocity,
// acceleration and maximum velocity in controller units.
func (s *Stage) SetVelocityParams(ctx context.Context, minVel, accel, maxVel int32) error {
	if err := s.conn.requireOpened(); err != nil {
		return err
	}

	frame := apt.NewSetVelParams(s.conn.cfg.Destination(), s.conn.cfg.Channel(), minVel, accel, maxVel)

	return s.conn.disp.sendTracked(ctx, frame)
}

// VelocityParams reads the velocity profile from the controller.
func (s *Stage) VelocityParams(ctx context.Context) (*apt.VelParams, error) {
	if err := s.conn.requireOpened(); err != nil {
		return nil, err
	}

	frame := apt.NewReqVelParams(s.conn.cfg.Destination(), s.conn.channelByte())
	msg, _, err := s.conn.disp.issue(ctx, frame, s.conn.cfg.ReplyTimeout())
	if err != nil {
		return nil, err
	}

	vp, ok := msg.(*apt.VelParams)
	if !ok {
		return nil, fmt.Errorf("kcube: unexpected reply %s to velocity params query", msg.MsgID().String())
	}

	return vp, nil
}

// Converter returns the unit converter the stage was configured with.
func (s *Stage) Converter() Converter {
	return s.conn.cfg.GetConverter()
}
