// Package kcube drives a Thorlabs K-Cube brushless DC motor controller
// (KBD101 with a DDS100 direct drive stage) over its APT serial
// protocol, turning the asynchronous byte stream into a small,
// synchronous motion API.
//
// # Architecture
//
// A [Connection] owns one serial port exclusively. A reader task feeds
// every received byte through an incremental decoder and routes decoded
// messages, a sender task serializes all outgoing frames, and an
// interval task keeps the controller's status stream alive. On top of
// the connection sit three cooperating pieces:
//
//   - The command dispatcher correlates replies with outstanding
//     commands by message ID, enforces the in-flight policy (one
//     outstanding command per class, queued or strict), and applies
//     per-class deadlines. Every issued command resolves exactly once:
//     reply, timeout, stop, fault, or cancellation at close.
//   - The motion state machine tracks the axis through
//     Uninitialized/Idle/Homing/Moving/Fault, driven by controller
//     events, and caches position, velocity and status bits from the
//     live telemetry stream.
//   - [Stage] is the caller-facing API: Home, MoveAbsolute/MoveRelative
//     (counts or millimeters), Stop, Status, WaitForIdle, plus hardware
//     info, channel enable and velocity parameter access.
//
// # Usage
//
//	cfg, err := kcube.NewConnectionConfig("/dev/ttyUSB0",
//		kcube.WithExpectedModel("KBD101"),
//	)
//	if err != nil {
//		return err
//	}
//
//	conn, err := kcube.NewConnection(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := conn.Open(true); err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	stage := conn.Stage()
//	if err := stage.Home(ctx); err != nil {
//		return err
//	}
//	if err := stage.MoveAbsoluteMM(ctx, 25.0); err != nil {
//		return err
//	}
//
// Open runs the controller init sequence: hardware identity check,
// channel enable with verification, telemetry activation, and an
// initial status report that seeds the motion state. A controller that
// kept its home reference across host restarts is therefore usable
// without a redundant homing run.
//
// # Faults
//
// A fault reported by the controller, through status bits or a hardware
// response message, fails every outstanding command with a [FaultError]
// and parks the state machine in the Fault phase. [Stage.ClearFault]
// returns it to Idle but drops the home reference; the axis must be
// homed again before the next move.
package kcube
