package apt

import "encoding/binary"

// StopMode selects how MOT_MOVE_STOP halts the motor.
type StopMode byte

const (
	// StopImmediate halts abruptly without a deceleration profile.
	StopImmediate StopMode = 0x01
	// StopProfiled decelerates along the configured velocity profile.
	StopProfiled StopMode = 0x02
)

// Channel enable states as encoded in MOD_SET/GET_CHANENABLESTATE param 2.
const (
	chanEnabled  byte = 0x01
	chanDisabled byte = 0x02
)

// Builder functions for all host-to-device frames. Each returns a frame
// with the host source address already set; dest is the bus address of the
// target unit (DeviceAddr for a directly attached K-Cube).

// NewReqHWInfo builds HW_REQ_INFO, requesting the hardware info report.
func NewReqHWInfo(dest byte) *Frame {
	return &Frame{ID: MsgHWReqInfo, Dest: dest, Src: HostAddr}
}

// NewDisconnect builds HW_DISCONNECT, announcing the host is about to
// drop the connection.
func NewDisconnect(dest byte) *Frame {
	return &Frame{ID: MsgHWDisconnect, Dest: dest, Src: HostAddr}
}

// NewStartUpdateMsgs builds HW_START_UPDATEMSGS, enabling periodic status
// update messages from the controller.
func NewStartUpdateMsgs(dest byte) *Frame {
	return &Frame{ID: MsgHWStartUpdateMsgs, Dest: dest, Src: HostAddr}
}

// NewStopUpdateMsgs builds HW_STOP_UPDATEMSGS, disabling periodic status
// update messages.
func NewStopUpdateMsgs(dest byte) *Frame {
	return &Frame{ID: MsgHWStopUpdateMsgs, Dest: dest, Src: HostAddr}
}

// NewAckDCStatusUpdate builds MOT_ACK_DCSTATUSUPDATE, the keepalive the
// controller requires while streaming status updates. A controller that
// misses the acknowledgment for too long stops sending updates.
func NewAckDCStatusUpdate(dest byte) *Frame {
	return &Frame{ID: MsgMotAckDCStatusUpdate, Dest: dest, Src: HostAddr}
}

// NewIdentify builds MOD_IDENTIFY, which makes the unit flash its front
// panel display for physical identification.
func NewIdentify(dest byte) *Frame {
	return &Frame{ID: MsgModIdentify, Dest: dest, Src: HostAddr}
}

// NewSetChanEnableState builds MOD_SET_CHANENABLESTATE for the given
// channel. An enabled channel energizes the motor.
func NewSetChanEnableState(dest byte, channel byte, enable bool) *Frame {
	state := chanDisabled
	if enable {
		state = chanEnabled
	}

	return &Frame{ID: MsgModSetChanEnableState, Param1: channel, Param2: state, Dest: dest, Src: HostAddr}
}

// NewReqChanEnableState builds MOD_REQ_CHANENABLESTATE for the given channel.
func NewReqChanEnableState(dest byte, channel byte) *Frame {
	return &Frame{ID: MsgModReqChanEnableState, Param1: channel, Dest: dest, Src: HostAddr}
}

// NewMoveHome builds MOT_MOVE_HOME for the given channel. The controller
// answers with MOT_MOVE_HOMED once the homing sequence completes.
func NewMoveHome(dest byte, channel byte) *Frame {
	return &Frame{ID: MsgMotMoveHome, Param1: channel, Dest: dest, Src: HostAddr}
}

// NewReqPosCounter builds MOT_REQ_POSCOUNTER for the given channel.
func NewReqPosCounter(dest byte, channel byte) *Frame {
	return &Frame{ID: MsgMotReqPosCounter, Param1: channel, Dest: dest, Src: HostAddr}
}

// NewReqVelParams builds MOT_REQ_VELPARAMS for the given channel.
func NewReqVelParams(dest byte, channel byte) *Frame {
	return &Frame{ID: MsgMotReqVelParams, Param1: channel, Dest: dest, Src: HostAddr}
}

// NewSetVelParams builds MOT_SET_VELPARAMS with the minimum velocity,
// acceleration and maximum velocity in controller units.
func NewSetVelParams(dest byte, channel uint16, minVel, accel, maxVel int32) *Frame {
	data := make([]byte, 0, velParamsDataLen)
	data = binary.LittleEndian.AppendUint16(data, channel)
	data = binary.LittleEndian.AppendUint32(data, uint32(minVel)) //nolint:gosec // two's complement wire encoding
	data = binary.LittleEndian.AppendUint32(data, uint32(accel))  //nolint:gosec // two's complement wire encoding
	data = binary.LittleEndian.AppendUint32(data, uint32(maxVel)) //nolint:gosec // two's complement wire encoding

	return &Frame{ID: MsgMotSetVelParams, Dest: dest, Src: HostAddr, Data: data}
}

// NewMoveRelative builds MOT_MOVE_RELATIVE with a signed distance in
// encoder counts. The controller answers with MOT_MOVE_COMPLETED when the
// move finishes.
func NewMoveRelative(dest byte, channel uint16, distance int32) *Frame {
	return &Frame{ID: MsgMotMoveRelative, Dest: dest, Src: HostAddr, Data: putChanValue(channel, distance)}
}

// NewMoveAbsolute builds MOT_MOVE_ABSOLUTE with an absolute target position
// in encoder counts. The controller answers with MOT_MOVE_COMPLETED when
// the move finishes.
func NewMoveAbsolute(dest byte, channel uint16, position int32) *Frame {
	return &Frame{ID: MsgMotMoveAbsolute, Dest: dest, Src: HostAddr, Data: putChanValue(channel, position)}
}

// NewMoveStop builds MOT_MOVE_STOP. The controller answers with
// MOT_MOVE_STOPPED once the motor has halted.
func NewMoveStop(dest byte, channel byte, mode StopMode) *Frame {
	return &Frame{ID: MsgMotMoveStop, Param1: channel, Param2: byte(mode), Dest: dest, Src: HostAddr}
}

// NewReqDCStatusUpdate builds MOT_REQ_DCSTATUSUPDATE, requesting a single
// status update report.
func NewReqDCStatusUpdate(dest byte, channel byte) *Frame {
	return &Frame{ID: MsgMotReqDCStatusUpdate, Param1: channel, Dest: dest, Src: HostAddr}
}

// NewSuspendEndOfMoveMsgs builds MOT_SUSPEND_ENDOFMOVEMSGS, suppressing
// move completion messages.
func NewSuspendEndOfMoveMsgs(dest byte) *Frame {
	return &Frame{ID: MsgMotSuspendEndOfMoveMsgs, Dest: dest, Src: HostAddr}
}

// NewResumeEndOfMoveMsgs builds MOT_RESUME_ENDOFMOVEMSGS, re-enabling move
// completion messages. Completion messages are required for move and stop
// correlation, so drivers send this during session setup.
func NewResumeEndOfMoveMsgs(dest byte) *Frame {
	return &Frame{ID: MsgMotResumeEndOfMoveMsgs, Dest: dest, Src: HostAddr}
}

// putChanValue encodes the common 6-byte data packet: a channel ident
// followed by one signed 32-bit value.
func putChanValue(channel uint16, value int32) []byte {
	data := make([]byte, 0, chanValueDataLen)
	data = binary.LittleEndian.AppendUint16(data, channel)
	data = binary.LittleEndian.AppendUint32(data, uint32(value)) //nolint:gosec // two's complement wire encoding

	return data
}
