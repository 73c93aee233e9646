package apt

import "fmt"

// MsgID identifies an APT message type. It is transmitted little-endian in
// the first two bytes of every frame header.
type MsgID uint16

// Message identifiers for the brushless DC controller message set.
//
// The names follow the vendor documentation (MGMSG_* identifiers) with the
// MGMSG prefix dropped.
const (
	// Generic hardware messages.
	MsgHWDisconnect      MsgID = 0x0002
	MsgHWReqInfo         MsgID = 0x0005
	MsgHWGetInfo         MsgID = 0x0006
	MsgHWStartUpdateMsgs MsgID = 0x0011
	MsgHWStopUpdateMsgs  MsgID = 0x0012
	MsgHWResponse        MsgID = 0x0080
	MsgHWRichResponse    MsgID = 0x0081

	// Module (channel) messages.
	MsgModSetChanEnableState MsgID = 0x0210
	MsgModReqChanEnableState MsgID = 0x0211
	MsgModGetChanEnableState MsgID = 0x0212
	MsgModIdentify           MsgID = 0x0223

	// Motor control messages.
	MsgMotReqPosCounter        MsgID = 0x0411
	MsgMotGetPosCounter        MsgID = 0x0412
	MsgMotSetVelParams         MsgID = 0x0413
	MsgMotReqVelParams         MsgID = 0x0414
	MsgMotGetVelParams         MsgID = 0x0415
	MsgMotMoveHome             MsgID = 0x0443
	MsgMotMoveHomed            MsgID = 0x0444
	MsgMotMoveRelative         MsgID = 0x0448
	MsgMotMoveAbsolute         MsgID = 0x0453
	MsgMotMoveCompleted        MsgID = 0x0464
	MsgMotMoveStop             MsgID = 0x0465
	MsgMotMoveStopped          MsgID = 0x0466
	MsgMotSuspendEndOfMoveMsgs MsgID = 0x046B
	MsgMotResumeEndOfMoveMsgs  MsgID = 0x046C
	MsgMotReqDCStatusUpdate    MsgID = 0x0490
	MsgMotGetDCStatusUpdate    MsgID = 0x0491
	MsgMotAckDCStatusUpdate    MsgID = 0x0492
)

// Fixed data packet sizes for extended messages.
const (
	hwInfoDataLen       = 84
	richResponseDataLen = 68
	chanValueDataLen    = 6  // channel ident + one 32-bit value
	velParamsDataLen    = 14 // channel ident + three 32-bit values
	dcStatusDataLen     = 14 // channel ident + position + velocity + reserved + status bits
)

// msgInfo describes the fixed wire layout of one message type.
type msgInfo struct {
	name    string
	dataLen int // 0 for header-only messages
}

// msgTable is the closed set of message types this package understands.
// The decoder treats any header whose ID is absent from this table, or
// whose declared data length disagrees with it, as garbage.
var msgTable = map[MsgID]msgInfo{
	MsgHWDisconnect:      {"HW_DISCONNECT", 0},
	MsgHWReqInfo:         {"HW_REQ_INFO", 0},
	MsgHWGetInfo:         {"HW_GET_INFO", hwInfoDataLen},
	MsgHWStartUpdateMsgs: {"HW_START_UPDATEMSGS", 0},
	MsgHWStopUpdateMsgs:  {"HW_STOP_UPDATEMSGS", 0},
	MsgHWResponse:        {"HW_RESPONSE", 0},
	MsgHWRichResponse:    {"HW_RICHRESPONSE", richResponseDataLen},

	MsgModSetChanEnableState: {"MOD_SET_CHANENABLESTATE", 0},
	MsgModReqChanEnableState: {"MOD_REQ_CHANENABLESTATE", 0},
	MsgModGetChanEnableState: {"MOD_GET_CHANENABLESTATE", 0},
	MsgModIdentify:           {"MOD_IDENTIFY", 0},

	MsgMotReqPosCounter:        {"MOT_REQ_POSCOUNTER", 0},
	MsgMotGetPosCounter:        {"MOT_GET_POSCOUNTER", chanValueDataLen},
	MsgMotSetVelParams:         {"MOT_SET_VELPARAMS", velParamsDataLen},
	MsgMotReqVelParams:         {"MOT_REQ_VELPARAMS", 0},
	MsgMotGetVelParams:         {"MOT_GET_VELPARAMS", velParamsDataLen},
	MsgMotMoveHome:             {"MOT_MOVE_HOME", 0},
	MsgMotMoveHomed:            {"MOT_MOVE_HOMED", 0},
	MsgMotMoveRelative:         {"MOT_MOVE_RELATIVE", chanValueDataLen},
	MsgMotMoveAbsolute:         {"MOT_MOVE_ABSOLUTE", chanValueDataLen},
	MsgMotMoveCompleted:        {"MOT_MOVE_COMPLETED", dcStatusDataLen},
	MsgMotMoveStop:             {"MOT_MOVE_STOP", 0},
	MsgMotMoveStopped:          {"MOT_MOVE_STOPPED", dcStatusDataLen},
	MsgMotSuspendEndOfMoveMsgs: {"MOT_SUSPEND_ENDOFMOVEMSGS", 0},
	MsgMotResumeEndOfMoveMsgs:  {"MOT_RESUME_ENDOFMOVEMSGS", 0},
	MsgMotReqDCStatusUpdate:    {"MOT_REQ_DCSTATUSUPDATE", 0},
	MsgMotGetDCStatusUpdate:    {"MOT_GET_DCSTATUSUPDATE", dcStatusDataLen},
	MsgMotAckDCStatusUpdate:    {"MOT_ACK_DCSTATUSUPDATE", 0},
}

// Known reports whether id belongs to the supported message set.
func Known(id MsgID) bool {
	_, ok := msgTable[id]
	return ok
}

// DataLen returns the fixed data packet length for id, or 0 for
// header-only messages. The second return value is false when id is not a
// known message type.
func DataLen(id MsgID) (int, bool) {
	info, ok := msgTable[id]
	return info.dataLen, ok
}

// String returns the vendor-style name of the message ID, or a hex dump
// for unknown IDs.
func (id MsgID) String() string {
	if info, ok := msgTable[id]; ok {
		return info.name
	}

	return fmt.Sprintf("MSG_0x%04X", uint16(id))
}
