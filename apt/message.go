package apt

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-apt/internal/util"
)

// Message is a decoded APT protocol unit produced by the Decoder.
//
// The set of concrete types is closed: device reports ([HWInfo],
// [ChanEnableState], [PosCounter], [VelParams]), motion events ([Homed],
// [MoveCompleted], [MoveStopped]), telemetry ([DCStatusUpdate]), fault
// notifications ([HWResponse], [HWRichResponse]), [Disconnect], [RawFrame]
// for known frames without a dedicated decode, and [MalformedFrame] for
// resynchronization reports.
type Message interface {
	// MsgID returns the message identifier, or 0 for a MalformedFrame.
	MsgID() MsgID
}

// HWInfo is the HW_GET_INFO hardware information report.
type HWInfo struct {
	SerialNumber    uint32
	Model           string // e.g. "KBD101"
	Type            uint16
	FirmwareVersion uint32
	Notes           string
	HardwareVersion uint16
	ModState        uint16
	NumChannels     uint16
}

// MsgID implements Message.
func (m *HWInfo) MsgID() MsgID { return MsgHWGetInfo }

// ChanEnableState is the MOD_GET_CHANENABLESTATE report.
type ChanEnableState struct {
	Channel byte
	Enabled bool
}

// MsgID implements Message.
func (m *ChanEnableState) MsgID() MsgID { return MsgModGetChanEnableState }

// Homed is the MOT_MOVE_HOMED event sent when a homing sequence completes.
type Homed struct {
	Channel byte
}

// MsgID implements Message.
func (m *Homed) MsgID() MsgID { return MsgMotMoveHomed }

// PosCounter is the MOT_GET_POSCOUNTER report.
type PosCounter struct {
	Channel  uint16
	Position int32 // encoder counts
}

// MsgID implements Message.
func (m *PosCounter) MsgID() MsgID { return MsgMotGetPosCounter }

// VelParams is the MOT_GET_VELPARAMS report.
type VelParams struct {
	Channel      uint16
	MinVelocity  int32
	Acceleration int32
	MaxVelocity  int32
}

// MsgID implements Message.
func (m *VelParams) MsgID() MsgID { return MsgMotGetVelParams }

// MoveCompleted is the MOT_MOVE_COMPLETED event sent when an absolute or
// relative move finishes. It carries a full status report.
type MoveCompleted struct {
	Status DCStatus
}

// MsgID implements Message.
func (m *MoveCompleted) MsgID() MsgID { return MsgMotMoveCompleted }

// MoveStopped is the MOT_MOVE_STOPPED event sent when the motor halts in
// response to a stop command. It carries a full status report.
type MoveStopped struct {
	Status DCStatus
}

// MsgID implements Message.
func (m *MoveStopped) MsgID() MsgID { return MsgMotMoveStopped }

// DCStatusUpdate is the periodic MOT_GET_DCSTATUSUPDATE telemetry report.
type DCStatusUpdate struct {
	Status DCStatus
}

// MsgID implements Message.
func (m *DCStatusUpdate) MsgID() MsgID { return MsgMotGetDCStatusUpdate }

// HWResponse is the HW_RESPONSE fault notification. The controller sends
// it when an event requires intervention before normal operation can
// resume; the param word carries a numeric fault code.
type HWResponse struct {
	Code uint16
}

// MsgID implements Message.
func (m *HWResponse) MsgID() MsgID { return MsgHWResponse }

// HWRichResponse is the HW_RICHRESPONSE fault notification carrying the
// originating message ID, a fault code and a freeform notes field.
type HWRichResponse struct {
	MsgIdent uint16
	Code     uint16
	Notes    string
}

// MsgID implements Message.
func (m *HWRichResponse) MsgID() MsgID { return MsgHWRichResponse }

// Disconnect is the HW_DISCONNECT notification.
type Disconnect struct{}

// MsgID implements Message.
func (m *Disconnect) MsgID() MsgID { return MsgHWDisconnect }

// RawFrame wraps a well-formed frame of a known message type that has no
// dedicated decoded representation, such as host-to-device commands seen
// by a device-side decoder.
type RawFrame struct {
	Frame *Frame
}

// MsgID implements Message.
func (m *RawFrame) MsgID() MsgID { return m.Frame.ID }

// MalformedFrame reports bytes the decoder discarded while scanning for
// the next valid frame header. It is informational: the decoder has
// already resynchronized when it emits one.
type MalformedFrame struct {
	// Discarded is the number of bytes skipped.
	Discarded int
	// Reason describes why the scan started, based on the first rejected
	// header.
	Reason string
}

// MsgID implements Message. It returns 0; malformed input has no
// identifiable message type.
func (m *MalformedFrame) MsgID() MsgID { return 0 }

// Error summarises the discarded span. MalformedFrame is not returned as
// an error by any API; the method exists for convenient logging.
func (m *MalformedFrame) Error() string {
	return fmt.Sprintf("apt: discarded %d bytes: %s", m.Discarded, m.Reason)
}

// decodeMessage converts a validated frame into its typed message. Frames
// without a dedicated representation come back wrapped in RawFrame. The
// frame's data length has already been checked against the message table
// by the decoder.
func decodeMessage(f *Frame) Message {
	switch f.ID {
	case MsgHWGetInfo:
		return decodeHWInfo(f.Data)

	case MsgModGetChanEnableState:
		return &ChanEnableState{Channel: f.Param1, Enabled: f.Param2 == chanEnabled}

	case MsgMotMoveHomed:
		return &Homed{Channel: f.Param1}

	case MsgMotGetPosCounter:
		return &PosCounter{
			Channel:  binary.LittleEndian.Uint16(f.Data[0:2]),
			Position: int32(binary.LittleEndian.Uint32(f.Data[2:6])), //nolint:gosec // wire value is signed
		}

	case MsgMotGetVelParams:
		return &VelParams{
			Channel:      binary.LittleEndian.Uint16(f.Data[0:2]),
			MinVelocity:  int32(binary.LittleEndian.Uint32(f.Data[2:6])),   //nolint:gosec // wire value is signed
			Acceleration: int32(binary.LittleEndian.Uint32(f.Data[6:10])),  //nolint:gosec // wire value is signed
			MaxVelocity:  int32(binary.LittleEndian.Uint32(f.Data[10:14])), //nolint:gosec // wire value is signed
		}

	case MsgMotMoveCompleted:
		return &MoveCompleted{Status: parseDCStatus(f.Data)}

	case MsgMotMoveStopped:
		return &MoveStopped{Status: parseDCStatus(f.Data)}

	case MsgMotGetDCStatusUpdate:
		return &DCStatusUpdate{Status: parseDCStatus(f.Data)}

	case MsgHWResponse:
		return &HWResponse{Code: f.ParamWord()}

	case MsgHWRichResponse:
		return &HWRichResponse{
			MsgIdent: binary.LittleEndian.Uint16(f.Data[0:2]),
			Code:     binary.LittleEndian.Uint16(f.Data[2:4]),
			Notes:    util.CString(f.Data[4:richResponseDataLen]),
		}

	case MsgHWDisconnect:
		return &Disconnect{}

	default:
		return &RawFrame{Frame: f}
	}
}

// HW_GET_INFO data packet layout.
const (
	hwInfoSerialOff   = 0
	hwInfoModelOff    = 4
	hwInfoModelLen    = 8
	hwInfoTypeOff     = 12
	hwInfoFirmwareOff = 14
	hwInfoNotesOff    = 18
	hwInfoNotesLen    = 48
	hwInfoHWVerOff    = 78
	hwInfoModStateOff = 80
	hwInfoChannelsOff = 82
)

func decodeHWInfo(data []byte) *HWInfo {
	return &HWInfo{
		SerialNumber:    binary.LittleEndian.Uint32(data[hwInfoSerialOff:]),
		Model:           util.CString(data[hwInfoModelOff : hwInfoModelOff+hwInfoModelLen]),
		Type:            binary.LittleEndian.Uint16(data[hwInfoTypeOff:]),
		FirmwareVersion: binary.LittleEndian.Uint32(data[hwInfoFirmwareOff:]),
		Notes:           util.CString(data[hwInfoNotesOff : hwInfoNotesOff+hwInfoNotesLen]),
		HardwareVersion: binary.LittleEndian.Uint16(data[hwInfoHWVerOff:]),
		ModState:        binary.LittleEndian.Uint16(data[hwInfoModStateOff:]),
		NumChannels:     binary.LittleEndian.Uint16(data[hwInfoChannelsOff:]),
	}
}
