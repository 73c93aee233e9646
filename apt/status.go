package apt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// StatusBits is the 32-bit status word reported by brushless DC controllers
// in status update and move completion messages.
type StatusBits uint32

// Status bit assignments for the KBD101 / brushless DC status word.
const (
	StatusFwdHardLimit StatusBits = 0x00000001 // forward hardware limit switch active
	StatusRevHardLimit StatusBits = 0x00000002 // reverse hardware limit switch active
	StatusMovingFwd    StatusBits = 0x00000010
	StatusMovingRev    StatusBits = 0x00000020
	StatusJoggingFwd   StatusBits = 0x00000040
	StatusJoggingRev   StatusBits = 0x00000080
	StatusHoming       StatusBits = 0x00000200
	StatusHomed        StatusBits = 0x00000400
	StatusTracking     StatusBits = 0x00001000
	StatusSettled      StatusBits = 0x00002000
	StatusMotionError  StatusBits = 0x00004000 // excessive position error
	StatusCurrentLimit StatusBits = 0x01000000 // motor current limit reached
	StatusEnabled      StatusBits = 0x80000000 // channel enabled
)

// faultMask covers the status bits that indicate a hardware fault
// requiring intervention before motion can continue.
const faultMask = StatusMotionError | StatusCurrentLimit

// IsMoving reports whether the motor is moving or jogging in either direction.
func (s StatusBits) IsMoving() bool {
	return s&(StatusMovingFwd|StatusMovingRev|StatusJoggingFwd|StatusJoggingRev) != 0
}

// IsHoming reports whether a homing sequence is in progress.
func (s StatusBits) IsHoming() bool { return s&StatusHoming != 0 }

// IsHomed reports whether the home reference has been established.
func (s StatusBits) IsHomed() bool { return s&StatusHomed != 0 }

// IsEnabled reports whether the channel is enabled (motor energized).
func (s StatusBits) IsEnabled() bool { return s&StatusEnabled != 0 }

// IsSettled reports whether the axis has settled within the target window.
func (s StatusBits) IsSettled() bool { return s&StatusSettled != 0 }

// IsTracking reports whether the axis is tracking within the tracking window.
func (s StatusBits) IsTracking() bool { return s&StatusTracking != 0 }

// AtHardLimit reports whether either hardware limit switch is active.
func (s StatusBits) AtHardLimit() bool {
	return s&(StatusFwdHardLimit|StatusRevHardLimit) != 0
}

// HasFault reports whether any fault bit is set.
func (s StatusBits) HasFault() bool { return s&faultMask != 0 }

// FaultBits returns only the fault bits of the status word.
func (s StatusBits) FaultBits() StatusBits { return s & faultMask }

// String returns a compact list of the set flags for logging.
func (s StatusBits) String() string {
	flags := []struct {
		bit  StatusBits
		name string
	}{
		{StatusFwdHardLimit, "fwd-limit"},
		{StatusRevHardLimit, "rev-limit"},
		{StatusMovingFwd, "moving-fwd"},
		{StatusMovingRev, "moving-rev"},
		{StatusJoggingFwd, "jogging-fwd"},
		{StatusJoggingRev, "jogging-rev"},
		{StatusHoming, "homing"},
		{StatusHomed, "homed"},
		{StatusTracking, "tracking"},
		{StatusSettled, "settled"},
		{StatusMotionError, "motion-error"},
		{StatusCurrentLimit, "current-limit"},
		{StatusEnabled, "enabled"},
	}

	var names []string
	rem := s
	for _, f := range flags {
		if s&f.bit != 0 {
			names = append(names, f.name)
			rem &^= f.bit
		}
	}

	// Keep bits without a name visible; controllers report reserved bits.
	if rem != 0 {
		names = append(names, fmt.Sprintf("0x%X", uint32(rem)))
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// DCStatus is the 14-byte status report data packet shared by
// MOT_GET_DCSTATUSUPDATE, MOT_MOVE_COMPLETED and MOT_MOVE_STOPPED.
type DCStatus struct {
	Channel  uint16
	Position int32  // encoder counts
	Velocity uint16 // controller velocity units
	Bits     StatusBits
}

// parseDCStatus decodes the 14-byte DC status data packet. The caller
// guarantees len(data) == dcStatusDataLen.
func parseDCStatus(data []byte) DCStatus {
	return DCStatus{
		Channel:  binary.LittleEndian.Uint16(data[0:2]),
		Position: int32(binary.LittleEndian.Uint32(data[2:6])), //nolint:gosec // wire value is signed
		Velocity: binary.LittleEndian.Uint16(data[6:8]),
		// bytes 8-9 are reserved
		Bits: StatusBits(binary.LittleEndian.Uint32(data[10:14])),
	}
}
