package apt

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the APT frame header in bytes.
const HeaderSize = 6

// Well-known APT bus addresses.
const (
	// HostAddr is the source address of the controlling PC.
	HostAddr byte = 0x01

	// DeviceAddr addresses a generic USB hardware unit, which is the
	// correct destination for a directly attached K-Cube.
	DeviceAddr byte = 0x50
)

// extendedBit marks the destination byte of frames that carry a data packet.
const extendedBit byte = 0x80

// Frame is a single APT protocol frame: the 6-byte header plus an optional
// data packet.
//
// For short frames Param1 and Param2 carry the message operands. For
// extended frames (len(Data) > 0) the param bytes are replaced on the wire
// by the little-endian data packet length, and bit 7 of the destination
// byte is set.
type Frame struct {
	ID     MsgID
	Param1 byte
	Param2 byte
	Dest   byte
	Src    byte
	Data   []byte
}

// IsExtended reports whether the frame carries a data packet.
func (f *Frame) IsExtended() bool {
	return len(f.Data) > 0
}

// ParamWord returns the two param bytes as a little-endian 16-bit value.
func (f *Frame) ParamWord() uint16 {
	return uint16(f.Param1) | uint16(f.Param2)<<8
}

// WireSize returns the number of bytes Pack will produce.
func (f *Frame) WireSize() int {
	return HeaderSize + len(f.Data)
}

// Pack serializes the frame to its wire format.
func (f *Frame) Pack() []byte {
	return f.AppendTo(make([]byte, 0, f.WireSize()))
}

// AppendTo appends the frame's wire format to buf and returns the extended
// slice. It allows the caller to reuse a scratch buffer across frames.
func (f *Frame) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.ID))

	if f.IsExtended() {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Data))) //nolint:gosec // data packets are well under 64 KiB
		buf = append(buf, f.Dest|extendedBit, f.Src)
		buf = append(buf, f.Data...)
	} else {
		buf = append(buf, f.Param1, f.Param2, f.Dest, f.Src)
	}

	return buf
}

// String returns a short human-readable description for logging.
func (f *Frame) String() string {
	if f.IsExtended() {
		return fmt.Sprintf("%s data=%d dest=0x%02X src=0x%02X", f.ID, len(f.Data), f.Dest, f.Src)
	}

	return fmt.Sprintf("%s p1=0x%02X p2=0x%02X dest=0x%02X src=0x%02X", f.ID, f.Param1, f.Param2, f.Dest, f.Src)
}
