package apt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dcStatusData builds the 14-byte DC status data packet used by status
// update and move completion messages.
func dcStatusData(channel uint16, position int32, velocity uint16, bits StatusBits) []byte {
	data := make([]byte, 0, dcStatusDataLen)
	data = binary.LittleEndian.AppendUint16(data, channel)
	data = binary.LittleEndian.AppendUint32(data, uint32(position))
	data = binary.LittleEndian.AppendUint16(data, velocity)
	data = binary.LittleEndian.AppendUint16(data, 0) // reserved
	data = binary.LittleEndian.AppendUint32(data, uint32(bits))

	return data
}

// deviceFrame packs a device-to-host frame.
func deviceFrame(id MsgID, p1, p2 byte, data []byte) []byte {
	f := &Frame{ID: id, Param1: p1, Param2: p2, Dest: HostAddr, Src: DeviceAddr, Data: data}
	return f.Pack()
}

// --- Basic decoding tests ---

func TestDecoder_ShortFrame(t *testing.T) {
	d := NewDecoder()

	_, err := d.Write(deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil))
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)

	homed, ok := msg.(*Homed)
	require.True(t, ok)
	assert.Equal(t, byte(1), homed.Channel)
	assert.Equal(t, MsgMotMoveHomed, homed.MsgID())

	_, ok = d.Next()
	assert.False(t, ok, "buffer should be drained")
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_ExtendedFrame(t *testing.T) {
	d := NewDecoder()

	data := make([]byte, 0, chanValueDataLen)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint32(data, 1000)

	_, err := d.Write(deviceFrame(MsgMotGetPosCounter, 0, 0, data))
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)

	pos, ok := msg.(*PosCounter)
	require.True(t, ok)
	assert.Equal(t, uint16(1), pos.Channel)
	assert.Equal(t, int32(1000), pos.Position)
}

func TestDecoder_NegativePosition(t *testing.T) {
	d := NewDecoder()

	data := make([]byte, 0, chanValueDataLen)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint32(data, uint32(0xFFFFFF9C)) // -100

	_, _ = d.Write(deviceFrame(MsgMotGetPosCounter, 0, 0, data))

	msg, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, int32(-100), msg.(*PosCounter).Position)
}

func TestDecoder_PartialFeeds(t *testing.T) {
	d := NewDecoder()

	wire := deviceFrame(MsgMotMoveCompleted, 0, 0, dcStatusData(1, 200100, 0, StatusHomed|StatusSettled))
	require.Len(t, wire, 20)

	// Feed one byte at a time; no message may surface before the final byte.
	for i, b := range wire {
		_, ok := d.Next()
		require.False(t, ok, "no message expected before byte %d", i)

		_, err := d.Write([]byte{b})
		require.NoError(t, err)
	}

	msg, ok := d.Next()
	require.True(t, ok)

	done, ok := msg.(*MoveCompleted)
	require.True(t, ok)
	assert.Equal(t, int32(200100), done.Status.Position)
	assert.True(t, done.Status.Bits.IsHomed())
	assert.True(t, done.Status.Bits.IsSettled())
}

func TestDecoder_MultipleFramesPerChunk(t *testing.T) {
	d := NewDecoder()

	var stream []byte
	for i := int32(1); i <= 3; i++ {
		stream = append(stream, deviceFrame(MsgMotGetDCStatusUpdate, 0, 0, dcStatusData(1, i*1000, 0, StatusHomed))...)
	}

	_, err := d.Write(stream)
	require.NoError(t, err)

	for i := int32(1); i <= 3; i++ {
		msg, ok := d.Next()
		require.True(t, ok, "frame %d", i)

		update, ok := msg.(*DCStatusUpdate)
		require.True(t, ok)
		assert.Equal(t, i*1000, update.Status.Position)
	}

	_, ok := d.Next()
	assert.False(t, ok)
}

// --- Resynchronization tests ---

func TestDecoder_GarbageBetweenFrames(t *testing.T) {
	d := NewDecoder()

	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFE, 0xED}

	var stream []byte
	stream = append(stream, deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil)...)
	stream = append(stream, garbage...)
	stream = append(stream, deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil)...)

	_, err := d.Write(stream)
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)
	assert.IsType(t, &Homed{}, msg)

	msg, ok = d.Next()
	require.True(t, ok)
	malformed, ok := msg.(*MalformedFrame)
	require.True(t, ok, "garbage span should surface as MalformedFrame")
	assert.Equal(t, len(garbage), malformed.Discarded)
	assert.NotEmpty(t, malformed.Reason)

	msg, ok = d.Next()
	require.True(t, ok)
	assert.IsType(t, &Homed{}, msg)

	_, ok = d.Next()
	assert.False(t, ok)
}

func TestDecoder_GarbageOnly(t *testing.T) {
	d := NewDecoder()

	// 100 bytes with no decodable header anywhere.
	_, err := d.Write(bytes.Repeat([]byte{0xAA}, 100))
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)

	malformed, ok := msg.(*MalformedFrame)
	require.True(t, ok)
	assert.Equal(t, 95, malformed.Discarded, "all but a potential header prefix is discarded")

	// The trailing bytes stay buffered as a potential header prefix.
	_, ok = d.Next()
	assert.False(t, ok)
	assert.Equal(t, 5, d.Buffered())

	// A valid frame after the garbage flushes the remainder and decodes.
	_, err = d.Write(deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil))
	require.NoError(t, err)

	msg, ok = d.Next()
	require.True(t, ok)
	malformed, ok = msg.(*MalformedFrame)
	require.True(t, ok)
	assert.Equal(t, 5, malformed.Discarded)

	msg, ok = d.Next()
	require.True(t, ok)
	assert.IsType(t, &Homed{}, msg)
}

func TestDecoder_LengthFieldMismatch(t *testing.T) {
	d := NewDecoder()

	// A MOT_GET_POSCOUNTER header claiming 255 data bytes: the fixed
	// layout says 6, so the header must be rejected, not trusted.
	bad := []byte{0x12, 0x04, 0xFF, 0x00, 0x81, 0x50}

	var stream []byte
	stream = append(stream, bad...)
	stream = append(stream, deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil)...)

	_, err := d.Write(stream)
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)
	malformed, ok := msg.(*MalformedFrame)
	require.True(t, ok)
	assert.Equal(t, "data length mismatch", malformed.Reason)

	msg, ok = d.Next()
	require.True(t, ok)
	assert.IsType(t, &Homed{}, msg)
}

func TestDecoder_ExtendedBitMismatch(t *testing.T) {
	d := NewDecoder()

	// MOT_MOVE_HOMED is header-only; the extended bit makes it invalid.
	bad := []byte{0x44, 0x04, 0x06, 0x00, 0x81, 0x50}

	var stream []byte
	stream = append(stream, bad...)
	stream = append(stream, deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil)...)

	_, err := d.Write(stream)
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)
	malformed, ok := msg.(*MalformedFrame)
	require.True(t, ok)
	assert.Equal(t, "unexpected data packet", malformed.Reason)

	msg, ok = d.Next()
	require.True(t, ok)
	assert.IsType(t, &Homed{}, msg)
}

func TestDecoder_StatusStreamWithInterleavedGarbage(t *testing.T) {
	d := NewDecoder()

	const frameCount = 10

	var stream []byte
	for i := int32(0); i < frameCount; i++ {
		stream = append(stream, deviceFrame(MsgMotGetDCStatusUpdate, 0, 0, dcStatusData(1, i*100, 2, StatusHomed|StatusMovingFwd))...)
		stream = append(stream, 0xAA, 0xBB, 0xCC) // line noise between frames
	}
	stream = append(stream, deviceFrame(MsgMotMoveHomed, 0x01, 0x00, nil)...)

	_, err := d.Write(stream)
	require.NoError(t, err)

	var updates, malformed int
	for {
		msg, ok := d.Next()
		if !ok {
			break
		}

		switch m := msg.(type) {
		case *DCStatusUpdate:
			assert.Equal(t, int32(updates*100), m.Status.Position, "updates must arrive in stream order")
			updates++
		case *MalformedFrame:
			assert.Equal(t, 3, m.Discarded)
			malformed++
		case *Homed:
			// trailing frame
		default:
			t.Fatalf("unexpected message type %T", msg)
		}
	}

	assert.Equal(t, frameCount, updates, "every valid frame must decode")
	assert.Equal(t, frameCount, malformed, "every garbage span must be reported")
}

func TestDecoder_NextFrame_SkipsGarbage(t *testing.T) {
	d := NewDecoder()

	var stream []byte
	stream = append(stream, 0xAA, 0xBB)
	stream = append(stream, NewMoveAbsolute(DeviceAddr, 1, 4000).Pack()...)

	_, err := d.Write(stream)
	require.NoError(t, err)

	frame, ok := d.NextFrame()
	require.True(t, ok)
	assert.Equal(t, MsgMotMoveAbsolute, frame.ID)
	assert.Equal(t, DeviceAddr, frame.Dest, "extended bit must be stripped from dest")
	require.Len(t, frame.Data, chanValueDataLen)
	assert.Equal(t, int32(4000), int32(binary.LittleEndian.Uint32(frame.Data[2:6])))

	_, ok = d.NextFrame()
	assert.False(t, ok)
}

func TestDecoder_DataAliasing(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write(deviceFrame(MsgMotGetDCStatusUpdate, 0, 0, dcStatusData(1, 777, 0, StatusHomed)))

	msg, ok := d.Next()
	require.True(t, ok)
	first := msg.(*DCStatusUpdate)

	// A subsequent write reuses the decode buffer; the previously decoded
	// message must not change.
	_, _ = d.Write(deviceFrame(MsgMotGetDCStatusUpdate, 0, 0, dcStatusData(1, 999, 0, StatusHomed)))
	msg, ok = d.Next()
	require.True(t, ok)
	second := msg.(*DCStatusUpdate)

	assert.Equal(t, int32(777), first.Status.Position)
	assert.Equal(t, int32(999), second.Status.Position)
}
