package apt

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hwInfoData builds an 84-byte HW_GET_INFO data packet.
func hwInfoData(serial uint32, model string, devType uint16, firmware uint32, notes string, hwVer, modState, channels uint16) []byte {
	data := make([]byte, hwInfoDataLen)

	binary.LittleEndian.PutUint32(data[hwInfoSerialOff:], serial)
	copy(data[hwInfoModelOff:hwInfoModelOff+hwInfoModelLen], model)
	binary.LittleEndian.PutUint16(data[hwInfoTypeOff:], devType)
	binary.LittleEndian.PutUint32(data[hwInfoFirmwareOff:], firmware)
	copy(data[hwInfoNotesOff:hwInfoNotesOff+hwInfoNotesLen], notes)
	binary.LittleEndian.PutUint16(data[hwInfoHWVerOff:], hwVer)
	binary.LittleEndian.PutUint16(data[hwInfoModStateOff:], modState)
	binary.LittleEndian.PutUint16(data[hwInfoChannelsOff:], channels)

	return data
}

func TestDecode_HWInfo(t *testing.T) {
	d := NewDecoder()

	data := hwInfoData(28250887, "KBD101", 16, 131080, "APT DC Motor Controller", 1, 2, 1)
	_, err := d.Write(deviceFrame(MsgHWGetInfo, 0, 0, data))
	require.NoError(t, err)

	msg, ok := d.Next()
	require.True(t, ok)

	info, ok := msg.(*HWInfo)
	require.True(t, ok)
	assert.Equal(t, uint32(28250887), info.SerialNumber)
	assert.Equal(t, "KBD101", info.Model, "model must be trimmed at the first NUL")
	assert.Equal(t, uint16(16), info.Type)
	assert.Equal(t, uint32(131080), info.FirmwareVersion)
	assert.Equal(t, "APT DC Motor Controller", info.Notes)
	assert.Equal(t, uint16(1), info.HardwareVersion)
	assert.Equal(t, uint16(2), info.ModState)
	assert.Equal(t, uint16(1), info.NumChannels)
}

func TestDecode_ChanEnableState(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write(deviceFrame(MsgModGetChanEnableState, 0x01, 0x01, nil))
	_, _ = d.Write(deviceFrame(MsgModGetChanEnableState, 0x01, 0x02, nil))

	msg, ok := d.Next()
	require.True(t, ok)
	state := msg.(*ChanEnableState)
	assert.Equal(t, byte(1), state.Channel)
	assert.True(t, state.Enabled)

	msg, ok = d.Next()
	require.True(t, ok)
	state = msg.(*ChanEnableState)
	assert.False(t, state.Enabled)
}

func TestDecode_VelParams(t *testing.T) {
	d := NewDecoder()

	data := make([]byte, 0, velParamsDataLen)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint32(data, 0)
	data = binary.LittleEndian.AppendUint32(data, 1374)
	data = binary.LittleEndian.AppendUint32(data, 134218)

	_, _ = d.Write(deviceFrame(MsgMotGetVelParams, 0, 0, data))

	msg, ok := d.Next()
	require.True(t, ok)

	params, ok := msg.(*VelParams)
	require.True(t, ok)
	assert.Equal(t, uint16(1), params.Channel)
	assert.Equal(t, int32(0), params.MinVelocity)
	assert.Equal(t, int32(1374), params.Acceleration)
	assert.Equal(t, int32(134218), params.MaxVelocity)
}

func TestDecode_MoveStopped(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write(deviceFrame(MsgMotMoveStopped, 0, 0, dcStatusData(1, 5000, 0, StatusHomed|StatusEnabled)))

	msg, ok := d.Next()
	require.True(t, ok)

	stopped, ok := msg.(*MoveStopped)
	require.True(t, ok)
	assert.Equal(t, int32(5000), stopped.Status.Position)
	assert.False(t, stopped.Status.Bits.IsMoving())
}

func TestDecode_HWResponse(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write(deviceFrame(MsgHWResponse, 0x29, 0x00, nil))

	msg, ok := d.Next()
	require.True(t, ok)

	fault, ok := msg.(*HWResponse)
	require.True(t, ok)
	assert.Equal(t, uint16(0x29), fault.Code)
}

func TestDecode_HWRichResponse(t *testing.T) {
	d := NewDecoder()

	data := make([]byte, richResponseDataLen)
	binary.LittleEndian.PutUint16(data[0:2], uint16(MsgMotMoveAbsolute))
	binary.LittleEndian.PutUint16(data[2:4], 0x0002)
	copy(data[4:], "motor current limit exceeded")

	_, _ = d.Write(deviceFrame(MsgHWRichResponse, 0, 0, data))

	msg, ok := d.Next()
	require.True(t, ok)

	fault, ok := msg.(*HWRichResponse)
	require.True(t, ok)
	assert.Equal(t, uint16(MsgMotMoveAbsolute), fault.MsgIdent)
	assert.Equal(t, uint16(2), fault.Code)
	assert.Equal(t, "motor current limit exceeded", fault.Notes)
}

func TestDecode_Disconnect(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write(deviceFrame(MsgHWDisconnect, 0, 0, nil))

	msg, ok := d.Next()
	require.True(t, ok)
	assert.IsType(t, &Disconnect{}, msg)
}

func TestDecode_RawFrame(t *testing.T) {
	// A device-side decoder sees host commands; they surface as RawFrame.
	d := NewDecoder()

	_, _ = d.Write(NewMoveHome(DeviceAddr, 1).Pack())

	msg, ok := d.Next()
	require.True(t, ok)

	raw, ok := msg.(*RawFrame)
	require.True(t, ok)
	assert.Equal(t, MsgMotMoveHome, raw.MsgID())
	assert.Equal(t, byte(1), raw.Frame.Param1)
}

func TestMalformedFrame_Error(t *testing.T) {
	m := &MalformedFrame{Discarded: 7, Reason: "unknown message ID"}
	assert.Equal(t, "apt: discarded 7 bytes: unknown message ID", m.Error())
	assert.Equal(t, MsgID(0), m.MsgID())
}
