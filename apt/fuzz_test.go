package apt

import (
	"encoding/binary"
	"testing"
)

// FuzzDecoderWrite fuzzes the incremental decoder with arbitrary byte
// streams.
//
// The protocol has no checksum, so resynchronization rests entirely on
// header validation against the message table. The invariants are:
// draining Next never panics and always terminates, and every written
// byte is accounted for as a decoded frame, a reported discard, or a
// byte still buffered.
func FuzzDecoderWrite(f *testing.F) {
	// Seed: valid short frame (MOVE_HOMED).
	f.Add([]byte{0x44, 0x04, 0x01, 0x00, 0x50, 0x01})

	// Seed: valid extended frame (GET_POSCOUNTER, 6-byte data).
	pos := []byte{0x12, 0x04, 0x06, 0x00, 0xD0, 0x01}
	pos = append(pos, 0x01, 0x00, 0x64, 0x00, 0x00, 0x00)
	f.Add(pos)

	// Seed: garbage prefix followed by a valid status update.
	status := make([]byte, 0, 27)
	status = append(status, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01, 0x02)
	status = append(status, 0x91, 0x04, 0x0E, 0x00, 0xD0, 0x01)
	body := make([]byte, 14)
	binary.LittleEndian.PutUint16(body[0:2], 1)
	binary.LittleEndian.PutUint32(body[10:14], uint32(StatusHomed|StatusSettled|StatusEnabled))
	status = append(status, body...)
	f.Add(status)

	// Seed: known ID with the extended bit but a wrong declared length.
	f.Add([]byte{0x91, 0x04, 0x05, 0x00, 0xD0, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00})

	// Seed: known short-frame ID with the extended bit set.
	f.Add([]byte{0x44, 0x04, 0x00, 0x00, 0xD0, 0x01})

	// Seed: known extended-frame ID without the extended bit.
	f.Add([]byte{0x91, 0x04, 0x00, 0x00, 0x50, 0x01})

	// Seed: truncated header.
	f.Add([]byte{0x44, 0x04, 0x01})

	// Seed: empty input.
	f.Add([]byte{})

	// Seed: all-0xFF run, no valid header anywhere.
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, input []byte) {
		dec := NewDecoder()

		// Feed in two chunks to exercise partial-frame retention.
		half := len(input) / 2
		_, _ = dec.Write(input[:half])

		accounted := 0
		for {
			msg, ok := dec.Next()
			if !ok {
				break
			}
			accounted += consumedBytes(t, msg)
		}

		_, _ = dec.Write(input[half:])
		for {
			msg, ok := dec.Next()
			if !ok {
				break
			}
			accounted += consumedBytes(t, msg)
		}

		if got := accounted + dec.Buffered(); got != len(input) {
			t.Fatalf("byte accounting mismatch: %d consumed + %d buffered != %d written",
				accounted, dec.Buffered(), len(input))
		}
	})
}

func consumedBytes(t *testing.T, msg Message) int {
	t.Helper()

	if m, ok := msg.(*MalformedFrame); ok {
		if m.Discarded <= 0 {
			t.Fatalf("malformed report with non-positive discard count %d", m.Discarded)
		}

		return m.Discarded
	}

	id := msg.MsgID()
	dataLen, known := DataLen(id)
	if !known {
		t.Fatalf("decoded message with ID 0x%04X outside the message table", uint16(id))
	}

	return HeaderSize + dataLen
}
