package apt

import (
	"encoding/binary"

	"github.com/arloliu/go-apt/internal/util"
)

// Decoder is an incremental APT frame decoder.
//
// Feed raw bytes with Write in whatever chunks the transport produces,
// then drain complete messages with Next. Partial frames are retained
// across writes.
//
// The protocol has no checksum or frame delimiter, so the decoder
// validates each candidate header against the known message table: the
// message ID must be known and the header form (short or extended, and
// the declared data length) must match that message's fixed layout. When
// validation fails the decoder discards one byte and rescans, emitting a
// single MalformedFrame describing the discarded run once it finds the
// next valid header. Decoding never fails; arbitrary garbage input only
// produces MalformedFrame messages.
//
// A Decoder is not safe for concurrent use. The connection's read loop is
// its only intended caller.
type Decoder struct {
	buf []byte
	off int // consumed prefix of buf

	// Discard run accumulated during resynchronization.
	discarded int
	reason    string
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends p to the decode buffer. It implements io.Writer and never
// returns an error.
func (d *Decoder) Write(p []byte) (int, error) {
	// Reclaim the consumed prefix before growing the buffer.
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}

	d.buf = append(d.buf, p...)

	return len(p), nil
}

// Buffered returns the number of unconsumed bytes held by the decoder.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next returns the next decoded message. It returns ok=false when the
// buffer holds no complete frame; feeding more bytes with Write may make
// further messages available.
func (d *Decoder) Next() (Message, bool) {
	frame, malformed, ok := d.scanFrame()
	if !ok {
		return nil, false
	}

	if malformed != nil {
		return malformed, true
	}

	return decodeMessage(frame), true
}

// NextFrame returns the next well-formed frame, silently skipping any
// garbage in between. It is the frame-level companion of Next for callers
// that do their own payload interpretation, such as device simulators.
func (d *Decoder) NextFrame() (*Frame, bool) {
	for {
		frame, malformed, ok := d.scanFrame()
		if !ok {
			return nil, false
		}

		if malformed != nil {
			continue
		}

		return frame, true
	}
}

// scanFrame advances through the buffer until it produces a frame, a
// malformed report, or runs out of decodable bytes.
//
// The cost of a fully garbage buffer is one header validation per byte;
// recovery is bounded and never recursive.
func (d *Decoder) scanFrame() (*Frame, *MalformedFrame, bool) {
	for {
		rem := d.buf[d.off:]

		if len(rem) < HeaderSize {
			// The remainder may be a partial header; report any finished
			// discard run and wait for more bytes.
			if m := d.takeMalformed(); m != nil {
				return nil, m, true
			}

			return nil, nil, false
		}

		id := MsgID(binary.LittleEndian.Uint16(rem[0:2]))
		dataLen, known := DataLen(id)
		if !known {
			d.reject("unknown message ID")
			continue
		}

		extended := rem[4]&extendedBit != 0
		switch {
		case extended && dataLen == 0:
			d.reject("unexpected data packet")
			continue

		case !extended && dataLen > 0:
			d.reject("missing data packet")
			continue

		case extended:
			if declared := int(binary.LittleEndian.Uint16(rem[2:4])); declared != dataLen {
				d.reject("data length mismatch")
				continue
			}
		}

		// Valid header. Deliver a pending discard report before the frame
		// so the caller observes events in stream order.
		if m := d.takeMalformed(); m != nil {
			return nil, m, true
		}

		total := HeaderSize + dataLen
		if len(rem) < total {
			return nil, nil, false // partial frame
		}

		frame := &Frame{ID: id, Dest: rem[4] &^ extendedBit, Src: rem[5]}
		if extended {
			// Copy out of the decode buffer; rem aliases it and the next
			// Write will reuse the space.
			frame.Data = util.CloneSlice(rem[HeaderSize:total], 0)
		} else {
			frame.Param1 = rem[2]
			frame.Param2 = rem[3]
		}

		d.off += total

		return frame, nil, true
	}
}

// reject discards a single byte at the scan position and records the
// reason of the first rejection in the run.
func (d *Decoder) reject(reason string) {
	if d.discarded == 0 {
		d.reason = reason
	}

	d.discarded++
	d.off++
}

// takeMalformed returns the accumulated discard run as a MalformedFrame,
// or nil when no bytes were discarded since the last report.
func (d *Decoder) takeMalformed() *MalformedFrame {
	if d.discarded == 0 {
		return nil
	}

	m := &MalformedFrame{Discarded: d.discarded, Reason: d.reason}
	d.discarded = 0
	d.reason = ""

	return m
}
