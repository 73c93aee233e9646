// Package apt implements the wire level of the Thorlabs APT motion-control
// protocol as spoken by K-Cube series controllers over a USB virtual serial
// port.
//
// APT is a binary, little-endian, request/response/event protocol. Every
// frame starts with a fixed 6-byte header:
//
//	[ID lo][ID hi][param1][param2][dest][source]
//
// Short frames carry their operands in the two param bytes. Extended frames
// set bit 7 of the destination byte and reuse the param bytes as a 16-bit
// data packet length; the data packet follows the header immediately. The
// protocol has no checksum and no frame delimiter, so a receiver that loses
// byte alignment must resynchronize by scanning for the next plausible
// header.
//
// # Package Contents
//
//   - [MsgID] constants for the message set of brushless DC stage
//     controllers (hardware info, channel enable, homing, absolute/relative
//     moves, stop, velocity parameters, status updates, fault responses).
//   - [Frame] with builder functions (e.g. [NewMoveAbsolute], [NewMoveHome])
//     that produce exact wire frames, and [Frame.Pack] for serialization.
//   - Typed decoded messages (e.g. [PosCounter], [MoveCompleted],
//     [DCStatusUpdate]) forming a closed [Message] set.
//   - [Decoder], an incremental frame decoder that consumes a byte stream
//     in chunks, tolerates partial reads, and recovers from garbage input
//     by emitting a [MalformedFrame] and scanning forward to the next valid
//     header.
//
// The package performs no I/O and starts no goroutines; it is the pure
// protocol layer underneath the kcube driver package.
package apt
