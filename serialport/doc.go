// Package serialport provides the byte transport for APT motor
// controllers.
//
// # Ports
//
// [Open] opens a real OS serial port through go.bug.st/serial with the
// 8N1 framing K-Cube controllers use on their virtual COM port. The
// returned [Port] is the small surface the driver needs: Read, Write,
// Close, a per-call read timeout and an input buffer reset. Read
// returns (0, nil) when the timeout elapses with no data, so a polling
// reader can distinguish "nothing yet" from a transport failure.
//
// [List] enumerates candidate port names for discovery tooling.
//
// # Testing
//
// [Pipe] returns a connected in-memory pair with the same Read/Write
// and timeout contract as a real port. Driver code runs against one
// end while a scripted device implementation serves the other, keeping
// protocol tests free of hardware.
package serialport
