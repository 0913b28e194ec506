// Package strategy defines the byte-channel abstraction the bus engine
// drives to move symbols across an arbitrary medium (an in-memory bus, a
// serial port, radio, or anything else).
package strategy

import "github.com/pjon-go/pjon/pkg/protocol"

// NoByte is returned by ReceiveByte/ReceiveResponse when nothing is
// available yet. It mirrors the reference implementation's FAIL sentinel,
// which falls outside the 0..255 range a real byte can take.
const NoByte = protocol.Fail

// Strategy is the medium-specific half of the bus: it knows how to detect
// channel availability and move single bytes, but nothing about framing,
// addressing or retries.
type Strategy interface {
	// CanStart reports whether the medium looks free to begin a new
	// transmission (e.g. no carrier detected). Strategies that cannot
	// sense collisions should always return true.
	CanStart() bool

	// SendByte writes one byte to the medium. It does not block for an
	// acknowledgement.
	SendByte(b byte)

	// ReceiveByte returns the next available byte in 0..255, or NoByte if
	// none is available right now.
	ReceiveByte() int

	// SendResponse writes a single synchronous reply symbol (ACK or NAK)
	// immediately after a frame has been read.
	SendResponse(sym int)

	// ReceiveResponse blocks briefly for the synchronous reply to a sent
	// frame and returns it, or NoByte on timeout.
	ReceiveResponse() int
}
