// Package protocol implements the PJON-style frame format: addressing,
// header flags, length, payload and CRC-8, independent of any particular
// transmission medium.
package protocol

// Reserved device addresses.
const (
	// Broadcast is delivered to every device listening on the bus.
	Broadcast DeviceID = 0
	// NotAssigned marks a device that has not yet acquired an address.
	NotAssigned DeviceID = 255
)

// Communication modes.
const (
	Simplex    byte = 150
	HalfDuplex byte = 151
)

// Wire/control symbols, bit-exact with the reference implementation.
const (
	ACK       = 6
	NAK       = 21
	AcquireID = 63
	Busy      = 666
	// Fail is returned by a Strategy when a byte-level operation timed
	// out or produced noise. It intentionally falls outside the 0..255
	// range a real byte can take.
	Fail = 0x100
)

// ToBeSent is the initial/pending state of a queue slot, chosen to match
// the reference implementation's sentinel value rather than 0 (which
// means FREE).
const ToBeSent = 74

// Header flag bits. The upper 4 bits are reserved, must be zero on
// transmit and are ignored on receive.
const (
	ModeBit        byte = 1 << 0
	SenderInfoBit  byte = 1 << 1
	AckRequestBit  byte = 1 << 2
)

// HeaderFlags is the 8-bit frame header bitfield.
type HeaderFlags byte

// HasMode reports whether the frame carries bus-id fields.
func (h HeaderFlags) HasMode() bool { return h&HeaderFlags(ModeBit) != 0 }

// HasSenderInfo reports whether the frame carries sender address info.
func (h HeaderFlags) HasSenderInfo() bool { return h&HeaderFlags(SenderInfoBit) != 0 }

// HasAckRequest reports whether the receiver must emit a synchronous ACK/NAK.
func (h HeaderFlags) HasAckRequest() bool { return h&HeaderFlags(AckRequestBit) != 0 }

// Compile-time limits. These are package constants; the outbound queue
// capacity can be changed per Bus with bus.WithMaxPackets, the frame size
// limit cannot.
const (
	// MaxPackets is the default outbound queue capacity.
	MaxPackets = 10
	// PacketMaxLength bounds the total frame size, header and CRC
	// included: a frame must be shorter than PacketMaxLength bytes.
	PacketMaxLength = 50
)

// Timing constants, bit-exact with the reference implementation.
const (
	MaxAttempts        = 125
	InitialMaxDelayMs   = 1000
	CollisionMaxDelayUs = 16
	MaxIDScanTimeUs     = 5000000
)

// DeviceID is an 8-bit bus address. 0 is Broadcast, 255 is NotAssigned,
// 1..254 are valid unicast addresses.
type DeviceID byte

// IsUnicast reports whether id is a valid, assignable unicast address.
func (id DeviceID) IsUnicast() bool {
	return id != Broadcast && id != NotAssigned
}

// BusID is a 4-byte opaque bus identifier. The all-zero value is the
// "localhost" sentinel denoting an isolated/local bus.
type BusID [4]byte

// Localhost is the sentinel BusID for an isolated/local bus.
var Localhost = BusID{0, 0, 0, 0}

// IsLocalhost reports whether b is the localhost sentinel.
func (b BusID) IsLocalhost() bool { return b == Localhost }

// Equal reports byte-wise equality, matching bus_id_equality in the
// reference implementation.
func (b BusID) Equal(o BusID) bool { return b == o }
