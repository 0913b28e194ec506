package protocol

import "errors"

// ErrContentTooLong is returned by Encode when the assembled frame would
// be PacketMaxLength bytes or longer.
var ErrContentTooLong = errors.New("protocol: content too long")

// HeaderOverhead returns the number of bytes that precede the payload and
// follow the 3-byte dst/length/header prefix: the optional receiver
// bus-id, and the optional sender bus-id/sender device-id.
func HeaderOverhead(h HeaderFlags) int {
	switch {
	case h.HasMode() && h.HasSenderInfo():
		return 4 + 4 + 1
	case h.HasMode():
		return 4
	case h.HasSenderInfo():
		return 1
	default:
		return 0
	}
}

// frameOverhead is the fixed dst+length+header prefix shared by every frame.
const frameOverhead = 3

// FrameSize returns the total on-wire size of a frame whose body (header
// prefix + payload) is content, the queue's enqueue-time admission check.
func FrameSize(content []byte) int {
	return frameOverhead + len(content) + 1
}

// Info holds the metadata parsed from the most recently accepted inbound
// frame (the reference implementation's PacketInfo / LastPacketInfo).
type Info struct {
	Header        HeaderFlags
	ReceiverID    DeviceID
	ReceiverBusID BusID
	SenderID      DeviceID
	SenderBusID   BusID
}

// BuildContent assembles the header-dependent prefix (receiver bus-id,
// and/or sender bus-id/sender id) followed by payload: the body a queue
// slot stores from enqueue time onward, ready for AssembleFrame to frame
// at transmit time.
func BuildContent(header HeaderFlags, receiverBusID, senderBusID BusID, senderID DeviceID, payload []byte) []byte {
	overhead := HeaderOverhead(header)
	content := make([]byte, overhead+len(payload))

	i := 0
	if header.HasMode() {
		copy(content[i:i+4], receiverBusID[:])
		i += 4
		if header.HasSenderInfo() {
			copy(content[i:i+4], senderBusID[:])
			i += 4
			content[i] = byte(senderID)
			i++
		}
	} else if header.HasSenderInfo() {
		content[i] = byte(senderID)
		i++
	}
	copy(content[i:], payload)
	return content
}

// AssembleFrame frames an already-prepared content buffer (as produced by
// BuildContent) behind dst/length/header and appends the trailing CRC.
// The wire length field is derived from the fully prepared frame, per the
// corrected invariant in SPEC_FULL.md §9.
func AssembleFrame(dst DeviceID, header HeaderFlags, content []byte) ([]byte, error) {
	total := frameOverhead + len(content) + 1 // +1 CRC
	if total >= PacketMaxLength {
		return nil, ErrContentTooLong
	}

	frame := make([]byte, total)
	frame[0] = byte(dst)
	frame[1] = byte(total)
	frame[2] = byte(header)
	copy(frame[frameOverhead:], content)

	var crc CRC8
	for _, b := range frame[:total-1] {
		crc.Update(b)
	}
	frame[total-1] = crc.Value()

	return frame, nil
}

// Encode assembles a complete, CRC-terminated frame addressed to dst.
// receiverBusID and senderBusID are only written to the wire when header
// requests MODE/SENDER_INFO respectively; senderID is only written when
// SENDER_INFO is requested.
func Encode(dst DeviceID, payload []byte, header HeaderFlags, receiverBusID, senderBusID BusID, senderID DeviceID) ([]byte, error) {
	content := BuildContent(header, receiverBusID, senderBusID, senderID, payload)
	return AssembleFrame(dst, header, content)
}

// PayloadOffset returns the index of the first payload byte within a
// frame carrying the given header, per the corrected invariant in
// SPEC_FULL.md §9 (derived from header flags, never from a hard-coded
// byte position).
func PayloadOffset(h HeaderFlags) int {
	return frameOverhead + HeaderOverhead(h)
}

// Decode parses a complete, already length-validated and CRC-verified
// frame buffer (as produced by the receive engine) into its payload and
// Info. It does not itself validate length bounds or CRC; callers that
// need incremental, early-exit validation should use the receive engine
// instead of this helper.
func Decode(frame []byte) (payload []byte, info Info) {
	info.ReceiverID = DeviceID(frame[0])
	info.Header = HeaderFlags(frame[2])

	i := frameOverhead
	if info.Header.HasMode() {
		copy(info.ReceiverBusID[:], frame[i:i+4])
		i += 4
		if info.Header.HasSenderInfo() {
			copy(info.SenderBusID[:], frame[i:i+4])
			i += 4
			info.SenderID = DeviceID(frame[i])
			i++
		}
	} else if info.Header.HasSenderInfo() {
		info.SenderID = DeviceID(frame[i])
		i++
	}

	totalLen := int(frame[1])
	payload = frame[i : totalLen-1]
	return payload, info
}
