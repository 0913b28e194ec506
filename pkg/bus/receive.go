package bus

import (
	"bytes"
	"time"

	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/strategy"
)

// readByte polls the strategy for the next byte, sleeping in short
// increments until one arrives or perByteTimeout elapses. The reference
// library leaves this blocking wait inside the strategy itself; here the
// loopback/serial strategies are non-blocking, so the receive engine
// owns the wait instead.
func (b *Bus) readByte() int {
	deadline := b.clock.Micros() + uint32(b.perByteTimeout.Microseconds())
	for {
		v := b.strategy.ReceiveByte()
		if v != strategy.NoByte {
			return v
		}
		if b.clock.Micros() >= deadline {
			return strategy.NoByte
		}
		b.clock.Sleep(b.pollInterval)
		time.Sleep(time.Microsecond) // yield so a concurrent sender/receiver goroutine can make progress
	}
}

func (b *Bus) shouldRespond(header protocol.HeaderFlags, dst protocol.DeviceID) bool {
	return header.HasAckRequest() && dst != protocol.Broadcast && b.mode != protocol.Simplex
}

// Receive reads and dispatches at most one frame. It returns Fail if no
// frame is available within the byte timeout, Busy if the frame is
// filtered out by addressing/bus-id/mode, Nak if a frame's CRC fails to
// validate, and Ack once a valid frame has been dispatched to the
// installed Receiver.
func (b *Bus) Receive() Outcome {
	dstByte := b.readByte()
	if dstByte == strategy.NoByte {
		return Fail
	}
	dst := protocol.DeviceID(dstByte)

	b.mu.Lock()
	deviceID, router, shared, busID := b.deviceID, b.router, b.shared, b.busID
	b.mu.Unlock()

	if dst != deviceID && dst != protocol.Broadcast && !router {
		return Busy
	}

	var crc protocol.CRC8
	crc.Update(byte(dst))

	lengthByte := b.readByte()
	if lengthByte == strategy.NoByte {
		return Fail
	}
	length := lengthByte
	if length <= 4 || length >= protocol.PacketMaxLength {
		return Fail
	}
	crc.Update(byte(lengthByte))

	headerByte := b.readByte()
	if headerByte == strategy.NoByte {
		return Fail
	}
	header := protocol.HeaderFlags(headerByte)
	crc.Update(byte(headerByte))

	frameShared := header.HasMode()
	if frameShared != shared && !router {
		return Busy
	}

	data := make([]byte, length)
	data[0] = byte(dst)
	data[1] = byte(length)
	data[2] = byte(header)

	for i := 3; i < length; i++ {
		v := b.readByte()
		if v == strategy.NoByte {
			return Fail
		}
		data[i] = byte(v)
		crc.Update(byte(v))

		if i == 6 && frameShared && shared && !router {
			if !bytes.Equal(data[3:7], busID[:]) {
				return Busy
			}
		}
	}

	respond := b.shouldRespond(header, dst)
	if crc.Value() != 0 {
		if respond {
			b.strategy.SendResponse(protocol.NAK)
		}
		b.observe(Event{Kind: EventFrameReceived, Dest: dst, Outcome: Nak, Length: length})
		return Nak
	}

	payload, info := protocol.Decode(data)

	b.mu.Lock()
	b.lastInfo = info
	b.hasLast = true
	receiver := b.receiver
	b.mu.Unlock()

	if respond {
		b.strategy.SendResponse(protocol.ACK)
	}
	b.observe(Event{Kind: EventFrameReceived, Dest: dst, Outcome: Ack, Length: length})
	if receiver != nil {
		receiver(payload, info)
	}
	return Ack
}

// ReceiveFor polls Receive repeatedly until it succeeds or duration
// elapses, returning the last observed outcome.
func (b *Bus) ReceiveFor(d time.Duration) Outcome {
	deadline := time.Now().Add(d)
	last := Fail
	for time.Now().Before(deadline) {
		last = b.Receive()
		if last == Ack {
			return Ack
		}
	}
	return last
}
