package bus

import (
	"time"

	"github.com/golang/glog"

	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/strategy"
)

// sendSlot drives one packet's wire transaction: channel analysis,
// framed send, optional synchronous ACK wait, outcome classification.
// It must be called without holding b.mu, since it may block in the
// strategy for the duration of an entire frame plus response.
func (b *Bus) sendSlot(s *slot) Outcome {
	if b.mode != protocol.Simplex && !b.strategy.CanStart() {
		return Busy
	}

	frame, err := protocol.AssembleFrame(s.dest, s.header, s.content)
	if err != nil {
		glog.Errorf("bus: slot for dest %d produced an unframeable packet: %v", s.dest, err)
		return Fail
	}

	for _, by := range frame {
		b.strategy.SendByte(by)
	}

	if !b.acknowledge || s.dest == protocol.Broadcast || b.mode == protocol.Simplex {
		return Ack
	}

	switch resp := b.readResponse(); resp {
	case protocol.ACK:
		return Ack
	case protocol.NAK:
		b.collisionDelay()
		return Nak
	case strategy.NoByte:
		return Fail
	default:
		b.collisionDelay()
		return Fail
	}
}

// readResponse polls the strategy for the synchronous reply symbol,
// sleeping in short increments until one arrives or responseTimeout
// elapses. See readByte for why this wait lives in Bus rather than the
// strategy itself.
func (b *Bus) readResponse() int {
	deadline := b.clock.Micros() + uint32(b.responseTimeout.Microseconds())
	for {
		v := b.strategy.ReceiveResponse()
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

func (b *Bus) collisionDelay() {
	us := b.clock.Rand(protocol.CollisionMaxDelayUs)
	b.clock.Sleep(time.Duration(us) * time.Microsecond)
}
