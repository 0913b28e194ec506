package bus

import (
	"github.com/pjon-go/pjon/pkg/protocol"
)

// defaultHeader chooses the header flags an enqueue omits to specify:
// MODE iff shared, SENDER_INFO iff configured, ACK_REQUEST iff
// acknowledge is enabled.
func (b *Bus) defaultHeader() protocol.HeaderFlags {
	var h protocol.HeaderFlags
	if b.shared {
		h |= protocol.HeaderFlags(protocol.ModeBit)
	}
	if b.includeSenderInfo {
		h |= protocol.HeaderFlags(protocol.SenderInfoBit)
	}
	if b.acknowledge {
		h |= protocol.HeaderFlags(protocol.AckRequestBit)
	}
	return h
}

// enqueue admits a new outbound packet. destBusID is only meaningful
// (and only written to the wire) when header carries MODE; pass
// protocol.Localhost otherwise. Callers must hold b.mu.
func (b *Bus) enqueue(dst protocol.DeviceID, destBusID protocol.BusID, payload []byte, timing uint32, header protocol.HeaderFlags) (int, error) {
	content := protocol.BuildContent(header, destBusID, b.busID, b.deviceID, payload)
	if protocol.FrameSize(content) >= protocol.PacketMaxLength {
		b.notifyError(protocol.ContentTooLong, len(payload))
		return -1, ErrContentTooLong
	}

	idx := -1
	for i := range b.slots {
		if !b.slots[i].busy() {
			idx = i
			break
		}
	}
	if idx == -1 {
		b.notifyError(protocol.PacketsBufferFull, len(b.slots))
		return -1, ErrPacketsBufferFull
	}

	b.slots[idx] = slot{
		state:        stateToBeSent,
		dest:         dst,
		destBusID:    destBusID,
		header:       header,
		content:      content,
		registration: b.clock.Micros(),
		attempts:     0,
		timing:       timing,
	}
	return idx, nil
}

// SlotStats reports one occupied outbound slot's scheduling state, for
// monitoring/CLI consumption only; it does not affect scheduling.
type SlotStats struct {
	Index    int
	Dest     protocol.DeviceID
	Attempts int
	DueInUs  int64 // time until next attempt is due, negative if already due
}

// QueueStats summarizes the outbound queue's current occupancy.
type QueueStats struct {
	Capacity int
	Occupied int
	Slots    []SlotStats
}

// Stats reports the current occupancy of the outbound queue and each
// occupied slot's attempt count and due-time, for monitoring/CLI
// consumption; it never mutates scheduling state.
func (b *Bus) Stats() QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Micros()
	stats := QueueStats{Capacity: len(b.slots)}
	for i := range b.slots {
		s := &b.slots[i]
		if !s.busy() {
			continue
		}
		stats.Occupied++
		due := int64(s.registration+s.timing+cube(s.attempts)) - int64(now)
		stats.Slots = append(stats.Slots, SlotStats{
			Index:    i,
			Dest:     s.dest,
			Attempts: s.attempts,
			DueInUs:  due,
		})
	}
	return stats
}

// remove frees a slot's buffer and resets it. Callers must hold b.mu.
func (b *Bus) remove(i int) {
	b.slots[i] = slot{}
}

// cube computes attempts³ without overflowing uint32 for the attempt
// counts this queue ever reaches (attempts ≤ MAX_ATTEMPTS = 125).
func cube(attempts int) uint32 {
	a := uint32(attempts)
	return a * a * a
}

// Tick advances the scheduler by one pass: every non-free slot whose
// due-time has arrived attempts one transmission via the transmit
// engine, and its outcome is handled per SPEC_FULL.md §4.2. Slots are
// visited in fixed index order; a due slot transmits before the next
// slot is examined.
func (b *Bus) Tick() {
	b.mu.Lock()
	now := b.clock.Micros()
	for i := range b.slots {
		if !b.slots[i].busy() {
			continue
		}
		s := b.slots[i]
		elapsed := now - s.registration
		threshold := s.timing + cube(s.attempts)
		if elapsed <= threshold {
			continue
		}

		b.mu.Unlock()
		outcome := b.sendSlot(&s)
		b.mu.Lock()
		b.handleOutcome(i, outcome)
	}
	b.mu.Unlock()
}

func (b *Bus) handleOutcome(i int, outcome Outcome) {
	if !b.slots[i].busy() {
		return
	}
	s := &b.slots[i]
	b.observe(Event{Kind: EventFrameSent, Dest: s.dest, Outcome: outcome, Length: len(s.content)})

	switch outcome {
	case Ack:
		if s.timing == 0 && b.autoDelete {
			b.remove(i)
			return
		}
		s.attempts = 0
		s.registration = b.clock.Micros()
		s.state = stateToBeSent

	case Fail:
		s.attempts++
		if s.attempts > protocol.MaxAttempts {
			if isAcquireIDPing(s) {
				b.adoptDeviceID(s.dest)
				b.remove(i)
				return
			}
			b.notifyError(protocol.ConnectionLost, int(s.dest))
			if s.timing == 0 && b.autoDelete {
				b.remove(i)
				return
			}
			s.attempts = 0
		}

	case Busy, Nak:
		// Left untouched: the next due-time check gates the retry.
	}
}

func isAcquireIDPing(s *slot) bool {
	payload := s.content[protocol.HeaderOverhead(s.header):]
	return len(payload) == 1 && payload[0] == protocol.AcquireID
}

func (b *Bus) adoptDeviceID(id protocol.DeviceID) {
	b.deviceID = id
	if b.identity != nil {
		if err := b.identity.SaveDeviceID(b.busID, id); err != nil {
			b.notifyError(protocol.MemoryFull, 0)
		}
	}
}
