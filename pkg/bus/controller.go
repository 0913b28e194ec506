package bus

import (
	"github.com/pjon-go/pjon/pkg/protocol"
)

// Send enqueues a one-shot unicast or broadcast packet to dst on the
// configured bus, with header flags chosen from the controller's current
// configuration. It returns the assigned slot index, or an error if the
// payload is too long or the queue is full.
func (b *Bus) Send(dst protocol.DeviceID, payload []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueue(dst, b.busID, payload, 0, b.defaultHeader())
}

// SendRepeatedly enqueues a packet that re-arms itself every timing
// interval after each successful delivery, until Remove is called on its
// slot index.
func (b *Bus) SendRepeatedly(dst protocol.DeviceID, payload []byte, timingMicros uint32) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueue(dst, b.busID, payload, timingMicros, b.defaultHeader())
}

// Remove cancels a pending slot. It is a no-op if the slot is already
// free or out of range.
func (b *Bus) Remove(slotIndex int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slotIndex < 0 || slotIndex >= len(b.slots) {
		return
	}
	b.remove(slotIndex)
}

// LastInfo returns the metadata of the most recently accepted inbound
// frame, and whether any frame has been accepted yet.
func (b *Bus) LastInfo() (protocol.Info, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastInfo, b.hasLast
}

// Reply enqueues payload addressed back to the sender of the last
// accepted inbound frame, using its stored sender id (and sender bus-id,
// when the frame carried one). It is a no-op returning ErrReplyToBroadcast
// if no frame has been accepted yet, or the last sender was broadcast.
func (b *Bus) Reply(payload []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasLast || b.lastInfo.SenderID == protocol.Broadcast {
		return -1, ErrReplyToBroadcast
	}
	destBusID := b.busID
	if b.lastInfo.Header.HasMode() {
		destBusID = b.lastInfo.SenderBusID
	}
	return b.enqueue(b.lastInfo.SenderID, destBusID, payload, 0, b.defaultHeader())
}
