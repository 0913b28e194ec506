package bus

import (
	"time"

	"github.com/golang/glog"

	"github.com/pjon-go/pjon/pkg/protocol"
)

// tickInterval bounds how often AcquireID re-drives the scheduler while
// waiting on a candidate ping, so the scan loop does not spin the CPU
// while its cubic backoff is pending.
const tickInterval = time.Millisecond

// AcquireID probes candidate device ids 1..254 in turn: for each, it
// enqueues a single-byte ACQUIRE_ID ping and drives Tick until the slot
// leaves its pending state or the scan window elapses. A ping that
// exhausts MAX_ATTEMPTS (no device replied) signals the id is free and
// Tick's outcome handling claims it; a ping that gets ACK'd proves the
// id is in use and the search continues.
func (b *Bus) AcquireID() error {
	start := b.clock.Micros()

	for candidate := 1; candidate <= 254; candidate++ {
		if b.clock.Micros()-start >= protocol.MaxIDScanTimeUs {
			break
		}

		b.mu.Lock()
		idx, err := b.enqueue(protocol.DeviceID(candidate), b.busID, []byte{protocol.AcquireID}, 0, b.defaultHeader())
		b.mu.Unlock()
		if err != nil {
			glog.V(1).Infof("bus: acquire_id could not probe %d: %v", candidate, err)
			continue
		}

		for {
			b.Tick()

			b.mu.Lock()
			pending := b.slots[idx].busy()
			b.mu.Unlock()
			if !pending {
				break
			}
			if b.clock.Micros()-start >= protocol.MaxIDScanTimeUs {
				b.mu.Lock()
				b.remove(idx)
				b.mu.Unlock()
				break
			}
			b.clock.Sleep(tickInterval)
		}

		if b.DeviceID() == protocol.DeviceID(candidate) {
			glog.V(1).Infof("bus: acquired device id %d", candidate)
			return nil
		}
	}

	b.notifyError(protocol.IDAcquisitionFail, protocol.Fail)
	return ErrIDAcquisitionFailed
}
