package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/strategy/loopback"
)

// fakeClock is a monotonically increasing, time.Sleep-free Clock for
// deterministic tests: every call to Micros or Sleep advances the
// counter instead of touching the wall clock.
type fakeClock struct {
	mu sync.Mutex
	t  uint32
}

func (f *fakeClock) Micros() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t++
	return f.t
}

func (f *fakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t += uint32(d.Microseconds()) + 1
}

func (f *fakeClock) Rand(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return n / 2
}

func newTestBus(ep *loopback.Endpoint, deviceID protocol.DeviceID, busID protocol.BusID) *Bus {
	b := New(ep, &fakeClock{}, busID)
	b.SetDeviceID(deviceID)
	return b
}

// runReceiver drives Receive in a loop until stop is closed, feeding
// every accepted frame to b's installed Receiver.
func runReceiver(b *Bus, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			b.Receive()
		}
	}
}

func TestSendUnicastAckAutoDeletes(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	a := newTestBus(wire.Open(), 1, protocol.Localhost)
	b := newTestBus(wire.Open(), 2, protocol.Localhost)

	var mu sync.Mutex
	var received []byte
	b.SetReceiver(func(payload []byte, info protocol.Info) {
		mu.Lock()
		received = append([]byte{}, payload...)
		mu.Unlock()
	})

	stop := make(chan struct{})
	go runReceiver(b, stop)
	defer close(stop)

	idx, err := a.Send(2, []byte("hi"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a.Tick()
		a.mu.Lock()
		free := !a.slots[idx].busy()
		a.mu.Unlock()
		return free
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("hi"), received)
}

func TestReceiveRejectsWrongBus(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	senderEp := wire.Open()
	receiverEp := wire.Open()

	sender := newTestBus(senderEp, 9, protocol.BusID{2, 2, 2, 2})
	sender.SetShared(true)
	sender.SetAcknowledge(false)

	receiver := newTestBus(receiverEp, 9, protocol.BusID{1, 1, 1, 1})
	receiver.SetShared(true)

	called := false
	receiver.SetReceiver(func(payload []byte, info protocol.Info) { called = true })

	_, err := sender.Send(9, []byte("x"))
	require.NoError(t, err)
	sender.Tick()

	outcome := receiver.Receive()
	require.Equal(t, Busy, outcome)
	require.False(t, called)
}

func TestReplyToLastSender(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	a := newTestBus(wire.Open(), 1, protocol.Localhost)
	b := newTestBus(wire.Open(), 9, protocol.Localhost)
	a.SetIncludeSenderInfo(true)
	a.SetAcknowledge(false)

	stop := make(chan struct{})
	go runReceiver(b, stop)
	defer close(stop)

	_, err := a.Send(9, []byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a.Tick()
		info, ok := b.LastInfo()
		return ok && info.SenderID == 1
	}, time.Second, time.Millisecond)

	_, err = b.Reply([]byte("pong"))
	require.NoError(t, err)
}

func TestReplyWithoutPriorFrameIsNoOp(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()
	a := newTestBus(wire.Open(), 1, protocol.Localhost)

	_, err := a.Reply([]byte("pong"))
	require.ErrorIs(t, err, ErrReplyToBroadcast)
}

func TestEnqueueContentTooLong(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()
	a := newTestBus(wire.Open(), 1, protocol.Localhost)

	big := make([]byte, protocol.PacketMaxLength)
	var gotCode protocol.ErrorCode
	a.SetErrorHandler(func(code protocol.ErrorCode, data int) { gotCode = code })

	_, err := a.Send(2, big)
	require.ErrorIs(t, err, ErrContentTooLong)
	require.Equal(t, protocol.ContentTooLong, gotCode)
}

func TestQueueFillsUp(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()
	a := New(wire.Open(), &fakeClock{}, protocol.Localhost, WithMaxPackets(2))
	a.SetDeviceID(1)
	a.SetAcknowledge(false)

	_, err := a.Send(2, []byte("a"))
	require.NoError(t, err)
	_, err = a.Send(2, []byte("b"))
	require.NoError(t, err)

	_, err = a.Send(2, []byte("c"))
	require.ErrorIs(t, err, ErrPacketsBufferFull)
}

func TestStatsReportsOccupiedSlots(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()
	a := newTestBus(wire.Open(), 1, protocol.Localhost)
	a.SetAcknowledge(false)

	empty := a.Stats()
	require.Equal(t, protocol.MaxPackets, empty.Capacity)
	require.Equal(t, 0, empty.Occupied)
	require.Empty(t, empty.Slots)

	idx, err := a.Send(2, []byte("x"))
	require.NoError(t, err)

	stats := a.Stats()
	require.Equal(t, 1, stats.Occupied)
	require.Len(t, stats.Slots, 1)
	require.Equal(t, idx, stats.Slots[0].Index)
	require.Equal(t, protocol.DeviceID(2), stats.Slots[0].Dest)
	require.Equal(t, 0, stats.Slots[0].Attempts)
}

func TestConnectionLostAfterMaxAttempts(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()
	// No peer ever attached: every send times out on the response wait.
	a := newTestBus(wire.Open(), 1, protocol.Localhost)

	var lost protocol.DeviceID = 0
	var code protocol.ErrorCode
	a.SetErrorHandler(func(c protocol.ErrorCode, data int) {
		if c == protocol.ConnectionLost {
			lost = protocol.DeviceID(data)
			code = c
		}
	})

	idx, err := a.Send(7, []byte("x"))
	require.NoError(t, err)

	for i := 0; i < protocol.MaxAttempts+2; i++ {
		a.Tick()
	}

	require.Equal(t, protocol.ConnectionLost, code)
	require.Equal(t, protocol.DeviceID(7), lost)
	a.mu.Lock()
	require.False(t, a.slots[idx].busy())
	a.mu.Unlock()
}
