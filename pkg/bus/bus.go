// Package bus implements the PJON-style bus controller: an outbound
// queue and scheduler, a transmit engine, a receive engine and the
// dynamic device-id acquisition algorithm, all driven from a byte-level
// strategy.Strategy and a clock.Clock.
package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/pjon-go/pjon/pkg/clock"
	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/strategy"
)

// Outcome is the result of a transmit or receive attempt, a tagged
// variant used in place of the reference library's overloaded numeric
// return codes.
type Outcome int

const (
	Ack Outcome = iota
	Nak
	Busy
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Busy:
		return "BUSY"
	case Fail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Errors surfaced synchronously by Send/Enqueue.
var (
	ErrContentTooLong      = protocol.ErrContentTooLong
	ErrPacketsBufferFull   = errors.New("bus: packets buffer full")
	ErrIDAcquisitionFailed = errors.New("bus: id acquisition failed")
	ErrReplyToBroadcast    = errors.New("bus: cannot reply to a broadcast sender")
)

// Receiver is invoked for every accepted inbound frame.
type Receiver func(payload []byte, info protocol.Info)

// ErrorHandler is invoked for every asynchronously reported error.
type ErrorHandler func(code protocol.ErrorCode, data int)

// Monitor receives a best-effort stream of bus events for observability
// bridges (monitor/mqtt, monitor/websocket). Implementations must not
// block; Bus calls Observe synchronously from whichever goroutine is
// calling into it (Tick, Receive, or an enqueue that reports an error).
type Monitor interface {
	Observe(Event)
}

// IdentityStore optionally persists an acquired device id / bus id across
// restarts.
type IdentityStore interface {
	SaveDeviceID(busID protocol.BusID, id protocol.DeviceID) error
	LoadDeviceID(busID protocol.BusID) (protocol.DeviceID, bool, error)
}

type slotState int

const (
	stateFree     slotState = 0
	stateToBeSent slotState = slotState(protocol.ToBeSent)
)

type slot struct {
	state        slotState
	dest         protocol.DeviceID
	destBusID    protocol.BusID
	header       protocol.HeaderFlags
	content      []byte
	registration uint32
	attempts     int
	timing       uint32
}

func (s *slot) busy() bool { return s.state != stateFree }

// Bus is a single device's view of the shared medium: configuration,
// outbound queue, and the transmit/receive engines that drive Strategy.
type Bus struct {
	mu sync.Mutex

	strategy strategy.Strategy
	clock    clock.Clock

	deviceID protocol.DeviceID
	busID    protocol.BusID

	mode              byte
	acknowledge       bool
	includeSenderInfo bool
	shared            bool
	router            bool
	autoDelete        bool

	perByteTimeout  time.Duration
	responseTimeout time.Duration
	pollInterval    time.Duration

	receiver     Receiver
	errorHandler ErrorHandler
	monitor      Monitor
	identity     IdentityStore

	slots    []slot
	lastInfo protocol.Info
	hasLast  bool
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithMonitor attaches an observability sink. A Bus holds one sink: a
// later WithMonitor replaces an earlier one.
func WithMonitor(m Monitor) Option {
	return func(b *Bus) { b.monitor = m }
}

// WithIdentityStore attaches persistent storage for an acquired device id.
func WithIdentityStore(s IdentityStore) Option {
	return func(b *Bus) { b.identity = s }
}

// WithMaxPackets overrides the default outbound queue capacity.
func WithMaxPackets(n int) Option {
	return func(b *Bus) { b.slots = make([]slot, n) }
}

// WithByteTimeout overrides how long the receive engine waits for the
// next byte of a frame before giving up.
func WithByteTimeout(d time.Duration) Option {
	return func(b *Bus) { b.perByteTimeout = d }
}

// WithResponseTimeout overrides how long the transmit engine waits for a
// synchronous ACK/NAK after sending a frame requesting one.
func WithResponseTimeout(d time.Duration) Option {
	return func(b *Bus) { b.responseTimeout = d }
}

// New constructs a Bus with the reference library's default
// configuration: acknowledge on, auto-delete on, half-duplex, shared iff
// busID is not the localhost sentinel, sender-info off, router off,
// device id NOT_ASSIGNED.
func New(strat strategy.Strategy, clk clock.Clock, busID protocol.BusID, opts ...Option) *Bus {
	b := &Bus{
		strategy:       strat,
		clock:          clk,
		deviceID:       protocol.NotAssigned,
		busID:          busID,
		mode:           protocol.HalfDuplex,
		acknowledge:    true,
		autoDelete:     true,
		shared:         !busID.IsLocalhost(),
		perByteTimeout:  5 * time.Millisecond,
		responseTimeout: 20 * time.Millisecond,
		pollInterval:    200 * time.Microsecond,
		slots:          make([]slot, protocol.MaxPackets),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Begin seeds a random boot-time delay in [0, INITIAL_MAX_DELAY) ms to
// reduce collisions among devices powering on together, and, if an
// IdentityStore is attached and the device id is still NOT_ASSIGNED,
// restores a previously acquired device id.
func (b *Bus) Begin() {
	delay := b.clock.Rand(protocol.InitialMaxDelayMs)
	b.clock.Sleep(time.Duration(delay) * time.Millisecond)

	if b.identity != nil && b.DeviceID() == protocol.NotAssigned {
		if id, ok, err := b.identity.LoadDeviceID(b.busID); err != nil {
			glog.Warningf("bus: identity store load failed: %v", err)
		} else if ok {
			b.mu.Lock()
			b.deviceID = id
			b.mu.Unlock()
			glog.V(1).Infof("bus: restored device id %d from identity store", id)
		}
	}
}

// DeviceID returns the currently assigned device id.
func (b *Bus) DeviceID() protocol.DeviceID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceID
}

// SetDeviceID sets the device id directly, bypassing acquisition.
func (b *Bus) SetDeviceID(id protocol.DeviceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceID = id
}

// BusID returns the configured bus id.
func (b *Bus) BusID() protocol.BusID { return b.busID }

// SetShared toggles whether frames carry MODE/bus-id fields.
func (b *Bus) SetShared(shared bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shared = shared
}

// SetRouter toggles promiscuous mode: address/bus-id filtering is
// disabled, but ACK/NAK emission on accepted frames is unaffected (see
// SPEC_FULL.md §9 design notes).
func (b *Bus) SetRouter(router bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.router = router
}

// SetIncludeSenderInfo toggles whether outbound frames carry
// SENDER_INFO.
func (b *Bus) SetIncludeSenderInfo(include bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includeSenderInfo = include
}

// SetAcknowledge toggles whether outbound unicast frames request a
// synchronous ACK/NAK.
func (b *Bus) SetAcknowledge(ack bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acknowledge = ack
}

// SetAutoDelete toggles whether delivered one-shot slots are freed
// automatically.
func (b *Bus) SetAutoDelete(autoDelete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoDelete = autoDelete
}

// SetCommunicationMode selects protocol.Simplex or protocol.HalfDuplex.
func (b *Bus) SetCommunicationMode(mode byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
}

// SetReceiver installs the application callback invoked for accepted
// frames.
func (b *Bus) SetReceiver(r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiver = r
}

// SetErrorHandler installs the application callback invoked for
// asynchronous errors.
func (b *Bus) SetErrorHandler(h ErrorHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorHandler = h
}

func (b *Bus) notifyError(code protocol.ErrorCode, data int) {
	if b.errorHandler != nil {
		b.errorHandler(code, data)
	}
	b.observe(Event{Kind: EventError, ErrorCode: code, ErrorData: data})
}

func (b *Bus) observe(e Event) {
	if b.monitor != nil {
		b.monitor.Observe(e)
	}
}
