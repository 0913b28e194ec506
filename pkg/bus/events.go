package bus

import "github.com/pjon-go/pjon/pkg/protocol"

// EventKind discriminates the Event union passed to a Monitor.
type EventKind int

const (
	EventFrameSent EventKind = iota
	EventFrameReceived
	EventError
)

// Event is a single observable occurrence on the bus, fanned out to any
// attached Monitor. It is a plain value so sinks (pkg/monitor/mqtt,
// pkg/monitor/websocket) can serialize it without reaching back into Bus
// state.
type Event struct {
	Kind EventKind `json:"kind"`

	// Populated for EventFrameSent/EventFrameReceived.
	Dest    protocol.DeviceID `json:"dest,omitempty"`
	Outcome Outcome           `json:"outcome,omitempty"`
	Length  int               `json:"length,omitempty"`

	// Populated for EventError.
	ErrorCode protocol.ErrorCode `json:"error_code,omitempty"`
	ErrorData int                `json:"error_data,omitempty"`
}
