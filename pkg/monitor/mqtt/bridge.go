// Package mqtt publishes bus.Event occurrences to an MQTT broker so an
// external dashboard or log aggregator can tail a device's traffic and
// errors without sharing process memory.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/pjon-go/pjon/pkg/bus"
)

// ConnectTimeout bounds how long Dial waits for the initial broker
// handshake.
const ConnectTimeout = 5 * time.Second

// wireEvent is the JSON-serializable projection of a bus.Event.
type wireEvent struct {
	Kind      string `json:"kind"`
	Dest      byte   `json:"dest,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Length    int    `json:"length,omitempty"`
	ErrorCode byte   `json:"error_code,omitempty"`
	ErrorData int    `json:"error_data,omitempty"`
}

func (e wireEvent) kindString(k bus.EventKind) string {
	switch k {
	case bus.EventFrameSent:
		return "frame_sent"
	case bus.EventFrameReceived:
		return "frame_received"
	case bus.EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Bridge is a bus.Monitor that republishes every observed Event as a
// JSON payload on topicPrefix+"/events".
type Bridge struct {
	client      paho.Client
	topicPrefix string
}

var _ bus.Monitor = (*Bridge)(nil)

// Dial connects to the broker at brokerURL (e.g. "tcp://localhost:1883")
// and returns a ready-to-use Bridge publishing under topicPrefix.
func Dial(brokerURL, topicPrefix string) (*Bridge, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			glog.Warningf("monitor/mqtt: connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		return nil, fmt.Errorf("monitor/mqtt: connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("monitor/mqtt: connect to %s: %w", brokerURL, err)
	}

	return &Bridge{client: client, topicPrefix: topicPrefix}, nil
}

// Observe implements bus.Monitor. It never blocks the caller on broker
// I/O: publish failures are logged, not returned.
func (b *Bridge) Observe(e bus.Event) {
	var w wireEvent
	w.Kind = w.kindString(e.Kind)
	w.Dest = byte(e.Dest)
	w.Outcome = e.Outcome.String()
	w.Length = e.Length
	w.ErrorCode = byte(e.ErrorCode)
	w.ErrorData = e.ErrorData

	payload, err := json.Marshal(w)
	if err != nil {
		glog.Warningf("monitor/mqtt: marshal event: %v", err)
		return
	}
	b.client.Publish(b.topicPrefix+"/events", 0, false, payload)
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
