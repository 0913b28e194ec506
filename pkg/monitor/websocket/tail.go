// Package websocket serves a live tail of bus.Event occurrences to any
// number of connected browser clients over a websocket, for a
// dashboard that wants to watch traffic in real time.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/pjon-go/pjon/pkg/bus"
)

// backlogSize bounds how many pending events a slow client can fall
// behind by before further events for it are dropped.
const backlogSize = 64

// Tail is a bus.Monitor that fans every observed Event out to all
// currently connected websocket clients. A slow or stalled client stays
// connected, but events that do not fit in its backlog are dropped for it
// rather than allowed to block Observe.
type Tail struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

var _ bus.Monitor = (*Tail)(nil)

// NewTail returns an empty Tail ready to accept client connections via
// its Handler.
func NewTail() *Tail {
	return &Tail{clients: make(map[chan []byte]struct{})}
}

// Observe implements bus.Monitor.
func (t *Tail) Observe(e bus.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		glog.Warningf("monitor/websocket: marshal event: %v", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.clients {
		select {
		case ch <- payload:
		default:
			glog.Warningf("monitor/websocket: dropping event for a slow client")
		}
	}
}

// Handler returns an http.Handler that upgrades the connection to a
// websocket and streams every subsequent Event as a JSON text message
// until the client disconnects.
func (t *Tail) Handler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		ch := make(chan []byte, backlogSize)
		t.mu.Lock()
		t.clients[ch] = struct{}{}
		t.mu.Unlock()
		defer func() {
			t.mu.Lock()
			delete(t.clients, ch)
			t.mu.Unlock()
		}()

		for payload := range ch {
			if err := websocket.Message.Send(conn, payload); err != nil {
				return
			}
		}
	})
}
