// Package serial implements strategy.Strategy over a real UART/USB-serial
// link using go.bug.st/serial.
package serial

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/pjon-go/pjon/pkg/strategy"
)

// ResponseTimeout bounds how long ReceiveResponse waits for a synchronous
// ACK/NAK before giving up.
const ResponseTimeout = 10 * time.Millisecond

// Port is a Strategy backed by an open serial.Port. A serial line is
// half-duplex from the protocol's point of view: both frame bytes and the
// single-byte synchronous response travel the same wire, so Port
// multiplexes them through one read loop and lets ReceiveResponse borrow
// from the same buffered stream with a short timeout.
type Port struct {
	port serial.Port
	name string

	reader *bufio.Reader

	mu     sync.Mutex
	pendch chan byte

	closeOnce sync.Once
	done      chan struct{}
}

var _ strategy.Strategy = (*Port)(nil)

// Open opens portName at baudRate (8-N-1) and starts its background read loop.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("strategy/serial: open %s: %w", portName, err)
	}

	p := &Port{
		port:   sp,
		name:   portName,
		reader: bufio.NewReader(sp),
		pendch: make(chan byte, 256),
		done:   make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	for {
		b, err := p.reader.ReadByte()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
			}
			glog.V(1).Infof("strategy/serial(%s): read error: %v", p.name, err)
			time.Sleep(time.Millisecond)
			continue
		}
		select {
		case p.pendch <- b:
		case <-p.done:
			return
		}
	}
}

// CanStart reports the medium as free. A plain UART cannot sense
// collisions, so every caller is free to attempt a send; arbitration
// happens at the framing/retry level above this Strategy.
func (p *Port) CanStart() bool { return true }

// SendByte implements strategy.Strategy.
func (p *Port) SendByte(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.port.Write([]byte{b}); err != nil {
		glog.Warningf("strategy/serial(%s): write error: %v", p.name, err)
	}
}

// ReceiveByte implements strategy.Strategy.
func (p *Port) ReceiveByte() int {
	select {
	case b := <-p.pendch:
		return int(b)
	default:
		return strategy.NoByte
	}
}

// SendResponse implements strategy.Strategy.
func (p *Port) SendResponse(sym int) {
	p.SendByte(byte(sym))
}

// ReceiveResponse implements strategy.Strategy.
func (p *Port) ReceiveResponse() int {
	select {
	case b := <-p.pendch:
		return int(b)
	case <-time.After(ResponseTimeout):
		return strategy.NoByte
	}
}

// Close stops the read loop and closes the underlying port.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.port.Close()
	})
	return err
}
