// Command pjonsh is an interactive shell for driving a pjon bus
// controller: acquiring a device id, sending and replying to packets,
// and watching accepted frames scroll by.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/pjon-go/pjon/pkg/bus"
	"github.com/pjon-go/pjon/pkg/clock"
	"github.com/pjon-go/pjon/pkg/config"
	fx "github.com/pjon-go/pjon/pkg/framework"
	monitormqtt "github.com/pjon-go/pjon/pkg/monitor/mqtt"
	monitorws "github.com/pjon-go/pjon/pkg/monitor/websocket"
	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/store"
	"github.com/pjon-go/pjon/pkg/strategy"
	"github.com/pjon-go/pjon/pkg/strategy/loopback"
	pjonserial "github.com/pjon-go/pjon/pkg/strategy/serial"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the bus controller config file.")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Exitf("pjonsh: %v", err)
	}

	busID, err := cfg.BusID()
	if err != nil {
		glog.Exitf("pjonsh: %v", err)
	}

	strat, closeStrategy, err := buildStrategy(cfg)
	if err != nil {
		glog.Exitf("pjonsh: %v", err)
	}
	defer closeStrategy()

	var opts []bus.Option

	if cfg.Store.Path != "" {
		identity, err := store.Open(cfg.Store.Path)
		if err != nil {
			glog.Exitf("pjonsh: %v", err)
		}
		defer identity.Close()
		opts = append(opts, bus.WithIdentityStore(identity))
	}

	if cfg.MQTT.Enabled {
		bridge, err := monitormqtt.Dial(cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
		if err != nil {
			glog.Exitf("pjonsh: %v", err)
		}
		defer bridge.Close()
		opts = append(opts, bus.WithMonitor(bridge))
	}

	var wsRunner fx.Runnable
	if cfg.Websocket.Enabled {
		tail := monitorws.NewTail()
		opts = append(opts, bus.WithMonitor(tail))
		wsRunner = fx.NamedRun("websocket-tail", websocketServer{addr: cfg.Websocket.Listen, handler: tail.Handler()})
	}

	b := bus.New(strat, clock.NewSystem(), busID, opts...)
	b.SetShared(cfg.Bus.Shared)
	b.SetRouter(cfg.Bus.Router)
	b.SetIncludeSenderInfo(cfg.Bus.SenderInfo)
	if cfg.Bus.Acknowledge != nil {
		b.SetAcknowledge(*cfg.Bus.Acknowledge)
	}
	if cfg.Bus.AutoDelete != nil {
		b.SetAutoDelete(*cfg.Bus.AutoDelete)
	}
	b.SetReceiver(func(payload []byte, info protocol.Info) {
		glog.Infof("pjonsh: recv %d bytes from id=%d: %q", len(payload), info.SenderID, payload)
	})
	b.SetErrorHandler(func(code protocol.ErrorCode, data int) {
		glog.Warningf("pjonsh: %s data=%d", code, data)
	})

	b.Begin()

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("bus-loop", runnableFunc(func(ctx context.Context) error {
		driveLoop(b, ctx)
		return nil
	})))
	if wsRunner != nil {
		runner.Go(wsRunner)
	}

	run(b)
}

// runnableFunc adapts a plain func to framework.Runnable.
type runnableFunc func(context.Context) error

func (f runnableFunc) Run(ctx context.Context) error { return f(ctx) }

// websocketServer adapts http.ListenAndServe to framework.Runnable, shutting
// down when ctx is canceled.
type websocketServer struct {
	addr    string
	handler http.Handler
}

func (w websocketServer) Run(ctx context.Context) error {
	srv := &http.Server{Addr: w.addr, Handler: w.handler}
	return fx.RunWithContextCloser(ctx, srv, func() error {
		glog.Infof("pjonsh: websocket tail listening on %s", w.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

// driveLoop ticks the scheduler and polls for inbound frames until ctx is
// canceled, the single cooperative loop the bus controller is driven from
// (see SPEC_FULL.md §5).
func driveLoop(b *bus.Bus, ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.Tick()
			b.Receive()
		}
	}
}

func buildStrategy(cfg *config.Config) (strategy.Strategy, func(), error) {
	switch cfg.Strategy.Type {
	case "serial":
		p, err := pjonserial.Open(cfg.Strategy.Port, cfg.Strategy.BaudRate)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		wire := loopback.NewBus()
		ep := wire.Open()
		return ep, func() { wire.Close() }, nil
	}
}

func run(b *bus.Bus) {
	shell := ishell.New()
	shell.SetPrompt("pjon> ")

	shell.AddCmd(&ishell.Cmd{
		Name: "whoami",
		Help: "print the current device id and bus id",
		Func: func(c *ishell.Context) {
			c.Printf("device id=%d bus id=%v\n", b.DeviceID(), b.BusID())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "acquire",
		Help: "acquire an unused device id",
		Func: func(c *ishell.Context) {
			if err := b.AcquireID(); err != nil {
				c.Err(err)
				return
			}
			c.Printf("acquired device id %d\n", b.DeviceID())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <device-id> <payload>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("usage: send <device-id> <payload>"))
				return
			}
			id, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			payload := strings.Join(c.Args[1:], " ")
			if _, err := b.Send(protocol.DeviceID(id), []byte(payload)); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "reply",
		Help: "reply <payload> to the last accepted frame's sender",
		Func: func(c *ishell.Context) {
			payload := strings.Join(c.Args, " ")
			if _, err := b.Reply([]byte(payload)); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "send-repeatedly",
		Help: "send-repeatedly <device-id> <interval-us> <payload>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("usage: send-repeatedly <device-id> <interval-us> <payload>"))
				return
			}
			id, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			interval, err := strconv.ParseUint(c.Args[1], 10, 32)
			if err != nil {
				c.Err(err)
				return
			}
			payload := strings.Join(c.Args[2:], " ")
			idx, err := b.SendRepeatedly(protocol.DeviceID(id), []byte(payload), uint32(interval))
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("scheduled as slot %d\n", idx)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "remove",
		Help: "remove <slot-index> cancels a pending or repeating slot",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("usage: remove <slot-index>"))
				return
			}
			idx, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			b.Remove(idx)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "queue",
		Help: "show queue/stats: print outbound queue occupancy",
		Func: func(c *ishell.Context) {
			stats := b.Stats()
			c.Printf("occupied %d/%d\n", stats.Occupied, stats.Capacity)
			for _, s := range stats.Slots {
				c.Printf("  slot %d: dest=%d attempts=%d due_in_us=%d\n", s.Index, s.Dest, s.Attempts, s.DueInUs)
			}
		},
	})

	shell.Run()
}
