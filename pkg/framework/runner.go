// Package framework provides the small lifecycle primitives a bus
// controller process wires its background work through: the cooperative
// Tick/Receive drive loop, an optional websocket tail server, and any
// other long-lived goroutine that should shut down together on SIGINT or
// SIGTERM.
package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name, used for log lines when a Runner
// starts and stops it (e.g. "bus-loop", "websocket-tail").
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner starts a set of Runnables on their own goroutines and collects
// their errors as they stop.
type Runner struct {
	Context context.Context
	Runners []Runnable

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a Runner with a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner with a caller-supplied context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals cancels the Runner's context on the first SIGINT/SIGTERM,
// giving Runnables (the drive loop, the websocket server) a chance to
// stop cleanly; a second signal makes Wait return at once with a
// forced-exit error.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("bus: stop requested")
		cancel()
		<-sigCh
		glog.Error("bus: stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns each Runnable with the Runner's own context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns each Runnable with a caller-supplied context.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		var name string
		if named, ok := runner.(Named); ok {
			name = named.Name()
		} else {
			name = strconv.Itoa(len(r.Runners))
		}
		r.Runners = append(r.Runners, runner)
		glog.V(4).Infof("bus: starting runner[%s]", name)
		go func(runner Runnable, name string) {
			glog.V(4).Infof("bus: runner[%s] started", name)
			r.errCh <- runner.Run(ctx)
			glog.V(4).Infof("bus: runner[%s] stopped", name)
		}(runner, name)
	}
	return r
}

// Wait blocks until every spawned Runnable has stopped, then returns
// their aggregated errors (context.Canceled is not treated as a
// failure).
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.exitCh:
			return errors.New("bus: forced exit")
		case err := <-r.errCh:
			if err != context.Canceled {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs fn on its own goroutine and waits for it to
// return. If ctx is canceled first, onCancel runs (to ask fn to stop)
// and RunWithContextCancel still waits for fn to actually return before
// reporting context.Canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}

// RunWithContext is RunWithContextCancel with no cancel callback.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser runs fn, closing closer when ctx is canceled (to
// unblock a server's Accept/Serve loop) or once fn returns, whichever
// comes first. Used to turn a *http.Server's ListenAndServe into a
// context-aware Runnable (see cmd/pjonsh's websocket tail server).
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
