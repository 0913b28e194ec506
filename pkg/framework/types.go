package framework

import (
	"context"
)

// Named is implemented by anything a Runner should log under a label
// instead of a positional index.
type Named interface {
	Name() string
}

// Runnable is a background task a Runner manages: the bus controller's
// Tick/Receive drive loop, a monitor bridge's transport, a websocket tail
// server. Run blocks until ctx is canceled or the task fails on its own.
type Runnable interface {
	Run(context.Context) error
}
