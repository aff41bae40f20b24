package shutdown

import (
	"context"
	"os"
)

// Shutdowner is implemented by components participating in graceful shutdown.
type Shutdowner interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// quiter provides the termination signal channel.
type quiter interface {
	Quit() <-chan os.Signal
}
