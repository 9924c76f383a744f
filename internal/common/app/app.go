package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CreateContextWithShutdown returns a context that reports done when SIGINT or
// SIGTERM is received.  In-flight work holding the context is expected to
// finish its current unit before exiting; anything left unacknowledged in the
// relay buffer stays pending for the next process start.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
