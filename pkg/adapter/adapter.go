// Package adapter runs the servers a pgstate process exposes (the Dapr
// component socket and the ops HTTP server) under one lifecycle.
package adapter

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/pgstate/internal/logger"
)

// Adapter is a server with a blocking, context-bound lifecycle.
//
// Start blocks until ctx is cancelled or the server fails, and performs a
// graceful shutdown before returning. Stop may be called from another
// goroutine and must be safe to call more than once.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs, e.g. "dapr" or "http".
	Protocol() string
}

// Serve runs adapters until ctx is cancelled or one of them fails. A failing
// adapter cancels the others; the first error is returned.
func Serve(ctx context.Context, adapters ...Adapter) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		if a == nil {
			continue
		}
		g.Go(func() error {
			logger.Debug("Starting adapter", "protocol", a.Protocol())
			if err := a.Start(gctx); err != nil {
				logger.Error("Adapter failed - initiating shutdown", "protocol", a.Protocol(), logger.Err(err))
				return fmt.Errorf("%s adapter: %w", a.Protocol(), err)
			}
			logger.Debug("Adapter stopped", "protocol", a.Protocol())
			return nil
		})
	}

	return g.Wait()
}
