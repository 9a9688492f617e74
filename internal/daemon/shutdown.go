// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook performs one step of graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// namedHook represents a shutdown hook with a name for logging.
type namedHook struct {
	name string
	hook ShutdownHook
}

// runHooks executes hooks in order. A failing hook is logged and recorded;
// later hooks still run.
func runHooks(ctx context.Context, logger zerolog.Logger, hooks []namedHook) error {
	var errs []error
	for _, h := range hooks {
		logger.Debug().Str("hook", h.name).Msg("executing shutdown hook")

		start := time.Now()
		if err := h.hook(ctx); err != nil {
			logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
