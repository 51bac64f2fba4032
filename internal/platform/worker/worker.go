// Package worker provides the cooperative loop primitives used by the
// scheduler: a poll loop with a shorter retry interval while work is being
// found, context-aware waits, and panic recovery.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const logFieldWorker = "worker"

// ProcessFunc runs one iteration of work. busy reports whether anything was
// processed, which selects the shorter BusyInterval for the next wait.
type ProcessFunc func(ctx context.Context) (busy bool, err error)

// Config configures a worker loop.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// PollInterval is the wait between idle iterations.
	PollInterval time.Duration

	// BusyInterval, when positive, is the shorter wait used after an
	// iteration that processed work.
	BusyInterval time.Duration

	// Process is called each iteration.
	Process ProcessFunc

	// OnStart is called once when the loop starts.
	OnStart func(ctx context.Context)

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs the worker loop until the context is canceled. Process errors are
// logged and the loop continues; only cancellation stops it.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	if cfg.OnStart != nil {
		cfg.OnStart(ctx)
	}

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		busy := false

		if cfg.Process != nil {
			var err error

			busy, err = cfg.Process(ctx)
			if err != nil {
				logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
			}
		}

		interval := cfg.PollInterval
		if busy && cfg.BusyInterval > 0 {
			interval = cfg.BusyInterval
		}

		if err := Wait(ctx, interval); err != nil {
			return err
		}
	}
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}
