// Package fetcher acquires hourly topic snapshots from the primary remote
// source, degrading to a local acquisition path on a time-based policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
	"github.com/lueurxax/trendpulse/internal/platform/ratelimit"
)

// Result is one acquired snapshot plus how it was obtained.
type Result struct {
	Entries      []archive.TopicEntry
	UsedFallback bool
}

// Fetcher combines the remote source, the optional local fallback and the
// per-scope rate-limit policy into one fetch-with-fallback call.
type Fetcher struct {
	remote    *RemoteSource
	local     LocalSource
	policy    *ratelimit.Policy
	threshold time.Duration
	logger    *zerolog.Logger

	now func() time.Time
}

func New(remote *RemoteSource, local LocalSource, policy *ratelimit.Policy, threshold time.Duration, logger *zerolog.Logger) *Fetcher {
	return &Fetcher{
		remote:    remote,
		local:     local,
		policy:    policy,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// FetchHour acquires one (date, hour) snapshot. Outcomes feed the rate-limit
// policy: successes reset it, transient failures count toward cooldown, and
// a not-yet-published hour carries no penalty.
func (f *Fetcher) FetchHour(ctx context.Context, date string, hour int) (Result, error) {
	entries, err := f.remote.FetchHour(ctx, date, hour)
	if err == nil {
		f.policy.RecordSuccess()

		return Result{Entries: entries}, nil
	}

	warranted, policyErr := ShouldFallback(f.now(), date, hour, f.threshold)
	if policyErr != nil {
		return Result{}, policyErr
	}

	if warranted && f.local != nil {
		f.logger.Info().
			Str("date", date).
			Int("hour", hour).
			AnErr("primary_error", err).
			Msg("primary source unavailable, using local fallback")

		return f.fetchFallback(ctx, date, hour)
	}

	if errors.Is(err, ErrNotYetAvailable) {
		return Result{}, err
	}

	f.noteFailure()

	return Result{}, err
}

func (f *Fetcher) noteFailure() {
	cooldown := f.policy.RecordFailure()
	if cooldown == nil {
		return
	}

	observability.CooldownsEntered.WithLabelValues(string(cooldown.Level)).Inc()
	f.logger.Warn().
		Str("level", string(cooldown.Level)).
		Dur("duration", cooldown.Duration).
		Msg("fetch scope entering cooldown")
}

func (f *Fetcher) fetchFallback(ctx context.Context, date string, hour int) (Result, error) {
	entries, err := f.local.FetchHour(ctx, date, hour)
	if err != nil {
		f.noteFailure()

		return Result{}, fmt.Errorf("local fallback for %s hour %02d: %w", date, hour, err)
	}

	f.policy.RecordSuccess()

	return Result{Entries: entries, UsedFallback: true}, nil
}
