// Package scheduler drives the two job families of the pipeline: the hourly
// monitor tick that acquires pending snapshots and the daily cron-scheduled
// enrichment batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/enrich"
	"github.com/lueurxax/trendpulse/internal/fetcher"
	"github.com/lueurxax/trendpulse/internal/notify"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/platform/ratelimit"
	"github.com/lueurxax/trendpulse/internal/platform/worker"
	"github.com/lueurxax/trendpulse/internal/store"
)

// PipelineContext bundles every collaborator a scheduler job needs. It is
// built once at process start and passed explicitly; jobs hold no globals.
type PipelineContext struct {
	Config     *config.Config
	Store      *store.Store
	Fetcher    *fetcher.Fetcher
	Policy     *ratelimit.Policy
	Enrichment *enrich.Pipeline
	Notifier   notify.Notifier
	Logger     *zerolog.Logger
}

// Scheduler owns the monitor loop and the daily enrichment cron.
type Scheduler struct {
	pc PipelineContext

	now func() time.Time
}

func New(pc PipelineContext) *Scheduler {
	return &Scheduler{pc: pc, now: time.Now}
}

// Run starts the enabled job families and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	cfg := s.pc.Config

	if cfg.MonitorEnabled {
		group.Go(func() error {
			return worker.Loop(groupCtx, worker.Config{
				Name:         "hot-topics-monitor",
				PollInterval: cfg.MonitorPollInterval,
				BusyInterval: cfg.MonitorRecentRetry,
				Process:      s.monitorTick,
				Logger:       s.pc.Logger,
			})
		})
	} else {
		s.pc.Logger.Info().Msg("hourly monitor disabled via MONITOR_ENABLED")
	}

	if cfg.EnrichmentEnabled {
		runner, err := s.startEnrichmentCron(groupCtx)
		if err != nil {
			return err
		}

		group.Go(runner)
	} else {
		s.pc.Logger.Info().Msg("daily enrichment disabled via ENRICHMENT_ENABLED")
	}

	s.pc.Logger.Info().
		Bool("monitor_enabled", cfg.MonitorEnabled).
		Bool("enrichment_enabled", cfg.EnrichmentEnabled).
		Dur("poll_interval", cfg.MonitorPollInterval).
		Str("enrichment_time", cfg.EnrichmentTime).
		Msg("scheduler started")

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// startEnrichmentCron schedules the daily batch at the configured local time
// of the source timezone. The batch targets yesterday's archive, whose day is
// complete by then.
func (s *Scheduler) startEnrichmentCron(ctx context.Context) (func() error, error) {
	spec, err := cronSpec(s.pc.Config.EnrichmentTime)
	if err != nil {
		return nil, err
	}

	runner := cron.New(
		cron.WithLocation(archive.SourceTZ),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err = runner.AddFunc(spec, func() {
		defer worker.RecoverPanic(s.pc.Logger, "daily enrichment")

		target := s.now().In(archive.SourceTZ).AddDate(0, 0, -1).Format(archive.DateLayout)
		if err := s.EnrichDate(ctx, target, false); err != nil {
			s.pc.Logger.Error().Err(err).Str("date", target).Msg("daily enrichment failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling enrichment at %q: %w", s.pc.Config.EnrichmentTime, err)
	}

	return func() error {
		runner.Start()

		<-ctx.Done()

		stopCtx := runner.Stop()
		<-stopCtx.Done()

		return fmt.Errorf("enrichment cron: %w", ctx.Err())
	}, nil
}

// EnrichDate runs one enrichment batch immediately. Forced runs restart every
// candidate regardless of prior processing state.
func (s *Scheduler) EnrichDate(ctx context.Context, date string, force bool) error {
	return s.pc.Enrichment.Run(ctx, date, force)
}

// cronSpec converts an "HH:MM" time-of-day into a daily cron expression.
func cronSpec(timeOfDay string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeOfDay), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time of day %q, want HH:MM", timeOfDay)
	}

	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])

	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid time of day %q, want HH:MM", timeOfDay)
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
