package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/fetcher"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
	"github.com/lueurxax/trendpulse/internal/platform/worker"
	"github.com/lueurxax/trendpulse/internal/store"
)

// HourRef identifies one pending snapshot.
type HourRef struct {
	Date string
	Hour int
}

// monitorTick finds the pending (date, hour) pairs inside the lookback window
// and processes them strictly in sequence. One pair's failure never blocks
// the rest; an active cooldown ends the tick early.
func (s *Scheduler) monitorTick(ctx context.Context) (bool, error) {
	pending := s.collectPendingHours(s.now())
	observability.PendingHours.Set(float64(len(pending)))

	if len(pending) == 0 {
		s.pc.Logger.Debug().Msg("monitor tick: no pending hours")

		return false, nil
	}

	s.pc.Logger.Info().Int("pending", len(pending)).Msg("monitor tick: processing pending hours")

	processedAny := false

	for _, ref := range pending {
		if cooling, remaining := s.pc.Policy.InCooldown(); cooling {
			s.pc.Logger.Warn().
				Dur("remaining", remaining).
				Str("state", s.pc.Policy.Describe()).
				Msg("fetch scope cooling down, deferring remaining hours")

			break
		}

		processed, err := s.processHour(ctx, ref.Date, ref.Hour)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return processedAny, err
			}

			s.pc.Logger.Warn().Err(err).Str("date", ref.Date).Int("hour", ref.Hour).Msg("processing hour failed")
		}

		if processed {
			processedAny = true
		}

		// Politeness pacing between consecutive remote calls.
		if err := worker.Wait(ctx, s.pc.Policy.NextDelay()); err != nil {
			return processedAny, err
		}
	}

	return processedAny, nil
}

// collectPendingHours walks today plus the lookback days and returns every
// hour without a persisted snapshot, newest day first.
func (s *Scheduler) collectPendingHours(now time.Time) []HourRef {
	now = now.In(archive.SourceTZ)

	var pending []HourRef

	for offset := 0; offset <= s.pc.Config.MonitorLookbackDays; offset++ {
		target := now.AddDate(0, 0, -offset)
		date := target.Format(archive.DateLayout)

		maxHour := 23
		if offset == 0 {
			maxHour = target.Hour()
		}

		for hour := 0; hour <= maxHour; hour++ {
			if !s.pc.Store.HasHourly(date, archive.HourKey(hour)) {
				pending = append(pending, HourRef{Date: date, Hour: hour})
			}
		}
	}

	return pending
}

// processHour acquires one snapshot and merges it into the day's archive.
// Returns true when a snapshot was persisted.
func (s *Scheduler) processHour(ctx context.Context, date string, hour int) (bool, error) {
	result, err := s.pc.Fetcher.FetchHour(ctx, date, hour)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotYetAvailable) {
			s.pc.Logger.Debug().Str("date", date).Int("hour", hour).Msg("snapshot not yet published")

			return false, nil
		}

		observability.SnapshotFetchFailures.WithLabelValues("transient").Inc()

		return false, err
	}

	source := "primary"
	if result.UsedFallback {
		source = "fallback"
	}

	observability.SnapshotsFetched.WithLabelValues(source).Inc()

	if err := s.mergeSnapshot(date, hour, result.Entries); err != nil {
		return false, err
	}

	s.pc.Logger.Info().
		Str("date", date).
		Int("hour", hour).
		Int("topics", len(result.Entries)).
		Str("source", source).
		Msg("hourly snapshot processed")

	return true, nil
}

// mergeSnapshot persists the immutable hourly document, upserts the daily
// archive and refreshes the hotlist mirror for live consumers.
func (s *Scheduler) mergeSnapshot(date string, hour int, entries []archive.TopicEntry) error {
	daily := archive.Daily{}
	s.pc.Store.Read(store.ArchivePath(date), &daily)

	created, err := archive.ApplySnapshot(daily, entries, date, hour)
	if err != nil {
		return fmt.Errorf("upserting snapshot %s hour %02d: %w", date, hour, err)
	}

	if err := s.pc.Store.Write(store.ArchivePath(date), daily); err != nil {
		return fmt.Errorf("saving archive %s: %w", date, err)
	}

	hourKey := archive.HourKey(hour)
	if err := s.pc.Store.SaveHourly(date, hourKey, entries); err != nil {
		return fmt.Errorf("saving hourly snapshot %s/%s: %w", date, hourKey, err)
	}

	s.pc.Notifier.PushHotlist(store.HotlistMirror{Date: date, Hour: hourKey, Data: entries})

	observability.ArchiveTopics.WithLabelValues(date).Set(float64(len(daily)))

	pendingRefresh := 0
	for _, record := range daily {
		if record.NeedsRefresh {
			pendingRefresh++
		}
	}

	s.pc.Logger.Info().
		Str("date", date).
		Int("hour", hour).
		Int("total", len(daily)).
		Int("new", created).
		Int("pending_refresh", pendingRefresh).
		Msg("daily archive synced")

	return nil
}
