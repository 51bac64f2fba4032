package fetcher

import (
	"context"
	"time"

	"github.com/lueurxax/trendpulse/internal/archive"
)

// LocalSource is the expensive local acquisition path used when the primary
// source stays silent past the fallback threshold.
type LocalSource interface {
	FetchHour(ctx context.Context, date string, hour int) ([]archive.TopicEntry, error)
}

// ShouldFallback decides whether a failed primary fetch for (date, hour)
// warrants the local fallback at time now. Fallback fires only once the hour
// boundary has passed and either the threshold has elapsed since the boundary
// or the clock has rolled into a later hour entirely.
func ShouldFallback(now time.Time, date string, hour int, threshold time.Duration) (bool, error) {
	boundary, err := archive.HourBoundary(date, hour)
	if err != nil {
		return false, err
	}

	now = now.In(archive.SourceTZ)
	if now.Before(boundary) {
		return false, nil
	}

	if now.Sub(boundary) >= threshold {
		return true, nil
	}

	return !now.Before(boundary.Add(time.Hour)), nil
}
