package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/credentials"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
)

// RemoteSource fetches hourly snapshots from the primary HTTP source.
type RemoteSource struct {
	client      *http.Client
	urlTemplate string
	pool        *credentials.Pool
	logger      *zerolog.Logger
}

func NewRemoteSource(urlTemplate string, timeout time.Duration, pool *credentials.Pool, logger *zerolog.Logger) *RemoteSource {
	return &RemoteSource{
		client:      &http.Client{Timeout: timeout},
		urlTemplate: urlTemplate,
		pool:        pool,
		logger:      logger,
	}
}

// FetchHour retrieves and normalizes one (date, hour) snapshot. A 404 from
// the source maps to ErrNotYetAvailable; credential rejections rotate the
// pool before returning the transient error.
func (r *RemoteSource) FetchHour(ctx context.Context, date string, hour int) ([]archive.TopicEntry, error) {
	url := strings.NewReplacer("{date}", date, "{hour}", archive.HourKey(hour)).Replace(r.urlTemplate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}

	credential := r.pool.Current()
	if credential.Value != "" {
		req.Header.Set("Cookie", credential.Value)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotYetAvailable
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		next := r.pool.MarkBad(credential, fmt.Sprintf("http %d", resp.StatusCode))
		observability.CredentialRotations.Inc()
		r.logger.Warn().
			Str("credential", credential.Label).
			Str("next", next.Label).
			Int("status", resp.StatusCode).
			Msg("credential rejected, rotated")

		return nil, fmt.Errorf("fetching %s: credential rejected with status %d", url, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot body: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("snapshot at %s is not a topic list: %w", url, err)
	}

	entries := NormalizeEntries(raw)
	if len(entries) == 0 {
		return nil, ErrEmptyPayload
	}

	return entries, nil
}
