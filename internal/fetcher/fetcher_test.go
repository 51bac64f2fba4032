package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/credentials"
	"github.com/lueurxax/trendpulse/internal/platform/ratelimit"
)

type localFunc func(ctx context.Context, date string, hour int) ([]archive.TopicEntry, error)

func (f localFunc) FetchHour(ctx context.Context, date string, hour int) ([]archive.TopicEntry, error) {
	return f(ctx, date, hour)
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestFetcher(t *testing.T, handler http.Handler, local LocalSource) (*Fetcher, *ratelimit.Policy) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	pool := credentials.NewPool(credentials.Sources{Single: "SUB=test"}, time.Minute, testLogger())
	remote := NewRemoteSource(server.URL+"/{date}/{hour}.json", time.Second, pool, testLogger())
	policy := ratelimit.New("test", ratelimit.Options{})

	return New(remote, local, policy, 45*time.Minute, testLogger()), policy
}

func at(date string, hour, minute int) time.Time {
	boundary, _ := archive.HourBoundary(date, hour)
	return boundary.Add(time.Duration(minute) * time.Minute)
}

func TestFetchHourSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025-01-01/09.json", r.URL.Path)
		assert.Equal(t, "SUB=test", r.Header.Get("Cookie"))
		fmt.Fprint(w, `[{"title": "alpha", "hot": "120万"}, {"title": "beta", "hot": 300}]`)
	})

	f, policy := newTestFetcher(t, handler, nil)

	result, err := f.FetchHour(context.Background(), "2025-01-01", 9)
	require.NoError(t, err)
	assert.False(t, result.UsedFallback)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, archive.TopicEntry{Rank: 1, Title: "alpha", Heat: 1200000}, result.Entries[0])

	active, _ := policy.InCooldown()
	assert.False(t, active)
}

func TestFetchHourNotYetPublished(t *testing.T) {
	// One minute past the boundary: 404 means "not yet", no fallback, no penalty.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	localCalled := false
	local := localFunc(func(context.Context, string, int) ([]archive.TopicEntry, error) {
		localCalled = true
		return nil, nil
	})

	f, _ := newTestFetcher(t, handler, local)
	f.now = func() time.Time { return at("2025-01-01", 9, 1) }

	_, err := f.FetchHour(context.Background(), "2025-01-01", 9)
	assert.ErrorIs(t, err, ErrNotYetAvailable)
	assert.False(t, localCalled)
}

func TestFetchHourFallsBackPastThreshold(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	topics := make([]archive.TopicEntry, 12)
	for i := range topics {
		topics[i] = archive.TopicEntry{Rank: i + 1, Title: fmt.Sprintf("topic-%d", i), Heat: float64(100 - i)}
	}

	local := localFunc(func(_ context.Context, date string, hour int) ([]archive.TopicEntry, error) {
		assert.Equal(t, "2025-01-01", date)
		assert.Equal(t, 9, hour)
		return topics, nil
	})

	f, _ := newTestFetcher(t, handler, local)
	f.now = func() time.Time { return at("2025-01-01", 9, 50) }

	result, err := f.FetchHour(context.Background(), "2025-01-01", 9)
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Len(t, result.Entries, 12)
}

func TestFetchHourTransientFailureFeedsPolicy(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	f, policy := newTestFetcher(t, handler, nil)
	f.now = func() time.Time { return at("2025-01-01", 9, 1) }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.FetchHour(ctx, "2025-01-01", 9)
		require.Error(t, err)
	}

	active, _ := policy.InCooldown()
	assert.True(t, active)
}

func TestFetchHourEmptyPayloadIsTransient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	f, _ := newTestFetcher(t, handler, nil)
	f.now = func() time.Time { return at("2025-01-01", 9, 1) }

	_, err := f.FetchHour(context.Background(), "2025-01-01", 9)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestRemoteRotatesCredentialOnForbidden(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "SUB=bad" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		fmt.Fprint(w, `[{"title": "alpha", "hot": 1}]`)
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	pool := credentials.NewPool(credentials.Sources{Multi: "SUB=bad|SUB=good"}, time.Minute, testLogger())
	remote := NewRemoteSource(server.URL+"/{date}/{hour}.json", time.Second, pool, testLogger())

	ctx := context.Background()

	_, err := remote.FetchHour(ctx, "2025-01-01", 9)
	require.Error(t, err)

	entries, err := remote.FetchHour(ctx, "2025-01-01", 9)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestShouldFallback(t *testing.T) {
	tests := []struct {
		name   string
		minute int
		want   bool
	}{
		{name: "before boundary", minute: -10, want: false},
		{name: "just past boundary", minute: 1, want: false},
		{name: "past threshold", minute: 50, want: true},
		{name: "rolled into next hour", minute: 70, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldFallback(at("2025-01-01", 9, tt.minute), "2025-01-01", 9, 45*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ShouldFallback(time.Now(), "bad-date", 9, 45*time.Minute)
	assert.Error(t, err)
}

func TestNormalizeEntries(t *testing.T) {
	raw := []map[string]any{
		{"title": "a", "hot": "3w", "category": "社会", "url": "https://example.com/a"},
		{"name": "b", "heat": 42.0},
		{"title": "   ", "hot": 1.0},
		{"desc_only": true},
	}

	entries := NormalizeEntries(raw)
	require.Len(t, entries, 2)

	assert.Equal(t, "a", entries[0].Title)
	assert.Equal(t, 30000.0, entries[0].Heat)
	assert.Equal(t, 1, entries[0].Rank)

	assert.Equal(t, "b", entries[1].Title)
	assert.Equal(t, 42.0, entries[1].Heat)
	assert.Equal(t, 2, entries[1].Rank)
}
