package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/notify"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/store"
)

type fakeClassifier struct {
	mu     sync.Mutex
	topics []string
	result *archive.Classification
	err    error
}

func (f *fakeClassifier) Classify(_ context.Context, topic string, _ []archive.Post) (*archive.Classification, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	result := *f.result

	return &result, nil
}

type fakePostSource struct {
	posts map[string][]archive.Post
	err   error
}

func (f *fakePostSource) FetchPosts(_ context.Context, _ string, record *archive.TopicRecord) ([]archive.Post, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.posts[record.Title], nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	risk     []any
	hotlists []any
}

func (r *recordingNotifier) PushHotlist(payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hotlists = append(r.hotlists, payload)
}

func (r *recordingNotifier) PushRiskWarnings(payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.risk = append(r.risk, payload)
}

func testConfig() *config.Config {
	return &config.Config{
		EnrichmentWorkers: 2,
		EnrichmentTopK:    2,
		StoredPostsCap:    20,
		RiskWindowDays:    7,
		RiskTopK:          5,
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, classifier Classifier, posts PostSource, notifier notify.Notifier) (*Pipeline, *store.Store) {
	t.Helper()

	logger := zerolog.Nop()
	st := store.New(t.TempDir(), &logger)

	if notifier == nil {
		notifier = notify.Nop{}
	}

	return NewPipeline(cfg, st, classifier, posts, notifier, &logger), st
}

func seedArchive(t *testing.T, st *store.Store, date string, daily archive.Daily) {
	t.Helper()
	require.NoError(t, st.Write(store.ArchivePath(date), daily))
}

func somePosts() []archive.Post {
	return []archive.Post{{PostID: "p1", ContentText: "text", Reposts: 5, Comments: 3, Likes: 2}}
}

func record(title string, heat float64) *archive.TopicRecord {
	return &archive.TopicRecord{
		Title:     title,
		Slug:      archive.Slugify(title),
		FirstSeen: "2025-01-14T09:00:00+08:00",
		LastSeen:  "2025-01-14T10:00:00+08:00",
		HotValues: map[string]float64{"2025-01-14T10:00:00+08:00": heat},
	}
}

func TestRunProcessesOnlyTopK(t *testing.T) {
	daily := archive.Daily{
		"A": record("A", 500),
		"B": record("B", 300),
		"C": record("C", 100),
	}

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: -0.5, Region: "北京", TopicType: "社会"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{
		"A": somePosts(), "B": somePosts(), "C": somePosts(),
	}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	assert.ElementsMatch(t, []string{"A", "B"}, classifier.topics)

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))

	assert.Equal(t, archive.StateSucceeded, got["A"].ProcessingStatus.State)
	assert.Equal(t, archive.StateSucceeded, got["B"].ProcessingStatus.State)
	assert.Nil(t, got["C"].ProcessingStatus)
	assert.Empty(t, got["C"].LastContentUpdateDate)
	assert.NotNil(t, got["A"].RiskDims)
	assert.NotEmpty(t, got["A"].LastContentUpdateDate)
}

func TestRunDedupPrefersHighestHeat(t *testing.T) {
	daily := archive.Daily{
		"topic":  record("topic", 250),
		"topic ": record("topic ", 100),
	}
	// Both keys share the canonical title "topic".
	daily["topic "].Title = "topic"

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: 0, Region: "未知", TopicType: "社会"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{"topic": somePosts()}}

	cfg := testConfig()
	cfg.EnrichmentTopK = 10

	p, st := newTestPipeline(t, cfg, classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	require.Len(t, classifier.topics, 1)
	assert.Equal(t, "topic", classifier.topics[0])

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	assert.Equal(t, archive.StateSucceeded, got["topic"].ProcessingStatus.State)
	assert.Nil(t, got["topic "].ProcessingStatus)
}

func TestRunSkipsTopicWithoutPosts(t *testing.T) {
	daily := archive.Daily{"A": record("A", 100)}

	classifier := &fakeClassifier{result: &archive.Classification{}}
	posts := &fakePostSource{posts: map[string][]archive.Post{}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	assert.Empty(t, classifier.topics)

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	require.NotNil(t, got["A"].ProcessingStatus)
	assert.Equal(t, archive.StateSkipped, got["A"].ProcessingStatus.State)
	assert.Equal(t, "no_posts", got["A"].ProcessingStatus.Detail)
}

func TestRunClassifierErrorIsolatedPerTopic(t *testing.T) {
	daily := archive.Daily{"A": record("A", 100)}

	classifier := &fakeClassifier{err: errors.New("model unavailable")}
	posts := &fakePostSource{posts: map[string][]archive.Post{"A": somePosts()}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	require.NotNil(t, got["A"].ProcessingStatus)
	assert.Equal(t, archive.StateError, got["A"].ProcessingStatus.State)
	assert.Contains(t, got["A"].ProcessingStatus.Error, "model unavailable")
}

func TestRunSkipsRecentlyRefreshedUnlessForced(t *testing.T) {
	today := time.Now().In(archive.SourceTZ).Format(archive.DateLayout)

	rec := record("A", 100)
	rec.LastContentUpdateDate = today
	daily := archive.Daily{"A": rec}

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: 0.2, Region: "未知", TopicType: "娱乐"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{"A": somePosts()}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))
	assert.Empty(t, classifier.topics)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", true))
	assert.Equal(t, []string{"A"}, classifier.topics)
}

func TestRunPushesWarningsOnlyOnChange(t *testing.T) {
	daily := archive.Daily{"A": record("A", 100)}

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: -0.9, Region: "北京", TopicType: "时政"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{"A": somePosts()}}
	notifier := &recordingNotifier{}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, notifier)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))
	assert.Len(t, notifier.risk, 1)

	// Nothing pending on the second run: snapshot regenerated, no push.
	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))
	assert.Len(t, notifier.risk, 1)
	assert.True(t, st.Exists(store.RiskLatestPath()))
}

func TestRunCapsStoredPosts(t *testing.T) {
	daily := archive.Daily{"A": record("A", 100)}

	many := make([]archive.Post, 30)
	for i := range many {
		many[i] = archive.Post{PostID: "p", ContentText: "x", Likes: 1}
	}

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: 0, Region: "未知", TopicType: "社会"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{"A": many}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	assert.Len(t, got["A"].Posts, 20)
}

func TestRunTracksKnownPostIDs(t *testing.T) {
	daily := archive.Daily{"A": record("A", 100)}

	classifier := &fakeClassifier{result: &archive.Classification{Sentiment: 0, Region: "未知", TopicType: "社会"}}
	posts := &fakePostSource{posts: map[string][]archive.Post{"A": {
		{PostID: "p1", ContentText: "first"},
		{PostID: "p2", ContentText: "second"},
		{ContentText: "no id, never tracked"},
	}}}

	p, st := newTestPipeline(t, testConfig(), classifier, posts, nil)
	seedArchive(t, st, "2025-01-14", daily)

	require.NoError(t, p.Run(context.Background(), "2025-01-14", false))

	var got archive.Daily
	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	assert.Equal(t, []string{"p1", "p2"}, got["A"].KnownPostIDs)

	// A forced re-run over the same posts must not duplicate ledger entries.
	posts.posts["A"] = append(posts.posts["A"], archive.Post{PostID: "p3", ContentText: "third"})
	require.NoError(t, p.Run(context.Background(), "2025-01-14", true))

	require.True(t, st.Read(store.ArchivePath("2025-01-14"), &got))
	assert.Equal(t, []string{"p1", "p2", "p3"}, got["A"].KnownPostIDs)
}

func TestTopRiskWarningsRanksWithRecencyDecay(t *testing.T) {
	p, st := newTestPipeline(t, testConfig(), &fakeClassifier{}, &fakePostSource{}, nil)

	now := time.Now().In(archive.SourceTZ)
	yesterday := now.AddDate(0, 0, -1).Format(archive.DateLayout)
	threeDaysAgo := now.AddDate(0, 0, -3).Format(archive.DateLayout)

	recent := record("recent", 10)
	recent.RiskScore = 40
	recent.RiskLevel = "mid"
	recent.LastSeen = yesterday + "T10:00:00+08:00"
	seedArchive(t, st, yesterday, archive.Daily{"recent": recent})

	old := record("old", 10)
	old.RiskScore = 45
	old.RiskLevel = "mid"
	old.LastSeen = threeDaysAgo + "T10:00:00+08:00"
	seedArchive(t, st, threeDaysAgo, archive.Daily{"old": old})

	warnings := p.TopRiskWarnings()
	require.Len(t, warnings.Events, 2)

	// 40 - 1*5 = 35 beats 45 - 3*5 = 30.
	assert.Equal(t, "recent", warnings.Events[0].Name)
	assert.Equal(t, "old", warnings.Events[1].Name)
	assert.NotEmpty(t, warnings.GeneratedAt)
}

func TestTopRiskWarningsHonorsTopK(t *testing.T) {
	cfg := testConfig()
	cfg.RiskTopK = 1

	p, st := newTestPipeline(t, cfg, &fakeClassifier{}, &fakePostSource{}, nil)

	yesterday := time.Now().In(archive.SourceTZ).AddDate(0, 0, -1).Format(archive.DateLayout)

	daily := archive.Daily{}
	for _, name := range []string{"a", "b", "c"} {
		rec := record(name, 10)
		rec.RiskScore = 30
		daily[name] = rec
	}

	seedArchive(t, st, yesterday, daily)

	warnings := p.TopRiskWarnings()
	assert.Len(t, warnings.Events, 1)
}
