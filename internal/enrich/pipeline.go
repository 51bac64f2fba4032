// Package enrich runs the daily bounded-concurrency batch that classifies
// top-ranked topics and recomputes their risk scores.
package enrich

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/notify"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
	"github.com/lueurxax/trendpulse/internal/risk"
	"github.com/lueurxax/trendpulse/internal/store"
)

// Worker outcome statuses, also used as metric labels.
const (
	statusRefreshed = "refreshed"
	statusNoPosts   = "no_posts"
	statusError     = "error"
)

// Pipeline selects, classifies and rescores topics for one day. All archive
// mutation and persistence is serialized on one mutex; the slow network calls
// run outside it.
type Pipeline struct {
	store      *store.Store
	classifier Classifier
	posts      PostSource
	notifier   notify.Notifier
	logger     *zerolog.Logger

	workers  int
	topK     int
	postsCap int

	riskWindowDays int
	riskTopK       int

	mu  sync.Mutex
	now func() time.Time
}

func NewPipeline(
	cfg *config.Config,
	st *store.Store,
	classifier Classifier,
	posts PostSource,
	notifier notify.Notifier,
	logger *zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:          st,
		classifier:     classifier,
		posts:          posts,
		notifier:       notifier,
		logger:         logger,
		workers:        cfg.EnrichmentWorkers,
		topK:           cfg.EnrichmentTopK,
		postsCap:       cfg.StoredPostsCap,
		riskWindowDays: cfg.RiskWindowDays,
		riskTopK:       cfg.RiskTopK,
		now:            time.Now,
	}
}

type batchCounters struct {
	mu             sync.Mutex
	refreshed      int
	skippedNoPosts int
	errors         int
}

func (c *batchCounters) record(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch status {
	case statusRefreshed:
		c.refreshed++
	case statusNoPosts:
		c.skippedNoPosts++
	case statusError:
		c.errors++
	}
}

// Run enriches the archive for targetDate. Without force, topics already
// refreshed today are left alone; force restarts every candidate regardless
// of prior state.
func (p *Pipeline) Run(ctx context.Context, targetDate string, force bool) error {
	started := p.now()
	today := started.In(archive.SourceTZ).Format(archive.DateLayout)

	daily := archive.Daily{}
	if !p.store.Read(store.ArchivePath(targetDate), &daily) || len(daily) == 0 {
		p.logger.Warn().Str("date", targetDate).Msg("enrichment skipped: no archive for date")

		return nil
	}

	pending, skippedRecent := p.selectCandidates(daily, today, force)
	if len(pending) == 0 {
		p.logger.Info().
			Str("date", targetDate).
			Int("skipped_recent", skippedRecent).
			Msg("no pending topics for enrichment")
		p.updateRiskSnapshots(targetDate, false)

		return nil
	}

	workerCount := p.workers
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	if workerCount < 1 {
		workerCount = 1
	}

	p.logger.Info().
		Str("date", targetDate).
		Int("pending", len(pending)).
		Int("workers", workerCount).
		Int("top_k", p.topK).
		Bool("force", force).
		Msg("dispatching enrichment batch")

	counters := &batchCounters{}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workerCount)

	for _, name := range pending {
		group.Go(func() error {
			status := p.processTopic(groupCtx, daily, targetDate, today, name)
			counters.record(status)
			observability.EnrichmentTopics.WithLabelValues(status).Inc()

			// A topic failure never aborts its siblings.
			return nil
		})
	}

	_ = group.Wait() //nolint:errcheck // workers always return nil

	changed := counters.refreshed > 0
	if changed {
		p.mu.Lock()
		p.persistArchive(targetDate, daily)
		p.mu.Unlock()
	}

	p.updateRiskSnapshots(targetDate, changed)

	observability.EnrichmentBatchDurationSeconds.Observe(p.now().Sub(started).Seconds())
	observability.ArchiveTopics.WithLabelValues(targetDate).Set(float64(len(daily)))

	p.logger.Info().
		Str("date", targetDate).
		Int("refreshed", counters.refreshed).
		Int("skipped_recent", skippedRecent).
		Int("skipped_no_posts", counters.skippedNoPosts).
		Int("errors", counters.errors).
		Bool("changed", changed).
		Msg("enrichment batch finished")

	return nil
}

// selectCandidates filters stale topics, collapses canonical duplicates onto
// the hottest variant and returns archive keys ranked by heat, capped at topK.
func (p *Pipeline) selectCandidates(daily archive.Daily, today string, force bool) (pending []string, skippedRecent int) {
	stale := make(archive.Daily, len(daily))

	for key, record := range daily {
		if !force && record.LastContentUpdateDate == today {
			skippedRecent++

			continue
		}

		stale[key] = record
	}

	type candidate struct {
		key  string
		heat float64
	}

	winners := archive.DedupByCanonical(stale)

	ranked := make([]candidate, 0, len(winners))
	for _, key := range winners {
		ranked = append(ranked, candidate{key: key, heat: stale[key].CurrentHeat()})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].heat != ranked[j].heat {
			return ranked[i].heat > ranked[j].heat
		}

		return ranked[i].key < ranked[j].key
	})

	if p.topK > 0 && len(ranked) > p.topK {
		ranked = ranked[:p.topK]
	}

	pending = make([]string, len(ranked))
	for i, c := range ranked {
		pending[i] = c.key
	}

	return pending, skippedRecent
}

// processTopic runs one worker: posts and classification happen outside the
// archive lock, every record mutation and save inside it.
func (p *Pipeline) processTopic(ctx context.Context, daily archive.Daily, targetDate, today, name string) string {
	record, ok := daily[name]
	if !ok {
		p.logger.Warn().Str("topic", name).Str("date", targetDate).Msg("topic missing from archive")

		return statusError
	}

	posts, err := p.posts.FetchPosts(ctx, targetDate, record)
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", name).Msg("post source failed, treating as no posts")

		posts = nil
	}

	if len(posts) == 0 {
		p.setStatus(targetDate, daily, record, &archive.ProcessingStatus{
			State:     archive.StateSkipped,
			UpdatedAt: p.nowISO(),
			Detail:    "no_posts",
		})

		return statusNoPosts
	}

	p.setStatus(targetDate, daily, record, &archive.ProcessingStatus{
		State:     archive.StateProcessing,
		UpdatedAt: p.nowISO(),
		StartedAt: p.nowISO(),
	})

	classification, err := p.classifier.Classify(ctx, record.Title, posts)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", name).Msg("classification failed")
		p.setStatus(targetDate, daily, record, &archive.ProcessingStatus{
			State:     archive.StateError,
			UpdatedAt: p.nowISO(),
			Error:     err.Error(),
		})

		return statusError
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	record.KnownPostIDs = mergeKnownPostIDs(record.KnownPostIDs, posts)

	if len(posts) > p.postsCap {
		posts = posts[:p.postsCap]
	}

	record.Posts = posts
	record.Classification = classification
	risk.Apply(record)
	record.LastContentUpdateDate = today
	record.ProcessingStatus = &archive.ProcessingStatus{
		State:     archive.StateSucceeded,
		UpdatedAt: p.nowISO(),
	}

	p.persistArchive(targetDate, daily)

	p.logger.Info().
		Str("topic", name).
		Float64("sentiment", classification.Sentiment).
		Str("region", classification.Region).
		Str("topic_type", classification.TopicType).
		Float64("risk_score", record.RiskScore).
		Msg("topic risk metrics updated")

	return statusRefreshed
}

// setStatus persists a status transition immediately so a crash mid-batch
// leaves an accurate trail.
func (p *Pipeline) setStatus(targetDate string, daily archive.Daily, record *archive.TopicRecord, status *archive.ProcessingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record.ProcessingStatus = status
	p.persistArchive(targetDate, daily)
}

func (p *Pipeline) persistArchive(targetDate string, daily archive.Daily) {
	if err := p.store.Write(store.ArchivePath(targetDate), daily); err != nil {
		p.logger.Error().Err(err).Str("date", targetDate).Msg("persisting archive failed")
	}
}

func (p *Pipeline) updateRiskSnapshots(targetDate string, push bool) {
	warnings := p.TopRiskWarnings()

	if err := p.store.Write(store.RiskLatestPath(), warnings); err != nil {
		p.logger.Error().Err(err).Msg("persisting latest risk warnings failed")
	}

	dated := *warnings
	dated.Date = targetDate

	if err := p.store.Write(store.RiskArchivePath(targetDate), dated); err != nil {
		p.logger.Error().Err(err).Str("date", targetDate).Msg("persisting dated risk warnings failed")
	}

	if push {
		p.notifier.PushRiskWarnings(warnings)
	}

	p.logger.Info().Int("events", len(warnings.Events)).Bool("pushed", push).Msg("risk warning snapshot updated")
}

func (p *Pipeline) nowISO() string {
	return p.now().In(archive.SourceTZ).Format(time.RFC3339)
}

// mergeKnownPostIDs unions the ids of freshly fetched posts into the record's
// seen-id ledger, keeping first-seen order. The ledger is not subject to the
// stored-posts cap, so re-fetches never re-count an already seen post.
func mergeKnownPostIDs(known []string, posts []archive.Post) []string {
	seen := make(map[string]struct{}, len(known))
	for _, id := range known {
		seen[id] = struct{}{}
	}

	for _, post := range posts {
		if post.PostID == "" {
			continue
		}

		if _, ok := seen[post.PostID]; ok {
			continue
		}

		seen[post.PostID] = struct{}{}

		known = append(known, post.PostID)
	}

	return known
}

func sortedKeys(daily archive.Daily) []string {
	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
