package enrich

import (
	"context"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/store"
)

// storePostSource reads sample-post snapshots dropped into the data root by
// the acquisition tooling, keyed by day and topic slug. A missing document
// means the topic simply has no posts yet.
type storePostSource struct {
	store *store.Store
}

// NewStorePostSource returns a PostSource backed by posts/{date}/{slug}.json
// documents in the data root.
func NewStorePostSource(st *store.Store) PostSource {
	return &storePostSource{store: st}
}

func (s *storePostSource) FetchPosts(_ context.Context, date string, record *archive.TopicRecord) ([]archive.Post, error) {
	// Posts already carried on the record win over a snapshot on disk.
	if len(record.Posts) > 0 {
		return record.Posts, nil
	}

	slug := archive.Slugify(archive.CanonicalName(record.Title, record))
	if slug == "" {
		return nil, nil
	}

	var payload PostPayload
	if !s.store.Read(store.PostSnapshotPath(date, slug), &payload) {
		return nil, nil
	}

	return NormalizePosts(&payload, slug), nil
}
