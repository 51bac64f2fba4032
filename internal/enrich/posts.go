package enrich

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/lueurxax/trendpulse/internal/archive"
)

// PostSource supplies sample posts for a topic. The concrete implementation
// is an external collaborator (local crawler output or a posts API); an empty
// result is not an error and yields a skipped topic.
type PostSource interface {
	FetchPosts(ctx context.Context, date string, record *archive.TopicRecord) ([]archive.Post, error)
}

// PostPayload is the raw sample-post document produced by acquisition tools.
type PostPayload struct {
	Items []map[string]any `json:"items"`
}

// NormalizePosts maps raw post items onto the canonical Post shape. Field
// name variants are resolved here only; timestamps are reparsed into RFC3339
// in the source timezone.
func NormalizePosts(payload *PostPayload, fallbackSlug string) []archive.Post {
	if payload == nil || len(payload.Items) == 0 {
		return nil
	}

	posts := make([]archive.Post, 0, len(payload.Items))

	for idx, item := range payload.Items {
		postID := stringValue(item, "id", "post_id")
		if postID == "" {
			postID = fmt.Sprintf("%s_%d", fallbackSlug, idx)
		}

		account := stringValue(item, "user_name", "author")
		if account == "" {
			account = "未知用户"
		}

		posts = append(posts, archive.Post{
			PostID:      postID,
			PublishedAt: normalizeTimestamp(stringValue(item, "created_at", "timestamp")),
			AccountName: account,
			ContentText: stringValue(item, "text", "content"),
			Media:       coerceMedia(item),
			Reposts:     intValue(item, "reposts", "forwards_count"),
			Comments:    intValue(item, "comments", "comments_count"),
			Likes:       intValue(item, "likes", "likes_count"),
		})
	}

	return posts
}

func normalizeTimestamp(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := dateparse.ParseIn(raw, archive.SourceTZ)
	if err != nil {
		return raw
	}

	return parsed.In(archive.SourceTZ).Format(time.RFC3339)
}

func coerceMedia(item map[string]any) []string {
	var media []string

	pics, ok := item["pics"].([]any)
	if !ok {
		pics, _ = item["image_links"].([]any)
	}

	for _, pic := range pics {
		switch v := pic.(type) {
		case string:
			media = append(media, v)
		case map[string]any:
			if url, ok := v["url"].(string); ok && url != "" {
				media = append(media, url)
			} else if large, ok := v["large"].(map[string]any); ok {
				if url, ok := large["url"].(string); ok && url != "" {
					media = append(media, url)
				}
			}
		}
	}

	if video, ok := item["video"].(map[string]any); ok {
		if streams, ok := video["streams"].(map[string]any); ok {
			for _, raw := range streams {
				if url, ok := raw.(string); ok && url != "" {
					media = append(media, url)

					break
				}
			}
		}

		if url, ok := video["url"].(string); ok && url != "" {
			media = append(media, url)
		}
	}

	return media
}

func stringValue(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return ""
}

func intValue(item map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := item[key].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}

	return 0
}
