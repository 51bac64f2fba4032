package fetcher

import (
	"strings"

	"github.com/lueurxax/trendpulse/internal/archive"
)

// NormalizeEntries maps one raw snapshot payload into canonical topic
// entries. This is the only place upstream field-name variants are
// interpreted; rows without a usable title are dropped.
func NormalizeEntries(raw []map[string]any) []archive.TopicEntry {
	entries := make([]archive.TopicEntry, 0, len(raw))

	for i, row := range raw {
		title := firstString(row, "title", "name", "word")
		if strings.TrimSpace(title) == "" {
			continue
		}

		rank := i + 1
		if r, ok := row["rank"].(float64); ok && r > 0 {
			rank = int(r)
		}

		entries = append(entries, archive.TopicEntry{
			Rank:        rank,
			Title:       strings.TrimSpace(title),
			Heat:        firstHeat(row, "hot", "heat", "score"),
			Category:    firstString(row, "category"),
			Description: firstString(row, "description", "desc"),
			URL:         firstString(row, "url"),
		})
	}

	return entries
}

func firstString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := row[key].(string); ok && s != "" {
			return s
		}
	}

	return ""
}

func firstHeat(row map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if raw, ok := row[key]; ok {
			if heat := archive.CoerceHeat(raw); heat != 0 {
				return heat
			}
		}
	}

	return 0
}
