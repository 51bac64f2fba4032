package archive

import (
	"sort"
	"strings"
)

// CanonicalName resolves the deduplication key for a record stored under key:
// the trimmed title when present, otherwise the map key itself.
func CanonicalName(key string, record *TopicRecord) string {
	if record != nil {
		if title := strings.TrimSpace(record.Title); title != "" {
			return title
		}
	}

	return key
}

// DedupByCanonical resolves which archive key wins for each canonical name:
// the record with the highest current heat. Keys are visited in sorted order
// so ties resolve deterministically.
func DedupByCanonical(daily Daily) map[string]string {
	winners := make(map[string]string, len(daily))

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, key := range keys {
		record := daily[key]
		canonical := CanonicalName(key, record)

		existing, ok := winners[canonical]
		if !ok || record.CurrentHeat() > daily[existing].CurrentHeat() {
			winners[canonical] = key
		}
	}

	return winners
}
