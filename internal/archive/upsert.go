package archive

import (
	"sort"
	"strings"
)

// Upsert merges one snapshot entry into the daily map for (date, hour) and
// returns the touched record. Entries with a blank title are ignored.
// Applying the same entry for the same hour twice leaves the map unchanged.
func Upsert(daily Daily, entry TopicEntry, date string, hour int) (*TopicRecord, error) {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil, nil
	}

	seen, err := SeenTime(date, hour)
	if err != nil {
		return nil, err
	}

	hourKey := HourKey(hour)

	record, ok := daily[title]
	if !ok {
		record = &TopicRecord{
			Title:         title,
			Slug:          Slugify(title),
			Category:      entry.Category,
			Description:   entry.Description,
			URL:           entry.URL,
			FirstSeen:     seen,
			LastSeen:      seen,
			AppearedHours: []string{hourKey},
			Hot:           entry.Heat,
			HotValues:     map[string]float64{seen: entry.Heat},
			NeedsRefresh:  true,
			KnownPostIDs:  []string{},
		}

		if record.Description == "" {
			record.Description = title
		}

		daily[title] = record

		return record, nil
	}

	if !containsHour(record.AppearedHours, hourKey) {
		record.AppearedHours = append(record.AppearedHours, hourKey)
		sort.Strings(record.AppearedHours)
	}

	record.LastSeen = seen
	record.Hot = entry.Heat

	if record.HotValues == nil {
		record.HotValues = map[string]float64{}
	}

	record.HotValues[seen] = entry.Heat

	if entry.Category != "" {
		record.Category = entry.Category
	}

	if entry.Description != "" {
		record.Description = entry.Description
	}

	if entry.URL != "" {
		record.URL = entry.URL
	}

	if record.LastPostRefresh != date {
		record.NeedsRefresh = true
	}

	return record, nil
}

// ApplySnapshot upserts every entry of an hourly snapshot and reports how
// many records were newly created.
func ApplySnapshot(daily Daily, entries []TopicEntry, date string, hour int) (created int, err error) {
	for _, entry := range entries {
		before := len(daily)

		if _, err := Upsert(daily, entry, date, hour); err != nil {
			return created, err
		}

		if len(daily) > before {
			created++
		}
	}

	return created, nil
}

func containsHour(hours []string, key string) bool {
	for _, h := range hours {
		if h == key {
			return true
		}
	}

	return false
}
