// Package archive holds the per-day topic records and the upsert/dedup engine
// that merges hourly snapshots into them.
package archive

import (
	"fmt"
	"sort"
	"time"
)

// SourceTZ is the timezone the upstream trending source publishes in. All
// hour-boundary timestamps on records use it.
var SourceTZ = time.FixedZone("UTC+8", 8*60*60)

const (
	// DateLayout is the calendar-date key used for documents and markers.
	DateLayout = "2006-01-02"
	// timeLayout is RFC3339 with seconds, matching persisted timestamps.
	timeLayout = "2006-01-02T15:04:05Z07:00"
)

// TopicEntry is one normalized row of an hourly snapshot. The fetcher's
// normalization boundary is the only place external payload shapes are
// interpreted; everything downstream sees this struct.
type TopicEntry struct {
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Heat        float64 `json:"heat"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// Classification is the label set returned by the external classifier.
type Classification struct {
	Sentiment       float64            `json:"sentiment"`
	Region          string             `json:"region"`
	TopicType       string             `json:"topic_type"`
	HealthMajor     string             `json:"health_major,omitempty"`
	HealthMinor     string             `json:"health_minor,omitempty"`
	SentimentVector map[string]float64 `json:"sentiment_vector,omitempty"`
	Source          string             `json:"source,omitempty"`
}

// RiskDims are the four bounded risk sub-scores.
type RiskDims struct {
	Negativity  float64 `json:"negativity"`
	Growth      float64 `json:"growth"`
	Sensitivity float64 `json:"sensitivity"`
	Crowd       float64 `json:"crowd"`
}

// Processing states for the enrichment pipeline.
const (
	StateProcessing = "processing"
	StateSucceeded  = "succeeded"
	StateSkipped    = "skipped"
	StateError      = "error"
)

// ProcessingStatus tracks where a topic sits in the enrichment state machine.
type ProcessingStatus struct {
	State     string `json:"state"`
	UpdatedAt string `json:"updated_at"`
	StartedAt string `json:"started_at,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Post is a normalized sample post with engagement counters.
type Post struct {
	PostID      string   `json:"post_id"`
	PublishedAt string   `json:"published_at,omitempty"`
	AccountName string   `json:"account_name,omitempty"`
	ContentText string   `json:"content_text"`
	Media       []string `json:"media,omitempty"`
	Reposts     int      `json:"reposts"`
	Comments    int      `json:"comments"`
	Likes       int      `json:"likes"`
}

// TopicRecord aggregates one distinct topic title across a calendar day.
type TopicRecord struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	FirstSeen     string             `json:"first_seen"`
	LastSeen      string             `json:"last_seen"`
	AppearedHours []string           `json:"appeared_hours"`
	Hot           float64            `json:"hot"`
	HotValues     map[string]float64 `json:"hot_values"`

	NeedsRefresh    bool     `json:"needs_refresh"`
	KnownPostIDs    []string `json:"known_post_ids"`
	LastPostRefresh string   `json:"last_post_refresh,omitempty"`

	Posts                 []Post `json:"posts,omitempty"`
	LastContentUpdateDate string `json:"last_content_update_date,omitempty"`

	Classification *Classification `json:"classification,omitempty"`

	RiskDims       *RiskDims `json:"risk_dims,omitempty"`
	RiskScore      float64   `json:"risk_score"`
	RiskLow        float64   `json:"risk_low"`
	RiskMid        float64   `json:"risk_mid"`
	RiskHigh       float64   `json:"risk_high"`
	RiskLevel      string    `json:"risk_level,omitempty"`
	RiskLevelLabel string    `json:"risk_level_label,omitempty"`

	ProcessingStatus *ProcessingStatus `json:"processing_status,omitempty"`
}

// Daily maps topic title to its record for one calendar date.
type Daily map[string]*TopicRecord

// HourKey renders an hour-of-day as the zero-padded two-digit form used in
// appeared_hours and document names.
func HourKey(hour int) string {
	return fmt.Sprintf("%02d", hour)
}

// HourBoundary returns the timestamp of the top of (date, hour) in SourceTZ.
func HourBoundary(date string, hour int) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, SourceTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour %d", hour)
	}

	return day.Add(time.Duration(hour) * time.Hour), nil
}

// SeenTime renders the hour boundary as the persisted timestamp form.
func SeenTime(date string, hour int) (string, error) {
	boundary, err := HourBoundary(date, hour)
	if err != nil {
		return "", err
	}

	return boundary.Format(timeLayout), nil
}

// CurrentHeat returns the most recent heat reading for a record, preferring
// the hot_values series over the raw hot field.
func (r *TopicRecord) CurrentHeat() float64 {
	if len(r.HotValues) > 0 {
		keys := sortedHotKeys(r.HotValues)

		return r.HotValues[keys[len(keys)-1]]
	}

	return r.Hot
}

// LatestHeats returns the newest and second-newest readings from the
// hot_values series. Missing readings are nil.
func (r *TopicRecord) LatestHeats() (current, previous *float64) {
	if len(r.HotValues) == 0 {
		return nil, nil
	}

	keys := sortedHotKeys(r.HotValues)

	cur := r.HotValues[keys[len(keys)-1]]
	current = &cur

	if len(keys) >= 2 {
		prev := r.HotValues[keys[len(keys)-2]]
		previous = &prev
	}

	return current, previous
}

// sortedHotKeys orders hot_values timestamp keys lexicographically, which for
// the persisted layout is chronological order.
func sortedHotKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
