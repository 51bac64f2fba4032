// Package risk scores enriched topics on four bounded dimensions and folds
// them into a weighted aggregate with qualitative tiers.
package risk

import (
	"math"

	"github.com/lueurxax/trendpulse/internal/archive"
)

// Dimension weights of the aggregate score. They sum to 1.
const (
	weightNegativity  = 0.35
	weightGrowth      = 0.25
	weightSensitivity = 0.20
	weightCrowd       = 0.20
)

// Tier thresholds on the aggregate score.
const (
	highThreshold = 50.0
	midThreshold  = 20.0
)

// Tier keys and their display labels.
const (
	LevelLow  = "low"
	LevelMid  = "mid"
	LevelHigh = "high"

	LabelLow     = "低风险"
	LabelMid     = "中风险"
	LabelHigh    = "高风险"
	LabelUnknown = "未知"
)

// Topic types ranked by sensitivity. Anything outside both sets scores low.
var (
	highSensitive = map[string]struct{}{
		"时政": {}, "社会": {}, "财经": {}, "军事": {}, "教育": {},
	}

	mediumSensitive = map[string]struct{}{
		"科技": {}, "健康": {}, "文化": {}, "能源": {}, "交通": {}, "农业": {}, "公益": {},
	}
)

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Negativity maps a sentiment in [-1, 1] onto [0, 100], most negative first.
func Negativity(sentiment float64) float64 {
	return clamp(((-sentiment + 1) / 2) * 100)
}

// Growth scores heat momentum from the two most recent readings. A missing
// reading is neutral; growth from a non-positive baseline is maximal.
func Growth(current, previous *float64) float64 {
	if current == nil || previous == nil {
		return 50
	}

	if *previous <= 0 {
		return 100
	}

	ratio := (*current - *previous) / *previous

	return clamp(50 + 50*math.Max(-1, math.Min(1, ratio)))
}

// Sensitivity scores a topic type by its category set.
func Sensitivity(topicType string) float64 {
	if _, ok := highSensitive[topicType]; ok {
		return 85
	}

	if _, ok := mediumSensitive[topicType]; ok {
		return 60
	}

	return 40
}

// Crowd scores engagement volume on a log scale. Zero engagement floors at 20.
func Crowd(posts []archive.Post) float64 {
	total := 0
	for _, p := range posts {
		total += p.Reposts + p.Comments + p.Likes
	}

	if total <= 0 {
		return 20
	}

	return clamp(20 + 20*math.Log10(1+float64(total)))
}

// Aggregate folds the four dimensions into one weighted score in [0, 100].
func Aggregate(dims archive.RiskDims) float64 {
	sum := weightNegativity*clamp(dims.Negativity) +
		weightGrowth*clamp(dims.Growth) +
		weightSensitivity*clamp(dims.Sensitivity) +
		weightCrowd*clamp(dims.Crowd)

	return clamp(sum)
}

// Level returns the qualitative tier key for a score.
func Level(score float64) string {
	normalized := clamp(score)

	switch {
	case normalized >= highThreshold:
		return LevelHigh
	case normalized >= midThreshold:
		return LevelMid
	default:
		return LevelLow
	}
}

// Label returns the display label for a tier key.
func Label(level string) string {
	switch level {
	case LevelLow:
		return LabelLow
	case LevelMid:
		return LabelMid
	case LevelHigh:
		return LabelHigh
	default:
		return LabelUnknown
	}
}

// Segments splits a score into one-hot low/mid/high buckets: the tier the
// score falls in carries the full value, the others are zero.
func Segments(score float64) (low, mid, high float64) {
	normalized := clamp(score)

	switch Level(normalized) {
	case LevelHigh:
		return 0, 0, normalized
	case LevelMid:
		return 0, normalized, 0
	default:
		return normalized, 0, 0
	}
}

// Apply computes every risk field for a record in place: dimensions from the
// classification and heat series, the aggregate, tier segments, and labels.
func Apply(record *archive.TopicRecord) {
	if record == nil || record.Classification == nil {
		return
	}

	current, previous := record.LatestHeats()

	dims := archive.RiskDims{
		Negativity:  Negativity(record.Classification.Sentiment),
		Growth:      Growth(current, previous),
		Sensitivity: Sensitivity(record.Classification.TopicType),
		Crowd:       Crowd(record.Posts),
	}

	record.RiskDims = &dims
	record.RiskScore = Aggregate(dims)
	record.RiskLow, record.RiskMid, record.RiskHigh = Segments(record.RiskScore)
	record.RiskLevel = Level(record.RiskScore)
	record.RiskLevelLabel = Label(record.RiskLevel)
}
