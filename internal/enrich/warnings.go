package enrich

import (
	"sort"
	"time"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/risk"
	"github.com/lueurxax/trendpulse/internal/store"
)

// Decay applied to the ranking key per day of age.
const recencyDecayPerDay = 5.0

// WarningEvent is one ranked entry of the risk warning snapshot.
type WarningEvent struct {
	Name           string                  `json:"name"`
	Date           string                  `json:"date"`
	RiskScore      float64                 `json:"risk_score"`
	RiskLow        float64                 `json:"risk_low"`
	RiskMid        float64                 `json:"risk_mid"`
	RiskHigh       float64                 `json:"risk_high"`
	RiskLevel      string                  `json:"risk_level"`
	RiskLevelLabel string                  `json:"risk_level_label"`
	Classification *archive.Classification `json:"classification,omitempty"`
	RiskDims       *archive.RiskDims       `json:"risk_dims,omitempty"`
	SortKey        float64                 `json:"sort_key"`
}

// Warnings is the persisted top-K risk warning snapshot. Date is set only on
// the dated archive copy.
type Warnings struct {
	GeneratedAt string         `json:"generated_at"`
	Date        string         `json:"date,omitempty"`
	Events      []WarningEvent `json:"events"`
}

// TopRiskWarnings scans the archives of the trailing window, ranks every
// scored topic by its risk score decayed with age, and keeps the top K.
func (p *Pipeline) TopRiskWarnings() *Warnings {
	now := p.now().In(archive.SourceTZ)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, archive.SourceTZ)

	var events []WarningEvent

	for i := 1; i <= p.riskWindowDays; i++ {
		date := today.AddDate(0, 0, -i).Format(archive.DateLayout)

		daily := archive.Daily{}
		if !p.store.Read(store.ArchivePath(date), &daily) {
			continue
		}

		for _, key := range sortedKeys(daily) {
			record := daily[key]

			seenDate := date
			if len(record.LastSeen) >= len(archive.DateLayout) {
				seenDate = record.LastSeen[:len(archive.DateLayout)]
			}

			recencyDays := float64(i)
			if seen, err := time.ParseInLocation(archive.DateLayout, seenDate, archive.SourceTZ); err == nil {
				recencyDays = today.Sub(seen).Hours() / 24
			}

			level := record.RiskLevel
			if level == "" {
				level = risk.Level(record.RiskScore)
			}

			label := record.RiskLevelLabel
			if label == "" {
				label = risk.Label(level)
			}

			events = append(events, WarningEvent{
				Name:           archive.CanonicalName(key, record),
				Date:           seenDate,
				RiskScore:      record.RiskScore,
				RiskLow:        record.RiskLow,
				RiskMid:        record.RiskMid,
				RiskHigh:       record.RiskHigh,
				RiskLevel:      level,
				RiskLevelLabel: label,
				Classification: record.Classification,
				RiskDims:       record.RiskDims,
				SortKey:        record.RiskScore - recencyDays*recencyDecayPerDay,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SortKey > events[j].SortKey
	})

	if p.riskTopK > 0 && len(events) > p.riskTopK {
		events = events[:p.riskTopK]
	}

	return &Warnings{
		GeneratedAt: now.Format(time.RFC3339),
		Events:      events,
	}
}
