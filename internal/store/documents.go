package store

import (
	"fmt"
	"path/filepath"
)

// Document path layout under the data root:
//
//	hourly/{date}/{hour}.json    one immutable snapshot per hour
//	archive/{date}.json          daily archive, title -> record
//	hotlist/latest.json          mirror of the most recent hourly snapshot
//	posts/{date}/{slug}.json     sample-post snapshot per topic
//	risk_warnings/latest.json    current top-K risk warning snapshot
//	risk_warnings/{date}.json    dated copy for historical lookup
const (
	hourlyDir   = "hourly"
	archiveDir  = "archive"
	hotlistDir  = "hotlist"
	postsDir    = "posts"
	riskDir     = "risk_warnings"
	latestFile  = "latest.json"
	jsonPattern = "%s.json"
)

// HourlyPath returns the document path for one (date, hour) snapshot.
func HourlyPath(date, hour string) string {
	return filepath.Join(hourlyDir, date, fmt.Sprintf(jsonPattern, hour))
}

// ArchivePath returns the daily archive document path.
func ArchivePath(date string) string {
	return filepath.Join(archiveDir, fmt.Sprintf(jsonPattern, date))
}

// HotlistLatestPath returns the path of the latest-hour mirror document.
func HotlistLatestPath() string {
	return filepath.Join(hotlistDir, latestFile)
}

// PostSnapshotPath returns the sample-post document path for one topic slug.
func PostSnapshotPath(date, slug string) string {
	return filepath.Join(postsDir, date, fmt.Sprintf(jsonPattern, slug))
}

// RiskLatestPath returns the path of the current risk warning snapshot.
func RiskLatestPath() string {
	return filepath.Join(riskDir, latestFile)
}

// RiskArchivePath returns the dated risk warning snapshot path.
func RiskArchivePath(date string) string {
	return filepath.Join(riskDir, fmt.Sprintf(jsonPattern, date))
}

// HotlistMirror is the external-consumer view of the freshest hourly snapshot.
type HotlistMirror struct {
	Date string `json:"date"`
	Hour string `json:"hour"`
	Data any    `json:"data"`
}

// SaveHourly persists an hourly snapshot and refreshes the hotlist mirror.
func (s *Store) SaveHourly(date, hour string, data any) error {
	if err := s.Write(HourlyPath(date, hour), data); err != nil {
		return err
	}

	return s.Write(HotlistLatestPath(), HotlistMirror{Date: date, Hour: hour, Data: data})
}

// HasHourly reports whether the snapshot for (date, hour) already exists.
// Hourly snapshots are write-once; an existing hour is never re-fetched.
func (s *Store) HasHourly(date, hour string) bool {
	return s.Exists(HourlyPath(date, hour))
}
