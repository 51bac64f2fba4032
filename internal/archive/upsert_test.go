package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCreatesRecord(t *testing.T) {
	daily := Daily{}

	record, err := Upsert(daily, TopicEntry{Rank: 1, Title: "某地暴雨", Heat: 1200000, Category: "社会"}, "2025-01-15", 9)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "某地暴雨", record.Title)
	assert.Equal(t, []string{"09"}, record.AppearedHours)
	assert.Equal(t, "2025-01-15T09:00:00+08:00", record.FirstSeen)
	assert.Equal(t, record.FirstSeen, record.LastSeen)
	assert.True(t, record.NeedsRefresh)
	assert.Equal(t, 1200000.0, record.HotValues[record.FirstSeen])
	// Blank descriptions default to the title.
	assert.Equal(t, "某地暴雨", record.Description)
}

func TestUpsertMergesLaterHour(t *testing.T) {
	daily := Daily{}

	_, err := Upsert(daily, TopicEntry{Title: "topic", Heat: 100}, "2025-01-15", 9)
	require.NoError(t, err)

	record, err := Upsert(daily, TopicEntry{Title: "topic", Heat: 250}, "2025-01-15", 11)
	require.NoError(t, err)

	assert.Equal(t, []string{"09", "11"}, record.AppearedHours)
	assert.Equal(t, "2025-01-15T09:00:00+08:00", record.FirstSeen)
	assert.Equal(t, "2025-01-15T11:00:00+08:00", record.LastSeen)
	assert.Len(t, record.HotValues, 2)
	assert.Equal(t, 250.0, record.CurrentHeat())
}

func TestUpsertSkipsBlankTitle(t *testing.T) {
	daily := Daily{}

	record, err := Upsert(daily, TopicEntry{Title: "   "}, "2025-01-15", 9)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, daily)
}

func TestUpsertRejectsBadInputs(t *testing.T) {
	daily := Daily{}

	_, err := Upsert(daily, TopicEntry{Title: "x"}, "not-a-date", 9)
	assert.Error(t, err)

	_, err = Upsert(daily, TopicEntry{Title: "x"}, "2025-01-15", 24)
	assert.Error(t, err)
}

func TestApplySnapshotIsIdempotent(t *testing.T) {
	entries := []TopicEntry{
		{Rank: 1, Title: "alpha", Heat: 900},
		{Rank: 2, Title: "beta", Heat: 700},
	}

	daily := Daily{}

	created, err := ApplySnapshot(daily, entries, "2025-01-15", 8)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	first, err := json.Marshal(daily)
	require.NoError(t, err)

	created, err = ApplySnapshot(daily, entries, "2025-01-15", 8)
	require.NoError(t, err)
	assert.Zero(t, created)

	second, err := json.Marshal(daily)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestUpsertMarksRefreshWhenPostsAreStale(t *testing.T) {
	daily := Daily{}

	record, err := Upsert(daily, TopicEntry{Title: "topic", Heat: 10}, "2025-01-15", 7)
	require.NoError(t, err)

	// Posts refreshed today: a later hour must not flip the flag back.
	record.NeedsRefresh = false
	record.LastPostRefresh = "2025-01-15"

	record, err = Upsert(daily, TopicEntry{Title: "topic", Heat: 20}, "2025-01-15", 8)
	require.NoError(t, err)
	assert.False(t, record.NeedsRefresh)

	// Refreshed on an earlier date: the flag comes back.
	record.LastPostRefresh = "2025-01-14"

	record, err = Upsert(daily, TopicEntry{Title: "topic", Heat: 30}, "2025-01-15", 9)
	require.NoError(t, err)
	assert.True(t, record.NeedsRefresh)
}

func TestDedupByCanonicalKeepsHighestHeat(t *testing.T) {
	daily := Daily{
		"topic ": {Title: "topic ", Hot: 100},
		"topic":  {Title: "topic", Hot: 250},
	}

	winners := DedupByCanonical(daily)
	require.Len(t, winners, 1)
	assert.Equal(t, "topic", winners["topic"])
}

func TestLatestHeats(t *testing.T) {
	record := &TopicRecord{HotValues: map[string]float64{
		"2025-01-15T08:00:00+08:00": 100,
		"2025-01-15T10:00:00+08:00": 300,
		"2025-01-15T09:00:00+08:00": 200,
	}}

	current, previous := record.LatestHeats()
	require.NotNil(t, current)
	require.NotNil(t, previous)
	assert.Equal(t, 300.0, *current)
	assert.Equal(t, 200.0, *previous)

	empty := &TopicRecord{}
	current, previous = empty.LatestHeats()
	assert.Nil(t, current)
	assert.Nil(t, previous)
}
