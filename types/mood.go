package types

import "time"

const (
	// MinMoodScore and MaxMoodScore bound every stored mood score.
	MinMoodScore = 1
	MaxMoodScore = 5

	// MaxReflectionLength is the longest reflection accepted, in characters.
	MaxReflectionLength = 1000
)

// MoodEntry is one journal entry recording how the user felt.
type MoodEntry struct {
	// ID is the unique identifier of the entry.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the owner of the entry.
	UserID int64 `json:"-" db:"user_id"`

	// MoodScore is the self-reported mood, from 1 (lowest) to 5 (highest).
	MoodScore int `json:"mood_score" db:"mood_score"`

	// Reflection is an optional free-text note attached to the entry.
	Reflection *string `json:"reflection" db:"reflection"`

	// Timestamp is the time the entry was recorded.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// MoodPage is one page of a user's mood history in chronological order.
type MoodPage struct {
	Entries []MoodEntry `json:"entries"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"hasMore"`
}

// MoodBucket counts the entries recorded with a single score.
type MoodBucket struct {
	MoodScore int `json:"mood_score"`
	Count     int `json:"count"`
}

// MoodTrend compares the last seven days with the seven days before.
type MoodTrend struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   float64 `json:"change"`
}

// MoodStats aggregates a user's mood entries over a period of days.
type MoodStats struct {
	Period           int          `json:"period"`
	StartDate        time.Time    `json:"startDate"`
	EndDate          time.Time    `json:"endDate"`
	AverageMood      float64      `json:"averageMood"`
	TotalEntries     int          `json:"totalEntries"`
	MoodDistribution []MoodBucket `json:"moodDistribution"`
	RecentTrend      MoodTrend    `json:"recentTrend"`
}
