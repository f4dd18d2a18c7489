package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/store"
	"github.com/calmspace/apiserver/internal/validation"
	"github.com/calmspace/apiserver/types"
)

const (
	msgMoodNotFound = "Mood entry not found"

	defaultMoodLimit = 30
	maxMoodLimit     = 1000
	defaultPeriod    = 30
	maxPeriod        = 3650

	day         = 24 * time.Hour
	trendWindow = 7 * day
	dateLayout  = "2006-01-02"
)

// MoodInput is a new journal entry.
type MoodInput struct {
	MoodScore  int     `json:"moodScore" validate:"min=1,max=5"`
	Reflection *string `json:"reflection" validate:"omitempty,max=1000"`
}

// MoodUpdate carries the entry fields to change. A null reflection clears it.
type MoodUpdate struct {
	MoodScore  types.Optional[int]    `json:"moodScore"`
	Reflection types.Optional[string] `json:"reflection"`
}

// MoodListParams holds the raw query parameters of a history request.
type MoodListParams struct {
	Limit     string
	Offset    string
	StartDate string
	EndDate   string
}

// MoodService records and summarizes mood entries.
type MoodService struct {
	repo   MoodRepository
	events EventPublisher
	clock  func() time.Time
}

func NewMoodService(repo MoodRepository, events EventPublisher) *MoodService {
	if events == nil {
		events = noopEvents{}
	}
	return &MoodService{
		repo:   repo,
		events: events,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

func reflectionOrNil(reflection *string) *string {
	if reflection == nil || strings.TrimSpace(*reflection) == "" {
		return nil
	}
	return reflection
}

// AddEntry stores a new entry stamped with the current time.
func (s *MoodService) AddEntry(ctx context.Context, userID int64, in MoodInput) (types.MoodEntry, error) {
	if errs := validation.Struct(in); len(errs) > 0 {
		return types.MoodEntry{}, invalid(errs...)
	}
	entry, err := s.repo.Create(ctx, types.MoodEntry{
		UserID:     userID,
		MoodScore:  in.MoodScore,
		Reflection: reflectionOrNil(in.Reflection),
	})
	if err != nil {
		return types.MoodEntry{}, err
	}
	s.events.PublishEvent(ctx, mq.Event{
		Type:   mq.EventMoodEntryCreated,
		UserID: userID,
		Data:   map[string]any{"entryId": entry.ID, "moodScore": entry.MoodScore},
	})
	return entry, nil
}

// ListEntries returns one page of entries in chronological order. Pages are
// counted from the most recent entry.
func (s *MoodService) ListEntries(ctx context.Context, userID int64, params MoodListParams) (types.MoodPage, error) {
	filter, err := parseListParams(params)
	if err != nil {
		return types.MoodPage{}, err
	}

	total, err := s.repo.Count(ctx, userID, filter)
	if err != nil {
		return types.MoodPage{}, err
	}

	entries := make([]types.MoodEntry, 0)
	if filter.Limit > 0 {
		entries, err = s.repo.List(ctx, userID, filter)
		if err != nil {
			return types.MoodPage{}, err
		}
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	return types.MoodPage{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: total > filter.Offset+filter.Limit,
	}, nil
}

func parseListParams(params MoodListParams) (store.MoodFilter, error) {
	var (
		filter  store.MoodFilter
		details []validation.FieldError
	)

	limit, err := parseCount(params.Limit, defaultMoodLimit)
	switch {
	case err != nil:
		details = append(details, validation.FieldError{Field: "limit", Message: "limit must be a non-negative integer"})
	case limit > maxMoodLimit:
		details = append(details, validation.FieldError{Field: "limit", Message: fmt.Sprintf("limit must be at most %d", maxMoodLimit)})
	}
	offset, err := parseCount(params.Offset, 0)
	if err != nil {
		details = append(details, validation.FieldError{Field: "offset", Message: "offset must be a non-negative integer"})
	}

	if params.StartDate != "" {
		start, _, err := parseDate(params.StartDate)
		if err != nil {
			details = append(details, validation.FieldError{Field: "startDate", Message: "startDate must be an RFC 3339 timestamp or YYYY-MM-DD date"})
		} else {
			filter.From = &start
		}
	}
	if params.EndDate != "" {
		end, dateOnly, err := parseDate(params.EndDate)
		if err != nil {
			details = append(details, validation.FieldError{Field: "endDate", Message: "endDate must be an RFC 3339 timestamp or YYYY-MM-DD date"})
		} else {
			// Before is exclusive: a bare date covers that whole day.
			if dateOnly {
				end = end.Add(day)
			} else {
				end = end.Add(time.Nanosecond)
			}
			filter.Before = &end
		}
	}

	if len(details) > 0 {
		return store.MoodFilter{}, invalid(details...)
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func parseCount(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

func parseDate(raw string) (t time.Time, dateOnly bool, err error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err = time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

// Stats summarizes the entries of the last period days. An empty period
// defaults to 30.
func (s *MoodService) Stats(ctx context.Context, userID int64, period string) (types.MoodStats, error) {
	days, err := parseCount(period, defaultPeriod)
	if err != nil || days < 1 || days > maxPeriod {
		return types.MoodStats{}, invalidField("period", fmt.Sprintf("period must be an integer between 1 and %d", maxPeriod))
	}

	now := s.clock()
	// Entries stamped in the current second are part of the window.
	end := now.Add(time.Second)
	start := now.Add(-time.Duration(days) * day)

	average, total, err := s.repo.Average(ctx, userID, start, end)
	if err != nil {
		return types.MoodStats{}, err
	}
	counts, err := s.repo.Distribution(ctx, userID, start)
	if err != nil {
		return types.MoodStats{}, err
	}
	distribution := make([]types.MoodBucket, 0, types.MaxMoodScore)
	for score := types.MinMoodScore; score <= types.MaxMoodScore; score++ {
		distribution = append(distribution, types.MoodBucket{MoodScore: score, Count: counts[score]})
	}

	current, currentCount, err := s.repo.Average(ctx, userID, now.Add(-trendWindow), end)
	if err != nil {
		return types.MoodStats{}, err
	}
	previous, previousCount, err := s.repo.Average(ctx, userID, now.Add(-2*trendWindow), now.Add(-trendWindow))
	if err != nil {
		return types.MoodStats{}, err
	}
	trend := types.MoodTrend{Current: current, Previous: previous}
	if currentCount > 0 && previousCount > 0 {
		trend.Change = current - previous
	}

	return types.MoodStats{
		Period:           days,
		StartDate:        start,
		EndDate:          now,
		AverageMood:      average,
		TotalEntries:     total,
		MoodDistribution: distribution,
		RecentTrend:      trend,
	}, nil
}

// UpdateEntry changes the score and/or reflection of one of the user's entries.
func (s *MoodService) UpdateEntry(ctx context.Context, userID, entryID int64, in MoodUpdate) (types.MoodEntry, error) {
	if !in.MoodScore.Set && !in.Reflection.Set {
		return types.MoodEntry{}, invalidField("body", "at least one of moodScore or reflection is required")
	}
	var details []validation.FieldError
	if in.MoodScore.Set {
		if in.MoodScore.Null {
			details = append(details, validation.FieldError{Field: "moodScore", Message: "moodScore cannot be null"})
		} else if fe := validation.Var("moodScore", in.MoodScore.Value, "min=1,max=5"); fe != nil {
			details = append(details, *fe)
		}
	}
	if in.Reflection.Present() {
		if fe := validation.Var("reflection", in.Reflection.Value, "max=1000"); fe != nil {
			details = append(details, *fe)
		}
	}
	if len(details) > 0 {
		return types.MoodEntry{}, invalid(details...)
	}

	entry, err := s.repo.Get(ctx, userID, entryID)
	if err != nil {
		return types.MoodEntry{}, mapMoodError(err)
	}
	if in.MoodScore.Set {
		entry.MoodScore = in.MoodScore.Value
	}
	if in.Reflection.Set {
		entry.Reflection = reflectionOrNil(in.Reflection.Ptr())
	}
	updated, err := s.repo.Update(ctx, entry)
	if err != nil {
		return types.MoodEntry{}, mapMoodError(err)
	}
	return updated, nil
}

// DeleteEntry removes one of the user's entries.
func (s *MoodService) DeleteEntry(ctx context.Context, userID, entryID int64) error {
	if _, err := s.repo.Get(ctx, userID, entryID); err != nil {
		return mapMoodError(err)
	}
	return mapMoodError(s.repo.Delete(ctx, userID, entryID))
}

func mapMoodError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Message: msgMoodNotFound}
	}
	return err
}
