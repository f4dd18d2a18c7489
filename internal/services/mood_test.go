package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/calmspace/apiserver/types"
)

func TestAddEntryRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	cases := []MoodInput{
		{MoodScore: 0},
		{MoodScore: 6},
		{MoodScore: -1},
		{MoodScore: 3, Reflection: strPtr(strings.Repeat("é", 1001))},
	}
	for _, in := range cases {
		if _, err := h.moods.AddEntry(ctx, alice.User.ID, in); !errors.As(err, new(*ValidationError)) {
			t.Fatalf("input %+v: expected validation error, got %v", in.MoodScore, err)
		}
	}

	page, err := h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected nothing persisted, got %d entries", page.Total)
	}

	// 1000 multi-byte characters is within the limit.
	entry, err := h.moods.AddEntry(ctx, alice.User.ID, MoodInput{MoodScore: 5, Reflection: strPtr(strings.Repeat("é", 1000))})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if entry.Reflection == nil {
		t.Fatalf("expected reflection to be stored")
	}
}

func TestMoodOwnershipIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")
	bob := h.register(t, "bob0001")

	entry, err := h.moods.AddEntry(ctx, alice.User.ID, MoodInput{MoodScore: 2})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	_, err = h.moods.UpdateEntry(ctx, bob.User.ID, entry.ID, MoodUpdate{MoodScore: types.Some(5)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on foreign update, got %v", err)
	}
	if err := h.moods.DeleteEntry(ctx, bob.User.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on foreign delete, got %v", err)
	}

	page, err := h.moods.ListEntries(ctx, bob.User.ID, MoodListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("bob should see no entries, got %d", page.Total)
	}
}

func TestMoodScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	entry, err := h.moods.AddEntry(ctx, alice.User.ID, MoodInput{MoodScore: 3})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	stats, err := h.moods.Stats(ctx, alice.User.ID, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Period != 30 || stats.TotalEntries != 1 || stats.AverageMood != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.MoodDistribution) != 5 || stats.MoodDistribution[2].Count != 1 {
		t.Fatalf("unexpected distribution: %+v", stats.MoodDistribution)
	}

	if err := h.moods.DeleteEntry(ctx, alice.User.ID, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, err = h.moods.Stats(ctx, alice.User.ID, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 0 || stats.AverageMood != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	if err := h.moods.DeleteEntry(ctx, alice.User.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMoodStatsPeriodValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice01")

	for _, period := range []string{"0", "-3", "abc", "3651"} {
		if _, err := h.moods.Stats(context.Background(), alice.User.ID, period); !errors.As(err, new(*ValidationError)) {
			t.Fatalf("period %q: expected validation error, got %v", period, err)
		}
	}
}

func TestMoodTrend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	now := time.Now().UTC()
	insert := func(score int, at time.Time) {
		t.Helper()
		if _, err := h.conn.Exec(
			`INSERT INTO mood_entries (user_id, mood_score, timestamp) VALUES ($1, $2, $3)`,
			alice.User.ID, score, at,
		); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
	}
	insert(4, now.Add(-time.Hour))
	insert(2, now.Add(-10*24*time.Hour))

	stats, err := h.moods.Stats(ctx, alice.User.ID, "30")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.RecentTrend.Current != 4 || stats.RecentTrend.Previous != 2 || stats.RecentTrend.Change != 2 {
		t.Fatalf("unexpected trend: %+v", stats.RecentTrend)
	}

	stats, err = h.moods.Stats(ctx, alice.User.ID, "7")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 1 {
		t.Fatalf("expected one entry in a 7 day window, got %d", stats.TotalEntries)
	}
}

func TestListEntriesPagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	for score := 1; score <= 5; score++ {
		if _, err := h.moods.AddEntry(ctx, alice.User.ID, MoodInput{MoodScore: score}); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	page, err := h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{Limit: "2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || !page.HasMore || len(page.Entries) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	// The newest two, oldest first.
	if page.Entries[0].MoodScore != 4 || page.Entries[1].MoodScore != 5 {
		t.Fatalf("unexpected entries: %+v", page.Entries)
	}

	page, err = h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{Limit: "2", Offset: "4"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.HasMore || len(page.Entries) != 1 || page.Entries[0].MoodScore != 1 {
		t.Fatalf("unexpected last page: %+v", page)
	}

	page, err = h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{Limit: "0"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Entries) != 0 || page.Total != 5 || !page.HasMore {
		t.Fatalf("unexpected empty page: %+v", page)
	}

	for _, params := range []MoodListParams{{Limit: "-1"}, {Limit: "1001"}, {Offset: "x"}, {StartDate: "yesterday"}} {
		if _, err := h.moods.ListEntries(ctx, alice.User.ID, params); !errors.As(err, new(*ValidationError)) {
			t.Fatalf("params %+v: expected validation error, got %v", params, err)
		}
	}
}

func TestListEntriesDateRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	for _, at := range []string{"2024-01-01T09:00:00Z", "2024-01-02T23:30:00Z", "2024-01-03T00:00:00Z"} {
		ts, _ := time.Parse(time.RFC3339, at)
		if _, err := h.conn.Exec(
			`INSERT INTO mood_entries (user_id, mood_score, timestamp) VALUES ($1, $2, $3)`,
			alice.User.ID, 3, ts,
		); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
	}

	page, err := h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{StartDate: "2024-01-02", EndDate: "2024-01-02"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected the whole of Jan 2 only, got %d entries", page.Total)
	}

	page, err = h.moods.ListEntries(ctx, alice.User.ID, MoodListParams{EndDate: "2024-01-03T00:00:00Z"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected an RFC 3339 end bound to be inclusive, got %d entries", page.Total)
	}
}

func TestUpdateEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	entry, err := h.moods.AddEntry(ctx, alice.User.ID, MoodInput{MoodScore: 2, Reflection: strPtr("rough day")})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	updated, err := h.moods.UpdateEntry(ctx, alice.User.ID, entry.ID, MoodUpdate{MoodScore: types.Some(4)})
	if err != nil {
		t.Fatalf("update score: %v", err)
	}
	if updated.MoodScore != 4 || updated.Reflection == nil || *updated.Reflection != "rough day" {
		t.Fatalf("unexpected entry after score update: %+v", updated)
	}

	updated, err = h.moods.UpdateEntry(ctx, alice.User.ID, entry.ID, MoodUpdate{Reflection: types.Null[string]()})
	if err != nil {
		t.Fatalf("clear reflection: %v", err)
	}
	if updated.Reflection != nil || updated.MoodScore != 4 {
		t.Fatalf("unexpected entry after clearing reflection: %+v", updated)
	}

	for _, in := range []MoodUpdate{{}, {MoodScore: types.Null[int]()}, {MoodScore: types.Some(9)}} {
		if _, err := h.moods.UpdateEntry(ctx, alice.User.ID, entry.ID, in); !errors.As(err, new(*ValidationError)) {
			t.Fatalf("update %+v: expected validation error, got %v", in, err)
		}
	}
	if _, err := h.moods.UpdateEntry(ctx, alice.User.ID, 9999, MoodUpdate{MoodScore: types.Some(3)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
