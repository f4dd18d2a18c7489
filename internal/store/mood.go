package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/calmspace/apiserver/types"
)

// MoodRepository handles persistence for mood entries.
type MoodRepository struct {
	db *sql.DB
}

func NewMoodRepository(db *sql.DB) *MoodRepository {
	return &MoodRepository{db: db}
}

// MoodFilter narrows a mood listing. From is inclusive, Before is exclusive.
// A zero Limit returns every matching row.
type MoodFilter struct {
	From   *time.Time
	Before *time.Time
	Limit  int
	Offset int
}

// where renders the filter's conditions. Placeholders are numbered after the
// user id, which is always $1.
func (f MoodFilter) where(userID int64) (string, []any) {
	clause := ` WHERE user_id = $1`
	args := []any{userID}
	if f.From != nil {
		args = append(args, f.From.UTC())
		clause += ` AND timestamp >= $` + strconv.Itoa(len(args))
	}
	if f.Before != nil {
		args = append(args, f.Before.UTC())
		clause += ` AND timestamp < $` + strconv.Itoa(len(args))
	}
	return clause, args
}

func scanMood(row interface{ Scan(...any) error }) (types.MoodEntry, error) {
	var (
		entry      types.MoodEntry
		reflection sql.NullString
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.MoodScore, &reflection, &entry.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.MoodEntry{}, ErrNotFound
		}
		return types.MoodEntry{}, err
	}
	if reflection.Valid {
		s := reflection.String
		entry.Reflection = &s
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}

func (r *MoodRepository) Create(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	entry.Timestamp = now()

	const query = `
		INSERT INTO mood_entries (user_id, mood_score, reflection, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.UserID,
		entry.MoodScore,
		entry.Reflection,
		entry.Timestamp,
	).Scan(&entry.ID); err != nil {
		return types.MoodEntry{}, fmt.Errorf("insert mood entry: %w", err)
	}
	return entry, nil
}

// Get returns the entry only when it belongs to userID.
func (r *MoodRepository) Get(ctx context.Context, userID, id int64) (types.MoodEntry, error) {
	const query = `
		SELECT id, user_id, mood_score, reflection, timestamp
		FROM mood_entries
		WHERE id = $1 AND user_id = $2`
	return scanMood(r.db.QueryRowContext(ctx, query, id, userID))
}

// List returns one page of matching entries, most recent first.
func (r *MoodRepository) List(ctx context.Context, userID int64, filter MoodFilter) ([]types.MoodEntry, error) {
	where, args := filter.where(userID)
	query := `SELECT id, user_id, mood_score, reflection, timestamp FROM mood_entries` +
		where + ` ORDER BY timestamp DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mood entries: %w", err)
	}
	defer rows.Close()

	entries := make([]types.MoodEntry, 0)
	for rows.Next() {
		entry, err := scanMood(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of entries matching the filter's date bounds.
func (r *MoodRepository) Count(ctx context.Context, userID int64, filter MoodFilter) (int, error) {
	where, args := filter.where(userID)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mood_entries`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count mood entries: %w", err)
	}
	return total, nil
}

// Average returns the mean score and the entry count over [from, before).
// The mean is 0 when the window is empty.
func (r *MoodRepository) Average(ctx context.Context, userID int64, from, before time.Time) (float64, int, error) {
	const query = `
		SELECT AVG(mood_score), COUNT(*)
		FROM mood_entries
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3`
	var (
		avg   sql.NullFloat64
		count int
	)
	if err := r.db.QueryRowContext(ctx, query, userID, from.UTC(), before.UTC()).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("average mood: %w", err)
	}
	return avg.Float64, count, nil
}

// Distribution counts entries per score at or after since. Scores without
// entries are absent from the map.
func (r *MoodRepository) Distribution(ctx context.Context, userID int64, since time.Time) (map[int]int, error) {
	const query = `
		SELECT mood_score, COUNT(*)
		FROM mood_entries
		WHERE user_id = $1 AND timestamp >= $2
		GROUP BY mood_score`
	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("mood distribution: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var score, count int
		if err := rows.Scan(&score, &count); err != nil {
			return nil, err
		}
		counts[score] = count
	}
	return counts, rows.Err()
}

// Totals summarizes all of the user's entries. recent counts the entries
// recorded at or after since.
func (r *MoodRepository) Totals(ctx context.Context, userID int64, since time.Time) (totals types.MoodTotals, recent int, err error) {
	const query = `
		SELECT COUNT(*),
			AVG(mood_score),
			MAX(timestamp),
			COALESCE(SUM(CASE WHEN timestamp >= $1 THEN 1 ELSE 0 END), 0)
		FROM mood_entries
		WHERE user_id = $2`
	var (
		avg  sql.NullFloat64
		last nullTimestamp
	)
	if err := r.db.QueryRowContext(ctx, query, since.UTC(), userID).Scan(
		&totals.TotalEntries,
		&avg,
		&last,
		&recent,
	); err != nil {
		return types.MoodTotals{}, 0, fmt.Errorf("query mood totals: %w", err)
	}
	totals.AverageMood = avg.Float64
	totals.LastEntryTime = last.Ptr()
	return totals, recent, nil
}

// Update rewrites the score and reflection of an owned entry.
func (r *MoodRepository) Update(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	const query = `
		UPDATE mood_entries
		SET mood_score = $1,
			reflection = $2
		WHERE id = $3 AND user_id = $4`
	result, err := r.db.ExecContext(ctx, query, entry.MoodScore, entry.Reflection, entry.ID, entry.UserID)
	if err != nil {
		return types.MoodEntry{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.MoodEntry{}, err
	}
	if affected == 0 {
		return types.MoodEntry{}, ErrNotFound
	}
	return entry, nil
}

func (r *MoodRepository) Delete(ctx context.Context, userID, id int64) error {
	const query = `DELETE FROM mood_entries WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
