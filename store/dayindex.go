package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akolotov/crhoy-bot/model"
)

// UpsertDayIndex inserts or overwrites a day-index record.
func (sess *Session) UpsertDayIndex(ctx context.Context, rec model.DayIndexRecord) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO day_index_records (date, path) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET path = excluded.path`,
		rec.Date.Format(dateLayout), rec.Path,
	)
	if err != nil {
		return fmt.Errorf("store: upsert day index %s: %w", rec.Date.Format(dateLayout), err)
	}
	return nil
}

// HasDayIndex reports whether a day-index record exists for date.
func (sess *Session) HasDayIndex(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := sess.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM day_index_records WHERE date = ?`, date.Format(dateLayout),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: has day index %s: %w", date.Format(dateLayout), err)
	}
	return count > 0, nil
}

// NewestDayIndexDate returns the most recent date with a day-index record.
// Returns ErrNotFound if none exist.
func (sess *Session) NewestDayIndexDate(ctx context.Context) (time.Time, error) {
	return sess.dayIndexExtreme(ctx, "DESC")
}

// OldestDayIndexDate returns the oldest date with a day-index record.
// Returns ErrNotFound if none exist.
func (sess *Session) OldestDayIndexDate(ctx context.Context) (time.Time, error) {
	return sess.dayIndexExtreme(ctx, "ASC")
}

func (sess *Session) dayIndexExtreme(ctx context.Context, order string) (time.Time, error) {
	query := `SELECT date FROM day_index_records ORDER BY date ` + order + ` LIMIT 1`
	var dateStr string
	err := sess.tx.QueryRowContext(ctx, query).Scan(&dateStr)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: day index extreme: %w", err)
	}
	t, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse day index date %q: %w", dateStr, err)
	}
	return t, nil
}
