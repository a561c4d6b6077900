package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akolotov/crhoy-bot/model"
)

const dateLayout = "2006-01-02"

// EarliestGap returns the gap with the smallest start date. Returns
// ErrNotFound if there are no gaps.
func (sess *Session) EarliestGap(ctx context.Context) (model.Gap, error) {
	var startStr, endStr string
	err := sess.tx.QueryRowContext(ctx, `
		SELECT start_date, end_date FROM gaps ORDER BY start_date ASC LIMIT 1`,
	).Scan(&startStr, &endStr)
	if err == sql.ErrNoRows {
		return model.Gap{}, ErrNotFound
	}
	if err != nil {
		return model.Gap{}, fmt.Errorf("store: earliest gap: %w", err)
	}
	return parseGap(startStr, endStr)
}

// GapContainsDate reports whether date falls inside any stored gap's
// half-open [start, end) range.
func (sess *Session) GapContainsDate(ctx context.Context, date time.Time) (bool, error) {
	d := date.Format(dateLayout)
	var count int
	err := sess.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM gaps WHERE start_date <= ? AND end_date > ?`, d, d,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: gap contains date %s: %w", d, err)
	}
	return count > 0, nil
}

// InsertGap inserts a new gap row.
func (sess *Session) InsertGap(ctx context.Context, g model.Gap) error {
	_, err := sess.tx.ExecContext(ctx,
		`INSERT INTO gaps (start_date, end_date) VALUES (?, ?)`,
		g.Start.Format(dateLayout), g.End.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("store: insert gap [%s, %s): %w",
			g.Start.Format(dateLayout), g.End.Format(dateLayout), err)
	}
	return nil
}

// DeleteGap removes the gap row with the exact given boundaries — deletion
// by containment of the two boundary dates, per spec.md §4.1.
func (sess *Session) DeleteGap(ctx context.Context, g model.Gap) error {
	_, err := sess.tx.ExecContext(ctx,
		`DELETE FROM gaps WHERE start_date = ? AND end_date = ?`,
		g.Start.Format(dateLayout), g.End.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("store: delete gap [%s, %s): %w",
			g.Start.Format(dateLayout), g.End.Format(dateLayout), err)
	}
	return nil
}

func parseGap(startStr, endStr string) (model.Gap, error) {
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return model.Gap{}, fmt.Errorf("store: parse gap start %q: %w", startStr, err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return model.Gap{}, fmt.Errorf("store: parse gap end %q: %w", endStr, err)
	}
	return model.Gap{Start: start, End: end}, nil
}
