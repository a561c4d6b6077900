package store

import (
	"context"
	"fmt"
	"time"

	"github.com/akolotov/crhoy-bot/model"
)

// InsertDelivery records a successful send, used to suppress duplicates
// within a window (spec.md §3, §4.5).
func (sess *Session) InsertDelivery(ctx context.Context, d model.Delivery) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO deliveries (article_id, timestamp) VALUES (?, ?)
		ON CONFLICT(article_id) DO NOTHING`,
		d.ArticleID, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: insert delivery %d: %w", d.ArticleID, err)
	}
	return nil
}

// DeleteDeliveriesBefore purges delivery rows older than the current
// window's lower bound.
func (sess *Session) DeleteDeliveriesBefore(ctx context.Context, before time.Time) error {
	_, err := sess.tx.ExecContext(ctx,
		`DELETE FROM deliveries WHERE timestamp < ?`, before)
	if err != nil {
		return fmt.Errorf("store: delete deliveries before %s: %w", before, err)
	}
	return nil
}

// DeliveryIDsSince returns the article ids with a delivery timestamp at or
// after since — the Notifier's "exclude set" (spec.md §4.5 step 3).
func (sess *Session) DeliveryIDsSince(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT article_id FROM deliveries WHERE timestamp >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("store: delivery ids since %s: %w", since, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
