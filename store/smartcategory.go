package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/akolotov/crhoy-bot/model"
)

// SeedSmartCategories upserts the fixed initial Smart-Category set
// (including the reserved __unknown__ sentinel) at startup. Safe to call on
// every boot — existing rows are left untouched.
func (s *Store) SeedSmartCategories(ctx context.Context, seeds []model.SmartCategory) error {
	return s.WithSession(ctx, func(ctx context.Context, sess *Session) error {
		for _, sc := range seeds {
			if err := sess.InsertSmartCategoryIfAbsent(ctx, sc); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertSmartCategoryIfAbsent inserts a Smart-Category, idempotently. Used
// both for seeding and for Stage D's runtime category creation (spec.md
// §4.4.3).
func (sess *Session) InsertSmartCategoryIfAbsent(ctx context.Context, sc model.SmartCategory) error {
	ignore := 0
	if sc.Ignore {
		ignore = 1
	}
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO smart_categories (name, description, ignore_flag)
		VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		sc.Name, sc.Description, ignore,
	)
	if err != nil {
		return fmt.Errorf("store: insert smart category %q: %w", sc.Name, err)
	}
	return nil
}

// GetSmartCategory loads a single Smart-Category by name. Returns
// ErrNotFound if it does not exist.
func (sess *Session) GetSmartCategory(ctx context.Context, name string) (model.SmartCategory, error) {
	var sc model.SmartCategory
	var ignore int
	err := sess.tx.QueryRowContext(ctx,
		`SELECT name, description, ignore_flag FROM smart_categories WHERE name = ?`, name,
	).Scan(&sc.Name, &sc.Description, &ignore)
	if err == sql.ErrNoRows {
		return model.SmartCategory{}, ErrNotFound
	}
	if err != nil {
		return model.SmartCategory{}, fmt.Errorf("store: get smart category %q: %w", name, err)
	}
	sc.Ignore = ignore != 0
	return sc, nil
}

// ListSmartCategories returns the dynamic Smart-Category catalog.
// When excludeSentinel is true, the reserved __unknown__ row is omitted, as
// required by the Stage A/B/C/D pipeline inputs in spec.md §4.4.3.
func (sess *Session) ListSmartCategories(ctx context.Context, excludeSentinel bool) ([]model.SmartCategory, error) {
	query := `SELECT name, description, ignore_flag FROM smart_categories`
	args := []any{}
	if excludeSentinel {
		query += ` WHERE name != ?`
		args = append(args, model.UnknownCategory)
	}
	query += ` ORDER BY name ASC`

	rows, err := sess.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list smart categories: %w", err)
	}
	defer rows.Close()

	var out []model.SmartCategory
	for rows.Next() {
		var sc model.SmartCategory
		var ignore int
		if err := rows.Scan(&sc.Name, &sc.Description, &ignore); err != nil {
			return nil, fmt.Errorf("store: scan smart category: %w", err)
		}
		sc.Ignore = ignore != 0
		out = append(out, sc)
	}
	return out, rows.Err()
}
