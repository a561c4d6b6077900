package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/akolotov/crhoy-bot/model"
)

// UpsertVerdict writes (or overwrites, for the failed-retry path) a
// Verdict row.
func (sess *Session) UpsertVerdict(ctx context.Context, v model.Verdict) error {
	skipped, failed := 0, 0
	if v.Skipped {
		skipped = 1
	}
	if v.Failed {
		failed = 1
	}
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO verdicts (article_id, timestamp, relation, category, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			relation = excluded.relation,
			category = excluded.category,
			skipped = excluded.skipped,
			failed = excluded.failed`,
		v.ArticleID, v.Timestamp, string(v.Relation), v.Category, skipped, failed,
	)
	if err != nil {
		return fmt.Errorf("store: upsert verdict %d: %w", v.ArticleID, err)
	}
	return nil
}

// GetVerdict loads a Verdict by article id. Returns ErrNotFound if none
// exists yet.
func (sess *Session) GetVerdict(ctx context.Context, articleID int64) (model.Verdict, error) {
	var v model.Verdict
	var relation string
	var skipped, failed int
	err := sess.tx.QueryRowContext(ctx, `
		SELECT article_id, timestamp, relation, category, skipped, failed
		FROM verdicts WHERE article_id = ?`, articleID,
	).Scan(&v.ArticleID, &v.Timestamp, &relation, &v.Category, &skipped, &failed)
	if err == sql.ErrNoRows {
		return model.Verdict{}, ErrNotFound
	}
	if err != nil {
		return model.Verdict{}, fmt.Errorf("store: get verdict %d: %w", articleID, err)
	}
	v.Relation = model.Relation(relation)
	v.Skipped = skipped != 0
	v.Failed = failed != 0
	return v, nil
}

// InsertSummary writes a per-language Summary row. Must be called in the
// same transaction as the Verdict it belongs to (spec.md §3's Verdict
// invariant).
func (sess *Session) InsertSummary(ctx context.Context, s model.Summary) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO summaries (article_id, lang, path) VALUES (?, ?, ?)
		ON CONFLICT(article_id, lang) DO UPDATE SET path = excluded.path`,
		s.ArticleID, s.Lang, s.Path,
	)
	if err != nil {
		return fmt.Errorf("store: insert summary %d/%s: %w", s.ArticleID, s.Lang, err)
	}
	return nil
}

// GetSummary loads the summary text path for an article in a given
// language. Returns ErrNotFound if missing.
func (sess *Session) GetSummary(ctx context.Context, articleID int64, lang string) (model.Summary, error) {
	var s model.Summary
	err := sess.tx.QueryRowContext(ctx,
		`SELECT article_id, lang, path FROM summaries WHERE article_id = ? AND lang = ?`,
		articleID, lang,
	).Scan(&s.ArticleID, &s.Lang, &s.Path)
	if err == sql.ErrNoRows {
		return model.Summary{}, ErrNotFound
	}
	if err != nil {
		return model.Summary{}, fmt.Errorf("store: get summary %d/%s: %w", articleID, lang, err)
	}
	return s, nil
}

// QualifyingAnalyses returns the Article⋈Verdict projection the Notifier
// sweeps each batch: successful verdicts at or after since, excluding any
// article id already present in excludeIDs, ordered by timestamp ascending
// (spec.md §4.1's last bullet, §4.5 step 4).
func (sess *Session) QualifyingAnalyses(ctx context.Context, since time.Time, excludeIDs []int64) ([]model.NotifierRow, error) {
	query := `
		SELECT v.article_id, v.timestamp, a.url, v.category
		FROM verdicts v
		JOIN articles a ON a.id = v.article_id
		WHERE v.timestamp >= ? AND v.skipped = 0 AND v.failed = 0`
	args := []any{since}

	if len(excludeIDs) > 0 {
		placeholders := make([]string, len(excludeIDs))
		for i, id := range excludeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND v.article_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY v.timestamp ASC`

	rows, err := sess.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: qualifying analyses: %w", err)
	}
	defer rows.Close()

	var out []model.NotifierRow
	for rows.Next() {
		var r model.NotifierRow
		if err := rows.Scan(&r.ArticleID, &r.Timestamp, &r.URL, &r.Category); err != nil {
			return nil, fmt.Errorf("store: scan qualifying analysis: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
