package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akolotov/crhoy-bot/model"
)

// InsertArticleIfAbsent inserts a newly-seen article. It is a no-op if the
// article id already exists, satisfying the Synchronizer's idempotence
// requirement (spec.md §8, "Re-running the Synchronizer on an
// already-populated day is a no-op for Articles").
func (sess *Session) InsertArticleIfAbsent(ctx context.Context, a model.Article) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO articles (id, url, timestamp, body_path, skipped, failed)
		VALUES (?, ?, ?, '', 0, 0)
		ON CONFLICT(id) DO NOTHING`,
		a.ID, a.URL, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: insert article %d: %w", a.ID, err)
	}
	return nil
}

// InsertCategoryIfAbsent inserts a category path, idempotently.
func (sess *Session) InsertCategoryIfAbsent(ctx context.Context, name string) error {
	_, err := sess.tx.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("store: insert category %q: %w", name, err)
	}
	return nil
}

// RelateArticleCategory links an article to a category, idempotently.
func (sess *Session) RelateArticleCategory(ctx context.Context, articleID int64, category string) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO article_categories (article_id, category_name)
		VALUES (?, ?) ON CONFLICT DO NOTHING`,
		articleID, category,
	)
	if err != nil {
		return fmt.Errorf("store: relate article %d to category %q: %w", articleID, category, err)
	}
	return nil
}

// ArticleCategories returns the upstream category paths related to an
// article.
func (sess *Session) ArticleCategories(ctx context.Context, articleID int64) ([]string, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT category_name FROM article_categories WHERE article_id = ?`, articleID)
	if err != nil {
		return nil, fmt.Errorf("store: article categories %d: %w", articleID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: scan article category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkArticleSkipped marks an article as filtered by category, per spec.md
// §3's article-lifecycle invariant.
func (sess *Session) MarkArticleSkipped(ctx context.Context, articleID int64) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE articles SET skipped = 1 WHERE id = ?`, articleID)
	if err != nil {
		return fmt.Errorf("store: mark article %d skipped: %w", articleID, err)
	}
	return nil
}

// MarkArticleFailed marks an article as permanently failed (fetch or parse).
func (sess *Session) MarkArticleFailed(ctx context.Context, articleID int64) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE articles SET failed = 1 WHERE id = ?`, articleID)
	if err != nil {
		return fmt.Errorf("store: mark article %d failed: %w", articleID, err)
	}
	return nil
}

// SetArticleBodyPath records the filesystem path of the downloaded body.
func (sess *Session) SetArticleBodyPath(ctx context.Context, articleID int64, path string) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE articles SET body_path = ? WHERE id = ?`, path, articleID)
	if err != nil {
		return fmt.Errorf("store: set article %d body path: %w", articleID, err)
	}
	return nil
}

// GetArticle loads a single article by id, including its category
// relations. Returns ErrNotFound if no such article exists.
func (sess *Session) GetArticle(ctx context.Context, articleID int64) (model.Article, error) {
	var a model.Article
	var skipped, failed int
	err := sess.tx.QueryRowContext(ctx,
		`SELECT id, url, timestamp, body_path, skipped, failed FROM articles WHERE id = ?`,
		articleID,
	).Scan(&a.ID, &a.URL, &a.Timestamp, &a.BodyPath, &skipped, &failed)
	if err == sql.ErrNoRows {
		return model.Article{}, ErrNotFound
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("store: get article %d: %w", articleID, err)
	}
	a.Skipped = skipped != 0
	a.Failed = failed != 0

	cats, err := sess.ArticleCategories(ctx, articleID)
	if err != nil {
		return model.Article{}, err
	}
	a.Categories = cats
	return a, nil
}

// PendingArticlesRecent returns up to limit pending articles with
// timestamp >= since, ordered oldest first — the "recent band" of
// spec.md §4.3.1.
func (sess *Session) PendingArticlesRecent(ctx context.Context, since time.Time, limit int) ([]model.Article, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, url, timestamp, body_path, skipped, failed FROM articles
		WHERE body_path = '' AND skipped = 0 AND failed = 0 AND timestamp >= ?
		ORDER BY timestamp ASC
		LIMIT ?`, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: pending articles recent: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// PendingArticlesOlder returns up to limit pending articles with
// timestamp < before, ordered newest first — the "older band" of
// spec.md §4.3.1.
func (sess *Session) PendingArticlesOlder(ctx context.Context, before time.Time, limit int) ([]model.Article, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, url, timestamp, body_path, skipped, failed FROM articles
		WHERE body_path = '' AND skipped = 0 AND failed = 0 AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: pending articles older: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var out []model.Article
	for rows.Next() {
		var a model.Article
		var skipped, failed int
		if err := rows.Scan(&a.ID, &a.URL, &a.Timestamp, &a.BodyPath, &skipped, &failed); err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		a.Skipped = skipped != 0
		a.Failed = failed != 0
		out = append(out, a)
	}
	return out, rows.Err()
}
