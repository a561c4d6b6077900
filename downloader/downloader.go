// Package downloader implements the Downloader/Analyzer (spec.md §4.4): it
// selects Pending articles, fetches and persists their bodies, and drives
// the six-stage LLM analysis pipeline (Classify, Label, Name, Finalize,
// Summarize, Translate) that turns a fetched body into a Verdict.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akolotov/crhoy-bot/llm"
	"github.com/akolotov/crhoy-bot/llm/agent"
	"github.com/akolotov/crhoy-bot/model"
	"github.com/akolotov/crhoy-bot/scheduler"
	"github.com/akolotov/crhoy-bot/siteclient"
	"github.com/akolotov/crhoy-bot/store"
	"github.com/akolotov/crhoy-bot/trigger"
)

// BodyFetcher is the consumer-side surface the Downloader depends on —
// narrowed from siteclient.BodyClient's full API, matching the teacher's
// narrow-interface-per-consumer idiom (e.g. digest.HNClient).
type BodyFetcher interface {
	Fetch(ctx context.Context, url string) (siteclient.Body, error)
}

// Config holds the Downloader's tunables, all sourced from the §6.1
// environment-variable surface, plus the six per-stage agent.Configs spec.md
// §4.4.3/§4.4.4 describe.
type Config struct {
	Zone               *time.Location
	DownloadInterval   time.Duration
	DownloadsChunkSize int
	IgnoreCategories   map[string]bool
	DataDir            string
	SourceLang         string // the site's native language, e.g. "es"
	TargetLang         string // Stage G's translation target, e.g. "en"
	HighRankThreshold  int    // Stage B/D's "accept without Finalize" cutoff, spec.md default 95

	Classifier agent.Config
	Labeler    agent.Config
	Namer      agent.Config
	Finalizer  agent.Config
	Summarizer agent.Config
	Translator agent.Config
}

// Downloader is the long-lived worker implementing spec.md §4.4.
type Downloader struct {
	store     *store.Store
	body      BodyFetcher
	transport llm.Transport
	audit     *llm.AuditLogger
	trig      *trigger.Service
	cfg       Config
}

// New builds a Downloader.
func New(st *store.Store, body BodyFetcher, transport llm.Transport, audit *llm.AuditLogger, trig *trigger.Service, cfg Config) *Downloader {
	return &Downloader{store: st, body: body, transport: transport, audit: audit, trig: trig, cfg: cfg}
}

// Run drives the periodic work-selection loop on the teacher's
// scheduler.Scheduler, adapted to fixed-period (`@every`) scheduling via
// SchedulePeriod — the same idiom the Synchronizer uses — until ctx is
// cancelled, waiting for any in-flight cycle to finish before returning.
func (dl *Downloader) Run(ctx context.Context) error {
	sched, err := scheduler.New(dl.cfg.Zone.String())
	if err != nil {
		return fmt.Errorf("downloader: scheduler: %w", err)
	}
	if err := sched.SchedulePeriod(dl.cfg.DownloadInterval, func() { dl.tick(ctx) }); err != nil {
		return fmt.Errorf("downloader: schedule cycle: %w", err)
	}

	sched.Start()
	slog.Info("downloader started", "download_interval", dl.cfg.DownloadInterval)

	<-ctx.Done()
	slog.Info("downloader stopping")
	sched.Stop()
	return nil
}

// tick runs one Downloader cycle: select a chunk of Pending articles
// (spec.md §4.4.1) and process each in turn.
func (dl *Downloader) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	articles, err := dl.selectWork(ctx)
	if err != nil {
		slog.Warn("downloader: work selection failed", "error", err)
		return
	}

	for _, a := range articles {
		if ctx.Err() != nil {
			return
		}
		if err := dl.ProcessArticle(ctx, a, false); err != nil {
			slog.Warn("downloader: process article failed", "article_id", a.ID, "error", err)
		}
	}
}

// selectWork implements spec.md §4.4.1's two-band work selection: the
// recent band (timestamp >= W) first, then the older band backfilling the
// remainder of the chunk, where W is the current ShiftedPrevious trigger
// boundary.
func (dl *Downloader) selectWork(ctx context.Context) ([]model.Article, error) {
	info := dl.trig.At(time.Now().In(dl.cfg.Zone))
	chunk := dl.cfg.DownloadsChunkSize

	var articles []model.Article
	err := dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		recent, err := sess.PendingArticlesRecent(ctx, info.ShiftedPrevious, chunk)
		if err != nil {
			return err
		}
		articles = recent

		if len(articles) < chunk {
			older, err := sess.PendingArticlesOlder(ctx, info.ShiftedPrevious, chunk-len(articles))
			if err != nil {
				return err
			}
			articles = append(articles, older...)
		}
		return nil
	})
	return articles, err
}

// ProcessArticle runs the full per-article flow (spec.md §4.4.2): category
// filtering, body fetch and persistence, the age-cutoff gate, and — when
// the gate passes — the analysis pipeline. Each step that touches the
// store is its own transaction, so a crash mid-flow leaves the article in
// a well-defined, resumable state. force bypasses the age-cutoff gate
// entirely (spec.md §4.4.5's "unless an explicit force flag is set");
// the always-on cycle above never sets it — it exists for a future
// manual-retry entry point this repo does not otherwise wire up.
func (dl *Downloader) ProcessArticle(ctx context.Context, article model.Article, force bool) error {
	_, skipped, err := dl.filterIgnoredCategory(ctx, article)
	if err != nil {
		return fmt.Errorf("downloader: category filter: %w", err)
	}
	if skipped {
		return nil
	}

	body, ferr := dl.body.Fetch(ctx, article.URL)
	if ferr != nil {
		slog.Warn("downloader: fetch article body failed", "article_id", article.ID, "url", article.URL, "error", ferr)
		return dl.markArticleFailed(ctx, article.ID)
	}

	bodyPath, perr := dl.persistBody(article, body)
	if perr != nil {
		return fmt.Errorf("downloader: persist body: %w", perr)
	}
	if err := dl.setArticleBodyPath(ctx, article.ID, bodyPath); err != nil {
		return fmt.Errorf("downloader: set body path: %w", err)
	}

	analyze, err := dl.shouldAnalyze(ctx, article, force)
	if err != nil {
		return fmt.Errorf("downloader: age-cutoff check: %w", err)
	}
	if !analyze {
		return nil
	}

	if err := dl.analyze(ctx, article, body.Markdown); err != nil {
		if markErr := dl.markVerdictFailed(ctx, article); markErr != nil {
			slog.Warn("downloader: failed to record failed verdict", "article_id", article.ID, "error", markErr)
		}
		return fmt.Errorf("downloader: analysis: %w", err)
	}
	return nil
}

// filterIgnoredCategory implements spec.md §4.4.2 steps 1-2: load the
// article's (first-related) category path and, if it is in the ignore
// set, mark the article skipped and commit — done, no body fetch.
func (dl *Downloader) filterIgnoredCategory(ctx context.Context, article model.Article) (category string, skipped bool, err error) {
	err = dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		cats, err := sess.ArticleCategories(ctx, article.ID)
		if err != nil {
			return err
		}
		if len(cats) > 0 {
			category = cats[0]
		}
		if dl.cfg.IgnoreCategories[category] {
			skipped = true
			return sess.MarkArticleSkipped(ctx, article.ID)
		}
		return nil
	})
	return category, skipped, err
}

func (dl *Downloader) markArticleFailed(ctx context.Context, articleID int64) error {
	return dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.MarkArticleFailed(ctx, articleID)
	})
}

func (dl *Downloader) setArticleBodyPath(ctx context.Context, articleID int64, path string) error {
	return dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.SetArticleBodyPath(ctx, articleID, path)
	})
}

// persistBody writes the extracted article body under
// {DataDir}/news/YYYY-MM-DD/HH-MM-{id}.md (spec.md §6.3) and returns the
// path relative to DataDir, as stored in Article.BodyPath.
func (dl *Downloader) persistBody(article model.Article, body siteclient.Body) (string, error) {
	relPath := newsArticlePath(article, "")
	fullPath := filepath.Join(dl.cfg.DataDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(body.Markdown), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return relPath, nil
}

// persistSummary writes a per-language summary text file under
// {DataDir}/news/YYYY-MM-DD/HH-MM-{id}-sum.{lang}.txt (spec.md §6.3).
func (dl *Downloader) persistSummary(article model.Article, lang, text string) (string, error) {
	relPath := newsArticlePath(article, lang)
	fullPath := filepath.Join(dl.cfg.DataDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return relPath, nil
}

// newsArticlePath builds the on-disk path for an article's body (lang == "")
// or one of its per-language summaries (lang != "").
func newsArticlePath(article model.Article, lang string) string {
	day := article.Timestamp.Format("2006-01-02")
	stamp := fmt.Sprintf("%02d-%02d-%d", article.Timestamp.Hour(), article.Timestamp.Minute(), article.ID)
	if lang == "" {
		return filepath.Join("news", day, stamp+".md")
	}
	return filepath.Join("news", day, fmt.Sprintf("%s-sum.%s.txt", stamp, lang))
}

// shouldAnalyze implements spec.md §4.4.5's age cutoff: articles at or
// after the current Previous trigger boundary are always analyzed;
// earlier ones are analyzed only when force is set or a prior Verdict
// already exists with failed=true. Because Pending work-selection only
// ever surfaces articles with an empty BodyPath, and BodyPath is set
// earlier in this same flow before this gate runs, the failed-verdict
// branch below is unreachable from the ordinary tick loop — it exists so
// a future caller (e.g. a force-reanalysis entry point) invoking
// ProcessArticle directly on an already-downloaded article observes the
// documented rule.
func (dl *Downloader) shouldAnalyze(ctx context.Context, article model.Article, force bool) (bool, error) {
	if force {
		return true, nil
	}

	info := dl.trig.At(time.Now().In(dl.cfg.Zone))
	if !article.Timestamp.Before(info.Previous) {
		return true, nil
	}

	var failed bool
	err := dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		v, err := sess.GetVerdict(ctx, article.ID)
		if errors.Is(err, store.ErrNotFound) {
			failed = false
			return nil
		}
		if err != nil {
			return err
		}
		failed = v.Failed
		return nil
	})
	return failed, err
}

// analyze runs the six-stage pipeline (spec.md §4.4.3) against the fetched
// body, persisting the outcome as a Verdict (plus Summary rows on success).
func (dl *Downloader) analyze(ctx context.Context, article model.Article, body string) error {
	driver := &agent.Driver{Transport: dl.transport, Audit: dl.audit, SessionID: llm.NewSessionID()}

	classification, err := agent.Classify(ctx, driver, dl.cfg.Classifier, body)
	if err != nil {
		return fmt.Errorf("stage A classify: %w", err)
	}

	if classification.Relation == model.RelationNA {
		return dl.writeVerdict(ctx, model.Verdict{
			ArticleID: article.ID,
			Timestamp: article.Timestamp,
			Relation:  model.RelationNA,
			Category:  model.UnknownCategory,
			Skipped:   true,
		})
	}

	catalog, err := dl.loadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load smart category catalog: %w", err)
	}

	labeled, err := agent.Label(ctx, driver, dl.cfg.Labeler, body, catalog)
	if err != nil {
		return fmt.Errorf("stage B label: %w", err)
	}

	finalCategory, err := dl.resolveCategory(ctx, driver, body, labeled)
	if err != nil {
		return err
	}

	if catalogIgnores(catalog, finalCategory) {
		return dl.writeVerdict(ctx, model.Verdict{
			ArticleID: article.ID,
			Timestamp: article.Timestamp,
			Relation:  classification.Relation,
			Category:  finalCategory,
			Skipped:   true,
		})
	}

	summary, err := agent.Summarize(ctx, driver, dl.cfg.Summarizer, body)
	if err != nil {
		return fmt.Errorf("stage F summarize: %w", err)
	}

	translation, err := agent.Translate(ctx, driver, dl.cfg.Translator, summary.Text, dl.cfg.TargetLang)
	if err != nil {
		return fmt.Errorf("stage G translate: %w", err)
	}

	return dl.persistSuccess(ctx, article, classification.Relation, finalCategory, summary.Text, translation.Text)
}

// resolveCategory implements Stage B's accept-without-Finalize shortcut
// ("if any suggestion has rank > threshold, accept it directly") and,
// otherwise, Stages C+D (independent naming, then obfuscated-placeholder
// finalization), inserting a newly minted category into the catalog in its
// own transaction before the Verdict transaction (spec.md §4.4.3).
func (dl *Downloader) resolveCategory(ctx context.Context, driver *agent.Driver, body string, labeled agent.LabelerResult) (string, error) {
	if best, ok := labeled.HighestRankAbove(dl.cfg.HighRankThreshold); ok {
		return best.Category, nil
	}

	proposal, err := agent.Name(ctx, driver, dl.cfg.Namer, body)
	if err != nil {
		return "", fmt.Errorf("stage C name: %w", err)
	}

	result, err := agent.Finalize(ctx, driver, dl.cfg.Finalizer, labeled.Suggestions, proposal)
	if err != nil {
		return "", fmt.Errorf("stage D finalize: %w", err)
	}

	if result.IsNew {
		if err := dl.insertSmartCategory(ctx, model.SmartCategory{Name: result.Category, Description: result.Description}); err != nil {
			return "", fmt.Errorf("insert new smart category: %w", err)
		}
	}
	return result.Category, nil
}

// catalogIgnores reports whether name is a Smart Category whose own
// `ignore` flag is set (spec.md §3: "articles in this category are never
// summarized"). This is a distinct namespace from cfg.IgnoreCategories,
// which holds upstream site categories, not Smart Categories (spec Open
// Question #1). A name absent from catalog — i.e. freshly minted by Stage
// D this very call — is never ignored, matching
// original_source's news_analyzer.py: a brand-new category cannot already
// be in the ignored set.
func catalogIgnores(catalog []model.SmartCategory, name string) bool {
	for _, c := range catalog {
		if c.Name == name {
			return c.Ignore
		}
	}
	return false
}

func (dl *Downloader) loadCatalog(ctx context.Context) ([]model.SmartCategory, error) {
	var catalog []model.SmartCategory
	err := dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		cats, err := sess.ListSmartCategories(ctx, true)
		catalog = cats
		return err
	})
	return catalog, err
}

func (dl *Downloader) insertSmartCategory(ctx context.Context, sc model.SmartCategory) error {
	return dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.InsertSmartCategoryIfAbsent(ctx, sc)
	})
}

func (dl *Downloader) writeVerdict(ctx context.Context, v model.Verdict) error {
	return dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.UpsertVerdict(ctx, v)
	})
}

// markVerdictFailed records a best-effort failed=true Verdict after an
// analysis-stage error (spec.md §4.4.5), in a transaction separate from
// whatever partial work the failing stage may have left uncommitted.
func (dl *Downloader) markVerdictFailed(ctx context.Context, article model.Article) error {
	return dl.writeVerdict(ctx, model.Verdict{
		ArticleID: article.ID,
		Timestamp: article.Timestamp,
		Relation:  model.RelationNA,
		Category:  model.UnknownCategory,
		Failed:    true,
	})
}

// persistSuccess writes both per-language summary files to disk, then
// records the Summary rows and the successful Verdict in a single
// transaction (spec.md §3's Verdict invariant: Summary rows and their
// Verdict are written atomically together).
func (dl *Downloader) persistSuccess(ctx context.Context, article model.Article, relation model.Relation, category, sourceSummary, targetSummary string) error {
	srcPath, err := dl.persistSummary(article, dl.cfg.SourceLang, sourceSummary)
	if err != nil {
		return fmt.Errorf("persist source summary: %w", err)
	}
	tgtPath, err := dl.persistSummary(article, dl.cfg.TargetLang, targetSummary)
	if err != nil {
		return fmt.Errorf("persist target summary: %w", err)
	}

	return dl.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		if err := sess.UpsertVerdict(ctx, model.Verdict{
			ArticleID: article.ID,
			Timestamp: article.Timestamp,
			Relation:  relation,
			Category:  category,
		}); err != nil {
			return err
		}
		if err := sess.InsertSummary(ctx, model.Summary{ArticleID: article.ID, Lang: dl.cfg.SourceLang, Path: srcPath}); err != nil {
			return err
		}
		return sess.InsertSummary(ctx, model.Summary{ArticleID: article.ID, Lang: dl.cfg.TargetLang, Path: tgtPath})
	})
}
