// Package synchronizer mirrors the upstream news site's day-by-day index
// into the Store, tracking and back-filling Gaps (spec.md §4.3).
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/akolotov/crhoy-bot/model"
	"github.com/akolotov/crhoy-bot/scheduler"
	"github.com/akolotov/crhoy-bot/siteclient"
	"github.com/akolotov/crhoy-bot/store"
)

// dateLayout mirrors store's internal calendar-date format, used only for
// log messages here.
const dateLayout = "2006-01-02"

// IndexFetcher is the consumer-side surface the Synchronizer depends on —
// narrowed from siteclient.IndexClient's full API, matching the teacher's
// narrow-interface-per-consumer idiom (e.g. digest.HNClient).
type IndexFetcher interface {
	Probe(ctx context.Context) error
	FetchDayRaw(ctx context.Context, date time.Time) (raw []byte, entries []siteclient.IndexEntry, err error)
}

// Config holds the Synchronizer's tunables, all sourced from the §6.1
// environment-variable surface.
type Config struct {
	Zone                 *time.Location
	CheckUpdatesInterval time.Duration
	DaysChunkSize        int
	IgnoreCategories     map[string]bool
	FirstDay             time.Time // zero value means unset
	DataDir              string
	ProbeHost            string // hostname for the coarse DNS connectivity check
	MaxRetries           int
}

// Synchronizer is the long-lived worker implementing spec.md §4.3.
type Synchronizer struct {
	store        *store.Store
	index        IndexFetcher
	cfg          Config
	ignoreFolded map[string]bool // cfg.IgnoreCategories, NFC-normalized once at construction
}

// New builds a Synchronizer. IgnoreCategories keys are NFC-normalized once
// here so that Unicode-equivalent but differently-encoded accented category
// names (precomposed vs. combining-mark Spanish diacritics, which upstream
// HTML has been observed to mix) still match.
func New(st *store.Store, index IndexFetcher, cfg Config) *Synchronizer {
	ignoreFolded := make(map[string]bool, len(cfg.IgnoreCategories))
	for k := range cfg.IgnoreCategories {
		ignoreFolded[norm.NFC.String(k)] = true
	}
	return &Synchronizer{store: st, index: index, cfg: cfg, ignoreFolded: ignoreFolded}
}

// Run seeds startup Gaps once, then drives the periodic loop on the
// teacher's `scheduler.Scheduler` — adapted here from its single daily
// HH:MM entry to a fixed-period `@every` entry via SchedulePeriod
// (SPEC_FULL.md §4.3F) — until ctx is cancelled, waiting for any in-flight
// cycle to finish before returning.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := s.seedStartupGaps(ctx); err != nil {
		return fmt.Errorf("synchronizer: seed startup gaps: %w", err)
	}

	sched, err := scheduler.New(s.cfg.Zone.String())
	if err != nil {
		return fmt.Errorf("synchronizer: scheduler: %w", err)
	}
	if err := sched.SchedulePeriod(s.cfg.CheckUpdatesInterval, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("synchronizer: schedule cycle: %w", err)
	}

	sched.Start()
	slog.Info("synchronizer started", "check_updates_interval", s.cfg.CheckUpdatesInterval)

	<-ctx.Done()
	slog.Info("synchronizer stopping")
	sched.Stop()
	return nil
}

// tick runs one Synchronizer cycle (spec.md §4.3 steps 1-5).
func (s *Synchronizer) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if err := s.probeConnectivity(ctx); err != nil {
		slog.Warn("synchronizer: connectivity probe failed, skipping cycle", "error", err)
		return
	}

	today := truncateToDay(time.Now().In(s.cfg.Zone))

	if err := s.detectDaySwitch(ctx, today); err != nil {
		slog.Warn("synchronizer: day-switch detection failed", "error", err)
	}

	if err := s.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return s.processDayEntries(ctx, sess, today)
	}); err != nil {
		slog.Warn("synchronizer: processing today's index failed", "date", today.Format(dateLayout), "error", err)
	}

	if err := s.fillEarliestGap(ctx); err != nil {
		slog.Warn("synchronizer: gap fill failed", "error", err)
	}
}

// probeConnectivity performs the coarse internet check plus the
// OPTIONS-style index-endpoint probe (spec.md §4.3 step 1).
func (s *Synchronizer) probeConnectivity(ctx context.Context) error {
	if s.cfg.ProbeHost != "" {
		if _, err := net.DefaultResolver.LookupHost(ctx, s.cfg.ProbeHost); err != nil {
			return fmt.Errorf("dns probe %q: %w", s.cfg.ProbeHost, err)
		}
	}
	if err := s.index.Probe(ctx); err != nil {
		return fmt.Errorf("index probe: %w", err)
	}
	return nil
}

// detectDaySwitch implements spec.md §4.3 step 3: if today has no
// day-index record but earlier ones exist, a day switch has occurred and
// Gaps covering [latest_known_date, today) are inserted, chunked to
// DaysChunkSize, inclusive of latest_known_date so it gets re-fetched for
// late-arriving articles.
func (s *Synchronizer) detectDaySwitch(ctx context.Context, today time.Time) error {
	return s.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		has, err := sess.HasDayIndex(ctx, today)
		if err != nil {
			return err
		}
		if has {
			return nil
		}

		newest, err := sess.NewestDayIndexDate(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil // no prior data at all; nothing to gap yet
		}
		if err != nil {
			return err
		}
		if !newest.Before(today) {
			return nil
		}

		for _, g := range chunkGap(newest, today, s.cfg.DaysChunkSize) {
			if err := sess.InsertGap(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// seedStartupGaps implements spec.md §4.3's "Startup gap seeding": if
// FirstDay predates the oldest known Day-index record, synthesize Gaps
// covering [FirstDay, oldest_known_date).
func (s *Synchronizer) seedStartupGaps(ctx context.Context) error {
	if s.cfg.FirstDay.IsZero() {
		return nil
	}

	return s.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		oldest, err := sess.OldestDayIndexDate(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil // store is empty; the first cycle will seed it naturally
		}
		if err != nil {
			return err
		}
		if !s.cfg.FirstDay.Before(oldest) {
			return nil
		}

		for _, g := range chunkGap(s.cfg.FirstDay, oldest, s.cfg.DaysChunkSize) {
			if err := sess.InsertGap(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// fillEarliestGap implements spec.md §4.3 step 5: at most one Gap per
// iteration, every day inside it processed within a single transaction —
// a failure on any day rolls the whole attempt back and leaves the Gap
// untouched; the Gap row is deleted only once every day succeeded.
func (s *Synchronizer) fillEarliestGap(ctx context.Context) error {
	gap, found, err := s.readEarliestGap(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	return s.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		for d := gap.Start; d.Before(gap.End); d = d.AddDate(0, 0, 1) {
			if err := s.processDayEntries(ctx, sess, d); err != nil {
				return fmt.Errorf("fill gap day %s: %w", d.Format(dateLayout), err)
			}
		}
		return sess.DeleteGap(ctx, gap)
	})
}

func (s *Synchronizer) readEarliestGap(ctx context.Context) (model.Gap, bool, error) {
	var gap model.Gap
	err := s.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		g, err := sess.EarliestGap(ctx)
		if err != nil {
			return err
		}
		gap = g
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Gap{}, false, nil
	}
	if err != nil {
		return model.Gap{}, false, err
	}
	return gap, true, nil
}

// processDayEntries fetches and persists a single day's index — "Index
// processing for a single day" (spec.md §4.3). It has no transaction
// boundary of its own; the caller decides whether this runs standalone
// (today) or as one step of a larger gap-fill transaction.
func (s *Synchronizer) processDayEntries(ctx context.Context, sess *store.Session, date time.Time) error {
	raw, entries, err := s.fetchDayWithRetry(ctx, date)
	if err != nil {
		return err
	}

	var path string
	if raw != nil {
		path, err = s.persistRaw(date, raw)
		if err != nil {
			return fmt.Errorf("persist day index: %w", err)
		}
	}

	for _, e := range entries {
		if err := sess.InsertArticleIfAbsent(ctx, model.Article{ID: e.ID, URL: e.URL, Timestamp: e.Timestamp}); err != nil {
			return err
		}
		if e.CategoryPath != "" {
			if err := sess.InsertCategoryIfAbsent(ctx, e.CategoryPath); err != nil {
				return err
			}
			if err := sess.RelateArticleCategory(ctx, e.ID, e.CategoryPath); err != nil {
				return err
			}
		}
		if s.ignoreFolded[norm.NFC.String(e.CategoryPath)] {
			if err := sess.MarkArticleSkipped(ctx, e.ID); err != nil {
				return err
			}
		}
	}

	return sess.UpsertDayIndex(ctx, model.DayIndexRecord{Date: date, Path: path})
}

// fetchDayWithRetry implements spec.md §4.3's failure semantics: transient
// network/HTTP errors are retried up to MaxRetries with exponential-ish
// backoff before propagating; a schema error is fatal immediately.
func (s *Synchronizer) fetchDayWithRetry(ctx context.Context, date time.Time) ([]byte, []siteclient.IndexEntry, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		raw, entries, err := s.index.FetchDayRaw(ctx, date)
		if err == nil {
			return raw, entries, nil
		}

		var siteErr *siteclient.Error
		if errors.As(err, &siteErr) && siteErr.Kind == siteclient.KindSchema {
			return nil, nil, err
		}

		lastErr = err
		slog.Warn("synchronizer: fetch day index failed, retrying",
			"date", date.Format(dateLayout), "attempt", attempt, "error", err)
	}
	return nil, nil, lastErr
}

// persistRaw saves the exact upstream JSON bytes under
// {DataDir}/metadata/YYYY/MM/DD.json (spec.md §6.3) and returns the
// path relative to DataDir, as stored in DayIndexRecord.Path.
func (s *Synchronizer) persistRaw(date time.Time, raw []byte) (string, error) {
	relPath := filepath.Join("metadata",
		fmt.Sprintf("%04d", date.Year()), fmt.Sprintf("%02d", date.Month()), fmt.Sprintf("%02d.json", date.Day()))
	fullPath := filepath.Join(s.cfg.DataDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(fullPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return relPath, nil
}

// chunkGap slices the half-open range [start, end) into consecutive Gaps
// of at most chunkSize days each, in chronological order.
func chunkGap(start, end time.Time, chunkSize int) []model.Gap {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	var gaps []model.Gap
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 0, chunkSize)
		if next.After(end) {
			next = end
		}
		gaps = append(gaps, model.Gap{Start: cur, End: next})
		cur = next
	}
	return gaps
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
