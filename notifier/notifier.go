// Package notifier implements the Notifier (spec.md §4.5): on each newly
// opened Trigger window, it selects newly-qualifying analyses, formats them
// as rich-text messages, sends them respecting per-message pacing and
// transient-error retries, and records delivery to suppress duplicates.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akolotov/crhoy-bot/messaging"
	"github.com/akolotov/crhoy-bot/model"
	"github.com/akolotov/crhoy-bot/store"
	"github.com/akolotov/crhoy-bot/trigger"
)

// errSummaryMissing is a sentinel used only to route around the ordinary
// store.ErrNotFound handling inside sendOne's own WithSession closure.
var errSummaryMissing = errors.New("notifier: target-language summary missing")

// Config holds the Notifier's tunables, sourced from the §6.1
// environment-variable surface.
type Config struct {
	Zone                  *time.Location
	MaxInactivityInterval time.Duration
	DataDir               string
	TargetLang            string
	MaxRetries            int
	MessagesDelay         time.Duration
}

// Notifier is the long-lived worker implementing spec.md §4.5. Unlike the
// Synchronizer/Downloader, it is not cron-driven: each iteration must sleep
// for a dynamically recomputed min(max_inactivity, time_to_next_trigger),
// which a static cron expression cannot express (SPEC_FULL.md §4.5F).
type Notifier struct {
	store  *store.Store
	sender messaging.Sender
	trig   *trigger.Service
	cfg    Config

	lastRun     time.Time // initialized to the distant past
	probeFailed bool      // tracks transitions so probe failures log once
}

// New builds a Notifier.
func New(st *store.Store, sender messaging.Sender, trig *trigger.Service, cfg Config) *Notifier {
	return &Notifier{store: st, sender: sender, trig: trig, cfg: cfg}
}

// Run drives the main loop (spec.md §4.5) until ctx is cancelled, waiting
// for any currently running send to complete before returning (spec.md
// §5's "Notifier additionally waits for its currently running send to
// complete before exiting" — satisfied here because tick/sendWithRetry
// only check ctx between sends, never abandon one mid-flight).
func (n *Notifier) Run(ctx context.Context) error {
	slog.Info("notifier started", "max_inactivity_interval", n.cfg.MaxInactivityInterval)
	for {
		if ctx.Err() != nil {
			slog.Info("notifier stopping")
			return nil
		}

		n.tick(ctx)

		select {
		case <-ctx.Done():
			slog.Info("notifier stopping")
			return nil
		case <-time.After(n.nextSleep()):
		}
	}
}

// tick implements spec.md §4.5 main-loop steps 1-2: if a new Trigger
// window has opened since the last completed run, probe the transport and,
// on success, execute a batch.
func (n *Notifier) tick(ctx context.Context) {
	now := time.Now().In(n.cfg.Zone)
	info := n.trig.At(now)

	if info.Current.Before(n.lastRun) {
		return // no new window has opened
	}

	if err := n.sender.Probe(ctx); err != nil {
		if !n.probeFailed {
			slog.Warn("notifier: transport probe failed, skipping until it recovers", "error", err)
			n.probeFailed = true
		}
		return
	}
	n.probeFailed = false
	n.lastRun = now

	if err := n.runBatch(ctx, info); err != nil {
		slog.Warn("notifier: batch failed", "error", err)
	}
}

// nextSleep implements step 3: min(max_inactivity, time_to_next_trigger).
func (n *Notifier) nextSleep() time.Duration {
	now := time.Now().In(n.cfg.Zone)
	info := n.trig.At(now)

	toNext := info.Next.Sub(now)
	if toNext < 0 {
		toNext = 0
	}
	if toNext < n.cfg.MaxInactivityInterval {
		return toNext
	}
	return n.cfg.MaxInactivityInterval
}

// runBatch implements spec.md §4.5's Batch: purge stale Delivery rows,
// compute the exclude set, select qualifying analyses, and send each in
// timestamp order. Deletions/inserts commit incrementally rather than in
// one session spanning the whole batch, per §4.5's own parenthetical.
func (n *Notifier) runBatch(ctx context.Context, info trigger.Info) error {
	w := info.ShiftedPrevious

	if err := n.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.DeleteDeliveriesBefore(ctx, w)
	}); err != nil {
		return fmt.Errorf("purge stale deliveries: %w", err)
	}

	var rows []model.NotifierRow
	err := n.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		excludeIDs, err := sess.DeliveryIDsSince(ctx, w)
		if err != nil {
			return err
		}
		rows, err = sess.QualifyingAnalyses(ctx, w, excludeIDs)
		return err
	})
	if err != nil {
		return fmt.Errorf("select qualifying analyses: %w", err)
	}

	for _, r := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		if err := n.sendOne(ctx, r); err != nil {
			slog.Warn("notifier: send failed, will retry next run", "article_id", r.ArticleID, "error", err)
			continue
		}

		if pause := n.cfg.MessagesDelay - time.Since(start); pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return nil
}

// sendOne implements §4.5 batch step 5: load the target-language summary,
// format the message, send with retries, and on success record delivery.
func (n *Notifier) sendOne(ctx context.Context, r model.NotifierRow) error {
	var summaryPath string
	err := n.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		s, err := sess.GetSummary(ctx, r.ArticleID, n.cfg.TargetLang)
		if errors.Is(err, store.ErrNotFound) {
			return errSummaryMissing
		}
		if err != nil {
			return err
		}
		summaryPath = s.Path
		return nil
	})
	if errors.Is(err, errSummaryMissing) {
		slog.Warn("notifier: missing target-language summary, skipping", "article_id", r.ArticleID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	text, err := os.ReadFile(filepath.Join(n.cfg.DataDir, summaryPath))
	if err != nil {
		return fmt.Errorf("read summary file: %w", err)
	}

	msg := messaging.FormatMessage(r.Timestamp, string(text), r.URL, r.Category)

	if err := n.sendWithRetry(ctx, msg); err != nil {
		return err
	}

	return n.store.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.InsertDelivery(ctx, model.Delivery{ArticleID: r.ArticleID, Timestamp: r.Timestamp})
	})
}

// sendWithRetry implements spec.md §7's "Notifier retries per message up
// to max_retries with 1-second pause between attempts."
func (n *Notifier) sendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		err := n.sender.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("notifier: send attempt failed, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("send exhausted %d retries: %w", n.cfg.MaxRetries, lastErr)
}
