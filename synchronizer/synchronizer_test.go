package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/akolotov/crhoy-bot/model"
	"github.com/akolotov/crhoy-bot/siteclient"
	"github.com/akolotov/crhoy-bot/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeIndex is a hand-written IndexFetcher fake, in the teacher's
// fake-over-mocking-library style (store_test.go / driver_test.go).
type fakeIndex struct {
	byDate    map[string]fakeDayResult
	probeErr  error
	callCount map[string]int
}

type fakeDayResult struct {
	raw     []byte
	entries []siteclient.IndexEntry
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{byDate: map[string]fakeDayResult{}, callCount: map[string]int{}}
}

func (f *fakeIndex) Probe(ctx context.Context) error { return f.probeErr }

func (f *fakeIndex) FetchDayRaw(ctx context.Context, date time.Time) ([]byte, []siteclient.IndexEntry, error) {
	key := date.Format(dateLayout)
	f.callCount[key]++
	res, ok := f.byDate[key]
	if !ok {
		return nil, nil, nil // unseeded day behaves like an empty/404 day
	}
	return res.raw, res.entries, res.err
}

func testConfig(zone *time.Location, dataDir string) Config {
	return Config{
		Zone:                 zone,
		CheckUpdatesInterval: 30 * time.Second,
		DaysChunkSize:        3,
		IgnoreCategories:     map[string]bool{},
		DataDir:              dataDir,
		MaxRetries:           1,
	}
}

func TestProcessDayEntriesInsertsArticlesAndMarksDayDone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	date := time.Date(2025, 2, 13, 0, 0, 0, 0, zone)

	idx := newFakeIndex()
	idx.byDate[date.Format(dateLayout)] = fakeDayResult{
		raw: []byte(`{"ultimas":[]}`),
		entries: []siteclient.IndexEntry{
			{ID: 1, URL: "https://x/1", Timestamp: date.Add(9 * time.Hour), CategoryPath: "deportes/futbol"},
			{ID: 2, URL: "https://x/2", Timestamp: date.Add(10 * time.Hour), CategoryPath: "politica"},
		},
	}

	s := New(st, idx, testConfig(zone, t.TempDir()))

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return s.processDayEntries(ctx, sess, date)
	})
	if err != nil {
		t.Fatalf("processDayEntries: %v", err)
	}

	err = st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		has, err := sess.HasDayIndex(ctx, date)
		if err != nil {
			return err
		}
		if !has {
			t.Errorf("expected day-index record for %s", date.Format(dateLayout))
		}
		a1, err := sess.GetArticle(ctx, 1)
		if err != nil {
			return err
		}
		if a1.Skipped {
			t.Errorf("article 1 should not be skipped")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestProcessDayEntriesSkipsIgnoredCategories(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	date := time.Date(2025, 2, 13, 0, 0, 0, 0, zone)

	idx := newFakeIndex()
	idx.byDate[date.Format(dateLayout)] = fakeDayResult{
		raw: []byte(`{"ultimas":[]}`),
		entries: []siteclient.IndexEntry{
			{ID: 1, URL: "https://x/1", Timestamp: date.Add(9 * time.Hour), CategoryPath: "farandula"},
		},
	}

	cfg := testConfig(zone, t.TempDir())
	cfg.IgnoreCategories = map[string]bool{"farandula": true}
	s := New(st, idx, cfg)

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return s.processDayEntries(ctx, sess, date)
	})
	if err != nil {
		t.Fatalf("processDayEntries: %v", err)
	}

	err = st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		a, err := sess.GetArticle(ctx, 1)
		if err != nil {
			return err
		}
		if !a.Skipped {
			t.Errorf("article in ignored category should be marked skipped")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestProcessDayEntriesNoIndexStillMarksDayDone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	date := time.Date(2025, 2, 13, 0, 0, 0, 0, zone)

	idx := newFakeIndex() // unseeded day: FetchDayRaw returns nil, nil, nil — a 404
	s := New(st, idx, testConfig(zone, t.TempDir()))

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return s.processDayEntries(ctx, sess, date)
	})
	if err != nil {
		t.Fatalf("processDayEntries: %v", err)
	}

	err = st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		has, err := sess.HasDayIndex(ctx, date)
		if err != nil {
			return err
		}
		if !has {
			t.Errorf("empty day should still be marked done")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

// TestFillEarliestGapChunking covers the back-fill half of spec.md §8
// scenario S3: one multi-day gap chunk is back-filled, day by day inside
// one transaction, and the Gap row is removed only once every day in it
// succeeded. Splitting a range into chunks is checked by
// TestChunkGapSplitsIntoBoundedPieces.
func TestFillEarliestGapChunking(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, zone)
	end := time.Date(2025, 2, 5, 0, 0, 0, 0, zone) // 4-day gap

	idx := newFakeIndex()
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		idx.byDate[d.Format(dateLayout)] = fakeDayResult{raw: []byte(`{"ultimas":[]}`)}
	}

	cfg := testConfig(zone, t.TempDir())
	s := New(st, idx, cfg)

	if err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.InsertGap(ctx, model.Gap{Start: start, End: end})
	}); err != nil {
		t.Fatalf("seed gap: %v", err)
	}

	if err := s.fillEarliestGap(ctx); err != nil {
		t.Fatalf("fillEarliestGap: %v", err)
	}

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			has, err := sess.HasDayIndex(ctx, d)
			if err != nil {
				return err
			}
			if !has {
				t.Errorf("day %s should have been filled", d.Format(dateLayout))
			}
		}
		_, err := sess.EarliestGap(ctx)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected gap to be deleted after full fill, got err=%v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

// TestFillEarliestGapRollsBackOnPartialFailure grounds the "rolls back, Gap
// remains" half of spec.md §4.3's failure semantics: if any day in the gap
// fails (even after retries), none of the gap's days are marked done and
// the Gap row survives untouched.
func TestFillEarliestGapRollsBackOnPartialFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, zone)
	end := time.Date(2025, 2, 4, 0, 0, 0, 0, zone) // 3-day gap

	idx := newFakeIndex()
	idx.byDate[start.Format(dateLayout)] = fakeDayResult{raw: []byte(`{"ultimas":[]}`)}
	idx.byDate[start.AddDate(0, 0, 1).Format(dateLayout)] = fakeDayResult{
		err: &siteclient.Error{Kind: siteclient.KindTransient, Op: "fetch day index", Err: fmt.Errorf("boom")},
	}
	idx.byDate[start.AddDate(0, 0, 2).Format(dateLayout)] = fakeDayResult{raw: []byte(`{"ultimas":[]}`)}

	cfg := testConfig(zone, t.TempDir())
	cfg.MaxRetries = 0
	s := New(st, idx, cfg)

	if err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.InsertGap(ctx, model.Gap{Start: start, End: end})
	}); err != nil {
		t.Fatalf("seed gap: %v", err)
	}

	if err := s.fillEarliestGap(ctx); err == nil {
		t.Fatal("expected fillEarliestGap to surface the mid-gap failure")
	}

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		has, err := sess.HasDayIndex(ctx, start)
		if err != nil {
			return err
		}
		if has {
			t.Errorf("first day should not have been committed after rollback")
		}
		g, err := sess.EarliestGap(ctx)
		if err != nil {
			return fmt.Errorf("expected gap to survive: %w", err)
		}
		if !g.Start.Equal(start) || !g.End.Equal(end) {
			t.Errorf("gap = %+v, want [%v, %v)", g, start, end)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDetectDaySwitchInsertsChunkedGap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	latest := time.Date(2025, 2, 1, 0, 0, 0, 0, zone)
	today := time.Date(2025, 2, 8, 0, 0, 0, 0, zone) // 7 days later

	if err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.UpsertDayIndex(ctx, model.DayIndexRecord{Date: latest, Path: "metadata/2025/02/01.json"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := testConfig(zone, t.TempDir())
	cfg.DaysChunkSize = 3
	s := New(st, newFakeIndex(), cfg)

	if err := s.detectDaySwitch(ctx, today); err != nil {
		t.Fatalf("detectDaySwitch: %v", err)
	}

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		g, err := sess.EarliestGap(ctx)
		if err != nil {
			return err
		}
		if !g.Start.Equal(latest) {
			t.Errorf("gap start = %v, want %v (inclusive of latest known date)", g.Start, latest)
		}
		if g.Days() > 3 {
			t.Errorf("first gap chunk spans %d days, want <= 3", g.Days())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSeedStartupGapsBacksFillFromFirstDay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	zone := time.UTC
	oldest := time.Date(2025, 2, 10, 0, 0, 0, 0, zone)
	firstDay := time.Date(2025, 2, 1, 0, 0, 0, 0, zone)

	if err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		return sess.UpsertDayIndex(ctx, model.DayIndexRecord{Date: oldest, Path: "metadata/2025/02/10.json"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := testConfig(zone, t.TempDir())
	cfg.FirstDay = firstDay
	cfg.DaysChunkSize = 4
	s := New(st, newFakeIndex(), cfg)

	if err := s.seedStartupGaps(ctx); err != nil {
		t.Fatalf("seedStartupGaps: %v", err)
	}

	err := st.WithSession(ctx, func(ctx context.Context, sess *store.Session) error {
		g, err := sess.EarliestGap(ctx)
		if err != nil {
			return err
		}
		if !g.Start.Equal(firstDay) {
			t.Errorf("earliest gap start = %v, want %v", g.Start, firstDay)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestChunkGapSplitsIntoBoundedPieces(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC) // 10 days
	gaps := chunkGap(start, end, 4)

	if len(gaps) != 3 {
		t.Fatalf("got %d chunks, want 3", len(gaps))
	}
	for _, g := range gaps {
		if g.Days() > 4 || g.Days() <= 0 {
			t.Errorf("chunk %+v spans %d days, want 1-4", g, g.Days())
		}
	}
	if !gaps[0].Start.Equal(start) {
		t.Errorf("first chunk start = %v, want %v", gaps[0].Start, start)
	}
	if !gaps[len(gaps)-1].End.Equal(end) {
		t.Errorf("last chunk end = %v, want %v", gaps[len(gaps)-1].End, end)
	}
}
