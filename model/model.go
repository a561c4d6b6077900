// Package model holds the domain entities shared across the store,
// synchronizer, downloader, and notifier packages.
package model

import "time"

// Relation is the analyzer's verdict on how an article relates to the focal
// region.
type Relation string

const (
	RelationDirectly   Relation = "directly"
	RelationIndirectly Relation = "indirectly"
	RelationNA         Relation = "na"
)

// UnknownCategory is the reserved sentinel Smart-Category used for articles
// that are not related to the focal region.
const UnknownCategory = "__unknown__"

// Article is an upstream news item discovered by the Synchronizer and
// carried through the Downloader/Analyzer pipeline.
type Article struct {
	ID         int64
	URL        string
	Timestamp  time.Time // zoned instant derived from the index entry
	BodyPath   string    // empty until the body is fetched and stored
	Skipped    bool
	Failed     bool
	Categories []string // upstream category paths, e.g. "sports/football"
}

// Pending reports whether the article has not yet reached a terminal state.
func (a Article) Pending() bool {
	return a.BodyPath == "" && !a.Skipped && !a.Failed
}

// Category is an upstream URL-path category, e.g. "sports/football".
type Category struct {
	Name string
}

// DayIndexRecord marks a calendar day whose index JSON has been fetched and
// persisted.
type DayIndexRecord struct {
	Date time.Time // truncated to the day, in the site zone
	Path string    // where the index JSON was saved
}

// Gap is a half-open date range [Start, End) for which no DayIndexRecord
// exists.
type Gap struct {
	Start time.Time
	End   time.Time // exclusive
}

// Days returns the number of calendar days covered by the gap.
func (g Gap) Days() int {
	return int(g.End.Sub(g.Start).Hours() / 24)
}

// SmartCategory is an LLM-curated category, distinct from the upstream
// site's own taxonomy.
type SmartCategory struct {
	Name        string // may contain a single '/' denoting parent/child
	Description string
	Ignore      bool
}

// Parent returns the top-level segment of a (possibly two-level) category
// name.
func (c SmartCategory) Parent() string {
	for i := 0; i < len(c.Name); i++ {
		if c.Name[i] == '/' {
			return c.Name[:i]
		}
	}
	return c.Name
}

// Summary is a per-language plain-text summary of an analyzed article.
type Summary struct {
	ArticleID int64
	Lang      string // two-letter code
	Path      string // filesystem path to the plain-text summary
}

// Verdict is the analyzer's final disposition for an article.
type Verdict struct {
	ArticleID int64
	Timestamp time.Time // mirrors Article.Timestamp
	Relation  Relation
	Category  string // references SmartCategory.Name
	Skipped   bool
	Failed    bool
}

// Successful reports whether the verdict represents a completed, deliverable
// analysis.
func (v Verdict) Successful() bool {
	return !v.Skipped && !v.Failed
}

// Delivery records that a Verdict's article was sent to the broadcast
// channel.
type Delivery struct {
	ArticleID int64
	Timestamp time.Time // mirrors Verdict.Timestamp
}

// NotifierRow is the projection the Notifier selects when sweeping for
// newly-qualifying analyses: the join of Article and Verdict filtered per
// spec.md §4.1's last bullet.
type NotifierRow struct {
	ArticleID int64
	Timestamp time.Time
	URL       string
	Category  string
}
