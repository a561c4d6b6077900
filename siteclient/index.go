// Package siteclient fetches and parses the upstream news site's day-index
// JSON and individual article bodies (spec.md §6.4, §4.3 "Index processing").
package siteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IndexEntry is one parsed row of a day's index — an upstream article with
// its canonical category path and a fully-resolved, zone-aware timestamp.
type IndexEntry struct {
	ID           int64
	URL          string
	Timestamp    time.Time
	CategoryPath string
}

// rawIndexResponse mirrors the upstream JSON shape from spec.md §6.4:
// {"ultimas": [{"id": int, "url": str, "date": "<month> <day>, <year>",
// "hour": "<h:mm am|pm>", "categories": [[..., <slug>], …]}, …]}.
type rawIndexResponse struct {
	Ultimas []rawIndexItem `json:"ultimas"`
}

type rawIndexItem struct {
	ID         int64      `json:"id"`
	URL        string     `json:"url"`
	Date       string     `json:"date"`
	Hour       string     `json:"hour"`
	Categories [][]string `json:"categories"`
}

// IndexClient fetches a given day's index from the upstream site.
type IndexClient struct {
	httpClient *http.Client
	baseURL    string
	zone       *time.Location
}

// NewIndexClient builds an IndexClient. baseURL is the index endpoint root
// (e.g. "https://www.crhoy.com"); zone is the site's IANA time zone, used to
// resolve the upstream's zone-less date/time strings.
func NewIndexClient(httpClient *http.Client, baseURL string, zone *time.Location) *IndexClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IndexClient{httpClient: httpClient, baseURL: baseURL, zone: zone}
}

// Probe performs the coarse connectivity check spec.md §4.3 step 1 requires:
// an OPTIONS-style probe of the index endpoint.
func (c *IndexClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.baseURL, nil)
	if err != nil {
		return transientErr("probe", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transientErr("probe", err)
	}
	defer resp.Body.Close()
	return nil
}

// FetchDay fetches and parses the index for the given date. A 404 response
// is not an error — spec.md §4.3 requires treating it as an empty day.
func (c *IndexClient) FetchDay(ctx context.Context, date time.Time) ([]IndexEntry, error) {
	_, entries, err := c.FetchDayRaw(ctx, date)
	return entries, err
}

// FetchDayRaw fetches the index for the given date like FetchDay, but also
// returns the exact upstream response bytes — the Synchronizer persists
// these verbatim under DATA_DIR (spec.md §6.3) so the day-index record
// points at a byte-for-byte copy of what was actually fetched. raw is nil
// on a 404 (empty day, not an error).
func (c *IndexClient) FetchDayRaw(ctx context.Context, date time.Time) (raw []byte, entries []IndexEntry, err error) {
	url := fmt.Sprintf("%s/metadata/%04d/%02d/%02d.json", c.baseURL, date.Year(), date.Month(), date.Day())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, transientErr("fetch day index", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, transientErr("fetch day index", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, transientErr("fetch day index", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, transientErr("read day index body", err)
	}

	var parsed rawIndexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, schemaErr("decode day index", err)
	}

	out := make([]IndexEntry, 0, len(parsed.Ultimas))
	for _, item := range parsed.Ultimas {
		ts, err := parseUpstreamTimestamp(item.Date, item.Hour, c.zone)
		if err != nil {
			return nil, nil, schemaErr(fmt.Sprintf("parse timestamp for item %d", item.ID), err)
		}
		out = append(out, IndexEntry{
			ID:           item.ID,
			URL:          item.URL,
			Timestamp:    ts,
			CategoryPath: categoryPath(item.Categories),
		})
	}
	return body, out, nil
}

// categoryPath joins the second element of each category entry with '/',
// per spec.md §6.4.
func categoryPath(categories [][]string) string {
	segments := make([]string, 0, len(categories))
	for _, c := range categories {
		if len(c) < 2 {
			continue
		}
		segments = append(segments, c[1])
	}
	return strings.Join(segments, "/")
}

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// parseUpstreamTimestamp combines the upstream's "<Spanish month> <day>,
// <year>" date string and "<h:mm am|pm>" hour string into a single
// zone-aware time.Time, per spec.md §6.4.
func parseUpstreamTimestamp(dateStr, hourStr string, zone *time.Location) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	parts := strings.SplitN(dateStr, " ", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed date %q", dateStr)
	}
	monthName := strings.ToLower(parts[0])
	month, ok := spanishMonths[monthName]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", parts[0])
	}

	rest := strings.SplitN(parts[1], ",", 2)
	if len(rest) != 2 {
		return time.Time{}, fmt.Errorf("malformed date %q", dateStr)
	}
	day, err := strconv.Atoi(strings.TrimSpace(rest[0]))
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed day in %q: %w", dateStr, err)
	}
	year, err := strconv.Atoi(strings.TrimSpace(rest[1]))
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed year in %q: %w", dateStr, err)
	}

	hour, minute, err := parseUpstreamHour(hourStr)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(year, month, day, hour, minute, 0, 0, zone), nil
}

// parseUpstreamHour parses a 12-hour "h:mm am" / "h:mm pm" string, tolerant
// of dotted meridiem forms ("a.m.", "p.m.") that the upstream source
// sometimes emits.
func parseUpstreamHour(hourStr string) (hour, minute int, err error) {
	s := strings.ToLower(strings.TrimSpace(hourStr))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")

	isPM := strings.HasSuffix(s, "pm")
	isAM := strings.HasSuffix(s, "am")
	if !isPM && !isAM {
		return 0, 0, fmt.Errorf("malformed hour %q: missing am/pm", hourStr)
	}
	s = strings.TrimSuffix(s, "pm")
	s = strings.TrimSuffix(s, "am")

	hm := strings.SplitN(s, ":", 2)
	if len(hm) != 2 {
		return 0, 0, fmt.Errorf("malformed hour %q", hourStr)
	}
	hour, err = strconv.Atoi(hm[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed hour %q: %w", hourStr, err)
	}
	minute, err = strconv.Atoi(hm[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed minute %q: %w", hourStr, err)
	}

	if hour < 1 || hour > 12 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("hour %q out of range", hourStr)
	}

	if isPM && hour != 12 {
		hour += 12
	}
	if isAM && hour == 12 {
		hour = 0
	}
	return hour, minute, nil
}
