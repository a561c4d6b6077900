package siteclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func setupIndexServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *IndexClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	zone := time.FixedZone("CST", -6*3600)
	client := NewIndexClient(server.Client(), server.URL, zone)
	return server, client
}

func TestFetchDaySuccess(t *testing.T) {
	_, client := setupIndexServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"ultimas": [
				{
					"id": 42,
					"url": "https://example.com/42",
					"date": "febrero 13, 2025",
					"hour": "9:15 am",
					"categories": [["x", "deportes"], ["y", "futbol"]]
				}
			]
		}`)
	})

	entries, err := client.FetchDay(context.Background(), time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != 42 {
		t.Errorf("ID = %d, want 42", e.ID)
	}
	if e.CategoryPath != "deportes/futbol" {
		t.Errorf("CategoryPath = %q, want deportes/futbol", e.CategoryPath)
	}
	want := time.Date(2025, 2, 13, 9, 15, 0, 0, time.FixedZone("CST", -6*3600))
	if !e.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
	}
}

func TestFetchDayNotFoundIsEmptyNotError(t *testing.T) {
	_, client := setupIndexServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	entries, err := client.FetchDay(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expected no error for 404, got %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for 404, got %v", entries)
	}
}

func TestFetchDayMalformedJSONIsSchemaError(t *testing.T) {
	_, client := setupIndexServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := client.FetchDay(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	var siteErr *Error
	if !errors.As(err, &siteErr) || siteErr.Kind != KindSchema {
		t.Errorf("expected schema error, got %v", err)
	}
}

func TestFetchDayServerErrorIsTransient(t *testing.T) {
	_, client := setupIndexServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchDay(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	var siteErr *Error
	if !errors.As(err, &siteErr) || siteErr.Kind != KindTransient {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestParseUpstreamHourVariants(t *testing.T) {
	cases := []struct {
		in         string
		wantHour   int
		wantMinute int
	}{
		{"12:00 am", 0, 0},
		{"12:00 pm", 12, 0},
		{"1:05 am", 1, 5},
		{"1:05 pm", 13, 5},
		{"11:59 p.m.", 23, 59},
	}
	for _, tc := range cases {
		h, m, err := parseUpstreamHour(tc.in)
		if err != nil {
			t.Errorf("parseUpstreamHour(%q): %v", tc.in, err)
			continue
		}
		if h != tc.wantHour || m != tc.wantMinute {
			t.Errorf("parseUpstreamHour(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.wantHour, tc.wantMinute)
		}
	}
}

func TestCategoryPathJoinsSecondElements(t *testing.T) {
	path := categoryPath([][]string{{"x", "deportes"}, {"y", "futbol"}})
	if path != "deportes/futbol" {
		t.Errorf("categoryPath = %q, want deportes/futbol", path)
	}
}
