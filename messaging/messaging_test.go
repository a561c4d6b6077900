package messaging

import (
	"strings"
	"testing"
	"time"
)

func TestEscapeMarkdownV2EscapesSpecialChars(t *testing.T) {
	in := "Price: $5 (discount!) [deal]_now_"
	out := EscapeMarkdownV2(in)
	for _, c := range []string{"(", ")", "[", "]", "!", "_"} {
		if !strings.Contains(out, `\`+c) {
			t.Errorf("EscapeMarkdownV2(%q) = %q, missing escaped %q", in, out, c)
		}
	}
}

func TestEscapeMarkdownV2LeavesPlainTextAlone(t *testing.T) {
	in := "hola mundo 123"
	if got := EscapeMarkdownV2(in); got != in {
		t.Errorf("EscapeMarkdownV2(%q) = %q, want unchanged", in, got)
	}
}

// S7 Message format (spec.md §8): escaped URL underscore appears exactly
// once, hashtags split on the single '/' with hashes unescaped.
func TestFormatMessageMatchesS7(t *testing.T) {
	zone := time.FixedZone("CST", -6*3600)
	ts := time.Date(2025, 2, 13, 9, 15, 0, 0, zone)
	url := "https://example.com/articulo_especial"

	msg := FormatMessage(ts, "Un resumen.", url, "deportes/futbol")

	if !strings.Contains(msg, "_2025/02/13 09:15_") {
		t.Errorf("message missing italicized timestamp: %q", msg)
	}
	wantEscapedURL := `https://example\.com/articulo\_especial`
	if !strings.Contains(msg, wantEscapedURL) {
		t.Errorf("message missing escaped URL %q: %q", wantEscapedURL, msg)
	}
	if strings.Count(msg, `\_`) != 1 {
		t.Errorf("expected the URL's underscore escaped exactly once, got %d in %q", strings.Count(msg, `\_`), msg)
	}
	if !strings.Contains(msg, "#deportes #futbol") {
		t.Errorf("message missing unescaped two-level hashtags: %q", msg)
	}
}

func TestFormatMessageSingleLevelCategory(t *testing.T) {
	ts := time.Date(2025, 2, 13, 9, 15, 0, 0, time.UTC)
	msg := FormatMessage(ts, "resumen", "https://x", "politica")
	if !strings.Contains(msg, "#politica") {
		t.Errorf("message missing single-level hashtag: %q", msg)
	}
	if strings.Count(msg, "#") != 1 {
		t.Errorf("expected exactly one hashtag for single-level category, got %q", msg)
	}
}
