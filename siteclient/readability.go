package siteclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// Body is the parsed, markdown-ready result of fetching one article.
type Body struct {
	Title     string
	Markdown  string
	SourceURL string
}

// BodyClient fetches and extracts readable article content (spec.md §4.4.2
// step 3).
type BodyClient struct {
	httpClient *http.Client
}

// NewBodyClient builds a BodyClient with the given HTTP request timeout.
func NewBodyClient(timeout time.Duration) *BodyClient {
	return &BodyClient{httpClient: &http.Client{Timeout: timeout}}
}

// NewBodyClientWithClient builds a BodyClient around a caller-supplied HTTP
// client (for testing against an httptest.Server).
func NewBodyClientWithClient(client *http.Client) *BodyClient {
	return &BodyClient{httpClient: client}
}

// Fetch retrieves and parses the article at url. A 404 is a permanent
// error (the Article is marked failed, spec.md §4.4.2 step 3); any other
// non-200 status or transport failure is transient; a readability parse
// failure is a schema error.
func (c *BodyClient) Fetch(ctx context.Context, url string) (Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Body{}, transientErr("fetch article", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Body{}, transientErr("fetch article", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Body{}, permanentErr("fetch article", fmt.Errorf("status 404 for %s", url))
	}
	if resp.StatusCode != http.StatusOK {
		return Body{}, transientErr("fetch article", fmt.Errorf("status %d for %s", resp.StatusCode, url))
	}

	article, err := readability.FromReader(resp.Body, nil)
	if err != nil {
		return Body{}, schemaErr("parse article", err)
	}

	title := strings.TrimSpace(article.Title)
	markdown := fmt.Sprintf("# %s\n\n%s\n", title, strings.TrimSpace(article.TextContent))

	return Body{Title: title, Markdown: markdown, SourceURL: url}, nil
}
