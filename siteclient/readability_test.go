package siteclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyClientFetchSuccess(t *testing.T) {
	html := `<html><head><title>Un titulo</title></head>
<body><article><p>Contenido de la noticia en varias oraciones.</p></article></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, html)
	}))
	t.Cleanup(server.Close)

	client := NewBodyClientWithClient(server.Client())
	body, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(body.Markdown, "Contenido de la noticia") {
		t.Errorf("Markdown missing body text: %q", body.Markdown)
	}
	if !strings.HasPrefix(body.Markdown, "# ") {
		t.Errorf("Markdown missing title header: %q", body.Markdown)
	}
}

func TestBodyClientFetch404IsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := NewBodyClientWithClient(server.Client())
	_, err := client.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	var siteErr *Error
	if !errors.As(err, &siteErr) || siteErr.Kind != KindPermanent {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestBodyClientFetchServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewBodyClientWithClient(server.Client())
	_, err := client.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	var siteErr *Error
	if !errors.As(err, &siteErr) || siteErr.Kind != KindTransient {
		t.Errorf("expected transient error, got %v", err)
	}
}
