package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html><title>x</title></html>"))
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024, "")
	page, err := client.FetchHTML(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if page.HTML != "<html><title>x</title></html>" || page.FinalURL == "" || page.ContentType == "" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetchSizeCap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer ts.Close()

	page, err := NewHTTPClient(5*time.Second, 2*time.Second, 100, "").FetchHTML(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if len(page.HTML) != 100 {
		t.Fatalf("want 100 bytes, got %d", len(page.HTML))
	}
}

func TestFetchGzipAndCharset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<p>caf\xe9</p>"))
		_ = gz.Close()
	}))
	defer ts.Close()

	page, err := NewHTTPClient(5*time.Second, 2*time.Second, 1024, "").FetchHTML(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetch err: %v", err)
	}
	if page.HTML != "<p>café</p>" {
		t.Fatalf("unexpected html %q", page.HTML)
	}
}

func TestRejectNonHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	_, err := NewHTTPClient(5*time.Second, 2*time.Second, 1024, "").FetchHTML(context.Background(), ts.URL)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch for non-html, got %v", err)
	}
}

func TestFetchStatusAndDeadline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-r.Context().Done()
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewHTTPClient(5*time.Second, 2*time.Second, 1024, "")
	if _, err := client.FetchHTML(context.Background(), ts.URL); !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "status 503") {
		t.Fatalf("expected status error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.FetchHTML(ctx, ts.URL+"/slow"); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	if _, err := client.FetchHTML(context.Background(), "::bad"); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected invalid url error, got %v", err)
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	got := decode([]byte("ok\xff"), "text/html; charset=utf-8")
	if !bytes.Contains([]byte(got), []byte("ok")) {
		t.Fatalf("unexpected decode %q", got)
	}
}
