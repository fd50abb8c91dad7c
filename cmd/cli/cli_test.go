package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forge-endpointify/internal/cache"
	"forge-endpointify/internal/capture"
	"forge-endpointify/internal/config"
	"forge-endpointify/internal/crawler"
	"forge-endpointify/internal/models"
	"forge-endpointify/internal/parser"
	"forge-endpointify/internal/pipeline"
	"forge-endpointify/internal/service"
)

// run executes the CLI with a browserless service whose raw fetches hit a
// local test site.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := runWith(t, &out, nil, args...)
	return out.String(), err
}

func runWith(t *testing.T, out io.Writer, capt pipeline.Capturer, args ...string) error {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvLogLevel, "error")

	a := newApp(out)
	a.build = func(cfg config.Config, l *zap.Logger) (*service.Service, error) {
		c, err := cache.Load(cfg.Cache.File)
		if err != nil {
			return nil, err
		}
		opts := []pipeline.Option{
			pipeline.WithFetcher(crawler.NewHTTPClient(5*time.Second, time.Second, 0, "")),
			pipeline.WithLogger(l),
		}
		if capt != nil {
			opts = append(opts, pipeline.WithCapturer(capt))
		}
		return service.New(pipeline.New(c, parser.New(), opts...), nil, l), nil
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return execute(context.Background(), a, root)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

// hangingCapturer blocks until its context is canceled.
type hangingCapturer struct {
	canceled atomic.Bool
}

func (h *hangingCapturer) Capture(ctx context.Context, _ string, _ time.Duration) (*capture.Result, error) {
	<-ctx.Done()
	h.canceled.Store(true)
	return nil, ctx.Err()
}

func site(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><a href="/next" rel="next">More</a></body></html>`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestExtractCached(t *testing.T) {
	out, err := run(t, "extract", "https://news.ycombinator.com/#top", "--no-background")
	require.NoError(t, err)

	var res models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, models.SourceDemoCache, res.Source)
	assert.Equal(t, "https://news.ycombinator.com", res.NormalizedURL)
	assert.Equal(t, 0.94, res.Confidence)
}

func TestExtractForceLiveFallsBack(t *testing.T) {
	ts := site(t)
	out, err := run(t, "extract", ts.URL, "--force-live", "--timeout-ms", "2000", "--compact")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)

	var res models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, models.SourceHeuristic, res.Source)
	assert.Equal(t, pipeline.ConfidenceFallback, res.Confidence)
	assert.Equal(t, "heur_pagination", res.Components[0].ID)
}

func TestExtractInvalidURL(t *testing.T) {
	_, err := run(t, "extract", "not a url")
	assert.ErrorContains(t, err, "invalid url")
}

func TestBatch(t *testing.T) {
	ts := site(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "urls.csv")
	output := filepath.Join(dir, "out.ndjson")
	require.NoError(t, os.WriteFile(input, []byte("url\n"+ts.URL+"/a\nbad\n"+ts.URL+"/b\n"), 0o600))

	_, err := run(t, "batch", "--input", input, "--output", output, "--concurrency", "2")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var items []service.BatchItem
	for _, line := range lines {
		var it service.BatchItem
		require.NoError(t, json.Unmarshal([]byte(line), &it))
		items = append(items, it)
	}
	assert.Equal(t, ts.URL+"/a", items[0].URL)
	require.NotNil(t, items[0].Job)
	assert.Equal(t, "bad", items[1].URL)
	assert.NotEmpty(t, items[1].Error)
	assert.Equal(t, ts.URL+"/b", items[2].URL)
}

func TestFailedCommandStillCancelsWarmRefresh(t *testing.T) {
	capt := &hangingCapturer{}
	err := runWith(t, brokenWriter{}, capt, "extract", "https://news.ycombinator.com")
	require.ErrorContains(t, err, "stdout closed")
	assert.True(t, capt.canceled.Load(), "warm refresh outlived the command")
}

func TestBatchRequiresInput(t *testing.T) {
	_, err := run(t, "batch")
	assert.ErrorContains(t, err, "missing --input")
}
