// Package pipeline runs the tiered extraction: demo cache, live browser
// capture with vision and heuristics, then raw fetch with heuristics only.
//
// Extract never fails once the URL normalizes. Every tier failure is
// absorbed and recorded in the result's diagnostics notes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"forge-endpointify/internal/cache"
	"forge-endpointify/internal/capture"
	"forge-endpointify/internal/crawler"
	"forge-endpointify/internal/merge"
	"forge-endpointify/internal/metrics"
	"forge-endpointify/internal/models"
	"forge-endpointify/internal/parser"
	"forge-endpointify/internal/urlnorm"
	"forge-endpointify/internal/vision"
)

const (
	DefaultTimeout         = 11 * time.Second
	DefaultFetchTimeoutCap = 8 * time.Second
	DefaultMaxWarm         = 4
)

// Result confidences assigned by the pipeline itself.
const (
	ConfidenceLiveHeuristic      = 0.62
	ConfidenceLiveHeuristicEmpty = 0.30
	ConfidenceVisionFloor        = 0.70
	ConfidenceFallback           = 0.42
	ConfidenceFallbackEmpty      = 0.20
)

var (
	errNoCapturer = fmt.Errorf("%w: no capturer configured", capture.ErrBrowser)
	errNoFetcher  = fmt.Errorf("%w: no fetcher configured", crawler.ErrFetch)
)

// Capturer renders a page in a browser.
type Capturer interface {
	Capture(ctx context.Context, pageURL string, timeout time.Duration) (*capture.Result, error)
}

// VisionExtractor asks a remote model for components.
type VisionExtractor interface {
	Extract(ctx context.Context, in vision.Input) (*vision.Output, error)
}

// Fetcher performs a plain HTTP GET of a page.
type Fetcher interface {
	FetchHTML(ctx context.Context, rawURL string) (*crawler.Page, error)
}

// Extractor runs the DOM heuristics over an HTML document.
type Extractor interface {
	Extract(html string) ([]models.Component, error)
}

type Option func(*Pipeline)

func WithCapturer(c Capturer) Option { return func(p *Pipeline) { p.capturer = c } }
func WithVision(v VisionExtractor) Option { return func(p *Pipeline) { p.vision = v } }
func WithFetcher(f Fetcher) Option { return func(p *Pipeline) { p.fetcher = f } }
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }
func WithMetrics(m *metrics.Collector) Option { return func(p *Pipeline) { p.metrics = m } }

func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

func WithFetchTimeoutCap(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.fetchCap = d
		}
	}
}

// WithMaxWarmRefreshes bounds concurrent background refreshes. Requests
// arriving while the bound is reached skip their refresh.
func WithMaxWarmRefreshes(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxWarm = n
		}
	}
}

type Pipeline struct {
	cache     *cache.Cache
	heuristic Extractor
	capturer  Capturer
	vision    VisionExtractor
	fetcher   Fetcher
	logger    *zap.Logger
	metrics   *metrics.Collector

	defaultTimeout time.Duration
	fetchCap       time.Duration
	maxWarm        int

	warm     *semaphore.Weighted
	warmWG   sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New builds a pipeline. c may be nil, which behaves as an empty cache.
func New(c *cache.Cache, heuristic Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:          c,
		heuristic:      heuristic,
		logger:         zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		fetchCap:       DefaultFetchTimeoutCap,
		maxWarm:        DefaultMaxWarm,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache, _ = cache.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.warm = semaphore.NewWeighted(int64(p.maxWarm))
	p.bgCtx, p.bgCancel = context.WithCancel(context.Background())
	p.logger = p.logger.With(zap.String("component", "pipeline"))
	return p
}

// Extract runs the pipeline for rawURL. The only error is
// urlnorm.ErrInvalidURL.
func (p *Pipeline) Extract(ctx context.Context, rawURL string, opts models.Options) (*models.ExtractionResult, error) {
	normalized, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	r := &run{
		url:        rawURL,
		normalized: normalized,
		opts:       opts,
		timeout:    opts.Timeout(p.defaultTimeout),
		started:    time.Now(),
	}
	for st := stateCacheCheck; st != stateDone; {
		next := p.step(ctx, r, st)
		p.logger.Debug("transition",
			zap.String("url", normalized),
			zap.Stringer("from", st),
			zap.Stringer("to", next))
		st = next
	}

	res := r.result
	res.Diagnostics.TimingMs = time.Since(r.started).Milliseconds()
	p.metrics.RecordExtraction(string(res.Source), time.Since(r.started))
	p.logger.Info("extraction complete",
		zap.String("url", normalized),
		zap.String("source", string(res.Source)),
		zap.Int("components", len(res.Components)),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("timing_ms", res.Diagnostics.TimingMs))
	return res, nil
}

// Wait blocks until all scheduled warm refreshes have finished.
func (p *Pipeline) Wait() {
	p.warmWG.Wait()
}

// Close cancels in-flight warm refreshes and waits for them.
func (p *Pipeline) Close() {
	p.bgCancel()
	p.warmWG.Wait()
}

// run is the per-invocation state. Nothing in it is shared between calls.
type run struct {
	url        string
	normalized string
	opts       models.Options
	timeout    time.Duration
	started    time.Time

	entry   cache.Entry
	cached  bool
	liveErr error
	notes   []string
	result  *models.ExtractionResult
}

func (r *run) note(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

func (r *run) finish(components []models.Component, confidence float64, source models.Source) {
	r.result = &models.ExtractionResult{
		URL:           r.url,
		NormalizedURL: r.normalized,
		Components:    components,
		Confidence:    confidence,
		Source:        source,
		Diagnostics: models.Diagnostics{
			Source:     source,
			RetryCount: 0,
			Notes:      r.notes,
		},
	}
}

func (p *Pipeline) step(ctx context.Context, r *run, st state) state {
	switch st {
	case stateCacheCheck:
		return p.cacheCheck(r)
	case stateCacheHit:
		return p.cacheHit(r)
	case stateLiveAttempt:
		return p.liveAttempt(ctx, r)
	case stateLiveFailed:
		return p.liveFailed(r)
	case stateCacheFallback:
		return p.cacheFallback(r)
	case stateHeuristicFallback:
		return p.heuristicFallback(ctx, r)
	}
	return stateDone
}

func (p *Pipeline) cacheCheck(r *run) state {
	r.entry, r.cached = p.cache.Lookup(r.normalized)
	switch {
	case r.cached && !r.opts.ForceLive:
		return stateCacheHit
	case r.cached:
		r.note("Live mode forced; skipped cached result")
	default:
		r.note("No cached result; attempting live extraction")
	}
	return stateLiveAttempt
}

func (p *Pipeline) cacheHit(r *run) state {
	r.notes = append(append([]string(nil), r.entry.Notes...), r.notes...)
	r.note("Returned cached demo result immediately")
	if r.opts.Background() {
		if p.scheduleWarm(r.url, r.timeout) {
			r.note("Background live refresh scheduled")
		} else {
			r.note("Background live refresh skipped: refresh capacity reached")
		}
	}
	r.finish(r.entry.Components, r.entry.Confidence, models.SourceDemoCache)
	return stateDone
}

func (p *Pipeline) liveAttempt(ctx context.Context, r *run) state {
	out, err := p.live(ctx, r.url, r.timeout)
	if err != nil {
		r.liveErr = err
		return stateLiveFailed
	}
	if out.visionErr != nil {
		p.logger.Warn("vision skipped", zap.String("url", r.normalized), zap.Error(out.visionErr))
	}
	r.notes = append(r.notes, out.notes...)
	r.finish(out.components, out.confidence, out.source)
	return stateDone
}

func (p *Pipeline) liveFailed(r *run) state {
	p.logger.Warn("live extraction failed", zap.String("url", r.normalized), zap.Error(r.liveErr))
	r.note("Live extraction failed: %v", r.liveErr)
	if r.cached {
		return stateCacheFallback
	}
	return stateHeuristicFallback
}

func (p *Pipeline) cacheFallback(r *run) state {
	r.note("Fallback to cached demo payload")
	r.finish(r.entry.Components, r.entry.Confidence, models.SourceDemoCache)
	return stateDone
}

func (p *Pipeline) heuristicFallback(ctx context.Context, r *run) state {
	r.note("Fallback to heuristic-only mode")

	html := ""
	page, err := p.fetch(ctx, r.url, min(r.timeout, p.fetchCap))
	if err != nil {
		p.metrics.RecordTierFailure("fetch")
		p.logger.Warn("raw fetch failed", zap.String("url", r.normalized), zap.Error(err))
		r.note("Raw HTML fetch failed: %v", err)
	} else {
		html = page.HTML
		r.note("Fetched raw HTML for heuristic fallback")
	}

	components := p.runHeuristic(html, &r.notes)
	confidence := ConfidenceFallbackEmpty
	if parser.Found(components) {
		confidence = ConfidenceFallback
	}
	r.finish(components, confidence, models.SourceHeuristic)
	return stateDone
}

type liveOutcome struct {
	components []models.Component
	confidence float64
	source     models.Source
	notes      []string
	visionErr  error
}

// live captures the page, runs heuristics over the rendered HTML and, when
// vision succeeds, merges its components ahead of the heuristic ones. Only
// a capture failure is returned as an error.
func (p *Pipeline) live(ctx context.Context, pageURL string, timeout time.Duration) (*liveOutcome, error) {
	if p.capturer == nil {
		p.metrics.RecordTierFailure("capture")
		return nil, errNoCapturer
	}
	shot, err := p.capturer.Capture(ctx, pageURL, timeout)
	if err != nil {
		p.metrics.RecordTierFailure("capture")
		return nil, err
	}

	out := &liveOutcome{source: models.SourceHeuristic}
	out.notes = append(out.notes, "Browser capture completed")

	heuristic := p.runHeuristic(shot.HTML, &out.notes)
	out.components = heuristic
	out.confidence = ConfidenceLiveHeuristicEmpty
	if parser.Found(heuristic) {
		out.confidence = ConfidenceLiveHeuristic
	}

	vis, err := p.runVision(ctx, vision.Input{URL: pageURL, HTML: shot.HTML, Screenshot: shot.Screenshot})
	if err != nil {
		p.metrics.RecordTierFailure("vision")
		out.visionErr = err
		out.notes = append(out.notes, fmt.Sprintf("Vision skipped: %v", err))
		return out, nil
	}
	out.components = merge.Merge(vis.Components, heuristic)
	out.confidence = max(vis.Confidence, ConfidenceVisionFloor)
	out.source = models.SourceLive
	out.notes = append(out.notes, "Vision extraction merged with heuristic fallback")
	return out, nil
}

func (p *Pipeline) runVision(ctx context.Context, in vision.Input) (*vision.Output, error) {
	if p.vision == nil {
		return nil, vision.ErrNotConfigured
	}
	return p.vision.Extract(ctx, in)
}

func (p *Pipeline) fetch(ctx context.Context, pageURL string, timeout time.Duration) (*crawler.Page, error) {
	if p.fetcher == nil {
		return nil, errNoFetcher
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.fetcher.FetchHTML(ctx, pageURL)
}

// runHeuristic never returns an empty list: a parse failure degrades to
// the whole-page placeholder.
func (p *Pipeline) runHeuristic(html string, notes *[]string) []models.Component {
	if p.heuristic != nil {
		components, err := p.heuristic.Extract(html)
		if err == nil && len(components) > 0 {
			return components
		}
		if err != nil {
			p.metrics.RecordTierFailure("heuristic")
			*notes = append(*notes, fmt.Sprintf("Heuristic extraction failed: %v", err))
		}
	}
	return []models.Component{parser.PageContent()}
}

// scheduleWarm starts a detached live extraction whose outcome is only
// logged. It reports false when the refresh bound is reached.
func (p *Pipeline) scheduleWarm(pageURL string, timeout time.Duration) bool {
	if !p.warm.TryAcquire(1) {
		p.metrics.RecordWarmRefresh("skipped")
		p.logger.Debug("warm refresh skipped", zap.String("url", pageURL))
		return false
	}
	p.warmWG.Add(1)
	go func() {
		defer p.warmWG.Done()
		defer p.warm.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				p.metrics.RecordWarmRefresh("panic")
				p.logger.Error("warm refresh panicked", zap.String("url", pageURL), zap.Any("panic", rec))
			}
		}()

		out, err := p.live(p.bgCtx, pageURL, timeout)
		switch {
		case errors.Is(err, context.Canceled):
			p.metrics.RecordWarmRefresh("canceled")
		case err != nil:
			p.metrics.RecordWarmRefresh("failed")
			p.logger.Debug("warm refresh failed", zap.String("url", pageURL), zap.Error(err))
		default:
			p.metrics.RecordWarmRefresh("ok")
			p.logger.Debug("warm refresh done",
				zap.String("url", pageURL),
				zap.String("source", string(out.source)),
				zap.Int("components", len(out.components)))
		}
	}()
	return true
}
