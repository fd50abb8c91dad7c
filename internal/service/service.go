// Package service wires the pipeline, the workspace store and metrics
// into the operations exposed by the API, the CLI and the MCP tools.
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"forge-endpointify/internal/cache"
	"forge-endpointify/internal/capture"
	"forge-endpointify/internal/config"
	"forge-endpointify/internal/crawler"
	"forge-endpointify/internal/metrics"
	"forge-endpointify/internal/models"
	"forge-endpointify/internal/parser"
	"forge-endpointify/internal/pipeline"
	"forge-endpointify/internal/vision"
	"forge-endpointify/internal/workspace"
)

type Service struct {
	Pipeline *pipeline.Pipeline
	Store    *workspace.Store
	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	logger *zap.Logger
}

// New wraps an already built pipeline and store.
func New(p *pipeline.Pipeline, store *workspace.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = workspace.New(workspace.WithLogger(logger))
	}
	return &Service{Pipeline: p, Store: store, logger: logger}
}

// FromConfig builds every dependency from cfg.
func FromConfig(cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := cache.Load(cfg.Cache.File)
	if err != nil {
		return nil, err
	}

	var (
		reg       *prometheus.Registry
		collector *metrics.Collector
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
	}

	capt := capture.New(capture.Config{
		RemoteURL:         cfg.Browser.RemoteURL,
		BinPath:           cfg.Browser.BinPath,
		Stealth:           cfg.Browser.Stealth,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		SettleDelay:       cfg.Browser.SettleDelay,
		ScreenshotQuality: cfg.Browser.ScreenshotQuality,
		Logger:            logger,
	})
	visionCfg := vision.Config{
		Endpoint:   cfg.Vision.Endpoint,
		APIKey:     cfg.Vision.APIKey,
		Timeout:    cfg.Vision.Timeout,
		HTMLBudget: cfg.Vision.HTMLBudget,
		Logger:     logger,
	}
	vis := vision.New(visionCfg)
	fetch := crawler.NewHTTPClient(cfg.Pipeline.FetchTimeoutCap, cfg.Fetch.DialTimeout, cfg.Fetch.SizeCap, cfg.Fetch.UserAgent)

	p := pipeline.New(c, parser.New(),
		pipeline.WithCapturer(capt),
		pipeline.WithVision(vis),
		pipeline.WithFetcher(fetch),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(collector),
		pipeline.WithDefaultTimeout(cfg.Pipeline.LiveTimeout),
		pipeline.WithFetchTimeoutCap(cfg.Pipeline.FetchTimeoutCap),
		pipeline.WithMaxWarmRefreshes(cfg.Pipeline.MaxWarmRefreshes),
	)

	logger.Info("service ready",
		zap.Int("cache_entries", c.Len()),
		zap.Bool("vision_configured", visionCfg.Configured()),
		zap.Bool("remote_browser", cfg.Browser.RemoteURL != ""))

	s := New(p, workspace.New(workspace.WithLogger(logger)), logger)
	s.Metrics = collector
	s.Registry = reg
	return s, nil
}

// Endpointify extracts rawURL and records the result as a workspace job.
func (s *Service) Endpointify(ctx context.Context, rawURL string, opts models.Options) (models.EndpointifyJob, error) {
	res, err := s.Pipeline.Extract(ctx, rawURL, opts)
	if err != nil {
		return models.EndpointifyJob{}, err
	}
	return s.Store.RecordExtraction(rawURL, res), nil
}

func (s *Service) Generate(jobID string, selected []string) (models.AppEntry, error) {
	return s.Store.GenerateApp(jobID, selected)
}

// BatchItem is the outcome of one URL in a batch. Exactly one of Job and
// Error is set.
type BatchItem struct {
	URL   string                 `json:"url"`
	Job   *models.EndpointifyJob `json:"job,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// Batch runs reqs with at most concurrency extractions in flight and
// returns one item per request in input order. Per-URL failures are
// reported in the item, never as a batch error.
func (s *Service) Batch(ctx context.Context, reqs []models.ExtractRequest, concurrency int) []BatchItem {
	if concurrency < 1 {
		concurrency = 1
	}
	items := make([]BatchItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for i, req := range reqs {
		g.Go(func() error {
			items[i].URL = req.URL
			job, err := s.Endpointify(gctx, req.URL, req.Options)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Job = &job
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("batch complete",
		zap.Int("urls", len(reqs)),
		zap.Int("concurrency", concurrency),
		zap.Duration("elapsed", time.Since(start)))
	return items
}

// Close stops background refreshes.
func (s *Service) Close() {
	if s.Pipeline != nil {
		s.Pipeline.Close()
	}
}
