// Package config loads service settings.
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"forge-endpointify/pkg/logger"
)

// Environment variables read by Load.
const (
	EnvConfigFile = "ENDPOINTIFY_CONFIG"
	EnvAddr       = "ENDPOINTIFY_ADDR"
	EnvLogLevel   = "ENDPOINTIFY_LOG_LEVEL"
	EnvLogFormat  = "ENDPOINTIFY_LOG_FORMAT"
	EnvBrowserURL = "ENDPOINTIFY_BROWSER_URL"
	EnvCacheFile  = "ENDPOINTIFY_CACHE_FILE"
	EnvVisionURL  = "VISION_API_URL"
	EnvVisionKey  = "VISION_API_KEY"

	EnvLiveTimeoutMs = "ENDPOINTIFY_LIVE_TIMEOUT_MS"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Browser  BrowserConfig  `yaml:"browser"`
	Vision   VisionConfig   `yaml:"vision"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit        float64 `yaml:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst"`
	BatchConcurrency int     `yaml:"batch_concurrency"`
	MaxBatch         int     `yaml:"max_batch"`
}

type PipelineConfig struct {
	LiveTimeout      time.Duration `yaml:"live_timeout"`
	FetchTimeoutCap  time.Duration `yaml:"fetch_timeout_cap"`
	MaxWarmRefreshes int           `yaml:"max_warm_refreshes"`
}

type BrowserConfig struct {
	// RemoteURL is a DevTools websocket URL. Empty launches a local browser
	// per capture.
	RemoteURL         string        `yaml:"remote_url"`
	BinPath           string        `yaml:"bin_path"`
	Stealth           bool          `yaml:"stealth"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ScreenshotQuality int           `yaml:"screenshot_quality"`
}

type VisionConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	HTMLBudget int           `yaml:"html_budget"`
}

type FetchConfig struct {
	DialTimeout time.Duration `yaml:"dial_timeout"`
	SizeCap     int64         `yaml:"size_cap"`
	UserAgent   string        `yaml:"user_agent"`
}

type CacheConfig struct {
	// File is an extra YAML seed merged over the embedded demo entries.
	File string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     90 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			RateLimit:        5,
			RateBurst:        10,
			BatchConcurrency: 10,
			MaxBatch:         50,
		},
		Pipeline: PipelineConfig{
			LiveTimeout:      11 * time.Second,
			FetchTimeoutCap:  8 * time.Second,
			MaxWarmRefreshes: 4,
		},
		Browser: BrowserConfig{
			ViewportWidth:     1440,
			ViewportHeight:    900,
			SettleDelay:       600 * time.Millisecond,
			ScreenshotQuality: 65,
		},
		Vision: VisionConfig{
			Timeout:    10 * time.Second,
			HTMLBudget: 40_000,
		},
		Fetch: FetchConfig{
			DialTimeout: 5 * time.Second,
			SizeCap:     200_000,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "endpointify",
		},
	}
}

// Load builds the configuration. path overrides ENDPOINTIFY_CONFIG; when
// both are empty only defaults and environment apply.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookup(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvAddr:       &cfg.Server.Addr,
		EnvLogLevel:   &cfg.Log.Level,
		EnvLogFormat:  &cfg.Log.Format,
		EnvBrowserURL: &cfg.Browser.RemoteURL,
		EnvCacheFile:  &cfg.Cache.File,
		EnvVisionURL:  &cfg.Vision.Endpoint,
		EnvVisionKey:  &cfg.Vision.APIKey,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvLiveTimeoutMs); ok {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvLiveTimeoutMs, err)
		}
		cfg.Pipeline.LiveTimeout = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Pipeline.LiveTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.live_timeout must be positive"))
	}
	if c.Pipeline.FetchTimeoutCap <= 0 {
		errs = append(errs, errors.New("pipeline.fetch_timeout_cap must be positive"))
	}
	if c.Pipeline.MaxWarmRefreshes < 1 {
		errs = append(errs, errors.New("pipeline.max_warm_refreshes must be at least 1"))
	}
	if q := c.Browser.ScreenshotQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("browser.screenshot_quality %d outside 1..100", q))
	}
	if c.Server.BatchConcurrency < 1 {
		errs = append(errs, errors.New("server.batch_concurrency must be at least 1"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
