// Package vision calls a remote vision-model endpoint with a captured page
// (HTML plus screenshot) and returns the components it reports.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"forge-endpointify/internal/classifier"
	"forge-endpointify/internal/models"
)

var (
	// ErrNotConfigured is returned when the endpoint or credential is absent.
	ErrNotConfigured = errors.New("vision: endpoint or credential not configured")
	// ErrRemote is returned for transport failures and non-success statuses.
	ErrRemote = errors.New("vision: remote error")
	// ErrSchema is returned when the response has no components list.
	ErrSchema = errors.New("vision: response missing components")
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultHTMLBudget = 40_000
	// DefaultConfidence applies when the response omits a confidence.
	DefaultConfidence = 0.7
)

const prompt = `Extract interactive web components from this page.
Return JSON with fields: components[], confidence.
Each component must include id,type,label,selector,description,confidence,actionHints.
Allowed type values: search,form,table,button,filter,pagination.
Page URL: `

// Config is the explicit vision configuration. An empty Endpoint or APIKey
// is a valid state: Extract then fails fast with ErrNotConfigured.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTMLBudget int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Configured reports whether both endpoint and credential are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.APIKey) != ""
}

type Input struct {
	URL        string
	HTML       string
	Screenshot []byte
}

type Output struct {
	Components []models.Component
	Confidence float64
}

type Client struct {
	cfg        Config
	client     *http.Client
	classifier *classifier.Classifier
	policy     *bluemonday.Policy
	logger     *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTMLBudget <= 0 {
		cfg.HTMLBudget = DefaultHTMLBudget
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		client:     client,
		classifier: classifier.New(),
		policy:     bluemonday.StrictPolicy(),
		logger:     logger.With(zap.String("component", "vision")),
	}
}

type request struct {
	Prompt           string `json:"prompt"`
	HTML             string `json:"html"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
}

type response struct {
	Components *[]models.Component `json:"components"`
	Confidence *float64            `json:"confidence"`
}

// Extract sends one request bounded by the configured timeout.
func (c *Client) Extract(ctx context.Context, in Input) (*Output, error) {
	if !c.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	body := request{
		Prompt: prompt + in.URL,
		HTML:   truncate(in.HTML, c.cfg.HTMLBudget),
	}
	if len(in.Screenshot) > 0 {
		body.ScreenshotBase64 = base64.StdEncoding.EncodeToString(in.Screenshot)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: request failed with status %d: %s", ErrRemote, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSchema, err)
	}
	if decoded.Components == nil {
		return nil, ErrSchema
	}

	out := &Output{
		Components: c.sanitize(*decoded.Components),
		Confidence: DefaultConfidence,
	}
	if decoded.Confidence != nil {
		out.Confidence = clamp(*decoded.Confidence)
	}

	c.logger.Debug("vision: extracted",
		zap.String("url", in.URL),
		zap.Int("components", len(out.Components)),
		zap.Float64("confidence", out.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// sanitize strips markup from remote text, resolves types and fills ids
// and action hints. Components whose type cannot be resolved are dropped.
func (c *Client) sanitize(in []models.Component) []models.Component {
	out := make([]models.Component, 0, len(in))
	for i, comp := range in {
		comp.Label = c.plain(comp.Label)
		comp.Description = c.plain(comp.Description)
		comp.Selector = strings.TrimSpace(comp.Selector)
		comp.ID = strings.TrimSpace(comp.ID)

		t, reason, ok := c.classifier.Classify(comp)
		if !ok {
			c.logger.Debug("vision: dropping unclassifiable component",
				zap.String("id", comp.ID), zap.String("type", string(comp.Type)))
			continue
		}
		if string(comp.Type) != string(t) {
			c.logger.Debug("vision: reclassified component",
				zap.String("id", comp.ID), zap.String("from", string(comp.Type)),
				zap.String("to", string(t)), zap.String("reason", reason))
		}
		comp.Type = t

		if comp.ID == "" {
			comp.ID = fmt.Sprintf("vision_%d", i)
		}
		if len(comp.ActionHints) == 0 {
			comp.ActionHints = classifier.DefaultActionHints(t)
		}
		comp.Confidence = clamp(comp.Confidence)
		out = append(out, comp)
	}
	return out
}

func (c *Client) plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

// truncate cuts s to at most budget bytes without splitting a rune.
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
