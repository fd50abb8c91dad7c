// Package capture drives a headless Chrome session through Rod to load a
// page, let client-side rendering settle, and grab the rendered HTML plus
// a JPEG screenshot. Every call gets its own browser session, torn down on
// return.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

var (
	// ErrNavigationTimeout is returned when the page does not reach
	// DOMContentLoaded within the budget.
	ErrNavigationTimeout = errors.New("capture: navigation timeout")
	// ErrBrowser covers launch, connect and page-level failures.
	ErrBrowser = errors.New("capture: browser error")
)

// Config configures the capturer.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome per capture.
	RemoteURL string

	// BinPath overrides the Chrome binary used by the launcher.
	BinPath string

	// Stealth applies go-rod/stealth evasions to the page.
	Stealth bool

	ViewportWidth  int
	ViewportHeight int

	// SettleDelay is waited after DOMContentLoaded. Default: 600ms.
	SettleDelay time.Duration

	// ScreenshotQuality is the JPEG quality (1-100). Default: 65.
	ScreenshotQuality int

	Logger *zap.Logger
}

func (c *Config) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1440
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 900
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 600 * time.Millisecond
	}
	if c.ScreenshotQuality <= 0 || c.ScreenshotQuality > 100 {
		c.ScreenshotQuality = 65
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Result is a captured page. Screenshot is nil when the screenshot step failed.
type Result struct {
	HTML       string
	Screenshot []byte
}

type Capturer struct {
	cfg Config
}

func New(cfg Config) *Capturer {
	cfg.defaults()
	cfg.Logger = cfg.Logger.With(zap.String("component", "capture"))
	return &Capturer{cfg: cfg}
}

// Capture loads pageURL with navigation bounded by timeout.
func (c *Capturer) Capture(ctx context.Context, pageURL string, timeout time.Duration) (*Result, error) {
	log := c.cfg.Logger
	start := time.Now()

	// Navigation gets the caller's budget; settle and capture get a small grace.
	sessionCtx, cancel := context.WithTimeout(ctx, timeout+c.cfg.SettleDelay+5*time.Second)
	defer cancel()

	browser, release, err := c.open(sessionCtx)
	if err != nil {
		return nil, err
	}
	defer release()

	page, err := c.newPage(browser)
	if err != nil {
		return nil, fmt.Errorf("%w: create page: %w", ErrBrowser, err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  c.cfg.ViewportWidth,
		Height: c.cfg.ViewportHeight,
	}); err != nil {
		log.Warn("capture: set viewport failed", zap.Error(err))
	}

	navCtx, navCancel := context.WithTimeout(sessionCtx, timeout)
	defer navCancel()
	navPage := page.Context(navCtx)

	wait := navPage.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := navPage.Navigate(pageURL); err != nil {
		return nil, classify(navCtx, fmt.Sprintf("navigate %s", pageURL), err)
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, classify(navCtx, fmt.Sprintf("navigate %s", pageURL), err)
	}

	select {
	case <-time.After(c.cfg.SettleDelay):
	case <-sessionCtx.Done():
		return nil, classify(sessionCtx, "settle", sessionCtx.Err())
	}

	live := page.Context(sessionCtx)
	html, err := live.HTML()
	if err != nil {
		return nil, classify(sessionCtx, "read html", err)
	}

	quality := c.cfg.ScreenshotQuality
	shot, err := live.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		log.Warn("capture: screenshot failed", zap.String("url", pageURL), zap.Error(err))
		shot = nil
	}

	log.Debug("capture: completed",
		zap.String("url", pageURL),
		zap.Int("html_bytes", len(html)),
		zap.Int("screenshot_bytes", len(shot)),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{HTML: html, Screenshot: shot}, nil
}

// open returns an isolated browser and its release func. A remote Chrome
// is isolated through an incognito context; a local one is launched fresh.
func (c *Capturer) open(ctx context.Context) (*rod.Browser, func(), error) {
	log := c.cfg.Logger

	if c.cfg.RemoteURL != "" {
		root := rod.New().ControlURL(c.cfg.RemoteURL).Context(ctx)
		if err := root.Connect(); err != nil {
			return nil, nil, fmt.Errorf("%w: connect: %w", ErrBrowser, err)
		}
		incognito, err := root.Incognito()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: incognito: %w", ErrBrowser, err)
		}
		return incognito, func() {
			if err := incognito.Close(); err != nil {
				log.Debug("capture: close incognito context", zap.Error(err))
			}
		}, nil
	}

	l := launcher.New().Context(ctx).Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	if c.cfg.BinPath != "" {
		l = l.Bin(c.cfg.BinPath)
	}
	wsURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("%w: launch: %w", ErrBrowser, err)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("%w: connect: %w", ErrBrowser, err)
	}
	return b, func() {
		if err := b.Close(); err != nil {
			log.Debug("capture: close browser", zap.Error(err))
		}
		l.Kill()
		l.Cleanup()
	}, nil
}

func (c *Capturer) newPage(b *rod.Browser) (*rod.Page, error) {
	if c.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{URL: ""})
}

// classify maps a failure to ErrNavigationTimeout when ctx expired and to
// ErrBrowser otherwise. A canceled ctx stays visible to errors.Is even when
// rod reports the failure in its own terms.
func classify(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrNavigationTimeout, step, err)
	}
	if !errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %s: %w (%v)", ErrBrowser, step, context.Canceled, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBrowser, step, err)
}
