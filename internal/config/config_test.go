package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpointify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 11*time.Second, cfg.Pipeline.LiveTimeout)
	assert.Equal(t, 8*time.Second, cfg.Pipeline.FetchTimeoutCap)
	assert.Equal(t, 4, cfg.Pipeline.MaxWarmRefreshes)
	assert.Equal(t, 600*time.Millisecond, cfg.Browser.SettleDelay)
	assert.Equal(t, 65, cfg.Browser.ScreenshotQuality)
	assert.Equal(t, 40_000, cfg.Vision.HTMLBudget)
	assert.EqualValues(t, 200_000, cfg.Fetch.SizeCap)
	assert.Empty(t, cfg.Vision.Endpoint)
}

func TestFileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
pipeline:
  live_timeout: 4s
browser:
  stealth: true
vision:
  endpoint: https://vision.internal/extract
log:
  level: debug
`)
	cfg, err := load("", env(map[string]string{
		EnvConfigFile: path,
		EnvAddr:       ":7070",
		EnvVisionKey:  "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 4*time.Second, cfg.Pipeline.LiveTimeout)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, "https://vision.internal/extract", cfg.Vision.Endpoint)
	assert.Equal(t, "secret", cfg.Vision.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1440, cfg.Browser.ViewportWidth)
}

func TestExplicitPathWins(t *testing.T) {
	explicit := writeFile(t, "server:\n  addr: \":1111\"\n")
	cfg, err := load(explicit, env(map[string]string{EnvConfigFile: "/does/not/exist.yaml"}))
	require.NoError(t, err)
	assert.Equal(t, ":1111", cfg.Server.Addr)
}

func TestUnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "server:\n  adress: \":1\"\n")
	_, err := load(path, env(nil))
	assert.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	cfg, err := load(writeFile(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLiveTimeoutEnv(t *testing.T) {
	cfg, err := load("", env(map[string]string{EnvLiveTimeoutMs: "2500"}))
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Pipeline.LiveTimeout)

	_, err = load("", env(map[string]string{EnvLiveTimeoutMs: "soon"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Browser.ScreenshotQuality = 0
	cfg.Pipeline.MaxWarmRefreshes = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "screenshot_quality")
	assert.Contains(t, err.Error(), "max_warm_refreshes")
}

func TestMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.Error(t, err)
}
