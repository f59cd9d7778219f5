package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/planning-cli-go/internal/core"
)

var settings = []string{
	"APP_ENV", "PASS_USERNAME", "PASS_PASSWORD", "PASS_COOKIES", "PLANNING_CONFIG",
	"PLANNING_CACHE_TIME", "PLANNING_TIMEZONE", "PLANNING_ACQUIRE_TIMEOUT", "PLANNING_SETTLE_DELAY",
	"PLANNING_AUTH_MARKER", "PLANNING_DETAIL_CACHE_SIZE", "PLANNING_DETAIL_CONCURRENCY",
	"PLANNING_DETAIL_RPS", "SCREENSHOTS_DIR", "METRICS_ADDR", "CHROME_PATH",
	"MINIO_ENDPOINT", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD", "MINIO_BUCKET",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every setting and unsets the boolean ones, which are
// read with LookupEnv.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range settings {
		t.Setenv(k, "")
	}
	for _, k := range []string{"BROWSER_VISIBLE", "KEEP_BROWSER_OPEN_WHEN_FINISHED", "MINIO_USE_SSL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, core.DefaultCacheTime, cfg.CacheTime)
	assert.Equal(t, core.DefaultAcquireTimeout, cfg.AcquireTimeout)
	assert.Equal(t, core.DefaultSettleDelay, cfg.SettleDelay)
	assert.Equal(t, core.DefaultTZ, cfg.Timezone)
	assert.Equal(t, core.ScreenshotsRoot(), cfg.ScreenshotsDir)
	assert.Equal(t, core.DefaultDetailConcurrency, cfg.Detail.Concurrency)
	assert.Equal(t, float64(core.DefaultDetailRPS), cfg.Detail.RPS)
	assert.Zero(t, cfg.Detail.CacheSize)
	assert.False(t, cfg.Browser.Visible)
	assert.False(t, cfg.Browser.KeepOpen)
	assert.False(t, cfg.MinIO.Enabled())
	assert.Equal(t, "Déconnexion", cfg.Portal.AuthMarker)
	assert.Equal(t, core.PortalPlanningURL, cfg.Portal.PlanningURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Source)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PASS_USERNAME", "alice")
	t.Setenv("PASS_PASSWORD", "s3cret")
	t.Setenv("PLANNING_CACHE_TIME", "600000")
	t.Setenv("PLANNING_ACQUIRE_TIMEOUT", "90s")
	t.Setenv("BROWSER_VISIBLE", "1")
	t.Setenv("KEEP_BROWSER_OPEN_WHEN_FINISHED", "true")
	t.Setenv("PLANNING_DETAIL_CACHE_SIZE", "256")
	t.Setenv("PLANNING_DETAIL_RPS", "2.5")
	t.Setenv("PLANNING_AUTH_MARKER", "Logout")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ROOT_USER", "minio")
	t.Setenv("MINIO_ROOT_PASSWORD", "minio123")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, 10*time.Minute, cfg.CacheTime)
	assert.Equal(t, 90*time.Second, cfg.AcquireTimeout)
	assert.True(t, cfg.Browser.Visible)
	assert.True(t, cfg.Browser.KeepOpen)
	assert.Equal(t, 256, cfg.Detail.CacheSize)
	assert.Equal(t, 2.5, cfg.Detail.RPS)
	assert.Equal(t, "Logout", cfg.Portal.AuthMarker)
	assert.True(t, cfg.MinIO.Enabled())
	assert.Equal(t, "minio", cfg.MinIO.AccessKey)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
cache_time: 30m
timezone: UTC
browser:
  visible: true
detail:
  cache_size: 64
  concurrency: 2
minio:
  endpoint: s3.local:9000
  bucket: plannings
portal:
  planning_url: https://portal.example/agenda
  noise_selectors: ["#ads"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, 30*time.Minute, cfg.CacheTime)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.True(t, cfg.Browser.Visible)
	assert.Equal(t, 64, cfg.Detail.CacheSize)
	assert.Equal(t, 2, cfg.Detail.Concurrency)
	assert.Equal(t, "s3.local:9000", cfg.MinIO.Endpoint)
	assert.Equal(t, "plannings", cfg.MinIO.Bucket)
	assert.Equal(t, "https://portal.example/agenda", cfg.Portal.PlanningURL)
	assert.Equal(t, []string{"#ads"}, cfg.Portal.NoiseSelectors)
	assert.Equal(t, core.PortalBaseURL, cfg.Portal.BaseURL, "unset profile fields keep defaults")
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "cache_time: 30m\nbrowser:\n  visible: true\n")
	t.Setenv("PLANNING_CONFIG", path)
	t.Setenv("PLANNING_CACHE_TIME", "2h")
	t.Setenv("BROWSER_VISIBLE", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, 2*time.Hour, cfg.CacheTime)
	assert.False(t, cfg.Browser.Visible)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") }},
		{"bad yaml", func(t *testing.T) string { return writeYAML(t, "cache_time: [unterminated") }},
		{"bad cache time", func(t *testing.T) string {
			t.Setenv("PLANNING_CACHE_TIME", "soon")
			return ""
		}},
		{"bad detail size", func(t *testing.T) string {
			t.Setenv("PLANNING_DETAIL_CACHE_SIZE", "many")
			return ""
		}},
		{"bad rps", func(t *testing.T) string {
			t.Setenv("PLANNING_DETAIL_RPS", "fast")
			return ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(tt.setup(t))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Username: "alice", Password: "s3cret", CacheTime: time.Hour, AcquireTimeout: time.Minute}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"credentials", func(c *Config) {}, false},
		{"cookies only", func(c *Config) { c.Username, c.Password, c.Cookies = "", "", "a=b" }, false},
		{"no credentials", func(c *Config) { c.Password = "" }, true},
		{"zero ttl", func(c *Config) { c.CacheTime = 0 }, true},
		{"negative timeout", func(c *Config) { c.AcquireTimeout = -time.Second }, true},
		{"negative cache size", func(c *Config) { c.Detail.CacheSize = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var traced interface{ StackTrace() errors.StackTrace }
				assert.ErrorAs(t, err, &traced, "errors carry a stack trace")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringMasksSecrets(t *testing.T) {
	c := &Config{Username: "alice", Password: "s3cret", Cookies: "ASPSESSIONID=abc", ScreenshotsDir: "/tmp/shots"}

	s := c.String()
	assert.Contains(t, s, "alice")
	assert.Contains(t, s, "***")
	assert.NotContains(t, s, "s3cret")
	assert.NotContains(t, s, "ASPSESSIONID")
	assert.Contains(t, s, "/tmp/shots")
}
