// Package config loads the planning CLI configuration.
//
// Loading order:
//  1. .env from the first candidate path that exists (credentials, APP_ENV)
//  2. a YAML file named by --config, PLANNING_CONFIG or configs/planning.yaml
//  3. environment variables, which override YAML
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/colthorp/planning-cli-go/internal/artifact"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/portal"
)

// Environment is the deployment environment.
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig is the layout of the YAML config file. Durations are strings
// so they accept the same forms as the environment.
type YAMLConfig struct {
	CacheTime      string `yaml:"cache_time"`
	Timezone       string `yaml:"timezone"`
	AcquireTimeout string `yaml:"acquire_timeout"`
	SettleDelay    string `yaml:"settle_delay"`
	ScreenshotsDir string `yaml:"screenshots_dir"`
	MetricsAddr    string `yaml:"metrics_addr"`

	Browser BrowserConfig        `yaml:"browser"`
	Detail  DetailConfig         `yaml:"detail"`
	MinIO   artifact.MinIOConfig `yaml:"minio"`
	Portal  portal.Profile       `yaml:"portal"`
	Log     LogConfig            `yaml:"log"`
}

type BrowserConfig struct {
	Visible  bool   `yaml:"visible"`
	KeepOpen bool   `yaml:"keep_open"`
	ExecPath string `yaml:"exec_path"`
}

type DetailConfig struct {
	CacheSize   int     `yaml:"cache_size"`
	Concurrency int     `yaml:"concurrency"`
	RPS         float64 `yaml:"rps"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the resolved configuration.
type Config struct {
	Env Environment

	Username string
	Password string
	// Cookies is a pre-serialized cookie string imported once instead of logging in.
	Cookies string

	CacheTime      time.Duration
	Timezone       string
	AcquireTimeout time.Duration
	SettleDelay    time.Duration
	ScreenshotsDir string

	Browser BrowserConfig
	Detail  DetailConfig
	MinIO   artifact.MinIOConfig
	Portal  portal.Profile

	MetricsAddr string
	Log         LogConfig

	// Source is the YAML file that was applied, if any.
	Source string
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// Load builds the configuration. path names a YAML file; when empty,
// PLANNING_CONFIG and then configs/planning.yaml are tried.
func Load(path string) (*Config, error) {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	y, source, err := loadYAML(path)
	if err != nil {
		return nil, err
	}
	return build(y, source)
}

func loadYAML(path string) (*YAMLConfig, string, error) {
	y := &YAMLConfig{}
	if path == "" {
		path = os.Getenv("PLANNING_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, y); err != nil {
			return nil, "", errors.Wrapf(err, "parse config %s", path)
		}
		return y, path, nil
	}

	for _, base := range configPaths {
		candidate := filepath.Join(base, "planning.yaml")
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, y); err != nil {
			return nil, "", errors.Wrapf(err, "parse config %s", candidate)
		}
		return y, candidate, nil
	}
	return y, "", nil
}

func build(y *YAMLConfig, source string) (*Config, error) {
	cfg := &Config{
		Env:            parseEnv(getEnv("APP_ENV", string(EnvProduction))),
		Username:       os.Getenv("PASS_USERNAME"),
		Password:       os.Getenv("PASS_PASSWORD"),
		Cookies:        os.Getenv("PASS_COOKIES"),
		Timezone:       getEnv("PLANNING_TIMEZONE", orDefault(y.Timezone, core.DefaultTZ)),
		ScreenshotsDir: getEnv("SCREENSHOTS_DIR", orDefault(y.ScreenshotsDir, core.ScreenshotsRoot())),
		MetricsAddr:    getEnv("METRICS_ADDR", y.MetricsAddr),
		Browser:        y.Browser,
		Detail:         y.Detail,
		MinIO:          y.MinIO,
		Portal:         y.Portal.Merge(portal.DefaultProfile()),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", orDefault(y.Log.Level, "info")),
			Format: getEnv("LOG_FORMAT", orDefault(y.Log.Format, "text")),
		},
		Source: source,
	}

	var err error
	if cfg.CacheTime, err = durationSetting("PLANNING_CACHE_TIME", y.CacheTime, core.DefaultCacheTime); err != nil {
		return nil, err
	}
	if cfg.AcquireTimeout, err = durationSetting("PLANNING_ACQUIRE_TIMEOUT", y.AcquireTimeout, core.DefaultAcquireTimeout); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = durationSetting("PLANNING_SETTLE_DELAY", y.SettleDelay, core.DefaultSettleDelay); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("BROWSER_VISIBLE"); ok {
		cfg.Browser.Visible = isTruthy(v)
	}
	if v, ok := os.LookupEnv("KEEP_BROWSER_OPEN_WHEN_FINISHED"); ok {
		cfg.Browser.KeepOpen = isTruthy(v)
	}
	cfg.Browser.ExecPath = getEnv("CHROME_PATH", cfg.Browser.ExecPath)

	if cfg.Detail.CacheSize, err = getEnvInt("PLANNING_DETAIL_CACHE_SIZE", cfg.Detail.CacheSize); err != nil {
		return nil, err
	}
	if cfg.Detail.Concurrency, err = getEnvInt("PLANNING_DETAIL_CONCURRENCY", cfg.Detail.Concurrency); err != nil {
		return nil, err
	}
	if cfg.Detail.Concurrency <= 0 {
		cfg.Detail.Concurrency = core.DefaultDetailConcurrency
	}
	if v := os.Getenv("PLANNING_DETAIL_RPS"); v != "" {
		rps, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, errors.Errorf("invalid PLANNING_DETAIL_RPS '%s'", v)
		}
		cfg.Detail.RPS = rps
	}
	if cfg.Detail.RPS == 0 {
		cfg.Detail.RPS = core.DefaultDetailRPS
	}

	cfg.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKey = getEnv("MINIO_ROOT_USER", cfg.MinIO.AccessKey)
	cfg.MinIO.SecretKey = getEnv("MINIO_ROOT_PASSWORD", cfg.MinIO.SecretKey)
	cfg.MinIO.Bucket = getEnv("MINIO_BUCKET", cfg.MinIO.Bucket)
	if v, ok := os.LookupEnv("MINIO_USE_SSL"); ok {
		cfg.MinIO.UseSSL = isTruthy(v)
	}

	if marker := os.Getenv("PLANNING_AUTH_MARKER"); marker != "" {
		cfg.Portal.AuthMarker = marker
	}

	return cfg, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.Cookies == "" && (c.Username == "" || c.Password == "") {
		return errors.New("PASS_USERNAME and PASS_PASSWORD are required unless PASS_COOKIES is set")
	}
	if c.CacheTime <= 0 {
		return errors.Errorf("cache time must be positive, got %s", c.CacheTime)
	}
	if c.AcquireTimeout <= 0 {
		return errors.Errorf("acquire timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.Detail.CacheSize < 0 {
		return errors.New("detail cache size cannot be negative")
	}
	return nil
}

// IsDev reports whether the development environment is active.
func (c *Config) IsDev() bool {
	return c.Env == EnvDevelopment
}

// String summarizes the configuration with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, User: %s, Password: %s, Cookies: %s, CacheTime: %s, TZ: %s, Storage: %s}",
		c.Env, c.Username, mask(c.Password), mask(c.Cookies), c.CacheTime, c.Timezone, c.storage())
}

func (c *Config) storage() string {
	if c.MinIO.Enabled() {
		return "minio://" + c.MinIO.Endpoint
	}
	return c.ScreenshotsDir
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func durationSetting(env, yamlValue string, def time.Duration) (time.Duration, error) {
	raw := getEnv(env, yamlValue)
	if raw == "" {
		return def, nil
	}
	d, err := core.ParseCacheTime(raw)
	if err != nil {
		return 0, errors.Wrap(err, env)
	}
	return d, nil
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "dev", "development":
		return EnvDevelopment
	default:
		return EnvProduction
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("invalid %s '%s'", key, v)
	}
	return n, nil
}
