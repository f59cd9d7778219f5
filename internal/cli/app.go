package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/colthorp/planning-cli-go/internal/artifact"
	"github.com/colthorp/planning-cli-go/internal/browser"
	"github.com/colthorp/planning-cli-go/internal/cache"
	"github.com/colthorp/planning-cli-go/internal/config"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/metrics"
	"github.com/colthorp/planning-cli-go/internal/planning"
	"github.com/colthorp/planning-cli-go/internal/portal"
	"github.com/colthorp/planning-cli-go/internal/session"
)

const detailRequestTimeout = 30 * time.Second

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	store    *cache.Store
	sessions *session.Manager
	pipeline *planning.Pipeline
	service  *planning.Service
}

// newApp loads configuration and wires the acquisition stack.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Format: cfg.Log.Format, Output: "stderr", Component: "planning"})
	log.Debug("configuration loaded", "config", cfg.String(), "source", cfg.Source)

	m := metrics.New(prometheus.NewRegistry())

	artifacts, err := newArtifactBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := cache.NewStore(cfg.CacheTime, cache.WithDetailCapacity(cfg.Detail.CacheSize))

	sessions := session.NewManager(store, cfg.Portal, session.Options{
		Credentials: session.Credentials{Username: cfg.Username, Password: cfg.Password},
		Cookies:     cfg.Cookies,
		SettleDelay: cfg.SettleDelay,
		Logger:      log,
		Metrics:     m,
	})

	client := portal.NewClient(cfg.Portal,
		portal.WithTransport(portal.NewHTTPTransport(detailRequestTimeout)),
		portal.WithRateLimit(cfg.Detail.RPS),
		portal.WithLogger(log),
	)

	launcher := browser.NewChromeLauncher(browser.ChromeOptions{
		Visible:  cfg.Browser.Visible,
		ExecPath: cfg.Browser.ExecPath,
	})

	pipeline := planning.NewPipeline(store, sessions, launcher, client, artifacts, cfg.Portal, planning.PipelineOptions{
		KeepOpen:          cfg.Browser.KeepOpen,
		DetailConcurrency: cfg.Detail.Concurrency,
		Logger:            log,
		Metrics:           m,
	})

	service := planning.NewService(pipeline, sessions, store, artifacts, planning.ServiceOptions{
		Timeout:  cfg.AcquireTimeout,
		Location: core.GetTZ(cfg.Timezone),
		DevMode:  cfg.IsDev(),
		Logger:   log,
		Metrics:  m,
	})

	if _, err := service.Warm(ctx); err != nil {
		log.WithError(err).Warn("dev mode warm-up failed")
	}

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    store,
		sessions: sessions,
		pipeline: pipeline,
		service:  service,
	}, nil
}

func newArtifactBackend(ctx context.Context, cfg *config.Config) (artifact.Backend, error) {
	if !cfg.MinIO.Enabled() {
		return artifact.NewFilesystemBackend(cfg.ScreenshotsDir), nil
	}
	b, err := artifact.NewMinIOBackend(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	if err := b.EnsureBucket(ctx); err != nil {
		return nil, errors.Wrap(err, "prepare artifact bucket")
	}
	return b, nil
}
