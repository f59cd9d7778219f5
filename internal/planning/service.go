package planning

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/colthorp/planning-cli-go/internal/artifact"
	"github.com/colthorp/planning-cli-go/internal/cache"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/metrics"
	"github.com/colthorp/planning-cli-go/internal/model"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Timeout bounds how long one caller waits for an acquisition.
	Timeout time.Duration
	// Location converts week offsets to dates.
	Location *time.Location
	// DevMode pre-marks the current week fresh when its artifact exists.
	DevMode bool
	Now     func() time.Time
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Service is the entry point used by front ends. It collapses concurrent
// requests for the same key into one pipeline run and bounds how long each
// caller waits.
type Service struct {
	acquirer  Acquirer
	sessions  Invalidator
	store     *cache.Store
	artifacts artifact.Backend
	opts      ServiceOptions
	log       *logging.Logger

	group singleflight.Group
}

// NewService creates a service in front of acquirer.
func NewService(acquirer Acquirer, sessions Invalidator, store *cache.Store, artifacts artifact.Backend, opts ServiceOptions) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = core.DefaultAcquireTimeout
	}
	if opts.Location == nil {
		opts.Location = core.GetTZ(core.DefaultTZ)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		acquirer:  acquirer,
		sessions:  sessions,
		store:     store,
		artifacts: artifacts,
		opts:      opts,
		log:       opts.Logger.Component("service"),
	}
}

// Resolve turns user input into a key. explicit is true when the key is not
// the current week, so the pipeline must select the date in the view.
func (s *Service) Resolve(input string) (key string, explicit bool, err error) {
	now := s.opts.Now()
	key, err = core.ResolveKey(input, now, s.opts.Location)
	if err != nil {
		return "", false, err
	}
	current, _ := core.ResolveKey("", now, s.opts.Location)
	return key, key != current, nil
}

// Fetch returns the artifact for key, acquiring it when stale.
//
// Concurrent calls for the same key share one run. The run continues when
// the caller stops waiting: a caller that waits longer than the configured
// timeout, or whose ctx ends, gets AcquisitionFailed(Timeout) while the run
// still populates the cache for later callers.
func (s *Service) Fetch(ctx context.Context, key string, explicit bool) (model.Artifact, error) {
	ctx = logging.WithPlanningKey(logging.WithRequestID(ctx), key)
	log := s.log.WithContext(ctx)

	if s.store.IsFresh(key) {
		s.opts.Metrics.RecordAcquisition(metrics.ResultCacheHit, 0)
		log.Debug("serving cached planning")
		return s.describe(key, true), nil
	}

	start := s.opts.Now()
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return nil, RunWithRetry(runCtx, s.acquirer, s.sessions, key, explicit)
	})

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			s.opts.Metrics.RecordCollapsed()
		}
		if res.Err != nil {
			s.opts.Metrics.RecordAcquisition(metrics.ResultFailed, 0)
			log.WithError(res.Err).Warn("planning acquisition failed")
			return model.Artifact{}, res.Err
		}
		s.opts.Metrics.RecordAcquisition(metrics.ResultFetched, s.opts.Now().Sub(start))
		return s.describe(key, false), nil

	case <-timer.C:
		s.opts.Metrics.RecordAcquisition(metrics.ResultTimeout, 0)
		log.Warn("gave up waiting for acquisition", "timeout", s.opts.Timeout)
		return model.Artifact{}, core.Timeout("planning acquisition timed out after "+s.opts.Timeout.String(), nil)

	case <-ctx.Done():
		s.opts.Metrics.RecordAcquisition(metrics.ResultTimeout, 0)
		return model.Artifact{}, core.Timeout("request abandoned", ctx.Err())
	}
}

// Get resolves input and fetches the resulting key.
func (s *Service) Get(ctx context.Context, input string) (model.Artifact, error) {
	key, explicit, err := s.Resolve(input)
	if err != nil {
		return model.Artifact{}, err
	}
	return s.Fetch(ctx, key, explicit)
}

// Read returns the stored artifact bytes for key.
func (s *Service) Read(ctx context.Context, key string) ([]byte, error) {
	return s.artifacts.Read(ctx, key)
}

// Status describes what is known about key without fetching.
type Status struct {
	Key         string    `json:"key"`
	Fresh       bool      `json:"fresh"`
	CapturedAt  time.Time `json:"captured_at,omitzero"`
	Location    string    `json:"location"`
	Stored      bool      `json:"stored"`
	TTL         string    `json:"ttl"`
	HasSession  bool      `json:"has_session"`
	DetailCount int       `json:"detail_count"`
}

// Status reports freshness and storage state for key.
func (s *Service) Status(ctx context.Context, key string) (Status, error) {
	st := Status{
		Key:         key,
		Fresh:       s.store.IsFresh(key),
		Location:    s.artifacts.Location(key),
		TTL:         s.store.TTL().String(),
		HasSession:  !s.store.Session().Empty(),
		DetailCount: s.store.DetailCount(),
	}
	if ts, ok := s.store.LastFetchTime(key); ok {
		st.CapturedAt = ts
	}
	stored, err := s.artifacts.Exists(ctx, key)
	if err != nil {
		return st, err
	}
	st.Stored = stored
	return st, nil
}

// Warm pre-marks the current week fresh in dev mode when its artifact is
// already stored, so local runs reuse the last capture.
func (s *Service) Warm(ctx context.Context) (bool, error) {
	if !s.opts.DevMode {
		return false, nil
	}
	key, _, err := s.Resolve("")
	if err != nil {
		return false, err
	}
	ok, err := s.artifacts.Exists(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	s.store.MarkFresh(key)
	s.log.Info("dev mode: reusing stored planning", "key", key)
	return true, nil
}

func (s *Service) describe(key string, fromCache bool) model.Artifact {
	a := model.Artifact{
		Key:       key,
		Location:  s.artifacts.Location(key),
		FromCache: fromCache,
	}
	if ts, ok := s.store.LastFetchTime(key); ok {
		a.CapturedAt = ts
	}
	return a
}
