// Package planning implements planning acquisition: the Acquisition
// Pipeline, the Retry Policy and the per-key collapsing Service in front of
// them.
//
// # Pipeline Steps
//
//  1. Return immediately when the key is fresh.
//  2. Start an engine page and ensure a session.
//  3. Open the planning view, selecting the key's date when requested.
//  4. Probe the view for the authenticated marker (SessionRejected if absent).
//  5. Enrich events through the detail cache; individual failures are skipped.
//  6. Remove visual noise; failures are ignored.
//  7. Capture the planning table and store it as the key's artifact.
//  8. Mark the key fresh.
//
// The page is closed on every exit path unless KeepOpen is set.
package planning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/colthorp/planning-cli-go/internal/artifact"
	"github.com/colthorp/planning-cli-go/internal/browser"
	"github.com/colthorp/planning-cli-go/internal/cache"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/metrics"
	"github.com/colthorp/planning-cli-go/internal/model"
	"github.com/colthorp/planning-cli-go/internal/portal"
)

// SessionManager is the part of session.Manager the pipeline uses.
type SessionManager interface {
	EnsureSession(ctx context.Context, page browser.Page) (*model.SessionState, error)
	VerifyAuthenticated(content string) bool
	Invalidator
}

// DetailFetcher fetches one event's detail with a lightweight request.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, session *model.SessionState, id string) (model.EventDetail, error)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// KeepOpen leaves the engine page open after a run (debugging aid).
	KeepOpen bool
	// DetailConcurrency bounds parallel detail lookups.
	DetailConcurrency int
	Logger            *logging.Logger
	Metrics           *metrics.Metrics
}

// Pipeline is the Acquisition Pipeline.
type Pipeline struct {
	store     *cache.Store
	sessions  SessionManager
	launcher  browser.Launcher
	details   DetailFetcher
	artifacts artifact.Backend
	profile   portal.Profile
	opts      PipelineOptions
	log       *logging.Logger

	runs atomic.Int64
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(
	store *cache.Store,
	sessions SessionManager,
	launcher browser.Launcher,
	details DetailFetcher,
	artifacts artifact.Backend,
	profile portal.Profile,
	opts PipelineOptions,
) *Pipeline {
	if opts.DetailConcurrency <= 0 {
		opts.DetailConcurrency = core.DefaultDetailConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Pipeline{
		store:     store,
		sessions:  sessions,
		launcher:  launcher,
		details:   details,
		artifacts: artifacts,
		profile:   profile,
		opts:      opts,
		log:       opts.Logger.Component("pipeline"),
	}
}

// Runs returns how many times the pipeline went past the freshness check.
func (p *Pipeline) Runs() int {
	return int(p.runs.Load())
}

// Acquire produces the artifact for key unless it is already fresh.
// explicit selects the key's date in the view instead of using the portal's
// default (current) week.
func (p *Pipeline) Acquire(ctx context.Context, key string, explicit bool) error {
	log := p.log.WithContext(ctx).WithKey(key)

	if p.store.IsFresh(key) {
		log.Debug("artifact is fresh; skipping acquisition")
		return nil
	}
	p.runs.Add(1)
	start := time.Now()

	page, err := p.launcher.NewPage(ctx)
	if err != nil {
		return core.AcquisitionFailed("start browser", err)
	}
	defer func() {
		if p.opts.KeepOpen {
			log.Info("keeping browser open")
			return
		}
		if cerr := page.Close(); cerr != nil {
			log.WithError(cerr).Warn("close browser")
		}
	}()

	session, err := p.sessions.EnsureSession(ctx, page)
	if err != nil {
		return core.Classify("ensure session", err)
	}

	if err := page.SetCookies(ctx, session.Cookies); err != nil {
		return core.AcquisitionFailed("install session cookies", err)
	}

	log.Info("opening planning view", "url", p.profile.PlanningURL, "explicit", explicit)
	if err := page.Navigate(ctx, p.profile.PlanningURL); err != nil {
		return core.AcquisitionFailed("open planning view", err)
	}

	// A logged-out view has no date affordance, so probe before selecting.
	if err := p.verify(ctx, page); err != nil {
		return err
	}

	if explicit {
		if err := p.selectDate(ctx, page, key); err != nil {
			return err
		}
		if err := p.verify(ctx, page); err != nil {
			return err
		}
	}

	p.enrich(ctx, page, session, log)
	p.cleanup(ctx, page, log)

	shot, err := page.Screenshot(ctx, p.profile.PlanningSelector)
	if err != nil {
		return core.AcquisitionFailed("capture planning", err)
	}
	if len(shot) == 0 {
		return core.AcquisitionFailed("capture planning: empty image", nil)
	}

	if err := p.artifacts.Write(ctx, key, shot); err != nil {
		return core.AcquisitionFailed("store artifact", err)
	}

	p.store.MarkFresh(key)
	log.WithDuration(time.Since(start)).Info("planning captured", "location", p.artifacts.Location(key), "bytes", len(shot))
	return nil
}

// verify runs the liveness probe on the current view.
func (p *Pipeline) verify(ctx context.Context, page browser.Page) error {
	content, err := page.Content(ctx)
	if err != nil {
		return core.AcquisitionFailed("read planning view", err)
	}
	if !p.sessions.VerifyAuthenticated(content) {
		return core.SessionRejected("portal served a logged-out view")
	}
	return nil
}

// selectDate drives the view's date form to the key's date.
func (p *Pipeline) selectDate(ctx context.Context, page browser.Page, key string) error {
	ok, err := page.Exists(ctx, p.profile.DateInput)
	if err != nil {
		return core.DateSelectionFailed("look up date input", err)
	}
	if !ok {
		return core.DateSelectionFailed("date input not found", nil)
	}
	if err := page.Fill(ctx, p.profile.DateInput, key); err != nil {
		return core.DateSelectionFailed("fill date input", err)
	}
	if err := page.Click(ctx, p.profile.DateSubmit); err != nil {
		return core.DateSelectionFailed("submit date", err)
	}
	return nil
}

// enrich annotates the view with event details. It never fails: lookups that
// error are logged and left out.
func (p *Pipeline) enrich(ctx context.Context, page browser.Page, session *model.SessionState, log *logging.Logger) {
	var ids []string
	if err := page.Evaluate(ctx, discoverScript(p.profile), &ids); err != nil {
		log.WithError(err).Warn("discover events")
		return
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return
	}

	var (
		mu     sync.Mutex
		labels = make(map[string]string, len(ids))
		g      errgroup.Group
	)
	g.SetLimit(p.opts.DetailConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			detail, err := p.lookupDetail(ctx, session, id)
			if err != nil {
				log.WithError(err).Warn("event detail unavailable", "event", id)
				return nil
			}
			if label := detail.Label(); label != "" {
				mu.Lock()
				labels[id] = label
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(labels) == 0 {
		return
	}
	var annotated int
	if err := page.Evaluate(ctx, annotateScript(p.profile, labels), &annotated); err != nil {
		log.WithError(err).Warn("annotate events")
		return
	}
	log.Debug("events annotated", "events", len(ids), "annotated", annotated)
}

// lookupDetail resolves an event through the detail cache.
func (p *Pipeline) lookupDetail(ctx context.Context, session *model.SessionState, id string) (model.EventDetail, error) {
	if detail, ok := p.store.Detail(id); ok {
		p.opts.Metrics.RecordDetail(metrics.DetailCache)
		return detail, nil
	}
	detail, err := p.details.FetchDetail(ctx, session, id)
	if err != nil {
		p.opts.Metrics.RecordDetail(metrics.DetailFailed)
		return model.EventDetail{}, err
	}
	p.opts.Metrics.RecordDetail(metrics.DetailRemote)
	p.store.PutDetail(id, detail)
	// another lookup may have won the race; serve what the cache holds
	if cached, ok := p.store.Detail(id); ok {
		return cached, nil
	}
	return detail, nil
}

// cleanup removes visual noise. Failures are ignored.
func (p *Pipeline) cleanup(ctx context.Context, page browser.Page, log *logging.Logger) {
	if len(p.profile.NoiseSelectors) == 0 {
		return
	}
	var removed int
	if err := page.Evaluate(ctx, cleanupScript(p.profile), &removed); err != nil {
		log.WithError(err).Debug("cleanup skipped")
		return
	}
	log.Debug("noise removed", "nodes", removed)
}

// Login establishes a session on a throwaway page.
func (p *Pipeline) Login(ctx context.Context) (*model.SessionState, error) {
	page, err := p.launcher.NewPage(ctx)
	if err != nil {
		return nil, core.AcquisitionFailed("start browser", err)
	}
	if !p.opts.KeepOpen {
		defer page.Close()
	}
	s, err := p.sessions.EnsureSession(ctx, page)
	if err != nil {
		return nil, core.Classify("ensure session", err)
	}
	return s, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
