package planning

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/planning-cli-go/internal/artifact"
	"github.com/colthorp/planning-cli-go/internal/browser"
	"github.com/colthorp/planning-cli-go/internal/cache"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/model"
	"github.com/colthorp/planning-cli-go/internal/portal"
	"github.com/colthorp/planning-cli-go/internal/session"
)

const (
	loggedIn  = `<html><body><a href="/logout">Déconnexion</a><table bgcolor="#F7F7F7"></table></body></html>`
	loggedOut = `<html><body><form id="fm1">Connexion</form></body></html>`
)

// harness wires a real pipeline, session manager and detail client to
// in-memory engine, transport and storage.
type harness struct {
	t         *testing.T
	now       time.Time
	nowMu     sync.Mutex
	store     *cache.Store
	launcher  *browser.FakeLauncher
	transport *portal.InMemoryTransport
	artifacts *artifact.MemoryBackend
	sessions  *session.Manager
	pipeline  *Pipeline

	mu         sync.Mutex
	eventIDs   []string
	annotated  []string
	plannings  int
	rejectNext int // number of upcoming planning views served logged out
}

func newHarness(t *testing.T, opts PipelineOptions) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		now:       time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC),
		launcher:  browser.NewFakeLauncher(),
		transport: portal.NewInMemoryTransport(),
		artifacts: artifact.NewMemoryBackend(),
	}
	h.store = cache.NewStore(time.Hour, cache.WithClock(h.clock))

	h.launcher.BrowserCookies = []model.Cookie{{Name: "ASPSESSIONID", Value: "live", Domain: core.PortalDomain, Path: "/"}}
	h.launcher.ScreenshotData = []byte("\x89PNG planning")
	h.launcher.Elements[`input[name="DateDeb"]`] = true
	h.launcher.ContentFunc = h.content
	h.launcher.EvalFunc = h.eval

	profile := portal.DefaultProfile()
	h.sessions = session.NewManager(h.store, profile, session.Options{
		Credentials: session.Credentials{Username: "alice", Password: "s3cret"},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	client := portal.NewClient(profile,
		portal.WithTransport(h.transport),
		portal.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	h.pipeline = NewPipeline(h.store, h.sessions, h.launcher, client, h.artifacts, profile, opts)
	return h
}

func (h *harness) clock() time.Time {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) setEvents(ids ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventIDs = ids
}

func (h *harness) content(p *browser.FakePage) string {
	if p.CurrentURL() != core.PortalPlanningURL {
		return "<html><body>login</body></html>"
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plannings++
	if h.rejectNext > 0 {
		h.rejectNext--
		return loggedOut
	}
	return loggedIn
}

func (h *harness) eval(_ *browser.FakePage, expr string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case strings.Contains(expr, "ids.push"):
		return append([]string(nil), h.eventIDs...), nil
	case strings.Contains(expr, "planning-detail"):
		h.annotated = append(h.annotated, expr)
		return len(h.eventIDs), nil
	case strings.Contains(expr, "e.remove()"):
		return 3, nil
	}
	return nil, errors.New("unexpected script")
}

func (h *harness) seedDetails() {
	h.transport.SeedDetail("101", "M. Dupont", "B03-102")
	h.transport.SeedDetail("102", "Mme Martin", "A01-001")
	h.transport.SeedDetail("103", "M. Durand", "Amphi 2")
}

func TestAcquireProducesArtifact(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.seedDetails()
	h.setEvents("101", "102", "102", "103")
	ctx := context.Background()

	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))

	data, err := h.artifacts.Read(ctx, "15/07/2024")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG planning"), data)
	assert.True(t, h.store.IsFresh("15/07/2024"))
	assert.Equal(t, 3, h.store.DetailCount())

	pages := h.launcher.Pages()
	require.Len(t, pages, 1)
	page := pages[0]
	assert.True(t, page.Closed())
	assert.Equal(t, h.launcher.BrowserCookies, page.InstalledCookies())
	assert.True(t, page.Called("navigate", core.PortalPlanningURL))
	assert.True(t, page.Called("screenshot", `table[bgcolor="#F7F7F7"]`))
	assert.False(t, page.Called("fill", `input[name="DateDeb"]`), "current week uses the default view")

	require.Len(t, h.annotated, 1)
	assert.Contains(t, h.annotated[0], "M. Dupont | B03-102")
	assert.Contains(t, h.annotated[0], "Amphi 2")
}

func TestAcquireIdempotentWithinTTL(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	ctx := context.Background()

	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))
	first, ok := h.store.LastFetchTime("15/07/2024")
	require.True(t, ok)

	h.advance(30 * time.Minute)
	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))

	second, _ := h.store.LastFetchTime("15/07/2024")
	assert.Equal(t, first, second, "second call must not refresh the timestamp")
	assert.Equal(t, 1, h.pipeline.Runs())
	assert.Equal(t, 1, h.launcher.PagesOpened())
	assert.Equal(t, 1, h.artifacts.Writes())
}

func TestAcquireAfterTTLRefetches(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	ctx := context.Background()

	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))
	h.advance(time.Hour + time.Millisecond)
	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))

	assert.Equal(t, 2, h.pipeline.Runs())
	assert.Equal(t, 2, h.artifacts.Writes())
	assert.Equal(t, 1, h.sessions.Logins(), "session outlives the artifact")
}

func TestAcquireReusesSessionAcrossKeys(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	ctx := context.Background()

	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))
	require.NoError(t, h.pipeline.Acquire(ctx, "22/07/2024", true))

	assert.Equal(t, 1, h.sessions.Logins())
	assert.Equal(t, 0, h.sessions.Imports())
	assert.Equal(t, 2, h.pipeline.Runs())

	second := h.launcher.Pages()[1]
	assert.False(t, second.Called("navigate", core.PortalBaseURL), "no login on the second run")
}

func TestAcquireExplicitDate(t *testing.T) {
	h := newHarness(t, PipelineOptions{})

	require.NoError(t, h.pipeline.Acquire(context.Background(), "22/07/2024", true))

	page := h.launcher.Pages()[0]
	assert.Equal(t, "22/07/2024", page.Value(`input[name="DateDeb"]`))
	assert.True(t, page.Called("click", `input[type=submit][name="Valider"]`))
	assert.Equal(t, 2, h.plannings, "view probed before and after date selection")
}

func TestAcquireDateSelectionFailed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"missing input", func(h *harness) { delete(h.launcher.Elements, `input[name="DateDeb"]`) }},
		{"unclickable submit", func(h *harness) {
			h.launcher.Errors[`click input[type=submit][name="Valider"]`] = errors.New("not clickable")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, PipelineOptions{})
			tt.setup(h)

			err := h.pipeline.Acquire(context.Background(), "22/07/2024", true)
			assert.True(t, core.IsKind(err, core.KindDateSelectionFailed), "got %v", err)
			assert.False(t, h.store.IsFresh("22/07/2024"))
			assert.Equal(t, 0, h.artifacts.Writes())
			assert.Equal(t, 0, h.launcher.OpenPages())
		})
	}
}

func TestAcquireSilentRejection(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.rejectNext = 1

	err := h.pipeline.Acquire(context.Background(), "15/07/2024", false)
	assert.True(t, core.IsKind(err, core.KindSessionRejected), "got %v", err)
	assert.Equal(t, 0, h.artifacts.Writes())
	assert.Equal(t, 0, h.launcher.OpenPages())
	assert.NotNil(t, h.store.Session(), "the pipeline itself never invalidates")
}

func TestRunWithRetryRecoversFromSilentRejection(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.rejectNext = 1

	err := RunWithRetry(context.Background(), h.pipeline, h.sessions, "15/07/2024", false)
	require.NoError(t, err)

	assert.Equal(t, 2, h.pipeline.Runs())
	assert.Equal(t, 1, h.sessions.Invalidations())
	assert.Equal(t, 2, h.sessions.Logins(), "second attempt logs in again")
	assert.True(t, h.store.IsFresh("15/07/2024"))
}

func TestRunWithRetryStopsAfterSecondRejection(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.rejectNext = 5

	err := RunWithRetry(context.Background(), h.pipeline, h.sessions, "15/07/2024", false)
	assert.True(t, core.IsKind(err, core.KindSessionRejected))
	assert.Equal(t, 2, h.pipeline.Runs())
	assert.Equal(t, 1, h.sessions.Invalidations())
}

func TestAcquireDetailCacheAcrossRuns(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.seedDetails()
	ctx := context.Background()

	h.setEvents("101", "102")
	require.NoError(t, h.pipeline.Acquire(ctx, "15/07/2024", false))
	h.setEvents("102", "103")
	require.NoError(t, h.pipeline.Acquire(ctx, "22/07/2024", true))

	assert.Equal(t, 1, h.transport.RequestsFor("101"))
	assert.Equal(t, 1, h.transport.RequestsFor("102"), "already-seen id is served from the detail cache")
	assert.Equal(t, 1, h.transport.RequestsFor("103"))
	assert.Equal(t, 3, h.store.DetailCount())
}

func TestAcquirePartialEnrichment(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.transport.SeedDetail("101", "M. Dupont", "B03-102")
	h.transport.SeedDetail("103", "M. Durand", "Amphi 2")
	h.setEvents("101", "102", "103") // 102 answers 404

	require.NoError(t, h.pipeline.Acquire(context.Background(), "15/07/2024", false))

	assert.Equal(t, 1, h.artifacts.Writes())
	assert.True(t, h.store.IsFresh("15/07/2024"))
	assert.Equal(t, 2, h.store.DetailCount())
	_, ok := h.store.Detail("102")
	assert.False(t, ok, "failed lookups are not cached")

	require.Len(t, h.annotated, 1)
	assert.NotContains(t, h.annotated[0], `"102"`)
}

func TestAcquireDiscoveryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.launcher.EvalFunc = func(*browser.FakePage, string) (any, error) {
		return nil, errors.New("script error")
	}

	require.NoError(t, h.pipeline.Acquire(context.Background(), "15/07/2024", false))
	assert.Equal(t, 1, h.artifacts.Writes())
}

func TestAcquireScreenshotFailureKeepsPriorArtifact(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.artifacts.Seed("15/07/2024", []byte("previous"))
	h.launcher.Errors[`screenshot table[bgcolor="#F7F7F7"]`] = errors.New("node not visible")

	err := h.pipeline.Acquire(context.Background(), "15/07/2024", false)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAcquisitionFailed))
	assert.ErrorIs(t, err, core.ErrAcquisitionFailed)
	assert.NotErrorIs(t, err, core.ErrTimeout)

	data, rerr := h.artifacts.Read(context.Background(), "15/07/2024")
	require.NoError(t, rerr)
	assert.Equal(t, []byte("previous"), data)
	assert.False(t, h.store.IsFresh("15/07/2024"))
	assert.Equal(t, 0, h.launcher.OpenPages())
}

func TestAcquireEmptyScreenshot(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.launcher.ScreenshotData = nil

	err := h.pipeline.Acquire(context.Background(), "15/07/2024", false)
	assert.True(t, core.IsKind(err, core.KindAcquisitionFailed))
}

func TestAcquireAuthenticationFailed(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.launcher.Elements["#msg.errors"] = true
	h.launcher.Texts["#msg.errors"] = "Invalid credentials."

	err := RunWithRetry(context.Background(), h.pipeline, h.sessions, "15/07/2024", false)
	assert.True(t, core.IsKind(err, core.KindAuthenticationFailed))
	assert.Equal(t, 1, h.pipeline.Runs(), "credential rejection is not retried")
	assert.Equal(t, 0, h.sessions.Invalidations())
	assert.Equal(t, 0, h.launcher.OpenPages())
}

func TestAcquireBrowserStartFailure(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	h.launcher.NewPageErr = errors.New("chrome not found")

	err := h.pipeline.Acquire(context.Background(), "15/07/2024", false)
	assert.True(t, core.IsKind(err, core.KindAcquisitionFailed))
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestAcquireKeepOpen(t *testing.T) {
	h := newHarness(t, PipelineOptions{KeepOpen: true})
	h.launcher.Errors[`screenshot table[bgcolor="#F7F7F7"]`] = errors.New("boom")

	require.Error(t, h.pipeline.Acquire(context.Background(), "15/07/2024", false))
	assert.Equal(t, 1, h.launcher.OpenPages())
}

func TestAcquireCleanupFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	base := h.launcher.EvalFunc
	h.launcher.EvalFunc = func(p *browser.FakePage, expr string) (any, error) {
		if strings.Contains(expr, "e.remove()") {
			return nil, errors.New("detached node")
		}
		return base(p, expr)
	}

	require.NoError(t, h.pipeline.Acquire(context.Background(), "15/07/2024", false))
}

func TestAcquireCookieImport(t *testing.T) {
	h := newHarness(t, PipelineOptions{})
	profile := portal.DefaultProfile()
	h.sessions = session.NewManager(h.store, profile, session.Options{Cookies: "ASPSESSIONID=imported"})
	h.pipeline = NewPipeline(h.store, h.sessions, h.launcher, portal.NewClient(profile, portal.WithTransport(h.transport)), h.artifacts, profile, PipelineOptions{})

	require.NoError(t, h.pipeline.Acquire(context.Background(), "15/07/2024", false))

	page := h.launcher.Pages()[0]
	assert.False(t, page.Called("navigate", core.PortalBaseURL))
	require.Len(t, page.InstalledCookies(), 1)
	assert.Equal(t, "imported", page.InstalledCookies()[0].Value)
	assert.Equal(t, 1, h.sessions.Imports())
}

func TestPipelineLogin(t *testing.T) {
	h := newHarness(t, PipelineOptions{})

	s, err := h.pipeline.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASPSESSIONID=live", s.Header())
	assert.Equal(t, 0, h.launcher.OpenPages())
	assert.Equal(t, session.Authenticated, h.sessions.State())
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, dedupe([]string{"1", "2", "", "1", "3", "2"}))
	assert.Empty(t, dedupe(nil))
}

func TestScripts(t *testing.T) {
	p := portal.DefaultProfile()

	discover := discoverScript(p)
	assert.Contains(t, discover, `"td[onclick*=\"NumEve\"]"`)
	assert.Contains(t, discover, `"NumEve=(\\d+)"`)

	annotate := annotateScript(p, map[string]string{"1": `O'Brien "Jr"`})
	assert.Contains(t, annotate, `{"1":"O'Brien \"Jr\""}`)

	assert.Contains(t, cleanupScript(p), `["#bandeau",".cookie-banner","#footer"]`)
}
