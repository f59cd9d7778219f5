// Package session owns the process-wide portal session.
//
// # State Machine
//
//	NoSession -> Authenticating -> Authenticated -> (Rejected -> NoSession)
//
// EnsureSession and Invalidate run under one mutex, so concurrent
// acquisitions for different keys never observe a half-built session or
// log in twice.
//
// # Session Sources
//
// EnsureSession tries, in order:
//  1. the session already held by the Cache Store (no network activity)
//  2. a pre-serialized cookie string from configuration, consumed at most
//     once per process
//  3. the interactive login sequence through the SSO form
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/colthorp/planning-cli-go/internal/browser"
	"github.com/colthorp/planning-cli-go/internal/cache"
	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/metrics"
	"github.com/colthorp/planning-cli-go/internal/model"
	"github.com/colthorp/planning-cli-go/internal/portal"
)

// State is the Session Manager's lifecycle state.
type State int

const (
	NoSession State = iota
	Authenticating
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Credentials is the username/password pair used by the login sequence.
type Credentials struct {
	Username string
	Password string
}

// Options configures a Manager.
type Options struct {
	Credentials Credentials
	// Cookies is a pre-serialized "a=b; c=d" cookie string that bypasses login.
	Cookies string
	// SettleDelay is waited after a successful login before the session is used.
	SettleDelay time.Duration
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	// Sleep replaces the settle wait (for tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// Now replaces the clock used for EstablishedAt.
	Now func() time.Time
}

// Manager is the Session Manager.
type Manager struct {
	store   *cache.Store
	profile portal.Profile
	opts    Options
	log     *logging.Logger

	mu            sync.Mutex
	state         State
	cookiesUsed   bool
	logins        int
	imports       int
	invalidations int
}

// NewManager creates a manager backed by store.
func NewManager(store *cache.Store, profile portal.Profile, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		store:   store,
		profile: profile,
		opts:    opts,
		log:     opts.Logger.Component("session"),
	}
	if !store.Session().Empty() {
		m.state = Authenticated
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Logins returns how many interactive logins succeeded.
func (m *Manager) Logins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}

// Imports returns how many times the configured cookie string was imported.
func (m *Manager) Imports() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.imports
}

// Invalidations returns how many times Invalidate was called.
func (m *Manager) Invalidations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidations
}

// transition must be called with mu held.
func (m *Manager) transition(to State) {
	if m.state != to {
		m.log.Debug("session state", "from", m.state.String(), "to", to.String())
	}
	m.state = to
}

// EnsureSession returns an authenticated session, logging in through page
// when neither a cached session nor an unused cookie string is available.
func (m *Manager) EnsureSession(ctx context.Context, page browser.Page) (*model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.store.Session(); !s.Empty() {
		m.transition(Authenticated)
		return s, nil
	}

	if !m.cookiesUsed && strings.TrimSpace(m.opts.Cookies) != "" {
		m.cookiesUsed = true
		cookies := model.ParseCookies(m.opts.Cookies, m.profile.CookieDomain)
		if len(cookies) > 0 {
			s := &model.SessionState{Cookies: cookies, EstablishedAt: m.opts.Now()}
			m.store.SetSession(s)
			m.imports++
			m.opts.Metrics.RecordLogin(metrics.LoginCookies)
			m.transition(Authenticated)
			m.log.WithContext(ctx).Info("session imported from configured cookies", "cookies", len(cookies))
			return s.Clone(), nil
		}
		m.log.WithContext(ctx).Warn("configured cookie string holds no cookies; falling back to login")
	}

	m.transition(Authenticating)
	s, err := m.login(ctx, page)
	if err != nil {
		m.transition(NoSession)
		m.log.WithContext(ctx).WithError(err).Warn("login failed")
		return nil, err
	}

	m.store.SetSession(s)
	m.logins++
	m.opts.Metrics.RecordLogin(metrics.LoginCredentials)
	m.transition(Authenticated)
	return s.Clone(), nil
}

// login runs the interactive SSO sequence on page.
func (m *Manager) login(ctx context.Context, page browser.Page) (*model.SessionState, error) {
	p := m.profile
	log := m.log.WithContext(ctx)

	if m.opts.Credentials.Username == "" || m.opts.Credentials.Password == "" {
		return nil, core.AuthenticationFailed("no credentials configured")
	}

	log.Info("logging in", "url", p.BaseURL)
	if err := page.Navigate(ctx, p.BaseURL); err != nil {
		return nil, core.AcquisitionFailed("open login page", err)
	}

	log.Debug("click SSO button")
	if err := page.Click(ctx, p.SSOButton); err != nil {
		return nil, core.AcquisitionFailed("click SSO button", err)
	}

	log.Debug("send credentials")
	if err := page.Fill(ctx, p.UsernameInput, m.opts.Credentials.Username); err != nil {
		return nil, core.AcquisitionFailed("fill username", err)
	}
	if err := page.Fill(ctx, p.PasswordInput, m.opts.Credentials.Password); err != nil {
		return nil, core.AcquisitionFailed("fill password", err)
	}
	if err := page.Click(ctx, p.SubmitButton); err != nil {
		return nil, core.AcquisitionFailed("submit credentials", err)
	}

	rejected, err := page.Exists(ctx, p.RejectionSelector)
	if err != nil {
		return nil, core.AcquisitionFailed("check login result", err)
	}
	if rejected {
		msg, err := page.Text(ctx, p.RejectionSelector)
		if err != nil {
			return nil, core.AcquisitionFailed("read login error", err)
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			return nil, core.AuthenticationFailed(msg)
		}
	}

	content, err := page.Content(ctx)
	if err != nil {
		return nil, core.AcquisitionFailed("read post-login page", err)
	}
	if p.ConsentMarker != "" && strings.Contains(content, p.ConsentMarker) {
		log.Debug("accepting attribute release consent")
		if err := page.Click(ctx, p.ConsentAccept); err != nil {
			return nil, core.AcquisitionFailed("accept consent", err)
		}
	}

	// Server-side session propagation lags behind the redirect chain
	if err := m.opts.Sleep(ctx, m.opts.SettleDelay); err != nil {
		return nil, core.AcquisitionFailed("settle after login", err)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, core.AcquisitionFailed("read session cookies", err)
	}
	if len(cookies) == 0 {
		return nil, core.AcquisitionFailed("login produced no session cookies", nil)
	}

	log.Info("logged in", "cookies", len(cookies))
	return &model.SessionState{Cookies: cookies, EstablishedAt: m.opts.Now()}, nil
}

// Invalidate drops the cached session regardless of the current state.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transition(Rejected)
	m.store.ClearSession()
	m.invalidations++
	m.opts.Metrics.RecordInvalidation()
	m.transition(NoSession)
	m.log.Info("session invalidated")
}

// VerifyAuthenticated reports whether content carries the authenticated marker.
func (m *Manager) VerifyAuthenticated(content string) bool {
	marker := m.profile.AuthMarker
	if marker == "" {
		return true
	}
	return strings.Contains(content, marker)
}
