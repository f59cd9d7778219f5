package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// ChromeOptions configures ChromeLauncher.
type ChromeOptions struct {
	// Visible runs Chrome headed instead of headless.
	Visible bool
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
	// WindowWidth and WindowHeight size the viewport; zero keeps the default.
	WindowWidth  int
	WindowHeight int
	// NavigationTimeout bounds how long Click waits for the next document.
	NavigationTimeout time.Duration
}

// ChromeLauncher starts one Chrome process per page.
type ChromeLauncher struct {
	opts ChromeOptions
}

// NewChromeLauncher creates a launcher with the given options.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.WindowWidth == 0 {
		opts.WindowWidth = 1600
	}
	if opts.WindowHeight == 0 {
		opts.WindowHeight = 1200
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	return &ChromeLauncher{opts: opts}
}

// NewPage starts Chrome and opens a blank tab.
//
// The page's lifetime is independent of ctx. Call Close to terminate the
// process.
func (l *ChromeLauncher) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !l.opts.Visible),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &chromePage{
		ctx:        tabCtx,
		navTimeout: l.opts.NavigationTimeout,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// The first Run launches the browser process. It must run on the tab
	// context itself: cancelling a child of the first Run kills the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		p.Close()
		return nil, errors.Wrap(err, "start chrome")
	}
	return p, nil
}

type chromePage struct {
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	navTimeout time.Duration
}

// run executes actions on the tab, aborting if either the tab or the caller's
// context is done.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// Click registers for the load event before clicking, so the old document's
// body never satisfies the wait.
func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		loaded := make(chan struct{})
		var once sync.Once
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
				once.Do(func() { close(loaded) })
			}
		})

		if err := chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible).Do(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(p.navTimeout)
		defer timer.Stop()
		select {
		case <-loaded:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.Errorf("no page load within %s after clicking %s", p.navTimeout, selector)
		}
		return chromedp.WaitReady("body", chromedp.ByQuery).Do(ctx)
	}))
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeReady))
	return text, err
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Cookies(ctx context.Context) ([]model.Cookie, error) {
	var cookies []model.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, model.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			})
		}
		return nil
	}))
	return cookies, err
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			if err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(path).
				Do(ctx); err != nil {
				return errors.Wrapf(err, "set cookie %s", c.Name)
			}
		}
		return nil
	}))
}

func (p *chromePage) Close() error {
	p.once.Do(p.cancel)
	return nil
}
