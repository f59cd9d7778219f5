package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// Call records one operation performed on a FakePage.
type Call struct {
	Op  string
	Arg string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Op
	}
	return c.Op + " " + c.Arg
}

// FakeLauncher is a scriptable in-memory engine for unit tests.
//
// Behaviour is configured through the exported fields before use. Hooks run
// with no lock held so they may block, count, or inspect the page.
type FakeLauncher struct {
	// Elements lists selectors that exist on every page.
	Elements map[string]bool
	// Texts maps selectors to the text Text returns.
	Texts map[string]string
	// ContentFunc returns the document HTML for the page's current URL.
	ContentFunc func(p *FakePage) string
	// EvalFunc returns the value of an evaluated expression.
	EvalFunc func(p *FakePage, expr string) (any, error)
	// ScreenshotData is returned by Screenshot.
	ScreenshotData []byte
	// BrowserCookies is returned by Cookies.
	BrowserCookies []model.Cookie
	// Errors maps "op selector-or-url" (e.g. "click #go") to a failure.
	Errors map[string]error
	// NavigateHook runs on every Navigate before the URL changes.
	NavigateHook func(ctx context.Context, p *FakePage, url string) error
	// NewPageErr makes NewPage fail.
	NewPageErr error

	mu    sync.Mutex
	pages []*FakePage
}

// NewFakeLauncher creates a launcher with empty behaviour.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{
		Elements: make(map[string]bool),
		Texts:    make(map[string]string),
		Errors:   make(map[string]error),
	}
}

// NewPage returns a new FakePage.
func (l *FakeLauncher) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.NewPageErr != nil {
		return nil, l.NewPageErr
	}
	p := &FakePage{launcher: l, URL: "about:blank"}
	l.mu.Lock()
	l.pages = append(l.pages, p)
	l.mu.Unlock()
	return p, nil
}

// Pages returns every page created so far.
func (l *FakeLauncher) Pages() []*FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakePage(nil), l.pages...)
}

// PagesOpened returns the number of pages created so far.
func (l *FakeLauncher) PagesOpened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pages)
}

// OpenPages returns the number of pages not yet closed.
func (l *FakeLauncher) OpenPages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.pages {
		if !p.Closed() {
			n++
		}
	}
	return n
}

// FakePage is a page of a FakeLauncher. It records every call.
type FakePage struct {
	launcher *FakeLauncher

	mu      sync.Mutex
	URL     string
	calls   []Call
	values  map[string]string
	cookies []model.Cookie
	closed  bool
}

func (p *FakePage) record(op, arg string) error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: op, Arg: arg})
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("%s on closed page", op)
	}
	if err, ok := p.launcher.Errors[op+" "+arg]; ok {
		return err
	}
	return nil
}

// Calls returns the recorded calls in order.
func (p *FakePage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Called reports whether op was called with arg.
func (p *FakePage) Called(op, arg string) bool {
	for _, c := range p.Calls() {
		if c.Op == op && c.Arg == arg {
			return true
		}
	}
	return false
}

// Value returns what Fill wrote into selector.
func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// InstalledCookies returns the cookies passed to SetCookies.
func (p *FakePage) InstalledCookies() []model.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Cookie(nil), p.cookies...)
}

// CurrentURL returns the last navigated URL.
func (p *FakePage) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URL
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.record("navigate", url); err != nil {
		return err
	}
	if hook := p.launcher.NavigateHook; hook != nil {
		if err := hook(ctx, p, url); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.URL = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	if err := p.record("fill", selector); err != nil {
		return err
	}
	p.mu.Lock()
	if p.values == nil {
		p.values = make(map[string]string)
	}
	p.values[selector] = value
	p.mu.Unlock()
	return ctx.Err()
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	if err := p.record("click", selector); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.record("exists", selector); err != nil {
		return false, err
	}
	return p.launcher.Elements[selector], ctx.Err()
}

func (p *FakePage) Text(ctx context.Context, selector string) (string, error) {
	if err := p.record("text", selector); err != nil {
		return "", err
	}
	text, ok := p.launcher.Texts[selector]
	if !ok {
		return "", fmt.Errorf("no element matches %s", selector)
	}
	return text, ctx.Err()
}

func (p *FakePage) Evaluate(ctx context.Context, expr string, out any) error {
	if err := p.record("evaluate", expr); err != nil {
		return err
	}
	if p.launcher.EvalFunc == nil {
		return nil
	}
	value, err := p.launcher.EvalFunc(p, expr)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	if err := p.record("content", ""); err != nil {
		return "", err
	}
	if p.launcher.ContentFunc == nil {
		return "<html><body></body></html>", nil
	}
	return p.launcher.ContentFunc(p), ctx.Err()
}

func (p *FakePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := p.record("screenshot", selector); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.launcher.ScreenshotData...), ctx.Err()
}

func (p *FakePage) Cookies(ctx context.Context) ([]model.Cookie, error) {
	if err := p.record("cookies", ""); err != nil {
		return nil, err
	}
	return append([]model.Cookie(nil), p.launcher.BrowserCookies...), ctx.Err()
}

func (p *FakePage) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	if err := p.record("set_cookies", ""); err != nil {
		return err
	}
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "close"})
	p.closed = true
	return nil
}
