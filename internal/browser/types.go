// Package browser defines the rendering/automation engine capability used to
// log into the portal and capture the planning view.
//
// The acquisition code depends only on Launcher and Page. ChromeLauncher
// drives a real Chrome through the DevTools protocol; FakeLauncher is a
// scriptable in-memory engine for tests.
package browser

import (
	"context"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// Launcher starts a fresh engine instance and returns its page.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is one browsing context. Selectors are CSS selectors.
//
// Every method that talks to the engine takes a context; cancelling it aborts
// the call but leaves the page usable until Close.
type Page interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// Fill sets the value of the input matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the element matching selector and waits until the
	// navigation it triggers has loaded. A click that loads nothing fails.
	Click(ctx context.Context, selector string) error

	// Exists reports whether at least one element matches selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Text returns the visible text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)

	// Evaluate runs a JavaScript expression and decodes its JSON result
	// into out. out may be nil to discard the result.
	Evaluate(ctx context.Context, expr string, out any) error

	// Content returns the current document's HTML.
	Content(ctx context.Context) (string, error)

	// Screenshot captures the first element matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// Cookies returns every cookie visible to the page.
	Cookies(ctx context.Context) ([]model.Cookie, error)

	// SetCookies installs cookies before the next navigation.
	SetCookies(ctx context.Context, cookies []model.Cookie) error

	// Close releases the page and its engine instance.
	Close() error
}
