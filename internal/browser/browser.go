// Package browser provides one isolated headless Chrome per job invocation.
//
// A Launcher starts a fresh browser for every Acquire call; sandboxes are never
// pooled or shared. The owner must Close the sandbox exactly once.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrLaunch wraps failures to start a browser
	ErrLaunch = errors.New("browser launch failed")
	// ErrClosed is returned by operations on a released sandbox or page
	ErrClosed = errors.New("browser closed")
)

// Launcher starts isolated browser processes
type Launcher interface {
	Acquire(ctx context.Context, invocationID string) (Sandbox, error)
}

// Sandbox is one running browser owned by a single invocation
type Sandbox interface {
	// NewPage opens a tab
	NewPage(ctx context.Context) (Page, error)
	// Pages lists open tabs in opening order, most recent last
	Pages(ctx context.Context) ([]Page, error)
	// Close terminates the browser. Only the first call does any work.
	Close(ctx context.Context) error
}

// Page is one browser tab
type Page interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression in the page, awaiting promises,
	// and returns its JSON-decoded value
	Evaluate(ctx context.Context, expression string) (any, error)
	Text(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	WaitVisible(ctx context.Context, selector string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	SetViewport(ctx context.Context, width, height int) error
	// Screenshot renders the visible viewport as PNG
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
