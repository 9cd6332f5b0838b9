// Package renderer defines the browser-automation capability surface the
// pipeline depends on. The actual engine (and any stealth/anti-bot layering)
// is supplied by the embedding binary; the pipeline only ever sees these
// interfaces, so tests run against an in-memory fake (see renderertest).
package renderer

import (
	"context"
	"time"
)

// Renderer hands out isolated browsing sessions.
//
// Sessions are never shared across pool workers: each worker owns one for
// its whole run so page state can't leak between candidates.
type Renderer interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one isolated browsing context (own cookies, own tab).
type Session interface {
	// Navigate loads url and returns a handle once the document is ready.
	// The timeout bounds the whole navigation; 0 means the engine default.
	Navigate(ctx context.Context, url string, timeout time.Duration) (Page, error)
	Close() error
}

// Page is a rendered document.
type Page interface {
	// URL reports the current address, after any redirects. Callers use it
	// to detect login redirects.
	URL() string

	// WaitFor blocks until selector matches or timeout elapses.
	// A miss is reported as an error wrapping ErrTimeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// QueryAll returns every current match without waiting.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ScrollToBottom(ctx context.Context) error
}

// Element is a handle to one rendered node.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}
