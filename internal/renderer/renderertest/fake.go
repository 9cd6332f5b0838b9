// Package renderertest provides an in-memory renderer for pipeline tests.
//
// Pages are scripted: selectors map to element lists, navigation failures are
// injected per URL, and hooks let a test mutate a page on click/scroll (e.g.
// reveal a results table after the submit button is pressed).
package renderertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livescout/internal/renderer"
)

// Fake implements renderer.Renderer over a static page map.
type Fake struct {
	mu     sync.Mutex
	pages  map[string]*Page
	navErr map[string]error

	sessions int
}

func New() *Fake {
	return &Fake{pages: map[string]*Page{}, navErr: map[string]error{}}
}

// AddPage registers the page served for url.
func (f *Fake) AddPage(url string, p *Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.addr = url
	f.pages[url] = p
}

// FailNavigation makes Navigate(url) return err.
func (f *Fake) FailNavigation(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navErr[url] = err
}

// Sessions reports how many sessions were opened.
func (f *Fake) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *Fake) NewSession(ctx context.Context) (renderer.Session, error) {
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()
	return &session{f: f}, nil
}

type session struct{ f *Fake }

func (s *session) Navigate(ctx context.Context, url string, timeout time.Duration) (renderer.Page, error) {
	s.f.mu.Lock()
	err := s.f.navErr[url]
	p := s.f.pages[url]
	s.f.mu.Unlock()

	if err != nil {
		return nil, &renderer.NavigationError{URL: url, Err: err}
	}
	if p == nil {
		return nil, &renderer.NavigationError{URL: url, Err: fmt.Errorf("no such page")}
	}
	return p, nil
}

func (s *session) Close() error { return nil }

// Page is one scripted document.
type Page struct {
	mu   sync.Mutex
	addr string

	// Redirect, when set, is reported by URL() instead of the registered
	// address (login-bounce simulation).
	Redirect string

	selectors map[string][]*Element

	// OnClick/OnScroll run under the page lock; they may call SetElements.
	OnClick  func(p *Page, selector string)
	OnScroll func(p *Page, n int)

	fills   map[string]string
	clicks  []string
	scrolls int
}

func NewPage() *Page {
	return &Page{selectors: map[string][]*Element{}, fills: map[string]string{}}
}

// SetElements replaces the match list for selector. Safe from hooks.
func (p *Page) SetElements(selector string, els ...*Element) {
	if p.selectors == nil {
		p.selectors = map[string][]*Element{}
	}
	p.selectors[selector] = els
}

// Filled reports the last text filled into selector.
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills[selector]
}

// Clicks reports the click history.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.clicks))
	copy(out, p.clicks)
	return out
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Redirect != "" {
		return p.Redirect
	}
	return p.addr
}

func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) (renderer.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.selectors[selector]
	if len(els) == 0 {
		return nil, fmt.Errorf("selector %q: %w", selector, renderer.ErrTimeout)
	}
	return els[0], nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]renderer.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.selectors[selector]
	out := make([]renderer.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out, nil
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.selectors[selector]) == 0 {
		return fmt.Errorf("selector %q: %w", selector, renderer.ErrTimeout)
	}
	p.fills[selector] = text
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.selectors[selector]) == 0 {
		return fmt.Errorf("selector %q: %w", selector, renderer.ErrTimeout)
	}
	p.clicks = append(p.clicks, selector)
	if p.OnClick != nil {
		p.OnClick(p, selector)
	}
	return nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	if p.OnScroll != nil {
		p.OnScroll(p, p.scrolls)
	}
	return nil
}

// Element is a static text/attribute node.
type Element struct {
	Txt   string
	Attrs map[string]string
}

// Text returns the node text.
func (e *Element) Text(ctx context.Context) (string, error) { return e.Txt, nil }

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	if e.Attrs == nil {
		return "", nil
	}
	return e.Attrs[name], nil
}

// Link is shorthand for an anchor element with an href.
func Link(href string) *Element {
	return &Element{Attrs: map[string]string{"href": href}}
}

// TextEl is shorthand for a text-only element.
func TextEl(s string) *Element { return &Element{Txt: s} }
