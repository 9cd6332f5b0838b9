// Package qualify drives the backstage portal to check which pending
// candidates can be invited. Pending ids go in as newline-joined batches; the
// portal's result table comes back as rows of free text that get matched to
// ids by substring and classified by locale keyword sets.
package qualify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"livescout/internal/eventbus"
	"livescout/internal/renderer"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

const (
	addHostButton  = `button[data-e2e-tag="host_manageRelationship_addHostBtn"]`
	inviteTextarea = `textarea[data-testid="inviteHostTextArea"]`
	resultsBody    = `.semi-table-tbody`
	resultsRows    = `.semi-table-tbody tr[role="row"]`
)

// The confirm button label depends on portal locale.
var nextButtonSelectors = []string{
	`button[data-e2e-tag="host_manageRelationship_nextBtn"]`,
	`button:has-text("다음")`,
	`button:has-text("Next")`,
}

type Config struct {
	// PortalURL is the backstage invitation page.
	PortalURL string
	// BatchMax bounds how many ids go into one portal submission.
	BatchMax int
	// ResultTimeout bounds the wait for the result table after submit.
	ResultTimeout time.Duration

	NavTimeout      time.Duration
	SelectorTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchMax <= 0 {
		c.BatchMax = 20
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = 30 * time.Second
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 5 * time.Second
	}
	return c
}

// Stats summarizes one qualification run.
type Stats struct {
	Pending     int `json:"pending"`
	Batches     int `json:"batches"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
	Unmatched   int `json:"unmatched"`
}

type Matcher struct {
	cfg Config
	r   renderer.Renderer
	st  store.Store
	log logx.Logger
	bus eventbus.Bus
}

func New(cfg Config, r renderer.Renderer, st store.Store, log logx.Logger, bus eventbus.Bus) *Matcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Matcher{
		cfg: cfg.withDefaults(),
		r:   r,
		st:  st,
		log: log.With(logx.String("comp", "qualify")),
		bus: bus,
	}
}

// Run qualifies every currently pending candidate in batches. Each batch is
// committed atomically on success; a structural, auth, or navigation failure
// aborts the run without committing the failed batch. Ids the portal never
// echoed back stay pending and are retried on the next run.
func (m *Matcher) Run(ctx context.Context) (Stats, error) {
	pending, err := store.CandidatesByStatus(ctx, m.st, store.StatusPending)
	if err != nil {
		return Stats{}, fmt.Errorf("load pending: %w", err)
	}
	stats := Stats{Pending: len(pending)}
	if len(pending) == 0 {
		return stats, nil
	}

	sess, err := m.r.NewSession(ctx)
	if err != nil {
		return stats, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	for start := 0; start < len(pending); start += m.cfg.BatchMax {
		end := start + m.cfg.BatchMax
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		ids := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}

		updates, err := m.runBatch(ctx, sess, ids)
		if err != nil {
			return stats, fmt.Errorf("batch %d: %w", stats.Batches+1, err)
		}
		if len(updates) > 0 {
			if err := m.st.UpsertCandidates(ctx, updates...); err != nil {
				return stats, fmt.Errorf("commit batch %d: %w", stats.Batches+1, err)
			}
		}

		stats.Batches++
		for _, u := range updates {
			if u.Status == store.StatusAvailable {
				stats.Available++
			} else {
				stats.Unavailable++
			}
		}
		stats.Unmatched += len(ids) - len(updates)
		m.log.Info("batch qualified",
			logx.Int("ids", len(ids)),
			logx.Int("classified", len(updates)))
	}

	m.log.Info("qualification finished",
		logx.Int("pending", stats.Pending),
		logx.Int("available", stats.Available),
		logx.Int("unavailable", stats.Unavailable),
		logx.Int("unmatched", stats.Unmatched))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeCandidates, Data: stats})
	}
	return stats, nil
}

// runBatch submits one id block and parses the result table. Nothing is
// written to the store here; the caller commits the returned updates.
func (m *Matcher) runBatch(ctx context.Context, sess renderer.Session, ids []string) ([]store.Candidate, error) {
	page, err := sess.Navigate(ctx, m.cfg.PortalURL, m.cfg.NavTimeout)
	if err != nil {
		return nil, err
	}
	if isLoginURL(page.URL()) {
		return nil, renderer.ErrNotAuthenticated
	}

	if _, err := page.WaitFor(ctx, addHostButton, m.cfg.SelectorTimeout); err != nil {
		// Some sessions bounce to login without changing the URL fast
		// enough; a missing entry control means the same thing.
		if isLoginURL(page.URL()) {
			return nil, renderer.ErrNotAuthenticated
		}
		return nil, &renderer.StructuralError{Control: "add-host button", Err: err}
	}
	if err := page.Click(ctx, addHostButton); err != nil {
		return nil, &renderer.StructuralError{Control: "add-host button", Err: err}
	}

	if err := page.Fill(ctx, inviteTextarea, strings.Join(ids, "\n")); err != nil {
		return nil, &renderer.StructuralError{Control: "invite textarea", Err: err}
	}

	if err := clickFirst(ctx, page, nextButtonSelectors, m.cfg.SelectorTimeout); err != nil {
		return nil, &renderer.StructuralError{Control: "next button", Err: err}
	}

	if _, err := page.WaitFor(ctx, resultsBody, m.cfg.ResultTimeout); err != nil {
		return nil, &renderer.StructuralError{Control: "results table", Err: err}
	}
	rows, err := page.QueryAll(ctx, resultsRows)
	if err != nil {
		return nil, &renderer.StructuralError{Control: "results rows", Err: err}
	}

	matched := map[string]store.Candidate{}
	now := time.Now()
	for _, row := range rows {
		text, err := row.Text(ctx)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		id, ok := matchID(text, ids)
		if !ok {
			m.log.Debug("result row matched no batch id", logx.String("row", text))
			continue
		}
		if _, dup := matched[id]; dup {
			continue
		}
		matched[id] = resolve(id, classify(text), now)
	}

	out := make([]store.Candidate, 0, len(matched))
	for _, id := range ids {
		if c, ok := matched[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func resolve(id string, v verdict, at time.Time) store.Candidate {
	c := store.Candidate{ID: id, VerifiedAt: at}
	if v == verdictAvailable {
		c.Status = store.StatusAvailable
		return c
	}
	c.Status = store.StatusUnavailable
	c.Reason = string(v)
	return c
}

// matchID attributes a result row to a batch id by case-insensitive
// substring. Ids are tried longest first so that e.g. "anna" is never
// claimed by a shorter id "ann" from the same batch.
func matchID(rowText string, ids []string) (string, bool) {
	lower := strings.ToLower(rowText)
	ordered := make([]string, len(ids))
	copy(ordered, ids)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})
	for _, id := range ordered {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return id, true
		}
	}
	return "", false
}

func clickFirst(ctx context.Context, page renderer.Page, selectors []string, timeout time.Duration) error {
	var lastErr error
	for _, sel := range selectors {
		if _, err := page.WaitFor(ctx, sel, timeout); err != nil {
			lastErr = err
			continue
		}
		return page.Click(ctx, sel)
	}
	if lastErr == nil {
		lastErr = renderer.ErrTimeout
	}
	return lastErr
}

func isLoginURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "login")
}
