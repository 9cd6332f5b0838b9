// Package outreach sends the invitation message to qualified candidates over
// the platform's direct-message UI. Delivery is recorded in the store ledger
// before anything else observes it, and the ledger snapshot taken at batch
// start makes re-running a batch a no-op for already-contacted accounts.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"livescout/internal/eventbus"
	"livescout/internal/renderer"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

// ErrAlreadySent marks a candidate the ledger already records as contacted.
var ErrAlreadySent = errors.New("outreach: candidate already contacted")

// ErrNotEligible marks a candidate whose status does not allow outreach.
var ErrNotEligible = errors.New("outreach: candidate not available")

var messageButtonSelectors = []string{
	`[data-e2e="message-button"]`,
	`button:has-text("Message")`,
	`button:has-text("메시지")`,
}

var editorSelectors = []string{
	`[data-e2e="message-input-area"] div[contenteditable="true"]`,
	`div[contenteditable="true"]`,
}

var sendButtonSelectors = []string{
	`[data-e2e="message-send"]`,
	`button[aria-label="Send"]`,
	`button[aria-label="보내기"]`,
}

type Config struct {
	// Lang selects the message template, "kr" or "en".
	Lang string
	// SendDelay is the minimum gap between two sends in a batch.
	SendDelay time.Duration
	// RetryMax is how many times one candidate's DM flow is retried before
	// it is ledgered as failed.
	RetryMax int

	ProfileURLFormat string
	NavTimeout       time.Duration
	SelectorTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Lang == "" {
		c.Lang = "kr"
	}
	if c.SendDelay <= 0 {
		c.SendDelay = 5 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.ProfileURLFormat == "" {
		c.ProfileURLFormat = "https://www.tiktok.com/@%s"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 5 * time.Second
	}
	return c
}

// Stats summarizes one dispatch run.
type Stats struct {
	Eligible int `json:"eligible"`
	Skipped  int `json:"skipped"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

type Dispatcher struct {
	cfg Config
	r   renderer.Renderer
	st  store.Store
	log logx.Logger
	bus eventbus.Bus
}

func New(cfg Config, r renderer.Renderer, st store.Store, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg: cfg.withDefaults(),
		r:   r,
		st:  st,
		log: log.With(logx.String("comp", "outreach")),
		bus: bus,
	}
}

// SendBatch messages every available candidate the ledger has not seen.
// A per-candidate failure is ledgered and the loop continues; the batch only
// aborts on context cancellation or a store error.
func (d *Dispatcher) SendBatch(ctx context.Context, lang string) (Stats, error) {
	if lang == "" {
		lang = d.cfg.Lang
	}
	candidates, err := store.CandidatesByStatus(ctx, d.st, store.StatusAvailable)
	if err != nil {
		return Stats{}, fmt.Errorf("load available: %w", err)
	}
	// The idempotence filter is a snapshot from batch start; the ledger
	// appends made below don't re-read it.
	sent, err := d.st.SentIDs(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load ledger: %w", err)
	}

	var stats Stats
	stats.Eligible = len(candidates)

	sess, err := d.r.NewSession(ctx)
	if err != nil {
		return stats, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	limiter := rate.NewLimiter(rate.Every(d.cfg.SendDelay), 1)
	for _, c := range candidates {
		if sent[c.ID] {
			stats.Skipped++
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return stats, err
		}
		if err := d.sendOne(ctx, sess, c, lang); err != nil {
			stats.Failed++
			d.log.Warn("outreach failed", logx.String("id", c.ID), logx.Err(err))
			if lerr := d.recordOutcome(ctx, c, store.OutcomeFailed, err.Error()); lerr != nil {
				return stats, lerr
			}
			continue
		}
		stats.Sent++
		if lerr := d.recordOutcome(ctx, c, store.OutcomeSent, ""); lerr != nil {
			return stats, lerr
		}
	}

	d.log.Info("outreach batch finished",
		logx.Int("eligible", stats.Eligible),
		logx.Int("sent", stats.Sent),
		logx.Int("skipped", stats.Skipped),
		logx.Int("failed", stats.Failed))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeCandidates, Data: stats})
	}
	return stats, nil
}

// Send messages one candidate by id, regardless of batch state. The ledger
// still guards against double contact.
func (d *Dispatcher) Send(ctx context.Context, id, lang string) error {
	if lang == "" {
		lang = d.cfg.Lang
	}
	sent, err := d.st.SentIDs(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if sent[id] {
		return ErrAlreadySent
	}

	all, err := d.st.Candidates(ctx)
	if err != nil {
		return err
	}
	var target *store.Candidate
	for i := range all {
		if all[i].ID == id {
			target = &all[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("outreach: unknown candidate %q", id)
	}
	if target.Status != store.StatusAvailable && target.Status != store.StatusFailed {
		return fmt.Errorf("%w: %s is %s", ErrNotEligible, id, target.Status)
	}

	sess, err := d.r.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	if err := d.sendOne(ctx, sess, *target, lang); err != nil {
		if lerr := d.recordOutcome(ctx, *target, store.OutcomeFailed, err.Error()); lerr != nil {
			return lerr
		}
		return err
	}
	return d.recordOutcome(ctx, *target, store.OutcomeSent, "")
}

// recordOutcome appends the ledger entry first, then advances the candidate
// status; the ledger is the delivery source of truth.
func (d *Dispatcher) recordOutcome(ctx context.Context, c store.Candidate, outcome store.Outcome, detail string) error {
	now := time.Now()
	if err := d.st.AppendLedger(ctx, store.LedgerEntry{ID: c.ID, Outcome: outcome, Detail: detail, At: now}); err != nil {
		return fmt.Errorf("ledger %s: %w", c.ID, err)
	}
	upd := store.Candidate{ID: c.ID}
	if outcome == store.OutcomeSent {
		upd.Status = store.StatusSent
		upd.SentAt = now
	} else {
		upd.Status = store.StatusFailed
		upd.Reason = detail
	}
	if err := d.st.UpsertCandidates(ctx, upd); err != nil {
		return fmt.Errorf("update %s: %w", c.ID, err)
	}
	return nil
}

func (d *Dispatcher) sendOne(ctx context.Context, sess renderer.Session, c store.Candidate, lang string) error {
	name := c.Nickname
	if name == "" {
		name = c.ID
	}
	msg, err := RenderMessage(lang, name)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.RetryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = d.deliver(ctx, sess, c.ID, msg); lastErr == nil {
			d.log.Debug("message delivered", logx.String("id", c.ID), logx.Int("attempt", attempt+1))
			return nil
		}
		d.log.Debug("delivery attempt failed", logx.String("id", c.ID), logx.Int("attempt", attempt+1), logx.Err(lastErr))
	}
	return lastErr
}

func (d *Dispatcher) deliver(ctx context.Context, sess renderer.Session, id, msg string) error {
	page, err := sess.Navigate(ctx, fmt.Sprintf(d.cfg.ProfileURLFormat, id), d.cfg.NavTimeout)
	if err != nil {
		return err
	}

	if err := clickFirst(ctx, page, messageButtonSelectors, d.cfg.SelectorTimeout); err != nil {
		return &renderer.StructuralError{Control: "message button", Err: err}
	}

	editor, err := waitFirst(ctx, page, editorSelectors, d.cfg.SelectorTimeout)
	if err != nil {
		return &renderer.StructuralError{Control: "chat editor", Err: err}
	}
	if err := page.Fill(ctx, editor, msg); err != nil {
		return &renderer.StructuralError{Control: "chat editor", Err: err}
	}

	if err := clickFirst(ctx, page, sendButtonSelectors, d.cfg.SelectorTimeout); err != nil {
		return &renderer.StructuralError{Control: "send button", Err: err}
	}
	return nil
}

// waitFirst returns the first selector in the chain that currently matches.
func waitFirst(ctx context.Context, page renderer.Page, selectors []string, timeout time.Duration) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		if _, err := page.WaitFor(ctx, sel, timeout); err != nil {
			lastErr = err
			continue
		}
		return sel, nil
	}
	if lastErr == nil {
		lastErr = renderer.ErrTimeout
	}
	return "", lastErr
}

func clickFirst(ctx context.Context, page renderer.Page, selectors []string, timeout time.Duration) error {
	sel, err := waitFirst(ctx, page, selectors, timeout)
	if err != nil {
		return err
	}
	return page.Click(ctx, sel)
}
