// Package discovery finds outreach candidates on the live feed and filters
// them by follower count.
//
// A run has two phases. Seeding walks the configured feed URLs with a single
// session, scrolling and collecting unique handles. The detail phase drains
// those handles through a bounded worker pool; every worker owns its own
// rendering session, fetches one profile at a time, extracts fields through
// ordered selector fallbacks, and accepts the candidate into the store as
// pending when the parsed follower count clears the threshold.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"livescout/internal/eventbus"
	"livescout/internal/renderer"
	"livescout/internal/store"
	"livescout/pkg/humancount"
	logx "livescout/pkg/logx"
)

type Pool struct {
	cfg Config
	r   renderer.Renderer
	st  store.Store
	log logx.Logger
	bus eventbus.Bus

	// seen dedups handles for this run only.
	seen map[string]struct{}

	accepted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
	sessions atomic.Int64
}

func New(cfg Config, r renderer.Renderer, st store.Store, log logx.Logger, bus eventbus.Bus) *Pool {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pool{
		cfg:  cfg.withDefaults(),
		r:    r,
		st:   st,
		log:  log.With(logx.String("comp", "discovery")),
		bus:  bus,
		seen: map[string]struct{}{},
	}
}

// Run executes one full discovery pass. It returns ErrNoCandidates when
// seeding yields nothing; individual candidate failures are counted, never
// propagated.
func (p *Pool) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	seedSess, err := p.r.NewSession(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("open seed session: %w", err)
	}
	ids, seedErr := p.seed(ctx, seedSess)
	_ = seedSess.Close()
	if seedErr != nil {
		return Stats{Seeded: len(ids)}, seedErr
	}
	if len(ids) == 0 {
		return Stats{}, ErrNoCandidates
	}
	p.log.Info("seed phase complete", logx.Int("handles", len(ids)))

	// The queue carries each handle exactly once; closing it is the
	// termination signal for the pool.
	queue := make(chan string, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	sessErrs := make(chan error, p.cfg.Concurrency)
	var wg sync.WaitGroup
	wg.Add(p.cfg.Concurrency)
	for i := 0; i < p.cfg.Concurrency; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("panic in discovery worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			p.worker(ctx, queue, idx, sessErrs)
		}()
	}
	wg.Wait()

	// Handles left behind when every remaining worker died early are
	// failures, not omissions; the job record must account for them.
	for range queue {
		p.failed.Add(1)
	}

	stats := Stats{
		Seeded:   len(ids),
		Accepted: int(p.accepted.Load()),
		Rejected: int(p.rejected.Load()),
		Failed:   int(p.failed.Load()),
	}
	p.log.Info("discovery finished",
		logx.Int("seeded", stats.Seeded),
		logx.Int("accepted", stats.Accepted),
		logx.Int("rejected", stats.Rejected),
		logx.Int("failed", stats.Failed),
		logx.Duration("dur", time.Since(start)))

	if p.bus != nil && stats.Accepted > 0 {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeCandidates, Data: stats})
	}
	if p.sessions.Load() == 0 {
		err := errors.New("no worker session opened")
		select {
		case serr := <-sessErrs:
			err = fmt.Errorf("open worker sessions: %w", serr)
		default:
		}
		return stats, err
	}
	return stats, ctx.Err()
}

func (p *Pool) worker(ctx context.Context, queue <-chan string, idx int, sessErrs chan<- error) {
	sess, err := p.r.NewSession(ctx)
	if err != nil {
		p.log.Warn("worker session open failed", logx.Int("worker", idx), logx.Err(err))
		// Remaining items are picked up by workers that did get a session.
		sessErrs <- err
		return
	}
	p.sessions.Add(1)
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-queue:
			if !ok {
				return
			}
			// One candidate is fully processed before the next dequeue.
			if err := p.fetchOne(ctx, sess, id); err != nil {
				p.failed.Add(1)
				p.log.Warn("candidate fetch failed", logx.Int("worker", idx), logx.String("id", id), logx.Err(err))
			}
		}
	}
}

func (p *Pool) fetchOne(ctx context.Context, sess renderer.Session, id string) error {
	url := fmt.Sprintf(p.cfg.ProfileURLFormat, id)
	page, err := sess.Navigate(ctx, url, p.cfg.NavTimeout)
	if err != nil {
		return err
	}

	fields := extractProfile(ctx, page, p.cfg.SelectorTimeout)
	followers := humancount.Parse(fields.followers)
	if followers < p.cfg.FollowerThreshold {
		p.rejected.Add(1)
		p.log.Debug("candidate below threshold",
			logx.String("id", id),
			logx.String("followers", fields.followers),
			logx.Int64("parsed", followers))
		return nil
	}

	nickname := fields.nickname
	if nickname == "" {
		nickname = id
	}
	rec := store.Candidate{
		ID:        id,
		Nickname:  nickname,
		Status:    store.StatusPending,
		Followers: followers,
		Likes:     humancount.Parse(fields.likes),
		AddedAt:   time.Now(),
	}
	if err := p.st.UpsertCandidates(ctx, rec); err != nil {
		return fmt.Errorf("store candidate %s: %w", id, err)
	}
	p.accepted.Add(1)
	p.log.Debug("candidate accepted", logx.String("id", id), logx.Int64("followers", followers))
	return nil
}
