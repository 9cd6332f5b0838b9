// Package jobs runs pipeline operations asynchronously and keeps a pollable,
// persisted record of each run. Submitting returns immediately with a queued
// record; callers poll by id until the record turns terminal.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"livescout/internal/eventbus"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

// ErrNotFound is returned when polling an unknown job id.
var ErrNotFound = errors.New("jobs: no such job")

// RunFunc is one unit of asynchronous work. The returned value, when non-nil,
// is JSON-encoded into the job's exit info.
type RunFunc func(ctx context.Context) (any, error)

type Tracker struct {
	st      store.Store
	log     logx.Logger
	bus     eventbus.Bus
	timeout time.Duration

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New builds a tracker. timeout bounds every job run; 0 disables the bound.
func New(st store.Store, log logx.Logger, bus eventbus.Bus, timeout time.Duration) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		st:      st,
		log:     log.With(logx.String("comp", "jobs")),
		bus:     bus,
		timeout: timeout,
	}
}

// Recover finalizes jobs a previous process left queued or running. They can
// never complete (their goroutines died with the process), so they are marked
// as errored rather than left looking alive forever.
func (t *Tracker) Recover(ctx context.Context) (int, error) {
	all, err := t.st.Jobs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range all {
		if j.Status.Terminal() {
			continue
		}
		j.Status = store.JobError
		j.FinishedAt = time.Now()
		j.ExitInfo = "interrupted by restart"
		if err := t.st.PutJob(ctx, j); err != nil {
			return n, fmt.Errorf("recover job %s: %w", j.ID, err)
		}
		n++
	}
	if n > 0 {
		t.log.Warn("recovered interrupted jobs", logx.Int("count", n))
	}
	return n, nil
}

// Submit persists a queued record and starts the run in the background. The
// record is durable before it is returned, so a poll racing the submit always
// sees the job.
func (t *Tracker) Submit(ctx context.Context, kind string, fn RunFunc) (store.JobRecord, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return store.JobRecord{}, errors.New("jobs: tracker closed")
	}
	t.wg.Add(1)
	t.mu.Unlock()

	rec := store.JobRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    store.JobQueued,
		CreatedAt: time.Now(),
	}
	if err := t.st.PutJob(ctx, rec); err != nil {
		t.wg.Done()
		return store.JobRecord{}, fmt.Errorf("persist job: %w", err)
	}

	go t.run(rec, fn)
	t.log.Info("job submitted", logx.String("id", rec.ID), logx.String("kind", kind))
	return rec, nil
}

// Get returns the job record by id.
func (t *Tracker) Get(ctx context.Context, id string) (store.JobRecord, error) {
	rec, ok, err := t.st.GetJob(ctx, id)
	if err != nil {
		return store.JobRecord{}, err
	}
	if !ok {
		return store.JobRecord{}, ErrNotFound
	}
	return rec, nil
}

// List returns all job records, newest first.
func (t *Tracker) List(ctx context.Context) ([]store.JobRecord, error) {
	return t.st.Jobs(ctx)
}

// Close stops accepting submissions and waits for in-flight runs to finish
// their persistence.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) run(rec store.JobRecord, fn RunFunc) {
	defer t.wg.Done()

	ctx := context.Background()
	cancel := func() {}
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	rec.Status = store.JobRunning
	rec.StartedAt = time.Now()
	if err := t.st.PutJob(ctx, rec); err != nil {
		t.log.Error("persist running state failed", logx.String("id", rec.ID), logx.Err(err))
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.TypeJobStarted, Data: rec})
	}

	result, runErr := t.safeRun(ctx, fn)

	switch {
	case runErr == nil:
		rec.Status = store.JobSuccess
		rec.ExitInfo = encodeResult(result)
	case errors.Is(runErr, context.DeadlineExceeded):
		rec.Status = store.JobTimeout
		rec.ExitInfo = fmt.Sprintf("timed out after %s", t.timeout)
	default:
		rec.Status = store.JobError
		rec.ExitInfo = runErr.Error()
	}
	rec.FinishedAt = time.Now()

	// Persist the terminal state outside the (possibly expired) run context.
	if err := t.st.PutJob(context.Background(), rec); err != nil {
		t.log.Error("persist terminal state failed", logx.String("id", rec.ID), logx.Err(err))
	}
	t.log.Info("job finished",
		logx.String("id", rec.ID),
		logx.String("kind", rec.Kind),
		logx.String("status", string(rec.Status)),
		logx.Duration("dur", rec.FinishedAt.Sub(rec.StartedAt)))
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.TypeJobFinished, Data: rec})
	}
}

func (t *Tracker) safeRun(ctx context.Context, fn RunFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("panic in job", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	result, err = fn(ctx)
	if err == nil && ctx.Err() != nil {
		// The run raced the deadline but ignored its context.
		err = ctx.Err()
	}
	return result, err
}

func encodeResult(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
