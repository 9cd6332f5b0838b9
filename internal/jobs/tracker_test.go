package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "scout.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitTerminal polls like an API client would until the job finishes.
func waitTerminal(t *testing.T, tr *Tracker, id string) store.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := tr.Get(context.Background(), id)
		require.NoError(t, err)
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return store.JobRecord{}
}

func TestJobLifecycleSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tr := New(newTestStore(t), logx.Nop(), nil, 0)
	defer tr.Close()

	rec, err := tr.Submit(ctx, "discover", func(ctx context.Context) (any, error) {
		return map[string]int{"accepted": 7}, nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	// The queued record is visible to a poll racing the submit.
	got, err := tr.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "discover", got.Kind)

	final := waitTerminal(t, tr, rec.ID)
	assert.Equal(t, store.JobSuccess, final.Status)
	assert.Contains(t, final.ExitInfo, `"accepted":7`)
	assert.False(t, final.StartedAt.IsZero())
	assert.False(t, final.FinishedAt.IsZero())
	assert.False(t, final.FinishedAt.Before(final.StartedAt))
}

func TestJobErrorCapturesMessage(t *testing.T) {
	t.Parallel()

	tr := New(newTestStore(t), logx.Nop(), nil, 0)
	defer tr.Close()

	rec, err := tr.Submit(context.Background(), "verify", func(ctx context.Context) (any, error) {
		return nil, errors.New("portal session expired")
	})
	require.NoError(t, err)

	final := waitTerminal(t, tr, rec.ID)
	assert.Equal(t, store.JobError, final.Status)
	assert.Equal(t, "portal session expired", final.ExitInfo)
}

func TestJobTimeoutCancelsRun(t *testing.T) {
	t.Parallel()

	tr := New(newTestStore(t), logx.Nop(), nil, 30*time.Millisecond)
	defer tr.Close()

	rec, err := tr.Submit(context.Background(), "discover", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	final := waitTerminal(t, tr, rec.ID)
	assert.Equal(t, store.JobTimeout, final.Status)
	assert.Contains(t, final.ExitInfo, "timed out")
}

func TestJobPanicBecomesError(t *testing.T) {
	t.Parallel()

	tr := New(newTestStore(t), logx.Nop(), nil, 0)
	defer tr.Close()

	rec, err := tr.Submit(context.Background(), "outreach", func(ctx context.Context) (any, error) {
		panic("selector list is nil")
	})
	require.NoError(t, err)

	final := waitTerminal(t, tr, rec.ID)
	assert.Equal(t, store.JobError, final.Status)
	assert.Contains(t, final.ExitInfo, "selector list is nil")
}

func TestRecoverMarksOrphanedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	// Simulate records left behind by a crashed process.
	require.NoError(t, st.PutJob(ctx, store.JobRecord{ID: "j-queued", Kind: "verify", Status: store.JobQueued, CreatedAt: time.Now()}))
	require.NoError(t, st.PutJob(ctx, store.JobRecord{ID: "j-running", Kind: "discover", Status: store.JobRunning, CreatedAt: time.Now(), StartedAt: time.Now()}))
	require.NoError(t, st.PutJob(ctx, store.JobRecord{ID: "j-done", Kind: "discover", Status: store.JobSuccess, CreatedAt: time.Now(), FinishedAt: time.Now()}))

	tr := New(st, logx.Nop(), nil, 0)
	n, err := tr.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"j-queued", "j-running"} {
		rec, err := tr.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.JobError, rec.Status, id)
		assert.Equal(t, "interrupted by restart", rec.ExitInfo, id)
		assert.False(t, rec.FinishedAt.IsZero(), id)
	}

	done, err := tr.Get(ctx, "j-done")
	require.NoError(t, err)
	assert.Equal(t, store.JobSuccess, done.Status)
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()

	tr := New(newTestStore(t), logx.Nop(), nil, 0)
	_, err := tr.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseRejectsNewSubmits(t *testing.T) {
	t.Parallel()

	tr := New(newTestStore(t), logx.Nop(), nil, 0)
	tr.Close()

	_, err := tr.Submit(context.Background(), "verify", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "closed")
}
