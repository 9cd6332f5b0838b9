package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "livescout/pkg/logx"
)

func newFileStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "scout.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStoreUpsertAndReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "scout.db")

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, s.UpsertCandidates(ctx,
		Candidate{ID: "p1", Status: StatusPending, AddedAt: time.Now()},
		Candidate{ID: "p2", Status: StatusPending, Followers: 1200, AddedAt: time.Now()},
	))
	require.NoError(t, s.Close())

	// A fresh open must see committed state (durability across restart).
	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFileStoreNoStatusDowngrade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFileStore(t)

	require.NoError(t, s.UpsertCandidates(ctx, Candidate{ID: "x", Status: StatusSent}))
	require.NoError(t, s.UpsertCandidates(ctx, Candidate{ID: "x", Status: StatusPending}))

	got, err := s.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusSent, got[0].Status)
}

func TestFileStoreLedgerReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "scout.db")

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.AppendLedger(ctx, LedgerEntry{ID: "a", Outcome: OutcomeSent, At: time.Now()}))
	require.NoError(t, s.AppendLedger(ctx, LedgerEntry{ID: "b", Outcome: OutcomeFailed, Detail: "no message button", At: time.Now()}))
	require.NoError(t, s.Close())

	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer s2.Close()

	sent, err := s2.SentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, sent)

	entries, err := s2.Ledger(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, OutcomeFailed, entries[1].Outcome)
}

func TestFileStoreJobTerminalImmutable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFileStore(t)

	j := JobRecord{ID: "job-1", Kind: "verify", Status: JobQueued, CreatedAt: time.Now()}
	require.NoError(t, s.PutJob(ctx, j))

	j.Status = JobRunning
	j.StartedAt = time.Now()
	require.NoError(t, s.PutJob(ctx, j))

	j.Status = JobSuccess
	j.FinishedAt = time.Now()
	require.NoError(t, s.PutJob(ctx, j))

	// Once terminal, any transition attempt is rejected.
	j.Status = JobError
	assert.ErrorIs(t, s.PutJob(ctx, j), ErrJobFinal)

	got, ok, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, JobSuccess, got.Status)
}

func TestFileStoreRequeueFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFileStore(t)

	require.NoError(t, s.UpsertCandidates(ctx,
		Candidate{ID: "ok", Status: StatusSent},
		Candidate{ID: "oops", Status: StatusFailed, Reason: "chat input not found"},
	))

	n, err := s.RequeueFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := CandidatesByStatus(ctx, s, StatusAvailable)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "oops", got[0].ID)
	assert.Empty(t, got[0].Reason)
}

func TestFileStoreClearVerified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFileStore(t)

	require.NoError(t, s.UpsertCandidates(ctx,
		Candidate{ID: "a", Status: StatusPending},
		Candidate{ID: "b", Status: StatusAvailable},
		Candidate{ID: "c", Status: StatusUnavailable},
		Candidate{ID: "d", Status: StatusSent},
	))
	require.NoError(t, s.Clear(ctx, ClearVerified))

	got, err := s.Candidates(ctx)
	require.NoError(t, err)
	ids := map[string]Status{}
	for _, c := range got {
		ids[c.ID] = c.Status
	}
	assert.Equal(t, map[string]Status{"a": StatusPending, "d": StatusSent}, ids)
}
