package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUnion(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	a := []Candidate{
		{ID: "alice", Status: StatusPending, AddedAt: t0},
		{ID: "bob", Status: StatusPending, AddedAt: t0.Add(time.Minute)},
	}
	b := []Candidate{
		{ID: "carol", Status: StatusPending, AddedAt: t0.Add(2 * time.Minute)},
		{ID: "bob", Status: StatusAvailable, Reason: "ok", AddedAt: t0.Add(time.Minute)},
	}

	got := Merge(a, b)
	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].ID)
	assert.Equal(t, "bob", got[1].ID)
	assert.Equal(t, StatusAvailable, got[1].Status)
	assert.Equal(t, "carol", got[2].ID)
}

func TestMergeNeverDowngrades(t *testing.T) {
	t.Parallel()
	sent := Candidate{ID: "x", Status: StatusSent, Nickname: "X", SentAt: time.Now()}
	stale := Candidate{ID: "x", Status: StatusPending, Followers: 900}

	got := Merge([]Candidate{sent}, []Candidate{stale})
	require.Len(t, got, 1)
	assert.Equal(t, StatusSent, got[0].Status)
	// Metric update from the stale writer is still absorbed.
	assert.Equal(t, int64(900), got[0].Followers)
	assert.Equal(t, "X", got[0].Nickname)
	assert.False(t, got[0].SentAt.IsZero())
}

func TestMergeSameRankIncomingWins(t *testing.T) {
	t.Parallel()
	old := Candidate{ID: "y", Status: StatusUnavailable, Reason: "bound"}
	fresh := Candidate{ID: "y", Status: StatusAvailable, Reason: "eligible", VerifiedAt: time.Now()}

	got := Merge([]Candidate{old}, []Candidate{fresh})
	require.Len(t, got, 1)
	assert.Equal(t, StatusAvailable, got[0].Status)
	assert.Equal(t, "eligible", got[0].Reason)
}

func TestMergeInterleavedWritersDisjointIDs(t *testing.T) {
	t.Parallel()
	var snapshot []Candidate
	writerA := []Candidate{{ID: "a1", Status: StatusPending}, {ID: "a2", Status: StatusPending}}
	writerB := []Candidate{{ID: "b1", Status: StatusPending}, {ID: "b2", Status: StatusPending}}

	// Simulate alternating load-merge-save cycles.
	snapshot = Merge(snapshot, writerA[:1])
	snapshot = Merge(snapshot, writerB[:1])
	snapshot = Merge(snapshot, writerA[1:])
	snapshot = Merge(snapshot, writerB[1:])

	ids := map[string]bool{}
	for _, c := range snapshot {
		ids[c.ID] = true
	}
	assert.Equal(t, map[string]bool{"a1": true, "a2": true, "b1": true, "b2": true}, ids)
}
