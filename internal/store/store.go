package store

import (
	"context"
	"errors"
	"strings"

	logx "livescout/pkg/logx"
)

// Store is the persistence API shared by every pipeline stage.
//
// All candidate mutation goes through UpsertCandidates, which performs
// load-merge-save of the whole collection (see Merge) so concurrent writers
// reconcile instead of overwriting each other. Every write is durable before
// the call returns: a crash between stages loses at most the in-flight
// batch, never committed state.
type Store interface {
	// Candidates returns every record, ordered by AddedAt then ID.
	Candidates(ctx context.Context) ([]Candidate, error)
	// UpsertCandidates merges recs into the collection (insert or
	// status-advance; never a downgrade).
	UpsertCandidates(ctx context.Context, recs ...Candidate) error
	// RequeueFailed flips failed records back to available for another
	// delivery attempt. Returns how many were flipped.
	RequeueFailed(ctx context.Context) (int, error)

	AppendLedger(ctx context.Context, e LedgerEntry) error
	Ledger(ctx context.Context) ([]LedgerEntry, error)
	// SentIDs returns the set of ids with a sent outcome in the ledger.
	SentIDs(ctx context.Context) (map[string]bool, error)

	// PutJob persists j wholesale. Writes that would mutate an
	// already-terminal record are rejected with ErrJobFinal.
	PutJob(ctx context.Context, j JobRecord) error
	GetJob(ctx context.Context, id string) (JobRecord, bool, error)
	Jobs(ctx context.Context) ([]JobRecord, error)

	Clear(ctx context.Context, kind ClearKind) error
	Close() error
}

// ErrJobFinal is returned when a write would alter a terminal job record.
var ErrJobFinal = errors.New("job record is terminal")

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// CandidatesByStatus filters a Candidates() listing.
func CandidatesByStatus(ctx context.Context, s Store, statuses ...Status) ([]Candidate, error) {
	all, err := s.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	want := map[Status]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]Candidate, 0, len(all))
	for _, c := range all {
		if want[c.Status] {
			out = append(out, c)
		}
	}
	return out, nil
}
