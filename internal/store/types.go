package store

import (
	"time"
)

// Config configures persistence.
//
// Driver values:
//   - "file": JSON snapshot files + append-only ledger (dependency-free)
//   - "sqlite": single SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Status is a candidate's lifecycle state.
//
// Transitions move strictly forward: pending -> {available, unavailable};
// available -> sent, or -> failed on delivery error. failed may be requeued
// to available, but only through the explicit RequeueFailed operation, never
// through a merge.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusSent        Status = "sent"
	StatusFailed      Status = "failed"
)

// rank orders statuses by progress. Merges never move a candidate to a
// lower-ranked status, so a replayed pending record can't downgrade a sent one.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAvailable, StatusUnavailable:
		return 1
	case StatusFailed:
		return 2
	case StatusSent:
		return 3
	default:
		return -1
	}
}

func (s Status) Valid() bool { return s.rank() >= 0 }

// Candidate is one discovered account under consideration for outreach.
// ID (the platform handle) is the sole identity key.
type Candidate struct {
	ID         string    `json:"id"`
	Nickname   string    `json:"nickname,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Followers  int64     `json:"followers"`
	Likes      int64     `json:"likes"`
	AddedAt    time.Time `json:"added_at"`
	VerifiedAt time.Time `json:"verified_at,omitzero"`
	SentAt     time.Time `json:"sent_at,omitzero"`
}

// Outcome is a delivery result recorded in the ledger.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// LedgerEntry is one append-only delivery record. An id present with a
// "sent" outcome must never be re-submitted by the dispatcher.
type LedgerEntry struct {
	ID      string    `json:"id"`
	Outcome Outcome   `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// JobStatus is a job's state-machine position.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
	JobTimeout JobStatus = "timeout"
)

// Terminal reports whether the status is final. Terminal records are
// immutable once written.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobError || s == JobTimeout
}

// JobRecord is the persisted view of one asynchronous pipeline run.
type JobRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	ExitInfo   string    `json:"exit_info,omitempty"`
}

// ClearKind selects what Clear wipes.
type ClearKind string

const (
	ClearVerified   ClearKind = "verified" // available/unavailable back out of the store
	ClearLedger     ClearKind = "ledger"
	ClearJobs       ClearKind = "jobs"
	ClearCandidates ClearKind = "candidates" // everything discovered
)
