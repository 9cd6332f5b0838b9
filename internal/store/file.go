package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "livescout/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Files:
//   - <prefix>.candidates.json (whole-collection snapshot)
//   - <prefix>.ledger.jsonl    (append-only JSON Lines)
//   - <prefix>.jobs.json       (whole-registry snapshot)
//
// Snapshots are written tmp-then-rename so a reader (or a crash) sees either
// the old or the new content, never a torn write. Every upsert re-reads the
// snapshot before merging, so concurrent processes reconcile by id union.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	candidatesPath string
	jobsPath       string
	ledgerPath     string

	ledgerFile *os.File
	sent       map[string]bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:            log,
		candidatesPath: prefix + ".candidates.json",
		jobsPath:       prefix + ".jobs.json",
		ledgerPath:     prefix + ".ledger.jsonl",
		sent:           map[string]bool{},
	}

	// Replay the ledger once so SentIDs is O(1) afterwards.
	if err := s.replayLedger(); err != nil {
		return nil, err
	}

	lf, err := os.OpenFile(s.ledgerPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.ledgerFile = lf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledgerFile != nil {
		err := s.ledgerFile.Close()
		s.ledgerFile = nil
		return err
	}
	return nil
}

// ---- candidates ----

func (s *fileStore) Candidates(ctx context.Context) ([]Candidate, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCandidatesLocked()
}

func (s *fileStore) UpsertCandidates(ctx context.Context, recs ...Candidate) error {
	_ = ctx
	if len(recs) == 0 {
		return nil
	}
	for _, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			return errors.New("candidate id is required")
		}
		if !r.Status.Valid() {
			return fmt.Errorf("candidate %s: invalid status %q", r.ID, r.Status)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.loadCandidatesLocked()
	if err != nil {
		return err
	}
	return s.writeCandidatesLocked(Merge(existing, recs))
}

func (s *fileStore) RequeueFailed(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadCandidatesLocked()
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range all {
		if all[i].Status == StatusFailed {
			all[i].Status = StatusAvailable
			all[i].Reason = ""
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.writeCandidatesLocked(all)
}

func (s *fileStore) loadCandidatesLocked() ([]Candidate, error) {
	b, err := os.ReadFile(s.candidatesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Candidate
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("corrupt candidates snapshot: %w", err)
	}
	return out, nil
}

func (s *fileStore) writeCandidatesLocked(list []Candidate) error {
	return atomicWriteJSON(s.candidatesPath, list)
}

// ---- ledger ----

func (s *fileStore) AppendLedger(ctx context.Context, e LedgerEntry) error {
	_ = ctx
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("ledger entry id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledgerFile == nil {
		return errors.New("ledger closed")
	}
	if err := json.NewEncoder(s.ledgerFile).Encode(e); err != nil {
		return err
	}
	if e.Outcome == OutcomeSent {
		s.sent[e.ID] = true
	}
	return nil
}

func (s *fileStore) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []LedgerEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn trailing line from a crash is skipped, not fatal.
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func (s *fileStore) SentIDs(ctx context.Context) (map[string]bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.sent))
	for k := range s.sent {
		out[k] = true
	}
	return out, nil
}

func (s *fileStore) replayLedger() error {
	f, err := os.Open(s.ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Outcome == OutcomeSent && e.ID != "" {
			s.sent[e.ID] = true
		}
	}
	return sc.Err()
}

// ---- jobs ----

func (s *fileStore) PutJob(ctx context.Context, j JobRecord) error {
	_ = ctx
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.loadJobsLocked()
	if err != nil {
		return err
	}
	if cur, ok := jobs[j.ID]; ok && cur.Status.Terminal() && cur.Status != j.Status {
		return ErrJobFinal
	}
	jobs[j.ID] = j
	return atomicWriteJSON(s.jobsPath, jobs)
}

func (s *fileStore) GetJob(ctx context.Context, id string) (JobRecord, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.loadJobsLocked()
	if err != nil {
		return JobRecord{}, false, err
	}
	j, ok := jobs[id]
	return j, ok, nil
}

func (s *fileStore) Jobs(ctx context.Context) ([]JobRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.loadJobsLocked()
	if err != nil {
		return nil, err
	}
	out := make([]JobRecord, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *fileStore) loadJobsLocked() (map[string]JobRecord, error) {
	b, err := os.ReadFile(s.jobsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]JobRecord{}, nil
		}
		return nil, err
	}
	var out map[string]JobRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("corrupt jobs snapshot: %w", err)
	}
	if out == nil {
		out = map[string]JobRecord{}
	}
	return out, nil
}

// ---- clear ----

func (s *fileStore) Clear(ctx context.Context, kind ClearKind) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case ClearCandidates:
		return atomicWriteJSON(s.candidatesPath, []Candidate{})
	case ClearVerified:
		all, err := s.loadCandidatesLocked()
		if err != nil {
			return err
		}
		kept := all[:0]
		for _, c := range all {
			if c.Status != StatusAvailable && c.Status != StatusUnavailable {
				kept = append(kept, c)
			}
		}
		return s.writeCandidatesLocked(kept)
	case ClearJobs:
		return atomicWriteJSON(s.jobsPath, map[string]JobRecord{})
	case ClearLedger:
		if s.ledgerFile != nil {
			if err := s.ledgerFile.Truncate(0); err != nil {
				return err
			}
			if _, err := s.ledgerFile.Seek(0, 2); err != nil {
				return err
			}
		}
		s.sent = map[string]bool{}
		return nil
	default:
		return fmt.Errorf("unknown clear kind %q", kind)
	}
}

func atomicWriteJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
