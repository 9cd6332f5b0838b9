package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "livescout/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Old terminal jobs are noise; keep a month.
	s.pruneOldJobs(context.Background(), 30*24*time.Hour)
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- candidates ----

func (s *sqliteStore) Candidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nickname, status, reason, followers, likes, added_at, verified_at, sent_at
		 FROM candidates ORDER BY added_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertCandidates(ctx context.Context, recs ...Candidate) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, in := range recs {
		row := tx.QueryRowContext(ctx,
			`SELECT id, nickname, status, reason, followers, likes, added_at, verified_at, sent_at
			 FROM candidates WHERE id = ?`, in.ID)
		cur, err := scanCandidate(row)
		merged := in
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// insert as-is
		case err != nil:
			return err
		default:
			merged = mergeOne(cur, in)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO candidates(id, nickname, status, reason, followers, likes, added_at, verified_at, sent_at)
			 VALUES(?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET
			   nickname=excluded.nickname, status=excluded.status, reason=excluded.reason,
			   followers=excluded.followers, likes=excluded.likes, added_at=excluded.added_at,
			   verified_at=excluded.verified_at, sent_at=excluded.sent_at`,
			merged.ID, nullStr(merged.Nickname), string(merged.Status), nullStr(merged.Reason),
			merged.Followers, merged.Likes, fmtTime(merged.AddedAt), nullTime(merged.VerifiedAt), nullTime(merged.SentAt))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) RequeueFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET status = ?, reason = NULL WHERE status = ?`,
		string(StatusAvailable), string(StatusFailed))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- ledger ----

func (s *sqliteStore) AppendLedger(ctx context.Context, e LedgerEntry) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("ledger entry id is required")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger(candidate_id, outcome, detail, at) VALUES(?,?,?,?)`,
		e.ID, string(e.Outcome), nullStr(e.Detail), fmtTime(e.At))
	return err
}

func (s *sqliteStore) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id, outcome, detail, at FROM ledger ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var detail sql.NullString
		var at string
		if err := rows.Scan(&e.ID, (*string)(&e.Outcome), &detail, &at); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SentIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT candidate_id FROM ledger WHERE outcome = ?`, string(OutcomeSent))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ---- jobs ----

func (s *sqliteStore) PutJob(ctx context.Context, j JobRecord) error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var curStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, j.ID).Scan(&curStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err == nil && JobStatus(curStatus).Terminal() && JobStatus(curStatus) != j.Status {
		return ErrJobFinal
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs(id, kind, status, created_at, started_at, finished_at, exit_info)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind=excluded.kind, status=excluded.status, created_at=excluded.created_at,
		   started_at=excluded.started_at, finished_at=excluded.finished_at, exit_info=excluded.exit_info`,
		j.ID, j.Kind, string(j.Status), fmtTime(j.CreatedAt), nullTime(j.StartedAt), nullTime(j.FinishedAt), nullStr(j.ExitInfo))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (JobRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, created_at, started_at, finished_at, exit_info
		 FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, false, nil
	}
	if err != nil {
		return JobRecord{}, false, err
	}
	return j, true, nil
}

func (s *sqliteStore) Jobs(ctx context.Context) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, created_at, started_at, finished_at, exit_info
		 FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneOldJobs(ctx context.Context, keep time.Duration) {
	cutoff := time.Now().Add(-keep)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?,?,?) AND created_at < ?`,
		string(JobSuccess), string(JobError), string(JobTimeout), fmtTime(cutoff))
	if err != nil {
		s.log.Debug("job prune failed", logx.Err(err))
	}
}

// ---- clear ----

func (s *sqliteStore) Clear(ctx context.Context, kind ClearKind) error {
	switch kind {
	case ClearCandidates:
		_, err := s.db.ExecContext(ctx, `DELETE FROM candidates`)
		return err
	case ClearVerified:
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM candidates WHERE status IN (?,?)`,
			string(StatusAvailable), string(StatusUnavailable))
		return err
	case ClearLedger:
		_, err := s.db.ExecContext(ctx, `DELETE FROM ledger`)
		return err
	case ClearJobs:
		_, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
		return err
	default:
		return fmt.Errorf("unknown clear kind %q", kind)
	}
}

// ---- scan/format helpers ----

type rowScanner interface{ Scan(dest ...any) error }

func scanCandidate(r rowScanner) (Candidate, error) {
	var c Candidate
	var nickname, reason, verifiedAt, sentAt sql.NullString
	var addedAt string
	err := r.Scan(&c.ID, &nickname, (*string)(&c.Status), &reason,
		&c.Followers, &c.Likes, &addedAt, &verifiedAt, &sentAt)
	if err != nil {
		return Candidate{}, err
	}
	c.Nickname = nickname.String
	c.Reason = reason.String
	c.AddedAt = parseTime(addedAt)
	if verifiedAt.Valid {
		c.VerifiedAt = parseTime(verifiedAt.String)
	}
	if sentAt.Valid {
		c.SentAt = parseTime(sentAt.String)
	}
	return c, nil
}

func scanJob(r rowScanner) (JobRecord, error) {
	var j JobRecord
	var startedAt, finishedAt, exitInfo sql.NullString
	var createdAt string
	err := r.Scan(&j.ID, &j.Kind, (*string)(&j.Status), &createdAt, &startedAt, &finishedAt, &exitInfo)
	if err != nil {
		return JobRecord{}, err
	}
	j.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		j.StartedAt = parseTime(startedAt.String)
	}
	if finishedAt.Valid {
		j.FinishedAt = parseTime(finishedAt.String)
	}
	j.ExitInfo = exitInfo.String
	return j, nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
