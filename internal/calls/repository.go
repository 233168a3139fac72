package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"call-platform/pkg/utils"
)

// Store persists call sessions. Accept and Finish are compare-and-set: the
// bool result is true only for the caller that changed the row.
type Store interface {
	Create(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id int64) (Session, error)

	// ListActive returns active sessions for the context, newest first.
	ListActive(ctx context.Context, t ContextType, contextID int64) ([]Session, error)
	// ListActivePair returns active PRIVATE sessions between a and b in
	// either direction, newest first.
	ListActivePair(ctx context.Context, a, b int64) ([]Session, error)

	Accept(ctx context.Context, id int64, now time.Time) (Session, bool, error)
	Finish(ctx context.Context, id int64, now time.Time) (Session, bool, error)
	// Expire finishes the session only while it is active and unaccepted.
	Expire(ctx context.Context, id int64, now time.Time) (Session, bool, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS call_sessions (
  id               BIGSERIAL PRIMARY KEY,
  context_type     TEXT        NOT NULL,
  context_id       BIGINT      NOT NULL,
  mode             TEXT        NOT NULL DEFAULT 'NORMAL',
  created_by       BIGINT      NOT NULL,
  active           BOOLEAN     NOT NULL DEFAULT TRUE,
  created_at       TIMESTAMPTZ NOT NULL,
  accepted_at      TIMESTAMPTZ NULL,
  ended_at         TIMESTAMPTZ NULL,
  duration_seconds INTEGER     NULL,
  missed           BOOLEAN     NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS call_sessions_active_context
  ON call_sessions (context_type, context_id) WHERE active`,
	`CREATE INDEX IF NOT EXISTS call_sessions_active_creator
  ON call_sessions (created_by) WHERE active`,
	`CREATE INDEX IF NOT EXISTS call_sessions_created_at
  ON call_sessions (created_at)`,
}

// migrationLockKey serializes schema setup across replicas.
const migrationLockKey int64 = 0x63616c6c73 // "calls"

// Migrate creates the call_sessions table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.Migrate(ctx, db, migrationLockKey, schema)
}

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, context_type, context_id, mode, created_by, active, created_at, accepted_at, ended_at, duration_seconds, missed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s        Session
		accepted sql.NullTime
		ended    sql.NullTime
		duration sql.NullInt32
	)
	if err := row.Scan(
		&s.ID,
		&s.ContextType,
		&s.ContextID,
		&s.Mode,
		&s.CreatedBy,
		&s.Active,
		&s.CreatedAt,
		&accepted,
		&ended,
		&duration,
		&s.Missed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if accepted.Valid {
		t := accepted.Time.UTC()
		s.AcceptedAt = &t
	}
	if ended.Valid {
		t := ended.Time.UTC()
		s.EndedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int32)
		s.DurationSeconds = &d
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (r *PostgresStore) Create(ctx context.Context, s Session) (Session, error) {
	const q = `
INSERT INTO call_sessions (context_type, context_id, mode, created_by, active, created_at)
VALUES ($1,$2,$3,$4,TRUE,$5)
RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRowContext(ctx, q, s.ContextType, s.ContextID, s.Mode, s.CreatedBy, s.CreatedAt))
}

func (r *PostgresStore) Get(ctx context.Context, id int64) (Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	return scanSession(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresStore) ListActive(ctx context.Context, t ContextType, contextID int64) ([]Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE active AND context_type = $1 AND context_id = $2
ORDER BY created_at DESC, id DESC
`
	return r.list(ctx, q, t, contextID)
}

func (r *PostgresStore) ListActivePair(ctx context.Context, a, b int64) ([]Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE active AND context_type = 'PRIVATE'
  AND ((created_by = $1 AND context_id = $2) OR (created_by = $2 AND context_id = $1))
ORDER BY created_at DESC, id DESC
`
	return r.list(ctx, q, a, b)
}

// ListCreated returns sessions created in [from, to), newest first. An
// empty t matches every context type.
func (r *PostgresStore) ListCreated(ctx context.Context, from, to time.Time, t ContextType) ([]Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE created_at >= $1 AND created_at < $2 AND ($3 = '' OR context_type = $3)
ORDER BY created_at DESC, id DESC
`
	return r.list(ctx, q, from, to, string(t))
}

func (r *PostgresStore) list(ctx context.Context, q string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresStore) Accept(ctx context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(ctx, id, func(s *Session) bool { return s.accept(now) })
}

func (r *PostgresStore) Finish(ctx context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(ctx, id, func(s *Session) bool { return s.finish(now) })
}

func (r *PostgresStore) Expire(ctx context.Context, id int64, now time.Time) (Session, bool, error) {
	return r.mutate(ctx, id, func(s *Session) bool { return s.expire(now) })
}

// mutate locks the row, applies fn and writes back only when fn changed it.
func (r *PostgresStore) mutate(ctx context.Context, id int64, fn func(*Session) bool) (Session, bool, error) {
	var (
		out     Session
		changed bool
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const lock = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1 FOR UPDATE`
		s, err := scanSession(tx.QueryRowContext(ctx, lock, id))
		if err != nil {
			return err
		}
		if !fn(&s) {
			out = s
			return nil
		}

		const upd = `
UPDATE call_sessions
SET active = $2, accepted_at = $3, ended_at = $4, duration_seconds = $5, missed = $6
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd,
			s.ID,
			s.Active,
			s.AcceptedAt,
			s.EndedAt,
			s.DurationSeconds,
			s.Missed,
		); err != nil {
			return err
		}
		out, changed = s, true
		return nil
	})
	if err != nil {
		return Session{}, false, err
	}
	return out, changed, nil
}
