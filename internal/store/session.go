package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roach88/wodrt/internal/ir"
)

// Session is one archived run of a script.
type Session struct {
	ID         string     `json:"id"`
	ScriptName string     `json:"script_name"`
	ScriptHash string     `json:"script_hash"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Digest     string     `json:"digest,omitempty"`
}

// SessionNotFoundError is returned when a session id is not archived.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// IsSessionNotFound reports whether err is a *SessionNotFoundError.
func IsSessionNotFound(err error) bool {
	var e *SessionNotFoundError
	return errors.As(err, &e)
}

// NewSessionID returns a ULID for a session starting at t. ULIDs sort by
// start time, so ListSessions can order by id.
func NewSessionID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// CreateSession archives a new session and its script.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateSession(ctx context.Context, id string, script *ir.Script, startedAt time.Time) (Session, error) {
	hash, err := script.Hash()
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	body, err := marshalStatements(script.Statements)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, script_name, script_hash, script, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, script.Name, hash, body, startedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{ID: id, ScriptName: script.Name, ScriptHash: hash, StartedAt: startedAt.UTC()}, nil
}

// EndSession records the end time and the history digest.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time, digest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, digest = ? WHERE id = ?
	`, endedAt.UnixNano(), digest, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &SessionNotFoundError{ID: id}
	}
	return nil
}

// GetSession reads one session.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, script_name, script_hash, started_at, ended_at, digest
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, &SessionNotFoundError{ID: id}
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, script_name, script_hash, started_at, ended_at, digest
		FROM sessions ORDER BY id COLLATE BINARY DESC LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, &SessionNotFoundError{ID: "latest"}
	}
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, oldest first.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, script_name, script_hash, started_at, ended_at, digest
		FROM sessions ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadScript returns the script a session ran.
func (s *Store) ReadScript(ctx context.Context, id string) (*ir.Script, error) {
	var name, body string
	err := s.db.QueryRowContext(ctx, `SELECT script_name, script FROM sessions WHERE id = ?`, id).Scan(&name, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SessionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var stmts []ir.Statement
	if err := json.Unmarshal([]byte(body), &stmts); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ir.NewScript(name, stmts)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		digest  sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.ScriptName, &sess.ScriptHash, &started, &ended, &digest); err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	sess.Digest = digest.String
	return sess, nil
}
