package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coauthor/internal/event"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default LogStore: one SQLite file in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

var _ LogStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and initializes
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		access_code       TEXT NOT NULL,
		verification_code TEXT NOT NULL,
		started_at        TEXT NOT NULL,
		config            TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS logs (
		session_id TEXT PRIMARY KEY,
		saved_at   TEXT NOT NULL,
		events     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		session_id   TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		source       TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		body         TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, access_code, verification_code, started_at, config)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, sess.AccessCode, sess.VerificationCode,
			sess.StartedAt.UTC().Format(time.RFC3339Nano), string(cfg),
		)
		return err
	})
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, access_code, verification_code, started_at, config FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, access_code, verification_code, started_at, config
		 FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var started, cfg string
	err := row.Scan(&sess.ID, &sess.AccessCode, &sess.VerificationCode, &started, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &sess.Config); err != nil {
		return Session{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return sess, nil
}

// SaveLog replaces the session's events in a single transaction.
func (s *SQLiteStore) SaveLog(ctx context.Context, sessionID string, events []event.Event) error {
	bodies := make([]string, len(events))
	for i, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", i, err)
		}
		bodies[i] = string(b)
	}

	return retryOnContention(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO events (session_id, seq, kind, source, timestamp_ms, body) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, e := range events {
			if _, err := stmt.ExecContext(ctx, sessionID, i, string(e.Kind), string(e.Source), e.Timestamp, bodies[i]); err != nil {
				return fmt.Errorf("insert event %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO logs (session_id, saved_at, events) VALUES (?, ?, ?)
			 ON CONFLICT(session_id) DO UPDATE SET saved_at = excluded.saved_at, events = excluded.events`,
			sessionID, time.Now().UTC().Format(time.RFC3339Nano), len(events),
		); err != nil {
			return fmt.Errorf("upsert log: %w", err)
		}
		return tx.Commit()
	})
}

func (s *SQLiteStore) GetLog(ctx context.Context, sessionID string) ([]event.Event, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT events FROM logs WHERE session_id = ?`, sessionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, n)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
