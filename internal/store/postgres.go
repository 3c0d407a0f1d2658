package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coauthor/internal/event"
)

// PgStore is a PostgreSQL-backed LogStore. Event bodies are JSONB.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ LogStore = (*PgStore)(nil)

// NewPgStore connects to dsn and ensures the schema exists.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &PgStore{pool: pool}
	if err := s.EnsureTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return s, nil
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureTables creates the schema if it doesn't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			access_code       TEXT NOT NULL,
			verification_code TEXT NOT NULL,
			started_at        TIMESTAMPTZ NOT NULL,
			config            JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
		`CREATE TABLE IF NOT EXISTS logs (
			session_id TEXT PRIMARY KEY,
			saved_at   TIMESTAMPTZ NOT NULL,
			events     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			kind         TEXT NOT NULL,
			source       TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			body         JSONB NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PgStore) CreateSession(ctx context.Context, sess Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, access_code, verification_code, started_at, config)
		VALUES ($1, $2, $3, $4, $5::jsonb)`,
		sess.ID, sess.AccessCode, sess.VerificationCode, sess.StartedAt.UTC(), string(cfg))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PgStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, access_code, verification_code, started_at, config
		FROM sessions WHERE id = $1`, id)
	return scanPgSession(row)
}

func (s *PgStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, access_code, verification_code, started_at, config
		FROM sessions ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanPgSession(row pgx.Row) (Session, error) {
	var sess Session
	var cfg []byte
	err := row.Scan(&sess.ID, &sess.AccessCode, &sess.VerificationCode, &sess.StartedAt, &cfg)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(cfg, &sess.Config); err != nil {
		return Session{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return sess, nil
}

func (s *PgStore) SaveLog(ctx context.Context, sessionID string, events []event.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	batch := &pgx.Batch{}
	for i, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", i, err)
		}
		batch.Queue(`
			INSERT INTO events (session_id, seq, kind, source, timestamp_ms, body)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
			sessionID, i, string(e.Kind), string(e.Source), e.Timestamp, string(body))
	}
	batch.Queue(`
		INSERT INTO logs (session_id, saved_at, events) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET saved_at = EXCLUDED.saved_at, events = EXCLUDED.events`,
		sessionID, time.Now().UTC(), len(events))
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit log: %w", err)
	}
	return nil
}

func (s *PgStore) GetLog(ctx context.Context, sessionID string) ([]event.Event, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT events FROM logs WHERE session_id = $1`, sessionID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT body FROM events WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, n)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
