package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coauthor/internal/config"
	"coauthor/internal/event"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

// Session is the metadata row written when a session starts.
type Session struct {
	ID               string            `json:"session_id"`
	AccessCode       string            `json:"access_code"`
	VerificationCode string            `json:"verification_code"`
	StartedAt        time.Time         `json:"start_timestamp"`
	Config           config.AccessCode `json:"config"`
}

// LogStore is the storage port for session metadata and event logs.
// Implementations must be safe for concurrent use.
type LogStore interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)

	// SaveLog replaces the stored log of a session. Event order is kept.
	// Saving a log for a session without metadata is allowed.
	SaveLog(ctx context.Context, sessionID string, events []event.Event) error
	// GetLog returns the stored log in order, or ErrNotFound.
	GetLog(ctx context.Context, sessionID string) ([]event.Event, error)

	// ListSessions returns the most recently started sessions first.
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	Close() error
}

// Indexer mirrors saved logs into a search backend.
type Indexer interface {
	IndexLog(ctx context.Context, sessionID string, events []event.Event) error
	Close() error
}

// Open picks a LogStore for dsn: a postgres:// or postgresql:// URL selects
// Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (LogStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		s, err := NewPgStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	}
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return s, nil
}
