package store

import (
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls retries of transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientSQLiteErr reports whether err is a lock or WAL contention error
// that a retry can resolve. modernc.org/sqlite embeds the result code in the
// message text.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOp runs fn, retrying transient errors with exponential backoff and
// jitter.
func retryOp(cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxRetries {
			time.Sleep(backoffDelay(cfg, attempt))
		}
	}
	return lastErr
}

// backoffDelay is baseDelay * 2^attempt capped at maxDelay, plus up to
// baseDelay of jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := min(cfg.baseDelay<<uint(attempt), cfg.maxDelay)
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}

func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}
