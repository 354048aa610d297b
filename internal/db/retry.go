package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mescon/tradecore/internal/logger"
)

// The journal is written from timer trampolines, the feed read loop, and the
// API at once; under WAL that still means one writer at a time, so busy
// errors are expected under load and retried with doubling backoff. Anything
// that isn't a busy error is returned as-is on the first attempt.

// ExecWithRetry executes a statement, retrying on SQLITE_BUSY.
func ExecWithRetry(journal *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := retryOnBusy("exec", func() error {
		var err error
		result, err = journal.Exec(query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryWithRetry executes a query, retrying on SQLITE_BUSY.
func QueryWithRetry(journal *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := retryOnBusy("query", func() error {
		var err error
		rows, err = journal.Query(query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// retryOnBusy drives fn through up to MaxRetries attempts, sleeping between
// busy failures. The final busy error is wrapped so callers can tell
// exhaustion from a plain failure.
func retryOnBusy(op string, fn func() error) error {
	delay := RetryDelay
	var err error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt < MaxRetries {
			logger.Debugf("Journal busy on %s, retrying in %v (attempt %d/%d)", op, delay, attempt, MaxRetries)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("journal busy after %d attempts: %w", MaxRetries, err)
}

func isBusy(err error) bool {
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}
