package db

import (
	"errors"
	"strings"
	"testing"
)

var errBusy = errors.New("database is locked (5) (SQLITE_BUSY)")

// =============================================================================
// retryOnBusy driver
// =============================================================================

func TestRetryOnBusy_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	err := retryOnBusy("exec", func() error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryOnBusy_NonBusyFailsFast(t *testing.T) {
	fatal := errors.New("no such table: events")
	attempts := 0
	err := retryOnBusy("exec", func() error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("error = %v, want the original", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, non-busy errors must not be retried", attempts)
	}
}

func TestRetryOnBusy_ExhaustionWrapsLastError(t *testing.T) {
	attempts := 0
	err := retryOnBusy("exec", func() error {
		attempts++
		return errBusy
	})
	if attempts != MaxRetries {
		t.Errorf("attempts = %d, want %d", attempts, MaxRetries)
	}
	if !errors.Is(err, errBusy) {
		t.Errorf("exhaustion error should wrap the busy error, got %v", err)
	}
	if !strings.Contains(err.Error(), "journal busy after") {
		t.Errorf("error = %q, want exhaustion wrapper", err)
	}
}

func TestIsBusy(t *testing.T) {
	if !isBusy(errBusy) {
		t.Error("SQLITE_BUSY should be recognized")
	}
	if !isBusy(errors.New("database is locked")) {
		t.Error("locked message should be recognized")
	}
	if isBusy(errors.New("syntax error")) {
		t.Error("unrelated errors should not be treated as busy")
	}
}
