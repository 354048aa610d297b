package auth

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// HashToken tests
// =============================================================================

func TestHashToken_ProducesBcryptHash(t *testing.T) {
	hash, err := HashToken("s3cret-api-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	// bcrypt hashes start with $2a$, $2b$, or $2y$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("HashToken returned non-bcrypt hash: %s", hash)
	}
}

func TestHashToken_DistinctSalts(t *testing.T) {
	a, err := HashToken("same-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	b, err := HashToken("same-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	if a == b {
		t.Error("hashes of the same token should differ by salt")
	}
}

func TestHashToken_TooLong(t *testing.T) {
	// bcrypt has a max length of 72 bytes - longer tokens return an error
	_, err := HashToken(strings.Repeat("a", 73))
	if !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("error = %v, want ErrTokenTooLong", err)
	}

	if _, err := HashToken(strings.Repeat("a", 72)); err != nil {
		t.Errorf("72-byte token should hash: %v", err)
	}
}

// =============================================================================
// CheckToken tests
// =============================================================================

func TestCheckToken_MatchAndMismatch(t *testing.T) {
	hash, err := HashToken("correct")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	if !CheckToken(hash, "correct") {
		t.Error("CheckToken should accept the original token")
	}
	if CheckToken(hash, "wrong") {
		t.Error("CheckToken should reject a different token")
	}
	if CheckToken("not-a-hash", "correct") {
		t.Error("CheckToken should reject a malformed hash")
	}
}
