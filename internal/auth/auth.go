// Package auth provides bcrypt hashing for the status API token.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTokenTooLong is returned when the token exceeds bcrypt's 72-byte limit.
var ErrTokenTooLong = errors.New("token exceeds 72 bytes")

// HashToken returns the bcrypt hash of the given API token.
func HashToken(token string) (string, error) {
	if len(token) > 72 {
		return "", ErrTokenTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckToken reports whether the token matches the stored bcrypt hash.
func CheckToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
