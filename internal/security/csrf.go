package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrTokenMismatch covers every double-submit failure so callers cannot
// tell a missing token apart from a wrong one.
var ErrTokenMismatch = errors.New("CSRF token mismatch")

// CSRFGuard implements the double-submit cookie pattern.
// The token lives in a script-readable cookie and is echoed back in a
// hidden form field; equal values prove the POST came from a same-origin
// page. No server-side token storage is involved.
type CSRFGuard struct{}

// NewCSRFGuard creates a new CSRF guard.
func NewCSRFGuard() *CSRFGuard {
	return &CSRFGuard{}
}

// Issue creates a cryptographically secure random CSRF token.
// The token is returned as a 64-character hex string.
func (g *CSRFGuard) Issue() (string, error) {
	// Generate 32 random bytes (256 bits) for maximum entropy
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(randomBytes), nil
}

// Validate checks a submitted form token against the cookie token.
// It fails closed: an empty form token, an empty cookie token, or unequal
// values all reject. The comparison is constant-time so response timing
// leaks nothing about partial matches.
func (g *CSRFGuard) Validate(formToken, cookieToken string) error {
	if formToken == "" || cookieToken == "" {
		return ErrTokenMismatch
	}

	if !hmac.Equal([]byte(formToken), []byte(cookieToken)) {
		return ErrTokenMismatch
	}

	return nil
}
