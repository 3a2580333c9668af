package security

import (
	"net/http"
	"strings"
	"testing"
)

func TestApplyHeaders(t *testing.T) {
	h := make(http.Header)
	ApplyHeaders(h)

	if got := h.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := h.Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Errorf("Referrer-Policy = %q, want strict-origin-when-cross-origin", got)
	}

	csp := h.Get("Content-Security-Policy")
	for _, directive := range []string{"default-src 'self'", "frame-ancestors 'none'", "form-action 'self'"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("Content-Security-Policy missing %q, got: %s", directive, csp)
		}
	}
}

func TestApplyHeaders_Overwrites(t *testing.T) {
	h := make(http.Header)
	h.Set("X-Frame-Options", "SAMEORIGIN")

	ApplyHeaders(h)

	// The fixed set wins over anything a handler set earlier
	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
