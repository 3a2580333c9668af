package security

import (
	"fmt"
	"net/http"
	"strings"
)

// CookieOptions is the attribute set shared by the session and CSRF
// cookies. Options are passed explicitly at construction; the only place
// defaults live is ProductionCookieOptions.
type CookieOptions struct {
	SessionName string
	CSRFName    string
	Secure      bool
	MaxAge      int // seconds
}

// ProductionCookieOptions returns the production attribute set. The
// __Host- prefix binds each cookie to the exact setting origin: browsers
// refuse to store it without Secure and an exact Path=/.
func ProductionCookieOptions() CookieOptions {
	return CookieOptions{
		SessionName: "__Host-session",
		CSRFName:    "__Host-csrf",
		Secure:      true,
		MaxAge:      604800,
	}
}

// Validate rejects option combinations a browser would silently drop.
func (o CookieOptions) Validate() error {
	for _, name := range []string{o.SessionName, o.CSRFName} {
		if name == "" {
			return fmt.Errorf("cookie name must not be empty")
		}
		if strings.HasPrefix(name, "__Host-") && !o.Secure {
			return fmt.Errorf("cookie %s uses the __Host- prefix and requires Secure", name)
		}
	}
	if o.SessionName == o.CSRFName {
		return fmt.Errorf("session and CSRF cookies must not share a name")
	}
	if o.MaxAge <= 0 {
		return fmt.Errorf("cookie max age must be positive, got %d", o.MaxAge)
	}
	return nil
}

// CookieCodec builds and parses the session and CSRF cookie headers.
// Building and parsing are pure string transformations; nothing here
// touches a ResponseWriter.
type CookieCodec struct {
	opts CookieOptions
}

// NewCookieCodec creates a codec for the given options.
func NewCookieCodec(opts CookieOptions) *CookieCodec {
	return &CookieCodec{opts: opts}
}

// SessionName returns the configured session cookie name.
func (c *CookieCodec) SessionName() string { return c.opts.SessionName }

// CSRFName returns the configured CSRF cookie name.
func (c *CookieCodec) CSRFName() string { return c.opts.CSRFName }

// BuildSession serializes the session cookie. HttpOnly is always set:
// the session id must never be readable from script.
func (c *CookieCodec) BuildSession(value string) string {
	return c.build(c.opts.SessionName, value, true, c.opts.MaxAge)
}

// BuildCSRF serializes the CSRF cookie. HttpOnly is never set: the
// double-submit pattern requires same-origin script to read it.
func (c *CookieCodec) BuildCSRF(value string) string {
	return c.build(c.opts.CSRFName, value, false, c.opts.MaxAge)
}

// ClearSession serializes a deletion of the session cookie: same name,
// empty value, Max-Age=0.
func (c *CookieCodec) ClearSession() string {
	return c.build(c.opts.SessionName, "", true, -1)
}

// ClearCSRF serializes a deletion of the CSRF cookie.
func (c *CookieCodec) ClearCSRF() string {
	return c.build(c.opts.CSRFName, "", false, -1)
}

// build serializes one Set-Cookie value. maxAge follows the net/http
// convention: negative means an immediate Max-Age=0 deletion.
func (c *CookieCodec) build(name, value string, httpOnly bool, maxAge int) string {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   c.opts.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
	return cookie.String()
}

// Parse extracts the named cookie's value from a Cookie request header.
// Pairs are split on ";" and trimmed. An empty value reads as absent, so
// a cleared cookie never passes for an authenticated one.
func (c *CookieCodec) Parse(header, name string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		pair := strings.TrimSpace(part)
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found || k != name {
			continue
		}
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}

// SessionValue reads the session cookie from a request.
func (c *CookieCodec) SessionValue(r *http.Request) (string, bool) {
	return c.Parse(r.Header.Get("Cookie"), c.opts.SessionName)
}

// CSRFValue reads the CSRF cookie from a request.
func (c *CookieCodec) CSRFValue(r *http.Request) (string, bool) {
	return c.Parse(r.Header.Get("Cookie"), c.opts.CSRFName)
}
