package middleware

import (
	"context"
	"net/http"
	"net/url"

	"tidepool-web/internal/domain"
	"tidepool-web/internal/security"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"
)

// SessionValidator resolves a session token to a live session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*domain.Session, error)
}

// Mode selects how Auth turns away requests without a valid session.
type Mode int

const (
	// ModeRedirect sends browsers to the login form, carrying the path
	// they were headed for so a successful login lands back on it.
	ModeRedirect Mode = iota
	// ModeAPI answers 401 JSON for first-party API clients.
	ModeAPI
)

// Auth guards routes behind a valid session cookie. The session and its
// user id travel in the request context for downstream handlers. An
// absent, unknown or expired token rejects; the handler never sees the
// request.
func Auth(sessions SessionValidator, cookies *security.CookieCodec, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := cookies.SessionValue(r)
			session, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				reject(w, r, mode)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
			ctx = context.WithValue(ctx, SessionKey, session)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, mode Mode) {
	if mode == ModeAPI {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Not authenticated"}`))
		return
	}

	target := "/auth/login"
	if r.URL.Path != "/" && r.URL.Path != "" {
		target += "?redirectTo=" + url.QueryEscape(r.URL.Path)
	}

	// Fragment-swap clients navigate via HX-Redirect; a 303 would be
	// swapped into the page instead.
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}
