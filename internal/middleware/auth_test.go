package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidepool-web/internal/domain"
	"tidepool-web/internal/security"
	"tidepool-web/internal/service"
	"tidepool-web/internal/testutil"
)

func newAuthService(sessions *testutil.MockSessionRepository) *service.AuthService {
	return service.NewAuthService(testutil.NewMockUserRepository(), sessions, nil)
}

func testCodec() *security.CookieCodec {
	return security.NewCookieCodec(security.CookieOptions{
		SessionName: "session",
		CSRFName:    "csrf",
		Secure:      false,
		MaxAge:      3600,
	})
}

func TestAuth_ValidSession(t *testing.T) {
	sessionRepo := testutil.NewMockSessionRepository()
	session := testutil.NewTestSession(
		testutil.WithToken("valid-token"),
		testutil.WithSessionUserID("user-123"),
	)
	sessionRepo.Sessions[session.Token] = session

	var gotUserID string
	var gotSession *domain.Session
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = GetUserID(r.Context())
		gotSession, _ = GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := Auth(newAuthService(sessionRepo), testCodec(), ModeRedirect)(nextHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "valid-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertEqual(t, gotUserID, "user-123")
	testutil.AssertNotNil(t, gotSession)
	testutil.AssertEqual(t, gotSession.Token, "valid-token")
}

func TestAuth_NoCookie_RedirectsToLogin(t *testing.T) {
	nextHandlerCalled := false
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextHandlerCalled = true
	})

	handler := Auth(newAuthService(testutil.NewMockSessionRepository()), testCodec(), ModeRedirect)(nextHandler)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusSeeOther)
	testutil.AssertFalse(t, nextHandlerCalled, "next handler should not be called")
	testutil.AssertHeader(t, w, "Location", "/auth/login?redirectTo=%2Fsettings")
}

func TestAuth_NoCookie_RootOmitsRedirectTo(t *testing.T) {
	handler := Auth(newAuthService(testutil.NewMockSessionRepository()), testCodec(), ModeRedirect)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusSeeOther)
	testutil.AssertHeader(t, w, "Location", "/auth/login")
}

func TestAuth_NoCookie_PartialClient(t *testing.T) {
	handler := Auth(newAuthService(testutil.NewMockSessionRepository()), testCodec(), ModeRedirect)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "HX-Redirect", "/auth/login?redirectTo=%2Fsettings")
	testutil.AssertEqual(t, w.Header().Get("Location"), "")
}

func TestAuth_NoCookie_APIMode(t *testing.T) {
	nextHandlerCalled := false
	handler := Auth(newAuthService(testutil.NewMockSessionRepository()), testCodec(), ModeAPI)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextHandlerCalled = true
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusUnauthorized)
	testutil.AssertFalse(t, nextHandlerCalled, "next handler should not be called")
	testutil.AssertHeader(t, w, "Content-Type", "application/json")
	testutil.AssertContains(t, w.Body.String(), "Not authenticated")
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := Auth(newAuthService(testutil.NewMockSessionRepository()), testCodec(), ModeRedirect)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler reached with an unknown token")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "no-such-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusSeeOther)
}

func TestAuth_ExpiredSession(t *testing.T) {
	sessionRepo := testutil.NewMockSessionRepository()
	session := testutil.NewTestSession(
		testutil.WithToken("stale-token"),
		testutil.WithExpired(),
	)
	// Bypass the mock's own expiry filtering; the service must reject the
	// session even when the store hands it back.
	sessionRepo.GetByTokenFunc = func(ctx context.Context, token string) (*domain.Session, error) {
		return session, nil
	}

	handler := Auth(newAuthService(sessionRepo), testCodec(), ModeRedirect)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler reached with an expired session")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "stale-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusSeeOther)
}

func TestGetUserID_Missing(t *testing.T) {
	_, ok := GetUserID(context.Background())
	testutil.AssertFalse(t, ok, "no user id in an empty context")
}

func TestGetSession_Missing(t *testing.T) {
	_, ok := GetSession(context.Background())
	testutil.AssertFalse(t, ok, "no session in an empty context")
}

func TestWithUserID_RoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-9")
	userID, ok := GetUserID(ctx)
	testutil.AssertTrue(t, ok, "user id should round-trip")
	testutil.AssertEqual(t, userID, "user-9")
}
