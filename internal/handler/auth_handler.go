package handler

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tidepool-web/internal/audit"
	"tidepool-web/internal/domain"
	"tidepool-web/internal/middleware"
	"tidepool-web/internal/observability"
	"tidepool-web/internal/ratelimit"
	"tidepool-web/internal/security"
	"tidepool-web/internal/service"
	"tidepool-web/internal/view"
)

// AuthHandler orchestrates the login, register and logout flows. Every
// POST runs the same sequence: parse form, validate CSRF, check the rate
// limit, invoke the use case, respond. CSRF and rate-limit rejections are
// terminal and never reach the use case.
type AuthHandler struct {
	authService   *service.AuthService
	limiter       ratelimit.Limiter
	loginLimit    ratelimit.Config
	registerLimit ratelimit.Config
	cookies       *security.CookieCodec
	csrf          *security.CSRFGuard
	renderer      *view.Renderer
	recorder      audit.Recorder
}

// AuthHandlerOptions carries the orchestrator's collaborators and limits.
type AuthHandlerOptions struct {
	Limiter       ratelimit.Limiter
	LoginLimit    ratelimit.Config
	RegisterLimit ratelimit.Config
	Cookies       *security.CookieCodec
	Renderer      *view.Renderer
	Recorder      audit.Recorder
}

// NewAuthHandler creates the auth orchestrator.
func NewAuthHandler(authService *service.AuthService, opts AuthHandlerOptions) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		limiter:       opts.Limiter,
		loginLimit:    opts.LoginLimit,
		registerLimit: opts.RegisterLimit,
		cookies:       opts.Cookies,
		csrf:          security.NewCSRFGuard(),
		renderer:      opts.Renderer,
		recorder:      opts.Recorder,
	}
}

// authForm is the parsed POST body. Parsing never fails: a malformed or
// empty body reads as empty fields, and empty fields fail validation
// downstream instead of erroring here.
type authForm struct {
	csrfToken  string
	email      string
	password   string
	confirm    string
	redirectTo string
}

func parseAuthForm(r *http.Request) authForm {
	_ = r.ParseForm()
	return authForm{
		csrfToken:  r.PostFormValue("_csrf"),
		email:      r.PostFormValue("email"),
		password:   r.PostFormValue("password"),
		confirm:    r.PostFormValue("confirmPassword"),
		redirectTo: r.PostFormValue("redirectTo"),
	}
}

// LoginPage renders the login form with a fresh CSRF pair.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, "failed to issue CSRF token", err)
		return
	}

	form := view.FormData{
		CSRFToken:  token,
		RedirectTo: sanitizeRedirect(r.URL.Query().Get("redirectTo"), ""),
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, view.PageLogin, view.PageData{Title: "Sign in", Form: form}); err != nil {
		h.internalError(w, "failed to render login page", err)
		return
	}

	HTML(http.StatusOK, buf.Bytes()).
		WithCookie(h.cookies.BuildCSRF(token)).
		Write(w)
}

// RegisterPage renders the registration form with a fresh CSRF pair.
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, "failed to issue CSRF token", err)
		return
	}

	var buf bytes.Buffer
	data := view.PageData{Title: "Create account", Form: view.FormData{CSRFToken: token}}
	if err := h.renderer.RenderPage(&buf, view.PageRegister, data); err != nil {
		h.internalError(w, "failed to render register page", err)
		return
	}

	HTML(http.StatusOK, buf.Bytes()).
		WithCookie(h.cookies.BuildCSRF(token)).
		Write(w)
}

// Login handles the login form POST.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	f := parseAuthForm(r)

	if !h.checkCSRF(w, r, f.csrfToken) {
		observability.AuthFlowTotal.WithLabelValues("login", "csrf_rejected").Inc()
		return
	}

	identifier := service.NormalizeEmail(f.email)
	if !h.checkRateLimit(w, r, identifier, ratelimit.ActionLogin, h.loginLimit) {
		observability.AuthFlowTotal.WithLabelValues("login", "rate_limited").Inc()
		return
	}

	session, user, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:    f.email,
		Password: f.password,
	})
	if err != nil {
		h.loginFailed(w, r, f, err)
		return
	}

	observability.AuthFlowTotal.WithLabelValues("login", "success").Inc()
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventLoginSucceeded,
		UserID:   user.ID,
		Email:    user.Email,
		RemoteIP: clientIP(r),
	})

	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, "failed to issue CSRF token", err)
		return
	}

	Redirect(r, sanitizeRedirect(f.redirectTo, "/")).
		WithCookie(h.cookies.BuildSession(session.Token)).
		WithCookie(h.cookies.BuildCSRF(token)).
		Write(w)
}

// loginFailed re-renders the login form: fresh CSRF pair, sticky email,
// generic message. The response stays 200 so a fragment-swap client
// receives a form, not an error page.
func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, f authForm, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		observability.AuthFlowTotal.WithLabelValues("login", "error").Inc()
		h.internalError(w, "login failed", err)
		return
	}

	observability.AuthFlowTotal.WithLabelValues("login", de.Kind.String()).Inc()
	observability.Security("login_failed", "ip", clientIP(r), "reason", de.Detail)
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventLoginFailed,
		Email:    service.NormalizeEmail(f.email),
		RemoteIP: clientIP(r),
		Metadata: map[string]string{"reason": de.Kind.String()},
	})

	token, issueErr := h.csrf.Issue()
	if issueErr != nil {
		h.internalError(w, "failed to issue CSRF token", issueErr)
		return
	}

	h.renderAuthForm(w, r, view.PageLogin, "Sign in", view.FragmentLoginForm, view.FormData{
		CSRFToken:   token,
		Email:       f.email,
		RedirectTo:  sanitizeRedirect(f.redirectTo, ""),
		Error:       GenericMessageFor(de),
		FieldErrors: de.Fields,
	})
}

// Register handles the registration form POST.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	f := parseAuthForm(r)

	if !h.checkCSRF(w, r, f.csrfToken) {
		observability.AuthFlowTotal.WithLabelValues("register", "csrf_rejected").Inc()
		return
	}

	identifier := service.NormalizeEmail(f.email)
	if !h.checkRateLimit(w, r, identifier, ratelimit.ActionRegister, h.registerLimit) {
		observability.AuthFlowTotal.WithLabelValues("register", "rate_limited").Inc()
		return
	}

	user, err := h.authService.Register(r.Context(), service.RegisterInput{
		Email:           f.email,
		Password:        f.password,
		ConfirmPassword: f.confirm,
	})
	if err != nil {
		h.registerFailed(w, r, f, err)
		return
	}

	observability.AuthFlowTotal.WithLabelValues("register", "success").Inc()
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventUserRegistered,
		UserID:   user.ID,
		Email:    user.Email,
		RemoteIP: clientIP(r),
	})

	// The new account signs in with the credentials it just registered;
	// no session is minted here.
	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, "failed to issue CSRF token", err)
		return
	}

	Redirect(r, "/auth/login").
		WithCookie(h.cookies.BuildCSRF(token)).
		Write(w)
}

// registerFailed re-renders the registration form with a fresh CSRF pair.
func (h *AuthHandler) registerFailed(w http.ResponseWriter, r *http.Request, f authForm, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		observability.AuthFlowTotal.WithLabelValues("register", "error").Inc()
		h.internalError(w, "registration failed", err)
		return
	}

	observability.AuthFlowTotal.WithLabelValues("register", de.Kind.String()).Inc()
	observability.Security("register_failed", "ip", clientIP(r), "reason", de.Detail)
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventRegisterFailed,
		Email:    service.NormalizeEmail(f.email),
		RemoteIP: clientIP(r),
		Metadata: map[string]string{"reason": de.Kind.String()},
	})

	token, issueErr := h.csrf.Issue()
	if issueErr != nil {
		h.internalError(w, "failed to issue CSRF token", issueErr)
		return
	}

	h.renderAuthForm(w, r, view.PageRegister, "Create account", view.FragmentRegisterForm, view.FormData{
		CSRFToken:   token,
		Email:       f.email,
		Error:       GenericMessageFor(de),
		FieldErrors: de.Fields,
	})
}

// Logout tears the session down. CSRF still applies: logout is a
// state-changing POST a hostile page must not be able to forge. The
// session cookie may already be gone; an empty token logs out cleanly
// and the cookies get cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	f := parseAuthForm(r)

	if !h.checkCSRF(w, r, f.csrfToken) {
		observability.AuthFlowTotal.WithLabelValues("logout", "csrf_rejected").Inc()
		return
	}

	token, _ := h.cookies.SessionValue(r)
	if err := h.authService.Logout(r.Context(), token); err != nil {
		observability.AuthFlowTotal.WithLabelValues("logout", "error").Inc()
		h.internalError(w, "logout failed", err)
		return
	}

	observability.AuthFlowTotal.WithLabelValues("logout", "success").Inc()
	userID, _ := middleware.GetUserID(r.Context())
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventUserLoggedOut,
		UserID:   userID,
		RemoteIP: clientIP(r),
	})

	Redirect(r, "/auth/login").
		WithCookie(h.cookies.ClearSession()).
		WithCookie(h.cookies.ClearCSRF()).
		Write(w)
}

// Home renders the signed-in landing page.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		Text(http.StatusUnauthorized, "Not authenticated").Write(w)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		// A session pointing at a deleted account gets torn down instead
		// of erroring forever.
		if de, ok := domain.AsError(err); ok && de.Kind == domain.KindNotFound {
			Redirect(r, "/auth/login").
				WithCookie(h.cookies.ClearSession()).
				WithCookie(h.cookies.ClearCSRF()).
				Write(w)
			return
		}
		h.internalError(w, "failed to load user", err)
		return
	}

	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, "failed to issue CSRF token", err)
		return
	}

	var buf bytes.Buffer
	data := view.PageData{Title: "Home", Email: user.Email, Form: view.FormData{CSRFToken: token}}
	if err := h.renderer.RenderPage(&buf, view.PageHome, data); err != nil {
		h.internalError(w, "failed to render home page", err)
		return
	}

	HTML(http.StatusOK, buf.Bytes()).
		WithCookie(h.cookies.BuildCSRF(token)).
		Write(w)
}

// MeResponse is the session introspection payload.
type MeResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Me returns the authenticated user, for first-party API clients.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		JSON(http.StatusUnauthorized, errorBody{Error: "Not authenticated"}).Write(w)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	JSON(http.StatusOK, MeResponse{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}).Write(w)
}

// checkCSRF validates the double-submit pair and, on failure, writes the
// terminal 403. Nothing else may run after a CSRF failure: not the
// limiter, not the use case, no logging of the attempted identifier.
func (h *AuthHandler) checkCSRF(w http.ResponseWriter, r *http.Request, formToken string) bool {
	cookieToken, _ := h.cookies.CSRFValue(r)
	if err := h.csrf.Validate(formToken, cookieToken); err == nil {
		return true
	}

	observability.Security("csrf_rejected", "ip", clientIP(r), "path", r.URL.Path)
	observability.CSRFRejectionsTotal.WithLabelValues(r.URL.Path).Inc()
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventCSRFRejected,
		RemoteIP: clientIP(r),
		Metadata: map[string]string{"path": r.URL.Path},
	})

	Text(http.StatusForbidden, "Forbidden").Write(w)
	return false
}

// checkRateLimit admits or denies the identifier for one action. On
// denial it writes 429 carrying the limiter's Retry-After verbatim, so
// the client and the limiter agree on the backoff. A limiter
// infrastructure error admits the request: a lost counter store must not
// take logins down with it.
func (h *AuthHandler) checkRateLimit(w http.ResponseWriter, r *http.Request, identifier, action string, cfg ratelimit.Config) bool {
	decision, err := h.limiter.Check(r.Context(), identifier, action, cfg)
	if err != nil {
		observability.Error("rate limiter check failed", "action", action, "error", err)
		return true
	}
	if decision.Allowed {
		return true
	}

	observability.Security("rate_limited", "ip", clientIP(r), "action", action, "retry_after", decision.RetryAfter)
	observability.RateLimitDenialsTotal.WithLabelValues(action).Inc()
	h.recorder.Record(r.Context(), audit.Event{
		Name:     audit.EventRateLimited,
		Email:    identifier,
		RemoteIP: clientIP(r),
		Metadata: map[string]string{"action": action},
	})

	Text(http.StatusTooManyRequests, "Too many attempts. Please try again later.").
		WithHeader("Retry-After", strconv.Itoa(decision.RetryAfter)).
		Write(w)
	return false
}

// renderAuthForm writes the form either as a full page or, for HX
// requests, as the bare form fragment, with a Set-Cookie carrying the
// form's CSRF token.
func (h *AuthHandler) renderAuthForm(w http.ResponseWriter, r *http.Request, page, title, fragment string, form view.FormData) {
	var buf bytes.Buffer
	var err error
	if IsPartial(r) {
		err = h.renderer.RenderFragment(&buf, page, fragment, view.PageData{Form: form})
	} else {
		err = h.renderer.RenderPage(&buf, page, view.PageData{Title: title, Form: form})
	}
	if err != nil {
		h.internalError(w, "failed to render form", err)
		return
	}

	HTML(http.StatusOK, buf.Bytes()).
		WithCookie(h.cookies.BuildCSRF(form.CSRFToken)).
		Write(w)
}

// internalError is the last-resort 500: log the cause, send a fixed body.
func (h *AuthHandler) internalError(w http.ResponseWriter, msg string, err error) {
	observability.Error(msg, "error", err)
	Text(http.StatusInternalServerError, "Something went wrong. Please try again.").Write(w)
}

// sanitizeRedirect keeps redirect targets on this origin. Only rooted
// local paths pass: "//host" and "/\host" are protocol-relative in
// browsers, and absolute URLs would hand the redirect to another origin.
func sanitizeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}

// clientIP is the peer address without the port. Deliberately not read
// from forwarding headers, which any client can populate.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
