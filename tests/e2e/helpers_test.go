//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TestClient wraps http.Client with cookie handling for a single browser
// session. Redirects are not followed so tests can assert on them directly.
type TestClient struct {
	*http.Client
	t     *testing.T
	email string
}

// NewTestClient creates a new test client with a cookie jar
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		t: t,
	}
}

// cookieValue reads a cookie for the test server from the jar. Cleared
// cookies are dropped by the jar, so a missing cookie reads as "".
func (tc *TestClient) cookieValue(name string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	for _, c := range tc.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// HasSessionCookie reports whether the jar currently holds a session cookie
func (tc *TestClient) HasSessionCookie() bool {
	return tc.cookieValue("session") != ""
}

// FetchCSRF loads a form page and returns the CSRF token it issued. The
// token in the hidden form field always matches the cookie, so reading the
// cookie is enough.
func (tc *TestClient) FetchCSRF(page string) (string, error) {
	resp, err := tc.Get(baseURL + page)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s failed with status %d", page, resp.StatusCode)
	}

	token := tc.cookieValue("csrf")
	if token == "" {
		return "", fmt.Errorf("no csrf cookie after fetching %s", page)
	}
	return token, nil
}

// newFormRequest builds a form POST request
func newFormRequest(path string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// SubmitForm posts a form and returns the raw response
func (tc *TestClient) SubmitForm(path string, form url.Values) (*http.Response, error) {
	req, err := newFormRequest(path, form)
	if err != nil {
		return nil, err
	}
	return tc.Do(req)
}

// Register creates an account through the registration form. A successful
// registration redirects to the login page without establishing a session.
func (tc *TestClient) Register(email, password string) error {
	token, err := tc.FetchCSRF("/auth/register")
	if err != nil {
		return err
	}

	resp, err := tc.SubmitForm("/auth/register", url.Values{
		"_csrf":           {token},
		"email":           {email},
		"password":        {password},
		"confirmPassword": {password},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Login authenticates through the login form and stores the session cookie
// in the jar
func (tc *TestClient) Login(email, password string) error {
	resp, err := tc.LoginAttempt(email, password)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	tc.email = email
	return nil
}

// LoginAttempt posts the login form and returns the raw response, for tests
// that assert on failures. The caller closes the body.
func (tc *TestClient) LoginAttempt(email, password string) (*http.Response, error) {
	token, err := tc.FetchCSRF("/auth/login")
	if err != nil {
		return nil, err
	}

	return tc.SubmitForm("/auth/login", url.Values{
		"_csrf":    {token},
		"email":    {email},
		"password": {password},
	})
}

// Logout posts the logout form, clearing the session and CSRF cookies
func (tc *TestClient) Logout() error {
	token, err := tc.FetchCSRF("/auth/login")
	if err != nil {
		return err
	}

	resp, err := tc.SubmitForm("/auth/logout", url.Values{"_csrf": {token}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// GetMe returns the current user from the JSON API
func (tc *TestClient) GetMe() (*MeResponse, error) {
	resp, err := tc.Get(baseURL + "/api/v1/auth/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get me failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result MeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode me response: %w", err)
	}

	return &result, nil
}

// Response types
type MeResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit trail helpers

// auditEvent mirrors the audit record published to the broker
type auditEvent struct {
	Name     string            `json:"name"`
	UserID   string            `json:"user_id"`
	Email    string            `json:"email"`
	RemoteIP string            `json:"remote_ip"`
	Metadata map[string]string `json:"metadata"`
}

// auditCapture consumes audit events from a private queue bound to the
// auth.events exchange. Start the capture before triggering the action so
// no event is lost.
type auditCapture struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	msgs <-chan amqp.Delivery
}

func startAuditCapture(t *testing.T) *auditCapture {
	t.Helper()

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		t.Fatalf("failed to dial rabbitmq: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		t.Fatalf("failed to open channel: %v", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to declare capture queue: %v", err)
	}

	if err := ch.QueueBind(q.Name, "#", "auth.events", false, nil); err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to bind capture queue: %v", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to consume capture queue: %v", err)
	}

	return &auditCapture{conn: conn, ch: ch, msgs: msgs}
}

func (c *auditCapture) Close() {
	c.ch.Close()
	c.conn.Close()
}

// waitFor blocks until an event with the given name (and email, when
// non-empty) arrives, or the timeout passes
func (c *auditCapture) waitFor(name, email string, timeout time.Duration) (*auditEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-c.msgs:
			if !ok {
				return nil, fmt.Errorf("capture channel closed while waiting for %s", name)
			}
			var ev auditEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				continue
			}
			if ev.Name == name && (email == "" || ev.Email == email) {
				return &ev, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for %s event", name)
		}
	}
}

// Test helpers

// readBody reads and closes a response body
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(bodyBytes)
}

// uniqueEmail generates a unique email for testing
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@test.com", prefix, time.Now().UnixNano())
}

// setupTestUser registers and logs in a test user, returning the client
func setupTestUser(t *testing.T, prefix string) *TestClient {
	t.Helper()

	client := NewTestClient(t)
	email := uniqueEmail(prefix)

	if err := client.Register(email, "password123"); err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	if err := client.Login(email, "password123"); err != nil {
		t.Fatalf("failed to login user: %v", err)
	}

	return client
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// assertEqual checks if two values are equal
func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}
