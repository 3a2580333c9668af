package handler

import (
	"encoding/json"
	"net/http"

	"tidepool-web/internal/observability"
	"tidepool-web/internal/security"
)

// IsPartial reports whether the request came from the fragment-swapping
// client. HTMX sets HX-Request: true on every request it issues.
func IsPartial(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// ResponseSpec describes one HTTP response: status, redirect target,
// cookies, extra headers, body. Builder methods return a copy; Write
// materializes the spec onto the wire exactly once, stamping the fixed
// security header set on the way out.
type ResponseSpec struct {
	status      int
	contentType string
	body        []byte
	location    string
	partial     bool
	cookies     []string
	headers     [][2]string
}

// Redirect builds the client-appropriate redirect. Fragment-swap clients
// get 200 plus HX-Redirect, because a 3xx would be swapped into the DOM
// instead of triggering navigation; everyone else gets 303 plus Location.
func Redirect(r *http.Request, target string) ResponseSpec {
	if IsPartial(r) {
		return ResponseSpec{status: http.StatusOK, partial: true, location: target}
	}
	return ResponseSpec{status: http.StatusSeeOther, location: target}
}

// HTML builds a rendered-page response.
func HTML(status int, body []byte) ResponseSpec {
	return ResponseSpec{status: status, contentType: "text/html; charset=utf-8", body: body}
}

// Text builds a plain-text response, used for the template-free CSRF and
// rate-limit rejections.
func Text(status int, body string) ResponseSpec {
	return ResponseSpec{status: status, contentType: "text/plain; charset=utf-8", body: []byte(body)}
}

// JSON builds an API response.
func JSON(status int, v any) ResponseSpec {
	body, err := json.Marshal(v)
	if err != nil {
		observability.Error("failed to marshal response body", "error", err)
		return Text(http.StatusInternalServerError, "Internal server error")
	}
	return ResponseSpec{status: status, contentType: "application/json", body: body}
}

// WithCookie returns a copy carrying one more Set-Cookie value.
func (s ResponseSpec) WithCookie(setCookie string) ResponseSpec {
	s.cookies = append(append([]string(nil), s.cookies...), setCookie)
	return s
}

// WithHeader returns a copy carrying one more response header.
func (s ResponseSpec) WithHeader(key, value string) ResponseSpec {
	s.headers = append(append([][2]string(nil), s.headers...), [2]string{key, value})
	return s
}

// Write materializes the spec.
func (s ResponseSpec) Write(w http.ResponseWriter) {
	h := w.Header()
	security.ApplyHeaders(h)
	for _, kv := range s.headers {
		h.Set(kv[0], kv[1])
	}
	for _, c := range s.cookies {
		h.Add("Set-Cookie", c)
	}
	if s.location != "" {
		if s.partial {
			h.Set("HX-Redirect", s.location)
		} else {
			h.Set("Location", s.location)
		}
	}
	if s.contentType != "" {
		h.Set("Content-Type", s.contentType)
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(s.body) > 0 {
		w.Write(s.body)
	}
}
