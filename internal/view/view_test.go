package view

import (
	"bytes"
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("Failed to build renderer: %v", err)
	}
	return r
}

func TestNew_ParsesAllPages(t *testing.T) {
	r := newTestRenderer(t)

	for _, page := range []string{PageLogin, PageRegister, PageHome} {
		var buf bytes.Buffer
		if err := r.RenderPage(&buf, page, PageData{Title: "Test"}); err != nil {
			t.Errorf("Expected %s page to render, got: %v", page, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Expected %s page to produce output", page)
		}
	}
}

func TestRenderPage_Login(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderPage(&buf, PageLogin, PageData{
		Title: "Sign in",
		Form: FormData{
			CSRFToken: "token-abc123",
			Email:     "alice@example.com",
		},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	body := buf.String()

	if !strings.HasPrefix(body, "<!DOCTYPE html>") {
		t.Error("Expected full page to start with a doctype")
	}
	if !strings.Contains(body, `action="/auth/login"`) {
		t.Error("Expected login form action")
	}
	if !strings.Contains(body, `name="_csrf" value="token-abc123"`) {
		t.Error("Expected hidden CSRF field with the issued token")
	}
	if !strings.Contains(body, `value="alice@example.com"`) {
		t.Error("Expected sticky email value")
	}
	if strings.Contains(body, `name="redirectTo"`) {
		t.Error("Expected no redirectTo field when none was requested")
	}
}

func TestRenderPage_Login_RedirectTo(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderPage(&buf, PageLogin, PageData{
		Title: "Sign in",
		Form:  FormData{CSRFToken: "t", RedirectTo: "/dashboard"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(buf.String(), `name="redirectTo" value="/dashboard"`) {
		t.Error("Expected hidden redirectTo field carrying the target")
	}
}

func TestRenderPage_EscapesUserInput(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderPage(&buf, PageLogin, PageData{
		Title: "Sign in",
		Form: FormData{
			CSRFToken: "t",
			Email:     `"><script>alert(1)</script>`,
		},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	body := buf.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("Expected user-supplied email to be escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Expected escaped form of the injected markup")
	}
}

func TestRenderFragment_LoginForm(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderFragment(&buf, PageLogin, FragmentLoginForm, PageData{
		Form: FormData{
			CSRFToken: "fresh-token",
			Email:     "alice@example.com",
			Error:     "Invalid email or password",
		},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	body := buf.String()

	if strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("Expected fragment to omit the layout")
	}
	if !strings.Contains(body, "<form") {
		t.Error("Expected fragment to contain the form")
	}
	if !strings.Contains(body, `value="fresh-token"`) {
		t.Error("Expected fragment to carry the fresh CSRF token")
	}
	if !strings.Contains(body, "Invalid email or password") {
		t.Error("Expected fragment to show the form error")
	}
}

func TestRenderFragment_RegisterForm_FieldErrors(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderFragment(&buf, PageRegister, FragmentRegisterForm, PageData{
		Form: FormData{
			CSRFToken: "t",
			Email:     "alice@example.com",
			FieldErrors: map[string]string{
				"confirmPassword": "passwords do not match",
			},
		},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	body := buf.String()

	if !strings.Contains(body, `name="confirmPassword"`) {
		t.Error("Expected register form to include the confirmation field")
	}
	if !strings.Contains(body, "passwords do not match") {
		t.Error("Expected field-level error message to render")
	}
}

func TestRenderPage_Home(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderPage(&buf, PageHome, PageData{
		Title: "Home",
		Email: "alice@example.com",
		Form:  FormData{CSRFToken: "logout-token"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	body := buf.String()

	if !strings.Contains(body, "alice@example.com") {
		t.Error("Expected home page to show the signed-in email")
	}
	if !strings.Contains(body, `action="/auth/logout"`) {
		t.Error("Expected logout form")
	}
	if !strings.Contains(body, `name="_csrf" value="logout-token"`) {
		t.Error("Expected logout form to carry a CSRF token")
	}
}

func TestRenderPage_UnknownPage(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderPage(&buf, "settings", PageData{})
	if err == nil {
		t.Error("Expected error for unknown page")
	}
}

func TestRenderFragment_UnknownFragment(t *testing.T) {
	r := newTestRenderer(t)

	var buf bytes.Buffer
	err := r.RenderFragment(&buf, PageLogin, "sidebar", PageData{})
	if err == nil {
		t.Error("Expected error for unknown fragment")
	}
}
