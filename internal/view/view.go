// Package view renders the application's HTML pages and HTMX form
// fragments from templates embedded at build time.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names understood by the renderer.
const (
	PageLogin    = "login"
	PageRegister = "register"
	PageHome     = "home"
)

// Form fragments swapped in place on failed HTMX submissions.
const (
	FragmentLoginForm    = "login-form"
	FragmentRegisterForm = "register-form"
)

// FormData is the state of an auth form: the CSRF token for the hidden
// field, sticky values safe to echo back, and error messages. Passwords
// are never carried here.
type FormData struct {
	CSRFToken   string
	Email       string
	RedirectTo  string
	Error       string            // generic top-of-form message
	FieldErrors map[string]string // field name -> message
}

// PageData is the data handed to a render call.
type PageData struct {
	Title string
	Email string // signed-in user, home page only
	Form  FormData
}

// Renderer holds the parsed page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses the embedded templates. The layout is parsed once and
// cloned per page so each page's content block stays isolated.
func New() (*Renderer, error) {
	layout, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout template: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, page := range []string{PageLogin, PageRegister, PageHome} {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout for %s: %w", page, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+page+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		pages[page] = t
	}

	return &Renderer{pages: pages}, nil
}

// RenderPage writes a full page wrapped in the layout.
func (r *Renderer) RenderPage(w io.Writer, page string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s page: %w", page, err)
	}
	return nil
}

// RenderFragment writes a single named block of a page without the
// layout, for HX-Request responses that swap the form in place.
func (r *Renderer) RenderFragment(w io.Writer, page, fragment string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if err := t.ExecuteTemplate(w, fragment, data); err != nil {
		return fmt.Errorf("failed to render %s fragment: %w", fragment, err)
	}
	return nil
}
