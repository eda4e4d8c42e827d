// Package admin serves the staff-only admin site under /admin/: a login form,
// an index page and logout. Every other path under the prefix is gated the
// same way, so anonymous visitors always land on the login form.
package admin

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"hello/internal/auth"
	"hello/internal/urls"
	"hello/pkg/controller"
	"hello/pkg/domain"
	"hello/pkg/logger"
	"hello/pkg/serrors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Route names registered by URLs.
const (
	IndexName  = "admin:index"
	LoginName  = "admin:login"
	LogoutName = "admin:logout"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Options configures the admin site.
type Options struct {
	Auth *auth.Service
	// StaticURL prefixes stylesheet links.
	StaticURL string
	// CookieSecure marks the CSRF cookie Secure.
	CookieSecure bool
	Debug        bool
}

// Site is the admin site.
type Site struct {
	auth      *auth.Service
	opts      Options
	templates *template.Template
}

// New parses the admin templates.
func New(opts Options) (*Site, error) {
	if opts.Auth == nil {
		return nil, errors.New("admin site needs an auth service")
	}
	if opts.StaticURL == "" {
		opts.StaticURL = "/static/"
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("could not parse admin templates: %w", err)
	}

	return &Site{auth: opts.Auth, opts: opts, templates: tmpl}, nil
}

// URLs returns the admin sub-table, to be mounted at "admin/".
func (s *Site) URLs() urls.Pattern {
	return urls.Include("admin/",
		urls.Path("", s.auth.WithUser(s.staffOnly(s.index)), IndexName),
		urls.Path("login/", s.auth.WithUser(http.HandlerFunc(s.login)), LoginName),
		urls.Path("logout/", s.auth.WithUser(s.staffOnly(s.logout)), LogoutName),
		urls.Fallback(s.auth.WithUser(s.staffOnly(s.catchAll))),
	)
}

type page struct {
	Title     string
	StaticURL string
	CSRFToken string
	User      *domain.User

	LoginURL  string
	LogoutURL string
	Next      string
	Username  string
	Error     string
}

func (s *Site) render(w http.ResponseWriter, r *http.Request, name string, p page) {
	p.StaticURL = s.opts.StaticURL

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, p); err != nil {
		logger.Error(r.Context(), "could not render admin page", zap.String("template", name), zap.Error(err))
		controller.WriteError(w, r, err, s.opts.Debug)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
	_, _ = buf.WriteTo(w)
}

func (s *Site) reverse(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	u, err := urls.Reverse(r.Context(), name)
	if err != nil {
		controller.WriteError(w, r, err, s.opts.Debug)

		return "", false
	}

	return u, true
}

// staffOnly redirects visitors who may not use the admin to the login form.
func (s *Site) staffOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()).CanUseAdmin() {
			next(w, r)

			return
		}

		loginURL, ok := s.reverse(w, r, LoginName)
		if !ok {
			return
		}
		http.Redirect(w, r, loginURL+"?"+url.Values{"next": {r.URL.RequestURI()}}.Encode(), http.StatusFound)
	})
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}

	w.Header().Set("Allow", strings.Join(methods, ", "))
	controller.WriteError(w, r, serrors.KindOnly(serrors.ErrMethodNotAllowed), false)

	return false
}

func (s *Site) index(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	logoutURL, ok := s.reverse(w, r, LogoutName)
	if !ok {
		return
	}

	s.render(w, r, "index.html", page{
		Title:     "Site administration",
		CSRFToken: s.csrfToken(w, r),
		User:      auth.UserFromContext(r.Context()),
		LogoutURL: logoutURL,
	})
}

// safeNext returns next when it is a local path, otherwise the admin index.
func (s *Site) safeNext(w http.ResponseWriter, r *http.Request, next string) (string, bool) {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next, true
	}

	return s.reverse(w, r, IndexName)
}

func (s *Site) login(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead, http.MethodPost) {
		return
	}
	ctx := r.Context()
	loginURL, ok := s.reverse(w, r, LoginName)
	if !ok {
		return
	}

	p := page{Title: "Log in", LoginURL: loginURL}

	if r.Method != http.MethodPost {
		p.Next = r.URL.Query().Get("next")
		p.User = auth.UserFromContext(ctx)
		if p.User.CanUseAdmin() {
			if next, ok := s.safeNext(w, r, p.Next); ok {
				http.Redirect(w, r, next, http.StatusFound)
			}

			return
		}
		p.CSRFToken = s.csrfToken(w, r)
		s.render(w, r, "login.html", p)

		return
	}

	if err := r.ParseForm(); err != nil || !csrfValid(r) {
		controller.WriteError(w, r, serrors.With(serrors.ErrForbidden, "CSRF verification failed"), s.opts.Debug)

		return
	}

	p.Next = r.PostFormValue("next")
	p.Username = r.PostFormValue("username")

	user, err := s.auth.Authenticate(ctx, p.Username, r.PostFormValue("password"))
	if err == nil && !user.CanUseAdmin() {
		err = auth.ErrInvalidCredentials
	}
	switch {
	case errors.Is(err, serrors.ErrUnauthorized):
		logger.Info(ctx, "admin login failed", zap.String("username", p.Username))
		p.Error = "Please enter the correct username and password for a staff account. " +
			"Note that both fields may be case-sensitive."
		p.CSRFToken = s.csrfToken(w, r)
		s.render(w, r, "login.html", p)

		return
	case err != nil:
		controller.WriteError(w, r, err, s.opts.Debug)

		return
	}

	if err := s.auth.Login(ctx, w, user); err != nil {
		controller.WriteError(w, r, err, s.opts.Debug)

		return
	}

	if next, ok := s.safeNext(w, r, p.Next); ok {
		http.Redirect(w, r, next, http.StatusFound)
	}
}

func (s *Site) logout(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil || !csrfValid(r) {
		controller.WriteError(w, r, serrors.With(serrors.ErrForbidden, "CSRF verification failed"), s.opts.Debug)

		return
	}

	if err := s.auth.Logout(r.Context(), w, r); err != nil {
		controller.WriteError(w, r, err, s.opts.Debug)

		return
	}

	loginURL, ok := s.reverse(w, r, LoginName)
	if !ok {
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// catchAll answers unknown admin paths for staff users.
func (s *Site) catchAll(w http.ResponseWriter, r *http.Request) {
	if urls.AppendSlash(w, r) {
		return
	}
	urls.NotFound(w, r)
}
