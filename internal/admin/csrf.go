package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	csrfCookieName = "csrftoken"
	csrfFieldName  = "csrfmiddlewaretoken"
	csrfTokenLen   = 32
	csrfCookieAge  = 365 * 24 * time.Hour
)

// csrfToken returns the request's CSRF token, issuing a new cookie when the
// request has none.
func (s *Site) csrfToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(csrfCookieName); err == nil && len(c.Value) == csrfTokenLen {
		return c.Value
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfCookieAge.Seconds()),
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return token
}

// csrfValid reports whether the submitted form token matches the cookie.
// The form must already be parsed.
func csrfValid(r *http.Request) bool {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || len(c.Value) != csrfTokenLen {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(r.PostFormValue(csrfFieldName))) == 1
}
