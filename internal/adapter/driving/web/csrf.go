package web

import (
	"net/http"
	"time"

	"github.com/gorilla/csrf"
)

const (
	csrfCookieName = "cruciverba_csrf"
	csrfFormField  = "csrf_token"
)

// CSRF protects every state-changing request with a per-client token that
// forms carry in the csrf_token field.
type CSRF struct {
	protect   func(http.Handler) http.Handler
	plaintext bool
}

// NewCSRF creates the CSRF middleware. The key is derived from secret, tokens
// expire after maxAge and onFailure answers rejected requests. With secure
// false the site is assumed to be served over plain HTTP, which disables the
// Referer origin check that only applies to TLS.
func NewCSRF(secret string, maxAge time.Duration, secure bool, onFailure http.Handler) *CSRF {
	protect := csrf.Protect(
		deriveKey(secret, "csrf"),
		csrf.CookieName(csrfCookieName),
		csrf.FieldName(csrfFormField),
		csrf.MaxAge(int(maxAge/time.Second)),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.Secure(secure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(onFailure),
	)

	return &CSRF{protect: protect, plaintext: !secure}
}

// Middleware wraps next with token issuance and verification.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	protected := c.protect(next)
	if !c.plaintext {
		return protected
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

// csrfToken returns the masked token to embed in forms rendered for r.
// Outside the middleware it is empty.
func csrfToken(r *http.Request) string {
	return csrf.Token(r)
}

// csrfFailureReason describes why the middleware rejected r.
func csrfFailureReason(r *http.Request) string {
	if err := csrf.FailureReason(r); err != nil {
		return err.Error()
	}
	return "unknown"
}
