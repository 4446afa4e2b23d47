package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	vm "github.com/ericfisherdev/cruciverba/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/cruciverba/internal/domain/model"
)

const (
	sessionCookieName = "cruciverba_session"
	sessionIssuer     = "cruciverba"
)

const (
	flashError   = vm.FlashError
	flashSuccess = vm.FlashSuccess
)

// sessionClaims is the signed payload of the session cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
	Access  model.AccessState `json:"acc"`
	Flashes []vm.Flash        `json:"fl,omitempty"`
}

// Session is the per-client state carried in the signed cookie: the access
// gates held and the flash messages waiting to be shown.
type Session struct {
	Access    model.AccessState
	ExpiresAt time.Time
	flashes   []vm.Flash
	changed   bool
}

// Has reports whether the session holds gate.
func (s *Session) Has(gate model.Gate) bool {
	return s.Access.Has(gate)
}

// Revoke drops gate, leaving any other gate in place.
func (s *Session) Revoke(gate model.Gate) {
	s.Access = s.Access.Revoke(gate)
	s.changed = true
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(category, message string) {
	s.flashes = append(s.flashes, vm.Flash{Category: category, Message: message})
	s.changed = true
}

// PopFlashes returns the queued messages and clears the queue.
func (s *Session) PopFlashes() []vm.Flash {
	if len(s.flashes) == 0 {
		return nil
	}
	flashes := s.flashes
	s.flashes = nil
	s.changed = true
	return flashes
}

// SessionManager reads and writes sessions as HS256-signed JWT cookies. A
// cookie that is missing, tampered with or expired yields an empty session.
type SessionManager struct {
	key      []byte
	lifetime time.Duration
	secure   bool
	nowFunc  func() time.Time
}

// NewSessionManager creates a SessionManager. The signing key is derived from
// secret; lifetime is the fixed validity of a session counted from login.
func NewSessionManager(secret string, lifetime time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		key:      deriveKey(secret, "session"),
		lifetime: lifetime,
		secure:   secure,
		nowFunc:  time.Now,
	}
}

// Load returns the session carried by r.
func (m *SessionManager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}
	}

	claims, err := m.parse(cookie.Value)
	if err != nil {
		// Stale or forged: start over and drop the cookie on the next save.
		return &Session{changed: true}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Session{
		Access:    claims.Access,
		ExpiresAt: expiresAt,
		flashes:   claims.Flashes,
	}
}

// Grant adds gate to s and restarts its lifetime from now.
func (m *SessionManager) Grant(s *Session, gate model.Gate) {
	s.Access = s.Access.Grant(gate)
	s.ExpiresAt = m.nowFunc().Add(m.lifetime)
	s.changed = true
}

// Save writes s to the response when it changed. An empty session removes
// the cookie. Must be called before the response header is written.
func (m *SessionManager) Save(w http.ResponseWriter, s *Session) error {
	if !s.changed {
		return nil
	}

	if s.Access == model.NoAccess && len(s.flashes) == 0 {
		http.SetCookie(w, m.cookie("", -1))
		return nil
	}

	now := m.nowFunc()
	if !s.ExpiresAt.After(now) {
		s.ExpiresAt = now.Add(m.lifetime)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Access:  s.Access,
		Flashes: s.flashes,
	})

	signed, err := token.SignedString(m.key)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	maxAge := int(s.ExpiresAt.Sub(now).Round(time.Second) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, m.cookie(signed, maxAge))
	s.changed = false

	return nil
}

func (m *SessionManager) parse(value string) (*sessionClaims, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid session token")
	}

	return claims, nil
}

func (m *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// deriveKey derives a purpose-specific 32-byte key from the configured secret
// so the session and CSRF keys never coincide.
func deriveKey(secret, purpose string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}
