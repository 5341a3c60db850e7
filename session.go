package authcode

import (
	"context"
	"net/http"
	"time"
)

// DefaultSessionCookie is the name of the session cookie when CookieOptions
// does not set one.
const DefaultSessionCookie = "authcode_session"

// Session is the server-side state of a user agent.
type Session interface {
	// ID is the current session identifier.
	ID() string

	// Identity is the principal that logged in on this session, or nil.
	Identity() *Identity

	// SetIdentity records the principal that logged in on this session.
	SetIdentity(ctx context.Context, identity *Identity) error

	// Regenerate replaces the session identifier, keeping the session's
	// data, and sends the new identifier to the client through w. The old
	// identifier stops being valid.
	Regenerate(ctx context.Context, w http.ResponseWriter) error
}

// SessionStore finds the Session of a request.
type SessionStore interface {
	// Load returns the session of r, or nil if r has none.
	Load(r *http.Request) (Session, error)
}

func (h *Handler) loadSession(r *http.Request) (Session, error) {
	if h.sessions == nil {
		return nil, nil
	}
	return h.sessions.Load(r)
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Path   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

func (c CookieOptions) withDefaults() CookieOptions {
	if c.Name == "" {
		c.Name = DefaultSessionCookie
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

func (c CookieOptions) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    id,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionID returns the session identifier the client sent, if any.
func (c CookieOptions) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
