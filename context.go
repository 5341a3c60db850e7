package authcode

import "context"

type contextKey string

const (
	identityKey contextKey = "identity"
	sessionKey  contextKey = "session"
)

// IdentityInContext returns a copy of ctx carrying identity as the
// authenticated principal.
func IdentityInContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated principal of ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

func sessionInContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func sessionFromContext(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey).(Session)
	return s
}
