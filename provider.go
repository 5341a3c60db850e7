package authcode

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Keys recognised in the Params handed to a Provider.
const (
	ParamState       = "state"
	ParamRedirectURI = "redirect_uri"
	ParamScopes      = "scopes"
	ParamCode        = "code"
)

// FlowType is the OAuth2 grant a provider is configured for.
type FlowType string

const (
	FlowAuthCode          FlowType = "AUTH_CODE"
	FlowClientCredentials FlowType = "CLIENT"
	FlowPassword          FlowType = "PASSWORD"
	FlowJWTBearer         FlowType = "AUTH_JWT"
)

var (
	ErrNilProvider     = errors.New("authcode: provider is required")
	ErrUnsupportedFlow = errors.New("authcode: OAuth2 providers must be configured for the authorization code flow")
	ErrNotOAuth2       = errors.New("authcode: provider does not support OAuth2 redirects")
)

// Params is the key/value configuration passed to a Provider when building an
// authorization URL or exchanging a code. Scopes are passed as a []string
// under ParamScopes; the provider decides how to encode them on the wire.
type Params map[string]interface{}

// mergeIn copies every key of other into p, overwriting existing keys.
func (p Params) mergeIn(other Params) Params {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Provider is the client side of an authorization server, or any other
// source of identities.
type Provider interface {
	// OAuth2 reports whether the provider redirects to an OAuth2
	// authorization server.
	OAuth2() bool

	// SupportsAuthorizationCodeFlow reports whether the provider is
	// configured for the authorization code grant.
	SupportsAuthorizationCodeFlow() bool

	// SupportsInlineTokenValidation reports whether bearer tokens presented
	// on a request can be validated without a redirect.
	SupportsInlineTokenValidation() bool

	// AuthorizeURL builds the URL the user agent is redirected to.
	AuthorizeURL(params Params) (string, error)

	// Authenticate exchanges the callback params for an identity.
	Authenticate(ctx context.Context, params Params) (*Identity, error)

	// DecodeToken validates a bearer token and returns the identity it
	// carries.
	DecodeToken(ctx context.Context, token string) (*Identity, error)
}

// Identity is an authenticated principal.
type Identity struct {
	Subject string                 `json:"sub,omitempty"`
	Email   string                 `json:"email,omitempty"`
	Issuer  string                 `json:"iss,omitempty"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
	Token   *oauth2.Token          `json:"token,omitempty"`
}

// verifyProvider rejects OAuth2 providers that are not configured for the
// authorization code flow. Providers that are not OAuth2 providers at all,
// like a JWTProvider, are returned unchanged.
func verifyProvider(p Provider) (Provider, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	if p.OAuth2() && !p.SupportsAuthorizationCodeFlow() {
		return nil, fmt.Errorf("%w: provider %T", ErrUnsupportedFlow, p)
	}
	return p, nil
}
