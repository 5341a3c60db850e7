package authcode

import (
	"context"
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ParamJWT is the key JWTProvider.Authenticate reads the token from.
const ParamJWT = "jwt"

// JWTProvider validates RS256/RS384/RS512 signed JWTs against a single public
// key. It is not an OAuth2 provider: it can only authenticate requests that
// present a bearer token, and has no authorization server to redirect to.
type JWTProvider struct {
	key         *rsa.PublicKey
	issuer      string
	audience    string
	fingerprint string
}

// NewJWTProvider returns a JWTProvider for key. Empty issuer or audience are
// not checked.
func NewJWTProvider(key *rsa.PublicKey, issuer, audience string) (*JWTProvider, error) {
	if key == nil {
		return nil, errors.New("authcode: JWT public key is required")
	}
	fingerprint, err := keyFingerprint(key)
	if err != nil {
		return nil, err
	}
	return &JWTProvider{
		key:         key,
		issuer:      issuer,
		audience:    audience,
		fingerprint: fingerprint,
	}, nil
}

// Fingerprint is the SHA256 fingerprint of the verification key, as printed
// by ssh-keygen.
func (p *JWTProvider) Fingerprint() string {
	return p.fingerprint
}

func (p *JWTProvider) OAuth2() bool {
	return false
}

func (p *JWTProvider) SupportsAuthorizationCodeFlow() bool {
	return false
}

func (p *JWTProvider) SupportsInlineTokenValidation() bool {
	return true
}

func (p *JWTProvider) AuthorizeURL(Params) (string, error) {
	return "", ErrNotOAuth2
}

// Authenticate validates the token under ParamJWT.
func (p *JWTProvider) Authenticate(ctx context.Context, params Params) (*Identity, error) {
	raw := paramString(params[ParamJWT])
	if raw == "" {
		return nil, errors.New("authcode: missing jwt")
	}
	return p.DecodeToken(ctx, raw)
}

func (p *JWTProvider) DecodeToken(_ context.Context, raw string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}

	identity := &Identity{Claims: map[string]interface{}(claims)}
	identity.Subject, _ = claims.GetSubject()
	identity.Issuer, _ = claims.GetIssuer()
	identity.Email, _ = claims["email"].(string)
	return identity, nil
}
