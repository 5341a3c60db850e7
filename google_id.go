package authcode

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"impractical.co/googleid"
)

// WithGoogleIDTokens accepts Google ID tokens as bearer tokens, as long as
// they were issued to one of clients. It replaces any inline validation set
// by WithIDTokenVerifier.
func WithGoogleIDTokens(verifier *oidc.IDTokenVerifier, clients ...string) OAuth2Option {
	return func(p *OAuth2Provider) {
		p.inline = googleIDDecoder{verifier: verifier, clients: clients}
	}
}

// googleIDDecoder validates Google ID tokens.
type googleIDDecoder struct {
	verifier *oidc.IDTokenVerifier // the verifier that we can use to verify tokens
	clients  []string              // the Google clients that the token must be for
}

func (d googleIDDecoder) decode(ctx context.Context, raw string) (*Identity, error) {
	token, err := googleid.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := googleid.Verify(ctx, raw, d.clients, d.verifier); err != nil {
		return nil, err
	}
	return &Identity{
		Subject: token.Sub,
		Issuer:  token.Iss,
		Email:   strings.ToLower(token.Email),
		Claims: map[string]interface{}{
			"iat": token.Iat,
		},
	}, nil
}
