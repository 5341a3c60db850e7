package authcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrMissingCode             = errors.New("authcode: missing code")
	ErrInlineTokensUnsupported = errors.New("authcode: provider cannot validate bearer tokens")
)

// tokenDecoder turns a bearer token into an Identity.
type tokenDecoder interface {
	decode(ctx context.Context, raw string) (*Identity, error)
}

// OAuth2Provider is a Provider backed by an oauth2.Config. When it has an ID
// token verifier, the identity returned by Authenticate is filled from the
// id_token of the token response, and bearer tokens can be validated inline.
type OAuth2Provider struct {
	config   *oauth2.Config
	flow     FlowType
	verifier *oidc.IDTokenVerifier
	inline   tokenDecoder
	client   *http.Client
}

// OAuth2Option configures an OAuth2Provider.
type OAuth2Option func(*OAuth2Provider)

// WithFlow sets the grant the provider is configured for. The default is
// FlowAuthCode, the only flow a Handler accepts.
func WithFlow(flow FlowType) OAuth2Option {
	return func(p *OAuth2Provider) {
		p.flow = flow
	}
}

// WithIDTokenVerifier verifies the id_token of token responses with v, and
// accepts bearer tokens v can verify.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) OAuth2Option {
	return func(p *OAuth2Provider) {
		p.verifier = v
		p.inline = oidcDecoder{verifier: v}
	}
}

// WithHTTPClient sets the client used for the code exchange.
func WithHTTPClient(c *http.Client) OAuth2Option {
	return func(p *OAuth2Provider) {
		p.client = c
	}
}

// NewOAuth2Provider returns a provider for config. config.RedirectURL and
// config.Scopes are used as defaults; the params passed by the Handler win.
func NewOAuth2Provider(config *oauth2.Config, opts ...OAuth2Option) *OAuth2Provider {
	p := &OAuth2Provider{config: config, flow: FlowAuthCode}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DiscoverOAuth2Provider builds an OAuth2Provider from the OpenID Connect
// discovery document of issuer.
func DiscoverOAuth2Provider(ctx context.Context, issuer, clientID, clientSecret string, opts ...OAuth2Option) (*OAuth2Provider, error) {
	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", issuer, err)
	}
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     discovered.Endpoint(),
	}
	verifier := discovered.Verifier(&oidc.Config{ClientID: clientID})
	opts = append([]OAuth2Option{WithIDTokenVerifier(verifier)}, opts...)
	return NewOAuth2Provider(config, opts...), nil
}

func (p *OAuth2Provider) OAuth2() bool {
	return true
}

func (p *OAuth2Provider) SupportsAuthorizationCodeFlow() bool {
	return p.flow == FlowAuthCode
}

func (p *OAuth2Provider) SupportsInlineTokenValidation() bool {
	return p.inline != nil
}

// AuthorizeURL implements Provider. Scopes are sent space separated in the
// scope parameter; every other key is sent as is.
func (p *OAuth2Provider) AuthorizeURL(params Params) (string, error) {
	var opts []oauth2.AuthCodeOption
	for k, v := range params {
		switch k {
		case ParamState:
		case ParamScopes:
			opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(paramStrings(v), " ")))
		default:
			opts = append(opts, oauth2.SetAuthURLParam(k, paramString(v)))
		}
	}
	return p.config.AuthCodeURL(paramString(params[ParamState]), opts...), nil
}

// Authenticate implements Provider by exchanging params[ParamCode] at the
// token endpoint.
func (p *OAuth2Provider) Authenticate(ctx context.Context, params Params) (*Identity, error) {
	if p.flow != FlowAuthCode {
		return nil, fmt.Errorf("%w: configured for %s", ErrUnsupportedFlow, p.flow)
	}
	code := paramString(params[ParamCode])
	if code == "" {
		return nil, &StatusError{Code: http.StatusBadRequest, Message: "missing code parameter", Err: ErrMissingCode}
	}
	var opts []oauth2.AuthCodeOption
	for k, v := range params {
		if k == ParamCode {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, paramString(v)))
	}
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}

	tok, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	identity := &Identity{Token: tok}
	if p.verifier == nil {
		return identity, nil
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return identity, nil
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verifying id_token: %w", err)
	}
	if err := fillFromIDToken(identity, idToken); err != nil {
		return nil, err
	}
	return identity, nil
}

// DecodeToken implements Provider.
func (p *OAuth2Provider) DecodeToken(ctx context.Context, token string) (*Identity, error) {
	if p.inline == nil {
		return nil, ErrInlineTokensUnsupported
	}
	return p.inline.decode(ctx, token)
}

type oidcDecoder struct {
	verifier *oidc.IDTokenVerifier
}

func (d oidcDecoder) decode(ctx context.Context, raw string) (*Identity, error) {
	idToken, err := d.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	identity := &Identity{}
	if err := fillFromIDToken(identity, idToken); err != nil {
		return nil, err
	}
	return identity, nil
}

func fillFromIDToken(identity *Identity, idToken *oidc.IDToken) error {
	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("decoding id_token claims: %w", err)
	}
	identity.Subject = idToken.Subject
	identity.Issuer = idToken.Issuer
	identity.Email, _ = claims["email"].(string)
	identity.Claims = claims
	return nil
}

func paramString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func paramStrings(v interface{}) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, paramString(s))
		}
		return out
	case string:
		return strings.Fields(v)
	}
	return nil
}
