package authcode

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	yall "yall.in"
	testLogger "yall.in/testing"
)

const (
	testAuthorizeURL = "https://auth.example.com/authorize"
	testCallbackURL  = "https://app.example.com/callback"
)

func testLog(t *testing.T) *yall.Logger {
	logLevel := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "ERROR"
	}
	return yall.New(testLogger.New(t, yall.Severity(logLevel)))
}

// fakeProvider records the params it is called with and answers from
// fixtures.
type fakeProvider struct {
	oauth2   bool
	authCode bool
	inline   bool

	authorizeErr error
	identity     *Identity
	authErr      error
	authenticate func(ctx context.Context, params Params) (*Identity, error)
	tokens       map[string]*Identity

	mu              sync.Mutex
	authorizeParams Params
	exchangeParams  Params
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		oauth2:   true,
		authCode: true,
		inline:   true,
		identity: &Identity{Subject: "user-1", Email: "user@example.com"},
		tokens: map[string]*Identity{
			"good": {Subject: "token-user", Email: "token@example.com"},
		},
	}
}

func (f *fakeProvider) OAuth2() bool                        { return f.oauth2 }
func (f *fakeProvider) SupportsAuthorizationCodeFlow() bool { return f.authCode }
func (f *fakeProvider) SupportsInlineTokenValidation() bool { return f.inline }

func (f *fakeProvider) AuthorizeURL(params Params) (string, error) {
	f.mu.Lock()
	f.authorizeParams = Params{}.mergeIn(params)
	f.mu.Unlock()
	if f.authorizeErr != nil {
		return "", f.authorizeErr
	}
	v := url.Values{}
	for k, val := range params {
		if k == ParamScopes {
			v.Set("scope", strings.Join(paramStrings(val), " "))
			continue
		}
		v.Set(k, paramString(val))
	}
	return testAuthorizeURL + "?" + v.Encode(), nil
}

func (f *fakeProvider) Authenticate(ctx context.Context, params Params) (*Identity, error) {
	f.mu.Lock()
	f.exchangeParams = Params{}.mergeIn(params)
	f.mu.Unlock()
	if f.authenticate != nil {
		return f.authenticate(ctx, params)
	}
	return f.identity, f.authErr
}

func (f *fakeProvider) DecodeToken(_ context.Context, token string) (*Identity, error) {
	identity, ok := f.tokens[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return identity, nil
}

func (f *fakeProvider) lastAuthorizeParams() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorizeParams
}

func (f *fakeProvider) lastExchangeParams() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeParams
}

// subjectHandler writes prefix followed by the subject of the request's
// identity.
func subjectHandler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := "nobody"
		if identity := IdentityFromContext(r.Context()); identity != nil {
			subject = identity.Subject
		}
		_, _ = w.Write([]byte(prefix + subject))
	})
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}
