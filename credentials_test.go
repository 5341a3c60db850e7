package authcode

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"darlinggo.co/trout/v2"
	"github.com/google/go-cmp/cmp"
)

func TestParseCredentialsRedirects(t *testing.T) {
	t.Parallel()

	type testCase struct {
		callbackURL    string
		scopes         []string
		extra          Params
		requestPath    string
		expectedParams Params
	}

	tests := map[string]testCase{
		"scopes-and-extra-params": {
			callbackURL: testCallbackURL,
			scopes:      []string{"a", "b"},
			extra:       Params{"prompt": "consent"},
			requestPath: "/dashboard?tab=1",
			expectedParams: Params{
				ParamState:       "/dashboard?tab=1",
				ParamRedirectURI: "https://app.example.com/callback",
				ParamScopes:      []string{"a", "b"},
				"prompt":         "consent",
			},
		},
		"no-callback-url": {
			requestPath: "/dashboard",
			expectedParams: Params{
				ParamState: "/dashboard",
			},
		},
		"extra-params-override": {
			callbackURL: testCallbackURL,
			extra:       Params{ParamRedirectURI: "https://other.example.com/cb"},
			requestPath: "/",
			expectedParams: Params{
				ParamState:       "/",
				ParamRedirectURI: "https://other.example.com/cb",
			},
		},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			provider := newFakeProvider()
			h, err := New(provider, tc.callbackURL, WithLogger(testLog(t)))
			if err != nil {
				t.Fatalf("Unexpected error creating handler: %v", err)
			}
			h.AddAuthorities(tc.scopes...)
			h.ExtraParams(tc.extra)
			if _, err := h.SetupCallback(&trout.Router{}, "/callback"); err != nil {
				t.Fatalf("Unexpected error setting up callback: %v", err)
			}

			req := httptest.NewRequest(http.MethodGet, tc.requestPath, nil)
			authed, err := h.ParseCredentials(req)
			if authed != nil {
				t.Errorf("Expected no authenticated request, got one")
			}
			var redirect *RedirectError
			if !errors.As(err, &redirect) {
				t.Fatalf("Expected a RedirectError, got %v", err)
			}
			if StatusCode(err) != http.StatusFound {
				t.Errorf("Expected status %d, got %d", http.StatusFound, StatusCode(err))
			}
			if diff := cmp.Diff(tc.expectedParams, provider.lastAuthorizeParams()); diff != "" {
				t.Errorf("Unexpected authorization params (-want +got):\n%s", diff)
			}

			u, err := url.Parse(redirect.Location)
			if err != nil {
				t.Fatalf("Error parsing redirect location %q: %v", redirect.Location, err)
			}
			if got := u.Query().Get(ParamState); got != tc.requestPath {
				t.Errorf("Expected state %q, got %q", tc.requestPath, got)
			}
		})
	}
}

func TestParseCredentialsCallbackNotConfigured(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no-header":     "",
		"valid-token":   "Bearer good",
		"invalid-token": "Bearer nope",
		"malformed":     "garbage",
	}

	for name, header := range tests {
		name, header := name, header
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			provider := newFakeProvider()
			h, err := New(provider, testCallbackURL, WithLogger(testLog(t)))
			if err != nil {
				t.Fatalf("Unexpected error creating handler: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			_, err = h.ParseCredentials(req)
			if !errors.Is(err, ErrCallbackNotConfigured) {
				t.Fatalf("Expected %v, got %v", ErrCallbackNotConfigured, err)
			}
			if StatusCode(err) != http.StatusInternalServerError {
				t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, StatusCode(err))
			}
			if params := provider.lastAuthorizeParams(); params != nil {
				t.Errorf("Expected provider not to be asked for an authorization URL, got %v", params)
			}
		})
	}
}

func TestParseCredentialsBearer(t *testing.T) {
	t.Parallel()

	type testCase struct {
		header          string
		inlineDisabled  bool
		expectedSubject string
		expectedStatus  int
	}

	tests := map[string]testCase{
		"valid": {
			header:          "Bearer good",
			expectedSubject: "token-user",
		},
		"lowercase-scheme": {
			header:          "bearer good",
			expectedSubject: "token-user",
		},
		"invalid": {
			header:         "Bearer nope",
			expectedStatus: http.StatusUnauthorized,
		},
		"malformed": {
			header:         "Bearer",
			expectedStatus: http.StatusBadRequest,
		},
		"wrong-scheme": {
			header:         "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		"empty-token": {
			header:         "Bearer   ",
			expectedStatus: http.StatusUnauthorized,
		},
		"no-header": {
			expectedStatus: http.StatusFound,
		},
		"inline-unsupported": {
			header:         "Bearer nope",
			inlineDisabled: true,
			expectedStatus: http.StatusFound,
		},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			provider := newFakeProvider()
			provider.inline = !tc.inlineDisabled
			h, err := New(provider, testCallbackURL, WithLogger(testLog(t)))
			if err != nil {
				t.Fatalf("Unexpected error creating handler: %v", err)
			}
			if _, err := h.SetupCallback(&trout.Router{}, ""); err != nil {
				t.Fatalf("Unexpected error setting up callback: %v", err)
			}

			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			authed, err := h.ParseCredentials(req)
			if tc.expectedSubject != "" {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				identity := IdentityFromContext(authed.Context())
				if identity == nil || identity.Subject != tc.expectedSubject {
					t.Fatalf("Expected identity with subject %q, got %+v", tc.expectedSubject, identity)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if got := StatusCode(err); got != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d (%v)", tc.expectedStatus, got, err)
			}
			var redirect *RedirectError
			if isRedirect := errors.As(err, &redirect); isRedirect != (tc.expectedStatus == http.StatusFound) {
				t.Errorf("Expected redirect to be %v, got %v", tc.expectedStatus == http.StatusFound, err)
			}
		})
	}
}

func TestParseCredentialsAuthorizeURLError(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.authorizeErr = errors.New("no authorization endpoint")
	h, err := New(provider, testCallbackURL, WithLogger(testLog(t)))
	if err != nil {
		t.Fatalf("Unexpected error creating handler: %v", err)
	}
	if _, err := h.SetupCallback(&trout.Router{}, ""); err != nil {
		t.Fatalf("Unexpected error setting up callback: %v", err)
	}

	_, err = h.ParseCredentials(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, provider.authorizeErr) {
		t.Fatalf("Expected %v, got %v", provider.authorizeErr, err)
	}
	var redirect *RedirectError
	if errors.As(err, &redirect) {
		t.Errorf("Expected no redirect, got %v", redirect)
	}
}
