package authcode

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"darlinggo.co/trout/v2"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/prometheus/client_golang/prometheus"
	yall "yall.in"
	"yall.in/colour"
)

var ErrNoCallbackPath = errors.New("authcode: callback path is required")

// Router is the part of the routing layer the callback is bound to.
// *trout.Router satisfies it.
type Router interface {
	http.Handler
	Endpoint(path string) *trout.Endpoint
}

// FailureFunc reports a failed request to the client.
type FailureFunc func(w http.ResponseWriter, r *http.Request, err error)

// Handler protects routes with the OAuth2 Authorization Code flow.
//
// The scopes, extra params and callback route are changed with the setup
// methods, which are meant to be called before the Handler serves traffic.
// Each setup call publishes a new snapshot, so a request never observes a
// half-applied change.
type Handler struct {
	provider            Provider
	host                string
	callbackPath        string
	supportsInlineToken bool

	log      *yall.Logger
	sessions SessionStore
	fail     FailureFunc
	metrics  *metrics

	mu       sync.Mutex // serialises setup calls
	settings atomic.Pointer[settings]
}

// settings is the part of the configuration that can change after New. A
// published settings value is never modified.
type settings struct {
	scopes      []string
	extraParams Params
	callback    *CallbackRoute
	router      Router
}

func (s *settings) clone() *settings {
	next := &settings{
		scopes:   append([]string(nil), s.scopes...),
		callback: s.callback,
		router:   s.router,
	}
	if s.extraParams != nil {
		next.extraParams = Params{}.mergeIn(s.extraParams)
	}
	return next
}

type options struct {
	log        *yall.Logger
	sessions   SessionStore
	fail       FailureFunc
	registerer prometheus.Registerer
}

// Option configures a Handler.
type Option func(*options)

// WithLogger sets the logger used when a request does not carry one.
func WithLogger(log *yall.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithSessions enables session upgrades on successful callbacks. Without a
// SessionStore the callback reroutes internally instead of redirecting.
func WithSessions(store SessionStore) Option {
	return func(o *options) {
		o.sessions = store
	}
}

// WithFailureHandler replaces the default JSON error responses.
func WithFailureHandler(fail FailureFunc) Option {
	return func(o *options) {
		o.fail = fail
	}
}

// WithRegisterer registers the handler's counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New returns a Handler for provider. callbackURL is the absolute URL the
// authorization server redirects back to; when empty, no redirect_uri is sent
// and the provider's default applies.
//
// New fails if provider is an OAuth2 provider not configured for the
// authorization code flow, or if callbackURL cannot be parsed.
func New(provider Provider, callbackURL string, opts ...Option) (*Handler, error) {
	provider, err := verifyProvider(provider)
	if err != nil {
		return nil, err
	}
	host, callbackPath, err := resolveCallbackURL(callbackURL)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = yall.New(colour.New(os.Stderr, yall.Info))
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	h := &Handler{
		provider:            provider,
		host:                host,
		callbackPath:        callbackPath,
		supportsInlineToken: provider.SupportsInlineTokenValidation(),
		log:                 o.log,
		sessions:            o.sessions,
		fail:                o.fail,
		metrics:             m,
	}
	if h.fail == nil {
		h.fail = h.returnFailure
	}
	h.settings.Store(&settings{})
	return h, nil
}

func (h *Handler) update(fn func(next *settings)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.settings.Load().clone()
	fn(next)
	h.settings.Store(next)
}

// AddAuthority adds a scope to request from the authorization server.
func (h *Handler) AddAuthority(authority string) *Handler {
	return h.AddAuthorities(authority)
}

// AddAuthorities adds scopes to request from the authorization server.
// Scopes already present are ignored.
func (h *Handler) AddAuthorities(authorities ...string) *Handler {
	h.update(func(next *settings) {
		for _, authority := range authorities {
			if !containsString(next.scopes, authority) {
				next.scopes = append(next.scopes, authority)
			}
		}
	})
	return h
}

// ExtraParams replaces the params merged into every authorization URL and
// code exchange. Extra params win over the ones the handler computes.
func (h *Handler) ExtraParams(extra Params) *Handler {
	h.update(func(next *settings) {
		next.extraParams = nil
		if extra != nil {
			next.extraParams = Params{}.mergeIn(extra)
		}
	})
	return h
}

// SetupCallback binds the callback endpoint on router and returns a handle to
// it. If the handler was created with a callback URL, its path replaces path.
// The endpoint only answers GET.
//
// Calling SetupCallback again rebinds the callback; the last binding wins and
// endpoints from earlier bindings answer 404, even on the same path or on
// another router.
func (h *Handler) SetupCallback(router Router, path string) (CallbackRoute, error) {
	if h.callbackPath != "" {
		path = h.callbackPath
	}
	if path == "" {
		return CallbackRoute{}, ErrNoCallbackPath
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return CallbackRoute{}, fmt.Errorf("generating callback route ID: %w", err)
	}
	route := CallbackRoute{ID: id, Path: path}

	router.Endpoint(path).Methods(http.MethodGet).Handler(
		logEndpoint(h.log, h.callbackEndpoint(id)))

	h.update(func(next *settings) {
		if next.callback != nil {
			h.log.WithField("previous_path", next.callback.Path).
				WithField("callback_path", path).
				Info("rebinding callback route")
		}
		next.callback = &route
		next.router = router
	})
	return route, nil
}

// Callback returns the currently bound callback route, if any.
func (h *Handler) Callback() (CallbackRoute, bool) {
	s := h.settings.Load()
	if s.callback == nil {
		return CallbackRoute{}, false
	}
	return *s.callback, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
