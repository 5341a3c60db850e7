package authcode

import (
	"context"
	"errors"
	"net/http"
	"strings"

	yall "yall.in"
)

var ErrCallbackNotConfigured = errors.New("authcode: callback route is not configured")

// RedirectError is returned by ParseCredentials when the request has to be
// sent to the authorization server.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return "authcode: redirect to " + e.Location
}

type inlineOutcome int

const (
	inlineNotAttempted inlineOutcome = iota
	inlineAuthenticated
	inlineRejected
)

// ParseCredentials resolves the credentials of a request to a protected
// route.
//
// On success the returned request carries the authenticated Identity in its
// context. Otherwise the error is ErrCallbackNotConfigured when no callback
// is bound, a *StatusError when an inline bearer token was presented and
// rejected, a *RedirectError pointing at the authorization server, or the
// provider's error when the authorization URL could not be built.
//
// A rejected bearer token is never turned into a redirect; only requests
// without one are.
func (h *Handler) ParseCredentials(r *http.Request) (*http.Request, error) {
	s := h.settings.Load()
	log := h.requestLog(r)

	if s.callback == nil {
		h.metrics.credential(outcomeMisconfigured)
		log.Error("callback route is not configured")
		return nil, ErrCallbackNotConfigured
	}

	if h.supportsInlineToken {
		outcome, identity, err := h.inlineToken(r.Context(), r)
		switch outcome {
		case inlineAuthenticated:
			h.metrics.credential(outcomeInline)
			return r.WithContext(IdentityInContext(r.Context(), identity)), nil
		case inlineRejected:
			h.metrics.credential(outcomeRejected)
			log.WithError(err).Debug("rejected inline token")
			return nil, err
		}
	}

	uri, err := h.authorizeURL(s, requestURI(r))
	if err != nil {
		h.metrics.credential(outcomeFailed)
		log.WithError(err).Error("error building authorization URL")
		return nil, err
	}
	h.metrics.credential(outcomeRedirect)
	return nil, &RedirectError{Location: uri}
}

// authorizeURL builds the URL that starts the authorization code flow.
// s.callback must be set.
func (h *Handler) authorizeURL(s *settings, originalURI string) (string, error) {
	params := Params{
		ParamState: originalURI,
	}
	if h.host != "" {
		params[ParamRedirectURI] = h.host + s.callback.Path
	}
	if s.extraParams != nil {
		params.mergeIn(s.extraParams)
	}
	if len(s.scopes) > 0 {
		// the provider knows how scopes go on the wire, so hand it the list
		params[ParamScopes] = append([]string(nil), s.scopes...)
	}
	return h.provider.AuthorizeURL(params)
}

// inlineToken validates the bearer token of r, if there is one.
func (h *Handler) inlineToken(ctx context.Context, r *http.Request) (inlineOutcome, *Identity, error) {
	token, present, err := bearerToken(r)
	if err != nil {
		return inlineRejected, nil, err
	}
	if !present {
		return inlineNotAttempted, nil, nil
	}
	identity, err := h.provider.DecodeToken(ctx, token)
	if err != nil {
		return inlineRejected, nil, &StatusError{Code: http.StatusUnauthorized, Message: err.Error(), Err: err}
	}
	return inlineAuthenticated, identity, nil
}

// bearerToken reads an `Authorization: Bearer <token>` header. present is
// false when the request has no Authorization header at all.
func bearerToken(r *http.Request) (token string, present bool, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false, nil
	}
	scheme, credentials, ok := strings.Cut(header, " ")
	if !ok || scheme == "" {
		return "", true, &StatusError{Code: http.StatusBadRequest, Message: "malformed Authorization header"}
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", true, &StatusError{Code: http.StatusUnauthorized, Message: "unsupported authorization scheme " + scheme}
	}
	token = strings.TrimSpace(credentials)
	if token == "" {
		return "", true, &StatusError{Code: http.StatusUnauthorized, Message: "empty bearer token"}
	}
	return token, true, nil
}

// requestURI is the path and query the client asked for.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func (h *Handler) requestLog(r *http.Request) *yall.Logger {
	if log := yall.FromContext(r.Context()); log != nil {
		return log
	}
	return h.log
}
