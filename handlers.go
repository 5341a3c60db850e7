package authcode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	yall "yall.in"
)

// APIError is the JSON body of a failed request.
type APIError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Code        int    `json:"-"`
}

// StatusError is a request failure that maps to an HTTP status.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authcode: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("authcode: %d %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status a request failure should be reported
// with.
func StatusCode(err error) int {
	var statusErr *StatusError
	var redirectErr *RedirectError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Code
	case errors.As(err, &redirectErr):
		return http.StatusFound
	}
	return http.StatusInternalServerError
}

// apiError turns a request failure into the body returned to the client.
func apiError(err error) APIError {
	code := StatusCode(err)
	apiErr := APIError{Code: code, Description: err.Error()}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		apiErr.Description = statusErr.Message
	}
	switch code {
	case http.StatusBadRequest:
		apiErr.Error = "invalid_request"
	case http.StatusUnauthorized:
		apiErr.Error = "invalid_token"
	default:
		apiErr.Error = "server_error"
	}
	return apiErr
}

// returnFailure is the default FailureFunc.
func (h *Handler) returnFailure(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiError(err)
	if apiErr.Code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	returnError(w, r, apiErr)
}

// returnError writes apiErr as JSON.
func returnError(w http.ResponseWriter, r *http.Request, apiErr APIError) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(apiErr.Code)
	enc := json.NewEncoder(w)
	err := enc.Encode(apiErr)
	if err != nil {
		yall.FromContext(r.Context()).WithError(err).Error("Error writing response")
	}
}

// callbackEndpoint serves the callback bound as route id. It answers 404 once
// the callback has been rebound.
func (h *Handler) callbackEndpoint(id string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := h.settings.Load()
		if s.callback == nil || s.callback.ID != id {
			http.NotFound(w, r)
			return
		}
		h.handleCallback(w, r, s)
	})
}

// handleCallback exchanges the code the authorization server sent back for an
// identity, then completes the login.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request, s *settings) {
	log := h.requestLog(r)
	query := r.URL.Query()

	// an empty code is still a code; the provider decides what it is worth
	if !query.Has(ParamCode) {
		h.metrics.callback(resultMissingCode)
		log.Debug("callback without code")
		h.fail(w, r, &StatusError{Code: http.StatusBadRequest, Message: "missing code parameter"})
		return
	}
	// state only tells us where to send the user agent afterwards, it is
	// not part of the exchange
	state := query.Get(ParamState)

	params := Params{
		ParamCode: query.Get(ParamCode),
	}
	if h.host != "" {
		params[ParamRedirectURI] = h.host + s.callback.Path
	}
	if s.extraParams != nil {
		params.mergeIn(s.extraParams)
	}

	identity, err := h.provider.Authenticate(r.Context(), params)
	if ctxErr := r.Context().Err(); ctxErr != nil {
		h.metrics.callback(resultDiscarded)
		log.WithError(ctxErr).Debug("request ended before the code exchange returned, discarding result")
		return
	}
	if err != nil {
		h.metrics.callback(resultExchangeFailed)
		log.WithError(err).Debug("error exchanging code")
		h.fail(w, r, err)
		return
	}
	r = r.WithContext(IdentityInContext(r.Context(), identity))

	session, err := h.loadSession(r)
	if err != nil {
		log.WithError(err).Error("error loading session")
		h.fail(w, r, err)
		return
	}
	h.completeUpgrade(w, r, s, session, state)
}

// completeUpgrade sends the now authenticated user agent to state, or to / if
// there is no state.
//
// With a session, the session identifier is regenerated so an identifier
// obtained before login is useless afterwards, and the user agent is
// redirected so the one-time callback URL leaves its address bar. Without a
// session the request is rerouted internally.
func (h *Handler) completeUpgrade(w http.ResponseWriter, r *http.Request, s *settings, session Session, state string) {
	log := h.requestLog(r)
	dest := state
	if dest == "" {
		dest = "/"
	}

	if session == nil {
		h.metrics.callback(resultRerouted)
		log.WithField("destination", dest).Debug("no session, rerouting")
		h.reroute(w, r, s, dest)
		return
	}

	previous := session.ID()
	if err := session.Regenerate(r.Context(), w); err != nil {
		log.WithError(err).Error("error regenerating session ID")
		h.fail(w, r, err)
		return
	}
	if err := session.SetIdentity(r.Context(), IdentityFromContext(r.Context())); err != nil {
		log.WithError(err).Error("error storing identity in session")
		h.fail(w, r, err)
		return
	}
	log.WithField("previous_session", previous).WithField("destination", dest).Debug("session upgraded")

	h.metrics.callback(resultRedirected)
	header := w.Header()
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	header.Set("Location", dest)
	header.Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusFound)
	if _, err := io.WriteString(w, "Redirecting to "+dest+"."); err != nil {
		log.WithError(err).Error("Error writing response")
	}
}

// reroute serves dest through the router the callback is bound to, as if the
// client had requested it.
func (h *Handler) reroute(w http.ResponseWriter, r *http.Request, s *settings, dest string) {
	u, err := url.Parse(dest)
	if err != nil {
		h.fail(w, r, &StatusError{Code: http.StatusBadRequest, Message: "invalid state", Err: err})
		return
	}
	target := &url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
	if target.Path == "" {
		target.Path = "/"
	}
	rr := r.Clone(r.Context())
	rr.URL = target
	rr.RequestURI = target.RequestURI()
	s.router.ServeHTTP(w, rr)
}
