package authcode

import (
	"errors"
	"net/http"
	"strings"

	"darlinggo.co/trout/v2"
	yall "yall.in"
)

// logEndpoint puts a request-scoped logger in the request context.
func logEndpoint(base *yall.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := base.
			WithField("endpoint", r.Header.Get("Trout-Pattern")).
			WithField("method", r.Method).
			WithField("remote_ip", clientIP(r))
		for k, v := range trout.RequestVars(r) {
			log = log.WithField("url."+strings.ToLower(k), v)
		}
		r = r.WithContext(yall.InContext(r.Context(), log))
		log.Debug("serving request")
		h.ServeHTTP(w, r)
		log.Debug("served request")
	})
}

// Protect only lets requests through to next once they are authenticated.
//
// A request is authenticated if its context or its session already carries
// an Identity, or if ParseCredentials accepts it. Requests that need to log
// in are redirected to the authorization server; every other failure goes to
// the handler's FailureFunc.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return logEndpoint(h.log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		session, err := h.loadSession(r)
		if err != nil {
			yall.FromContext(r.Context()).WithError(err).Error("error loading session")
			h.fail(w, r, err)
			return
		}
		if session != nil {
			if identity := session.Identity(); identity != nil {
				h.metrics.credential(outcomeSession)
				next.ServeHTTP(w, r.WithContext(IdentityInContext(r.Context(), identity)))
				return
			}
		}

		authed, err := h.ParseCredentials(r)
		var redirect *RedirectError
		switch {
		case err == nil:
			next.ServeHTTP(w, authed)
		case errors.As(err, &redirect):
			http.Redirect(w, r, redirect.Location, http.StatusFound)
		default:
			h.fail(w, r, err)
		}
	}))
}
