// Package authcode protects `http.Handler`s with the OAuth2 Authorization
// Code flow.
//
// A protected request is let through when it already carries a principal,
// either because its session was upgraded by an earlier login or because it
// presents a bearer token the provider can validate inline. Every other
// request is answered with a redirect to the authorization server, carrying
// the original request URI as `state`. The authorization server sends the
// user agent back to the callback route, where the `code` is exchanged for an
// identity, the session identifier is regenerated, and the user agent is sent
// back to where it started.
//
// Use this package by creating a `Handler` with `New`, binding its callback
// to a router with `SetupCallback`, and wrapping the routes that need
// authentication with `Protect`:
//
//	provider, err := authcode.DiscoverOAuth2Provider(ctx, issuer, clientID, clientSecret)
//	sessions := authcode.NewMemorySessions(authcode.CookieOptions{Secure: true})
//	h, err := authcode.New(provider, "https://example.com/callback",
//		authcode.WithSessions(sessions))
//	h.AddAuthority("openid")
//
//	router := &trout.Router{}
//	if _, err := h.SetupCallback(router, "/callback"); err != nil {
//		...
//	}
//	router.Endpoint("/dashboard").Handler(h.Protect(dashboard))
//	http.ListenAndServe(":8080", sessions.Handler(router))
//
// Setup calls are expected to happen before the handler serves traffic.
package authcode
