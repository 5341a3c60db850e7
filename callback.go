package authcode

import (
	"errors"
	"fmt"
	"net/url"
)

var ErrInvalidCallbackURL = errors.New("authcode: invalid callback URL")

// CallbackRoute identifies the route the handler bound its callback to. The
// route itself belongs to the router; the handler only reads its path.
type CallbackRoute struct {
	ID   string
	Path string
}

// resolveCallbackURL splits a callback URL into the origin used to build
// absolute redirect_uri values and the path the callback route is served on.
// An empty callbackURL resolves to no host and no path.
func resolveCallbackURL(callbackURL string) (host, path string, err error) {
	if callbackURL == "" {
		return "", "", nil
	}
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("%w %q: %s", ErrInvalidCallbackURL, callbackURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", "", fmt.Errorf("%w %q: scheme and host are required", ErrInvalidCallbackURL, callbackURL)
	}
	// u.Host only carries a port when the URL spelled one out.
	return u.Scheme + "://" + u.Host, u.Path, nil
}
