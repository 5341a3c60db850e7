package authcode

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// privatePrefixes are skipped when walking X-Forwarded-For, they belong to
// our own proxies.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
}

func isPrivate(addr string) bool {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	for _, prefix := range privatePrefixes {
		if prefix.Contains(a.Unmap()) {
			return true
		}
	}
	return false
}

// clientIP is a best guess at the address a request came from. It is only
// used for logging and session bookkeeping, never for access decisions.
func clientIP(r *http.Request) string {
	for _, addr := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" || isPrivate(addr) {
			continue
		}
		return addr
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
