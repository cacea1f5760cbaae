package http

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// ok is false when the header is absent.
func extractBearerToken(r *http.Request) (token string, ok bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", true
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// tokenMatch performs a constant-time comparison of a provided token against the expected token.
// An empty expected token never matches.
func tokenMatch(provided, expected string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// clientIP returns the remote host of a request, without port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
