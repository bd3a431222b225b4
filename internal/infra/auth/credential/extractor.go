// Package credential pulls bearer credentials out of inbound requests.
package credential

import (
	"net/http"
	"strings"
)

const (
	apiKeyHeader  = "X-API-Key"
	sessionCookie = "access_token"
)

// FromRequest returns the first bearer credential found, checking the
// Authorization header, then the API-key header, then the session cookie.
// An empty result is not an error; rejecting unauthenticated access to
// protected paths is the access-control stage's job.
func FromRequest(r *http.Request) string {
	if token := fromAuthorizationHeader(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func fromAuthorizationHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
