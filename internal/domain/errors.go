package domain

import "errors"

var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrBusinessContextMissing = errors.New("business context required")
	ErrBusinessAccessDenied   = errors.New("business access denied")
	ErrInsufficientPermission = errors.New("insufficient permissions")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenMalformed         = errors.New("token malformed")
	ErrMembershipNotFound     = errors.New("membership not found")
)
