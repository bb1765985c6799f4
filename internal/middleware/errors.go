package middleware

import "errors"

var (
	// ErrInvalidCredentials is returned by a Strategy whose credentials were
	// present but did not identify a principal.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCredentialsExpired is returned for an expired bearer token.
	ErrCredentialsExpired = errors.New("credentials expired")
)
