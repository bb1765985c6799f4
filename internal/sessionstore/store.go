// Package sessionstore keeps the server side of cookie sessions. A session
// maps an opaque token, held by the client in a cookie, to a principal ID.
// Only the SHA256 hash of the token is ever used as a storage key.
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Lookup for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found")

// Session is a live session. Token is only populated by Create.
type Session struct {
	Token       string
	PrincipalID string
	ExpiresAt   time.Time
}

// Store is implemented by BunStore and RedisStore.
type Store interface {
	// Create starts a session for principalID lasting ttl.
	Create(ctx context.Context, principalID string, ttl time.Duration) (Session, error)
	// Lookup resolves a raw token. Expired sessions yield ErrSessionNotFound.
	Lookup(ctx context.Context, token string) (Session, error)
	// Delete ends a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
	// Sweep removes expired sessions and reports how many were removed.
	Sweep(ctx context.Context) (int64, error)
}
