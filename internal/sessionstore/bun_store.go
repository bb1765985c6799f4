package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/repository"
)

// BunStore persists sessions through a SessionRepository.
type BunStore struct {
	sessions repository.SessionRepository
}

// NewBunStore creates a store backed by the sessions table.
func NewBunStore(sessions repository.SessionRepository) *BunStore {
	return &BunStore{sessions: sessions}
}

// Create inserts a new session row.
func (s *BunStore) Create(ctx context.Context, principalID string, ttl time.Duration) (Session, error) {
	token, hash, err := auth.GenerateToken()
	if err != nil {
		return Session{}, err
	}

	row := &models.Session{
		PrincipalID: principalID,
		TokenHash:   hash,
		ExpiresAt:   time.Now().Add(ttl),
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	return Session{Token: token, PrincipalID: principalID, ExpiresAt: row.ExpiresAt}, nil
}

// Lookup resolves a token to its session.
func (s *BunStore) Lookup(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}

	row, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if auth.IsExpired(row.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}

	return Session{PrincipalID: row.PrincipalID, ExpiresAt: row.ExpiresAt}, nil
}

// Delete removes the session row for token.
func (s *BunStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep deletes expired session rows.
func (s *BunStore) Sweep(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, time.Now())
}
