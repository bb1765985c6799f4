package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/repository"
	"github.com/terraconstructs/authuser/internal/sessionstore"
)

// mockPrincipals is an in-memory PrincipalFinder
type mockPrincipals struct {
	byID map[string]*models.Principal
	err  error
}

func newMockPrincipals() *mockPrincipals {
	return &mockPrincipals{byID: make(map[string]*models.Principal)}
}

func (m *mockPrincipals) add(id, username, hash string) *models.Principal {
	p := &models.Principal{ID: id, Username: username, PasswordHash: hash}
	m.byID[id] = p
	return p
}

func (m *mockPrincipals) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockPrincipals) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.byID {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

// mockTokens is an in-memory TokenFinder keyed by token hash
type mockTokens struct {
	byHash map[string]*models.Token
}

func newMockTokens() *mockTokens {
	return &mockTokens{byHash: make(map[string]*models.Token)}
}

func (m *mockTokens) issue(principalID string, ttl time.Duration) string {
	token, hash, err := auth.GenerateToken()
	if err != nil {
		panic(err)
	}
	m.byHash[hash] = &models.Token{PrincipalID: principalID, TokenHash: hash, ExpiresAt: time.Now().Add(ttl)}
	return token
}

func (m *mockTokens) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Token, error) {
	if t, ok := m.byHash[tokenHash]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

// mockRoles maps principal IDs to role names
type mockRoles struct {
	roles map[string][]string
	err   error
}

func (m *mockRoles) ListRolesForPrincipal(ctx context.Context, principalID string) ([]models.Role, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Role
	for _, name := range m.roles[principalID] {
		out = append(out, models.Role{Name: name})
	}
	return out, nil
}

// memorySessions is a sessionstore.Store that can be told to fail writes
type memorySessions struct {
	mu        sync.Mutex
	sessions  map[string]sessionstore.Session
	failWrite bool
	creates   int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]sessionstore.Session)}
}

func (m *memorySessions) Create(ctx context.Context, principalID string, ttl time.Duration) (sessionstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return sessionstore.Session{}, errors.New("session backend unavailable")
	}
	token, hash, err := auth.GenerateToken()
	if err != nil {
		return sessionstore.Session{}, err
	}
	sess := sessionstore.Session{Token: token, PrincipalID: principalID, ExpiresAt: time.Now().Add(ttl)}
	m.sessions[hash] = sess
	m.creates++
	return sess, nil
}

func (m *memorySessions) Lookup(ctx context.Context, token string) (sessionstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[auth.HashToken(token)]
	if !ok || auth.IsExpired(sess.ExpiresAt) {
		return sessionstore.Session{}, sessionstore.ErrSessionNotFound
	}
	return sess, nil
}

func (m *memorySessions) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, auth.HashToken(token))
	return nil
}

func (m *memorySessions) Sweep(ctx context.Context) (int64, error) {
	return 0, nil
}
