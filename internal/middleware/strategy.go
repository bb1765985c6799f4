package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/repository"
	"github.com/terraconstructs/authuser/internal/sessionstore"
	"github.com/terraconstructs/authuser/internal/telemetry"
)

// Strategy attempts to identify the caller of a request.
//
// Return values:
//   - (principal, nil): credentials identified a principal
//   - (nil, nil): this strategy's credentials are absent, try the next one
//   - (nil, error): credentials were present but rejected, or storage failed
//
// A strategy never writes a response. Rejecting anonymous callers is the
// job of guards.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, r *http.Request) (*auth.AuthenticatedPrincipal, error)
}

// strategyInterceptor adapts a Strategy to the Interceptor contract: it is
// a no-op when a principal is already attached, so the first match wins.
type strategyInterceptor struct {
	strategy Strategy
	deps     AuthnDependencies
	timeout  time.Duration
}

func (s *strategyInterceptor) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if _, ok := auth.GetUserFromContext(r.Context()); ok {
		next.ServeHTTP(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	principal, err := s.strategy.Authenticate(ctx, r)
	cancel()

	name := s.strategy.Name()
	switch {
	case err != nil && (errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrCredentialsExpired)):
		s.deps.Metrics.RecordAuthAttempt(name, telemetry.OutcomeFailure)
		s.deps.logger().Debug("authentication rejected",
			"strategy", name, "method", r.Method, "path", r.URL.Path, "error", err)
	case err != nil:
		s.deps.Metrics.RecordAuthAttempt(name, telemetry.OutcomeError)
		s.deps.logger().Error("authentication lookup failed",
			"strategy", name, "method", r.Method, "path", r.URL.Path, "error", err)
	case principal == nil:
		s.deps.Metrics.RecordAuthAttempt(name, telemetry.OutcomeSkipped)
	default:
		s.deps.Metrics.RecordAuthAttempt(name, telemetry.OutcomeSuccess)
		r = r.WithContext(auth.SetUserContext(r.Context(), *principal))
	}

	next.ServeHTTP(w, r)
}

// BasicStrategy checks an Authorization: Basic username/password pair
// against the credential store on every request.
type BasicStrategy struct {
	Principals PrincipalFinder
	Hasher     auth.PasswordHasher
}

func (s *BasicStrategy) Name() string { return string(SelectBasic) }

func (s *BasicStrategy) Authenticate(ctx context.Context, r *http.Request) (*auth.AuthenticatedPrincipal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	principal, err := s.Principals.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("unknown user %q: %w", username, ErrInvalidCredentials)
		}
		return nil, err
	}

	if !s.Hasher.Verify(principal.PasswordHash, password) {
		return nil, fmt.Errorf("password mismatch for %q: %w", username, ErrInvalidCredentials)
	}

	return &auth.AuthenticatedPrincipal{
		ID:       principal.ID,
		Username: principal.Username,
		Method:   auth.MethodBasic,
	}, nil
}

// SessionStrategy restores the principal cached in a session cookie.
type SessionStrategy struct {
	Principals PrincipalFinder
	Sessions   sessionstore.Store
	CookieName string
}

func (s *SessionStrategy) Name() string { return string(SelectSession) }

func (s *SessionStrategy) Authenticate(ctx context.Context, r *http.Request) (*auth.AuthenticatedPrincipal, error) {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	sess, err := s.Sessions.Lookup(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionNotFound) {
			return nil, fmt.Errorf("stale session cookie: %w", ErrInvalidCredentials)
		}
		return nil, err
	}

	principal, err := s.Principals.GetByID(ctx, sess.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("session principal %s gone: %w", sess.PrincipalID, ErrInvalidCredentials)
		}
		return nil, err
	}

	return &auth.AuthenticatedPrincipal{
		ID:           principal.ID,
		Username:     principal.Username,
		Method:       auth.MethodSession,
		SessionToken: cookie.Value,
	}, nil
}

// TokenStrategy resolves an Authorization: Bearer token issued at login.
type TokenStrategy struct {
	Principals PrincipalFinder
	Tokens     TokenFinder
}

func (s *TokenStrategy) Name() string { return string(SelectToken) }

func (s *TokenStrategy) Authenticate(ctx context.Context, r *http.Request) (*auth.AuthenticatedPrincipal, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, nil
	}

	record, err := s.Tokens.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("unknown bearer token: %w", ErrInvalidCredentials)
		}
		return nil, err
	}
	if auth.IsExpired(record.ExpiresAt) {
		return nil, ErrCredentialsExpired
	}

	principal, err := s.Principals.GetByID(ctx, record.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("token principal %s gone: %w", record.PrincipalID, ErrInvalidCredentials)
		}
		return nil, err
	}

	return &auth.AuthenticatedPrincipal{
		ID:       principal.ID,
		Username: principal.Username,
		Method:   auth.MethodToken,
	}, nil
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// sessionCommit persists the principal into a new session when it was
// identified by a non-session strategy. It runs after the last strategy and
// before any guard or handler, so the cookie is set before the response is
// written. A failed write rejects the request.
type sessionCommit struct {
	deps    AuthnDependencies
	cfg     PipelineConfig
	timeout time.Duration
}

func (s *sessionCommit) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	principal, ok := auth.GetUserFromContext(r.Context())
	if !ok || principal.Method == auth.MethodSession {
		next.ServeHTTP(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	sess, err := s.deps.Sessions.Create(ctx, principal.ID, s.cfg.SessionTTL)
	cancel()
	if err != nil {
		s.deps.Metrics.RecordSessionWrite(telemetry.OutcomeError)
		s.deps.logger().Error("session write failed",
			"principal_id", principal.ID, "path", r.URL.Path, "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	s.deps.Metrics.RecordSessionWrite(telemetry.OutcomeSuccess)

	http.SetCookie(w, auth.SessionCookie(r, s.cfg.SessionCookieName, sess.Token, sess.ExpiresAt))

	principal.SessionToken = sess.Token
	next.ServeHTTP(w, r.WithContext(auth.SetUserContext(r.Context(), principal)))
}
