package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/sessionstore"
	"github.com/terraconstructs/authuser/internal/telemetry"
)

// PrincipalFinder is the storage capability strategies need to resolve
// principals. repository.PrincipalRepository satisfies it.
type PrincipalFinder interface {
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)
}

// TokenFinder resolves bearer tokens by hash. repository.TokenRepository satisfies it.
type TokenFinder interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Token, error)
}

// RoleResolver lists the roles held by a principal.
// repository.PrincipalRoleRepository satisfies it.
type RoleResolver interface {
	ListRolesForPrincipal(ctx context.Context, principalID string) ([]models.Role, error)
}

// AuthnDependencies provides storage access for strategies and guards.
// Principals and Hasher are required. Sessions is required by the session
// selector, Tokens by the token selector, and Roles with Enforcer by
// RequirePermission.
type AuthnDependencies struct {
	Principals PrincipalFinder
	Tokens     TokenFinder
	Roles      RoleResolver
	Sessions   sessionstore.Store
	Hasher     auth.PasswordHasher
	Enforcer   casbin.IEnforcer
	Metrics    *telemetry.ServerMetrics
	Logger     *slog.Logger
}

// PipelineConfig holds the knobs shared by every chain a Builder produces.
type PipelineConfig struct {
	// DefaultChain is used by Build when called without selectors.
	// Empty means DefaultChain().
	DefaultChain []Selector

	// LoginPath is the RedirectIfUnauthenticated target. Default "/login".
	LoginPath string

	// SessionCookieName names the session cookie. Default "authuser.session".
	SessionCookieName string

	// SessionTTL is the lifetime of sessions written after a credential
	// login. Default 12h.
	SessionTTL time.Duration

	// StorageTimeout bounds each storage call a strategy makes. Default 5s.
	StorageTimeout time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if len(c.DefaultChain) == 0 {
		c.DefaultChain = DefaultChain()
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "authuser.session"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 12 * time.Hour
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	return c
}

func (d AuthnDependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
