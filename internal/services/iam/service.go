package iam

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
)

// Service provides principal, role and token operations.
//
// Lookups of missing records return errors wrapping repository.ErrNotFound.
// Duplicate usernames and role names return errors wrapping both
// ErrValidation and repository.ErrConflict.
type Service interface {
	// =========================================================================
	// Principals
	// =========================================================================

	// CreatePrincipal hashes password and persists a new principal. The
	// stored hash never equals the submitted plaintext.
	CreatePrincipal(ctx context.Context, username, password string) (*models.Principal, error)

	// GetPrincipal returns the public projection of one principal.
	GetPrincipal(ctx context.Context, id string) (*PublicPrincipal, error)

	// ListPrincipals returns every principal matching filter. A nil filter
	// matches all.
	ListPrincipals(ctx context.Context, filter *auth.Filter) ([]PublicPrincipal, error)

	// UpdatePrincipal applies the non-nil fields of upd. A new password is
	// re-hashed.
	UpdatePrincipal(ctx context.Context, id string, upd PrincipalUpdate) (*PublicPrincipal, error)

	// DeletePrincipal removes a principal together with its role links,
	// tokens and sessions.
	DeletePrincipal(ctx context.Context, id string) error

	// AttachRole links a principal to a role. Attaching an existing pair
	// returns the existing link with created=false.
	AttachRole(ctx context.Context, principalID, roleID string) (link *models.PrincipalRole, created bool, err error)

	// =========================================================================
	// Roles
	// =========================================================================

	CreateRole(ctx context.Context, name string) (*models.Role, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
	ListRoles(ctx context.Context, filter *auth.Filter) ([]models.Role, error)
	UpdateRole(ctx context.Context, id, name string) (*models.Role, error)
	DeleteRole(ctx context.Context, id string) error

	// FindOrCreateRole returns the role named name, creating it when absent.
	// Concurrent calls for the same name all observe the same role and
	// leave exactly one row behind.
	FindOrCreateRole(ctx context.Context, name string) (*models.Role, error)

	// =========================================================================
	// Tokens
	// =========================================================================

	// IssueToken creates a bearer token for principalID. The plaintext is
	// returned once; only its hash is stored.
	IssueToken(ctx context.Context, principalID string) (token string, expiresAt time.Time, err error)

	// RevokeToken deletes a bearer token. Unknown tokens are not an error.
	RevokeToken(ctx context.Context, token string) error

	// SweepExpired deletes expired tokens and sessions.
	SweepExpired(ctx context.Context) (tokens, sessions int64, err error)
}
