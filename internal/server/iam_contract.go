package server

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/services/iam"
)

// iamAdminService defines the exact IAM methods used by server handlers.
// Tests substitute their own implementation; production passes iam.Service.
type iamAdminService interface {
	// Principals
	CreatePrincipal(ctx context.Context, username, password string) (*models.Principal, error)
	GetPrincipal(ctx context.Context, id string) (*iam.PublicPrincipal, error)
	ListPrincipals(ctx context.Context, filter *auth.Filter) ([]iam.PublicPrincipal, error)
	UpdatePrincipal(ctx context.Context, id string, upd iam.PrincipalUpdate) (*iam.PublicPrincipal, error)
	DeletePrincipal(ctx context.Context, id string) error
	AttachRole(ctx context.Context, principalID, roleID string) (*models.PrincipalRole, bool, error)

	// Roles
	CreateRole(ctx context.Context, name string) (*models.Role, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
	ListRoles(ctx context.Context, filter *auth.Filter) ([]models.Role, error)
	UpdateRole(ctx context.Context, id, name string) (*models.Role, error)
	DeleteRole(ctx context.Context, id string) error
	FindOrCreateRole(ctx context.Context, name string) (*models.Role, error)

	// Tokens
	IssueToken(ctx context.Context, principalID string) (string, time.Time, error)
	RevokeToken(ctx context.Context, token string) error
}

// Compile-time verification that iam.Service satisfies the handler contract.
var _ iamAdminService = (iam.Service)(nil)
