package repository

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/db/models"
)

// PrincipalRepository exposes persistence operations for principals.
type PrincipalRepository interface {
	Create(ctx context.Context, principal *models.Principal) error
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)
	Update(ctx context.Context, principal *models.Principal) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Principal, error)
}

// RoleRepository exposes persistence operations for roles.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	Update(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Role, error)
}

// PrincipalRoleRepository manages the principal/role pivot.
type PrincipalRoleRepository interface {
	// Create returns ErrConflict when the pair is already linked.
	Create(ctx context.Context, link *models.PrincipalRole) error
	Get(ctx context.Context, principalID, roleID string) (*models.PrincipalRole, error)
	ListRolesForPrincipal(ctx context.Context, principalID string) ([]models.Role, error)
	ListPrincipalIDsForRole(ctx context.Context, roleID string) ([]string, error)
}

// TokenRepository exposes persistence operations for bearer tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Token, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionRepository exposes persistence operations for cookie sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
