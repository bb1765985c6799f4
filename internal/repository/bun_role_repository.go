package repository

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/db/bunx"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/uptrace/bun"
)

// ========================================
// Role Repository
// ========================================

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db *bun.DB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db *bun.DB) *BunRoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role. A taken name yields ErrConflict.
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("create role", err)
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *BunRoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get role", id, err)
	}
	return role, nil
}

// GetByName retrieves a role by name
func (r *BunRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get role by name", name, err)
	}
	return role, nil
}

// Update renames an existing role
func (r *BunRoleRepository) Update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(role).
		Column("name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return wrapWriteError("update role", err)
	}
	return expectRows("update role", role.ID, result)
}

// Delete deletes a role by ID. Principal links cascade.
func (r *BunRoleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("delete role", err)
	}
	return expectRows("delete role", id, result)
}

// List retrieves all roles
func (r *BunRoleRepository) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("list roles", "", err)
	}
	return roles, nil
}

// ========================================
// PrincipalRole Repository
// ========================================

// BunPrincipalRoleRepository implements PrincipalRoleRepository using Bun ORM
type BunPrincipalRoleRepository struct {
	db *bun.DB
}

// NewBunPrincipalRoleRepository creates a new Bun-based pivot repository
func NewBunPrincipalRoleRepository(db *bun.DB) *BunPrincipalRoleRepository {
	return &BunPrincipalRoleRepository{db: db}
}

// Create links a principal to a role
func (r *BunPrincipalRoleRepository) Create(ctx context.Context, link *models.PrincipalRole) error {
	if link.ID == "" {
		link.ID = bunx.NewUUIDv7()
	}
	link.AssignedAt = time.Now().UTC()

	_, err := r.db.NewInsert().
		Model(link).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("create principal role", err)
	}
	return nil
}

// Get returns the link between a principal and a role
func (r *BunPrincipalRoleRepository) Get(ctx context.Context, principalID, roleID string) (*models.PrincipalRole, error) {
	link := new(models.PrincipalRole)
	err := r.db.NewSelect().
		Model(link).
		Where("principal_id = ?", principalID).
		Where("role_id = ?", roleID).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get principal role", principalID+"/"+roleID, err)
	}
	return link, nil
}

// ListRolesForPrincipal returns the roles linked to a principal ordered by name
func (r *BunPrincipalRoleRepository) ListRolesForPrincipal(ctx context.Context, principalID string) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Join("JOIN principal_roles AS pr ON pr.role_id = r.id").
		Where("pr.principal_id = ?", principalID).
		Order("r.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("list principal roles", principalID, err)
	}
	return roles, nil
}

// ListPrincipalIDsForRole returns the IDs of principals holding a role
func (r *BunPrincipalRoleRepository) ListPrincipalIDsForRole(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.PrincipalRole)(nil)).
		Column("principal_id").
		Where("role_id = ?", roleID).
		Order("principal_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, wrapReadError("list role principals", roleID, err)
	}
	return ids, nil
}
