package repository

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/db/bunx"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/uptrace/bun"
)

// BunPrincipalRepository implements PrincipalRepository using Bun ORM
type BunPrincipalRepository struct {
	db *bun.DB
}

// NewBunPrincipalRepository creates a new Bun-based principal repository
func NewBunPrincipalRepository(db *bun.DB) *BunPrincipalRepository {
	return &BunPrincipalRepository{db: db}
}

// Create inserts a new principal. A taken username yields ErrConflict.
func (r *BunPrincipalRepository) Create(ctx context.Context, principal *models.Principal) error {
	if principal.ID == "" {
		principal.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	principal.CreatedAt = now
	principal.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(principal).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("create principal", err)
	}
	return nil
}

// GetByID retrieves a principal by ID
func (r *BunPrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	principal := new(models.Principal)
	err := r.db.NewSelect().
		Model(principal).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get principal", id, err)
	}
	return principal, nil
}

// GetByUsername retrieves a principal by its unique username
func (r *BunPrincipalRepository) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	principal := new(models.Principal)
	err := r.db.NewSelect().
		Model(principal).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get principal by username", username, err)
	}
	return principal, nil
}

// Update writes username and password hash back to storage
func (r *BunPrincipalRepository) Update(ctx context.Context, principal *models.Principal) error {
	principal.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(principal).
		Column("username", "password_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return wrapWriteError("update principal", err)
	}
	return expectRows("update principal", principal.ID, result)
}

// Delete removes a principal. Role links, tokens and sessions cascade.
func (r *BunPrincipalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Principal)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("delete principal", err)
	}
	return expectRows("delete principal", id, result)
}

// List retrieves all principals ordered by username
func (r *BunPrincipalRepository) List(ctx context.Context) ([]models.Principal, error) {
	var principals []models.Principal
	err := r.db.NewSelect().
		Model(&principals).
		Order("username ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("list principals", "", err)
	}
	return principals, nil
}
