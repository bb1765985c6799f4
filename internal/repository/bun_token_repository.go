package repository

import (
	"context"
	"time"

	"github.com/terraconstructs/authuser/internal/db/bunx"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/uptrace/bun"
)

// BunTokenRepository implements TokenRepository using Bun ORM
type BunTokenRepository struct {
	db *bun.DB
}

// NewBunTokenRepository creates a new Bun-based token repository
func NewBunTokenRepository(db *bun.DB) *BunTokenRepository {
	return &BunTokenRepository{db: db}
}

// Create inserts a new bearer token record
func (r *BunTokenRepository) Create(ctx context.Context, token *models.Token) error {
	if token.ID == "" {
		token.ID = bunx.NewUUIDv7()
	}
	token.CreatedAt = time.Now().UTC()
	token.ExpiresAt = token.ExpiresAt.UTC()

	_, err := r.db.NewInsert().
		Model(token).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("create token", err)
	}
	return nil
}

// GetByTokenHash retrieves a token by the SHA256 hash of its value
func (r *BunTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Token, error) {
	token := new(models.Token)
	err := r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		return nil, wrapReadError("get token", "by hash", err)
	}
	return token, nil
}

// DeleteByTokenHash removes a token. Missing tokens are not an error.
func (r *BunTokenRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.NewDelete().
		Model((*models.Token)(nil)).
		Where("token_hash = ?", tokenHash).
		Exec(ctx)
	if err != nil {
		return wrapWriteError("delete token", err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before now
func (r *BunTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*models.Token)(nil)).
		Where("expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, wrapWriteError("delete expired tokens", err)
	}
	return result.RowsAffected()
}
