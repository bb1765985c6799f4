package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/terraconstructs/authuser/internal/db/bunx"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260105090001, down_20260105090001)
}

// SeedRoles are created on first migration. "admin" is the subject of the
// default casbin policy; "user" is what the users create command assigns when
// no role is given.
var SeedRoles = []string{"admin", "user"}

// up_20260105090001 seeds default roles
func up_20260105090001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding default roles...")

	now := time.Now().UTC()
	for _, name := range SeedRoles {
		role := models.Role{
			ID:        bunx.NewUUIDv7(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err := db.NewInsert().
			Model(&role).
			On("CONFLICT (name) DO NOTHING"). // Idempotent
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", name, err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260105090001 removes seeded roles
func down_20260105090001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing default roles...")
	_, err := db.NewDelete().
		Model((*models.Role)(nil)).
		Where("name IN (?)", bun.In(SeedRoles)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove default roles: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
