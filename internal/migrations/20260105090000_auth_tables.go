package migrations

import (
	"context"
	"fmt"

	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260105090000, down_20260105090000)
}

const (
	fkPrincipalCascade = `("principal_id") REFERENCES "principals" ("id") ON DELETE CASCADE`
	fkRoleCascade      = `("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`
)

// up_20260105090000 creates principals, roles, the pivot, tokens and sessions
func up_20260105090000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating principals table...")
	_, err := db.NewCreateTable().
		Model((*models.Principal)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create principals table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating roles table...")
	_, err = db.NewCreateTable().
		Model((*models.Role)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating principal_roles table...")
	_, err = db.NewCreateTable().
		Model((*models.PrincipalRole)(nil)).
		IfNotExists().
		ForeignKey(fkPrincipalCascade).
		ForeignKey(fkRoleCascade).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create principal_roles table: %w", err)
	}

	// Attaching the same role twice must collide here so concurrent attach
	// calls converge on one row.
	_, err = db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_principal_roles_unique
		ON principal_roles (principal_id, role_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create principal_roles unique index: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_principal_roles_role_id ON principal_roles(role_id)`)
	if err != nil {
		return fmt.Errorf("failed to create principal_roles role_id index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.Token)(nil)).
		IfNotExists().
		ForeignKey(fkPrincipalCascade).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create tokens table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tokens_expires_at ON tokens(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create tokens expires_at index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(fkPrincipalCascade).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions expires_at index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260105090000 drops all auth tables in reverse order
func down_20260105090000(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"sessions",
		"tokens",
		"principal_roles",
		"roles",
		"principals",
	}

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if IsPostgreSQL(db) {
			stmt += " CASCADE"
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
