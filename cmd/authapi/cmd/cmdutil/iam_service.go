package cmdutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/config"
	"github.com/terraconstructs/authuser/internal/db/bunx"
	"github.com/terraconstructs/authuser/internal/repository"
	"github.com/terraconstructs/authuser/internal/services/iam"
	"github.com/terraconstructs/authuser/internal/sessionstore"
)

// Repositories groups the bun repositories opened on one connection.
type Repositories struct {
	Principals     *repository.BunPrincipalRepository
	Roles          *repository.BunRoleRepository
	PrincipalRoles *repository.BunPrincipalRoleRepository
	Tokens         *repository.BunTokenRepository
	Sessions       *repository.BunSessionRepository
}

// NewRepositories opens every repository on db.
func NewRepositories(db *bun.DB) Repositories {
	return Repositories{
		Principals:     repository.NewBunPrincipalRepository(db),
		Roles:          repository.NewBunRoleRepository(db),
		PrincipalRoles: repository.NewBunPrincipalRoleRepository(db),
		Tokens:         repository.NewBunTokenRepository(db),
		Sessions:       repository.NewBunSessionRepository(db),
	}
}

// IAMServiceBundle bundles the service with its underlying DB connection so callers can
// reuse the connection for other repositories when necessary.
type IAMServiceBundle struct {
	Service  iam.Service
	DB       *bun.DB
	Repos    Repositories
	Sessions sessionstore.Store
	Hasher   *auth.BcryptHasher
}

// Close releases the session store and the database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil {
		return
	}
	if c, ok := b.Sessions.(io.Closer); ok {
		_ = c.Close()
	}
	if b.DB != nil {
		_ = bunx.Close(b.DB)
	}
}

// NewSessionStore returns the store selected by session.store.
func NewSessionStore(ctx context.Context, cfg *config.Config, repos Repositories) (sessionstore.Store, error) {
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		store, err := sessionstore.NewRedisStore(ctx, sessionstore.RedisOptions{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SessionStoreBun:
		return sessionstore.NewBunStore(repos.Sessions), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// NewIAMServiceBundle centralizes IAM service construction for CLI commands.
// It opens the database, selects the session store, and returns a ready-to-use service.
func NewIAMServiceBundle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*IAMServiceBundle, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL, bunx.Options{MaxConnections: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repos := NewRepositories(db)

	sessions, err := NewSessionStore(ctx, cfg, repos)
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	iamService, err := iam.NewIAMService(
		iam.IAMServiceDependencies{
			Principals:     repos.Principals,
			Roles:          repos.Roles,
			PrincipalRoles: repos.PrincipalRoles,
			Tokens:         repos.Tokens,
			Sessions:       sessions,
			Hasher:         hasher,
			Logger:         logger,
		},
		iam.IAMServiceConfig{
			TokenTTL:       cfg.Token.TTL,
			StorageTimeout: cfg.StorageTimeout,
		},
	)
	if err != nil {
		if c, ok := sessions.(io.Closer); ok {
			_ = c.Close()
		}
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{
		Service:  iamService,
		DB:       db,
		Repos:    repos,
		Sessions: sessions,
		Hasher:   hasher,
	}, nil
}
