package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/repository"
	"github.com/terraconstructs/authuser/internal/sessionstore"
)

// Defaults applied by NewIAMService for zero config fields.
const (
	DefaultTokenTTL       = 24 * time.Hour
	DefaultStorageTimeout = 5 * time.Second
	DefaultRoleCacheSize  = 256
)

// maxNameLength bounds usernames and role names.
const maxNameLength = 255

// iamService implements the Service interface.
type iamService struct {
	principals     repository.PrincipalRepository
	roles          repository.RoleRepository
	principalRoles repository.PrincipalRoleRepository
	tokens         repository.TokenRepository
	sessions       sessionstore.Store
	hasher         auth.PasswordHasher

	// roleCache maps role name to role for the findOrCreate fast path.
	// Entries are dropped when a role is renamed or deleted.
	roleCache *lru.Cache[string, models.Role]
	roleGroup singleflight.Group

	tokenTTL       time.Duration
	storageTimeout time.Duration
	logger         *slog.Logger
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
type IAMServiceDependencies struct {
	Principals     repository.PrincipalRepository
	Roles          repository.RoleRepository
	PrincipalRoles repository.PrincipalRoleRepository
	Tokens         repository.TokenRepository
	Sessions       sessionstore.Store
	Hasher         auth.PasswordHasher
	Logger         *slog.Logger
}

// IAMServiceConfig contains tuning knobs. Zero values take the defaults above.
type IAMServiceConfig struct {
	TokenTTL       time.Duration
	StorageTimeout time.Duration
	RoleCacheSize  int
}

// NewIAMService creates a new IAM service with all dependencies.
func NewIAMService(deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.Principals == nil || deps.Roles == nil || deps.PrincipalRoles == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("iam service requires principal, role, principal role and token repositories")
	}
	if deps.Hasher == nil {
		return nil, fmt.Errorf("iam service requires a password hasher")
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultStorageTimeout
	}
	if cfg.RoleCacheSize <= 0 {
		cfg.RoleCacheSize = DefaultRoleCacheSize
	}

	cache, err := lru.New[string, models.Role](cfg.RoleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create role cache: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &iamService{
		principals:     deps.Principals,
		roles:          deps.Roles,
		principalRoles: deps.PrincipalRoles,
		tokens:         deps.Tokens,
		sessions:       deps.Sessions,
		hasher:         deps.Hasher,
		roleCache:      cache,
		tokenTTL:       cfg.TokenTTL,
		storageTimeout: cfg.StorageTimeout,
		logger:         logger,
	}, nil
}

// storage bounds a single storage round trip.
func (s *iamService) storage(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(value) > maxNameLength {
		return "", fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, maxNameLength)
	}
	return value, nil
}

// conflict wraps a repository.ErrConflict so it also matches ErrValidation.
func conflict(what, name string, err error) error {
	return fmt.Errorf("%w: %s %q already exists: %w", ErrValidation, what, name, err)
}

// =========================================================================
// Principals
// =========================================================================

func (s *iamService) CreatePrincipal(ctx context.Context, username, password string) (*models.Principal, error) {
	username, err := validateName("username", username)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	principal := &models.Principal{Username: username, PasswordHash: hash}

	sctx, cancel := s.storage(ctx)
	defer cancel()
	if err := s.principals.Create(sctx, principal); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("username", username, err)
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}

	s.logger.Info("principal created", "principal_id", principal.ID, "username", username)
	return principal, nil
}

func (s *iamService) hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return hash, nil
}

func (s *iamService) GetPrincipal(ctx context.Context, id string) (*PublicPrincipal, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	principal, err := s.principals.GetByID(sctx, id)
	if err != nil {
		return nil, err
	}
	return s.project(sctx, principal)
}

func (s *iamService) project(ctx context.Context, principal *models.Principal) (*PublicPrincipal, error) {
	roles, err := s.principalRoles.ListRolesForPrincipal(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles for %s: %w", principal.ID, err)
	}
	public := NewPublicPrincipal(principal, roles)
	return &public, nil
}

func (s *iamService) ListPrincipals(ctx context.Context, filter *auth.Filter) ([]PublicPrincipal, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	principals, err := s.principals.List(sctx)
	if err != nil {
		return nil, err
	}

	out := make([]PublicPrincipal, 0, len(principals))
	for i := range principals {
		public, err := s.project(sctx, &principals[i])
		if err != nil {
			return nil, err
		}
		if !filter.Match(public.filterDatum()) {
			continue
		}
		out = append(out, *public)
	}
	return out, nil
}

func (s *iamService) UpdatePrincipal(ctx context.Context, id string, upd PrincipalUpdate) (*PublicPrincipal, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	principal, err := s.principals.GetByID(sctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		username, err := validateName("username", *upd.Username)
		if err != nil {
			return nil, err
		}
		principal.Username = username
	}
	if upd.Password != nil {
		hash, err := s.hashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		principal.PasswordHash = hash
	}

	if err := s.principals.Update(sctx, principal); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("username", principal.Username, err)
		}
		return nil, err
	}
	return s.project(sctx, principal)
}

func (s *iamService) DeletePrincipal(ctx context.Context, id string) error {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	if err := s.principals.Delete(sctx, id); err != nil {
		return err
	}
	s.logger.Info("principal deleted", "principal_id", id)
	return nil
}

func (s *iamService) AttachRole(ctx context.Context, principalID, roleID string) (*models.PrincipalRole, bool, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	if _, err := s.principals.GetByID(sctx, principalID); err != nil {
		return nil, false, err
	}
	if _, err := s.roles.GetByID(sctx, roleID); err != nil {
		return nil, false, err
	}

	existing, err := s.principalRoles.Get(sctx, principalID, roleID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, err
	}

	link := &models.PrincipalRole{PrincipalID: principalID, RoleID: roleID}
	if err := s.principalRoles.Create(sctx, link); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, err
		}
		// A concurrent attach won the insert.
		existing, err := s.principalRoles.Get(sctx, principalID, roleID)
		if err != nil {
			return nil, false, fmt.Errorf("reload principal role after conflict: %w", err)
		}
		return existing, false, nil
	}

	s.logger.Info("role attached", "principal_id", principalID, "role_id", roleID)
	return link, true, nil
}

// =========================================================================
// Roles
// =========================================================================

func (s *iamService) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	name, err := validateName("role name", name)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storage(ctx)
	defer cancel()

	role := &models.Role{Name: name}
	if err := s.roles.Create(sctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("role", name, err)
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	s.roleCache.Add(role.Name, *role)
	return role, nil
}

func (s *iamService) GetRole(ctx context.Context, id string) (*models.Role, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()
	return s.roles.GetByID(sctx, id)
}

func (s *iamService) ListRoles(ctx context.Context, filter *auth.Filter) ([]models.Role, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	roles, err := s.roles.List(sctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return roles, nil
	}

	out := make([]models.Role, 0, len(roles))
	for _, role := range roles {
		if filter.Match(map[string]any{"id": role.ID, "name": role.Name}) {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *iamService) UpdateRole(ctx context.Context, id, name string) (*models.Role, error) {
	name, err := validateName("role name", name)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storage(ctx)
	defer cancel()

	role, err := s.roles.GetByID(sctx, id)
	if err != nil {
		return nil, err
	}
	oldName := role.Name
	role.Name = name

	if err := s.roles.Update(sctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("role", name, err)
		}
		return nil, err
	}

	s.roleCache.Remove(oldName)
	s.roleCache.Add(role.Name, *role)
	return role, nil
}

func (s *iamService) DeleteRole(ctx context.Context, id string) error {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	role, err := s.roles.GetByID(sctx, id)
	if err != nil {
		return err
	}
	if err := s.roles.Delete(sctx, id); err != nil {
		return err
	}
	s.roleCache.Remove(role.Name)
	s.logger.Info("role deleted", "role_id", id, "name", role.Name)
	return nil
}

func (s *iamService) FindOrCreateRole(ctx context.Context, name string) (*models.Role, error) {
	name, err := validateName("role name", name)
	if err != nil {
		return nil, err
	}

	if role, ok := s.roleCache.Get(name); ok {
		return &role, nil
	}

	// Callers asking for the same name share one lookup/insert. The shared
	// call must not die with whichever caller happened to start it.
	v, err, _ := s.roleGroup.Do(name, func() (any, error) {
		return s.findOrCreateRole(context.WithoutCancel(ctx), name)
	})
	if err != nil {
		return nil, err
	}
	role := v.(models.Role)
	return &role, nil
}

func (s *iamService) findOrCreateRole(ctx context.Context, name string) (models.Role, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	role, err := s.roles.GetByName(sctx, name)
	if err == nil {
		s.roleCache.Add(name, *role)
		return *role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.Role{}, err
	}

	role = &models.Role{Name: name}
	if err := s.roles.Create(sctx, role); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return models.Role{}, fmt.Errorf("create role: %w", err)
		}
		// Another process inserted the name between our read and write.
		role, err = s.roles.GetByName(sctx, name)
		if err != nil {
			return models.Role{}, fmt.Errorf("reload role after conflict: %w", err)
		}
	}

	s.roleCache.Add(name, *role)
	return *role, nil
}

// =========================================================================
// Tokens
// =========================================================================

func (s *iamService) IssueToken(ctx context.Context, principalID string) (string, time.Time, error) {
	token, hash, err := auth.GenerateToken()
	if err != nil {
		return "", time.Time{}, err
	}

	record := &models.Token{
		PrincipalID: principalID,
		TokenHash:   hash,
		ExpiresAt:   time.Now().Add(s.tokenTTL),
	}

	sctx, cancel := s.storage(ctx)
	defer cancel()
	if err := s.tokens.Create(sctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	return token, record.ExpiresAt, nil
}

func (s *iamService) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sctx, cancel := s.storage(ctx)
	defer cancel()
	return s.tokens.DeleteByTokenHash(sctx, auth.HashToken(token))
}

func (s *iamService) SweepExpired(ctx context.Context) (int64, int64, error) {
	sctx, cancel := s.storage(ctx)
	defer cancel()

	tokens, err := s.tokens.DeleteExpired(sctx, time.Now())
	if err != nil {
		return 0, 0, fmt.Errorf("sweep tokens: %w", err)
	}

	var sessions int64
	if s.sessions != nil {
		sessions, err = s.sessions.Sweep(sctx)
		if err != nil {
			return tokens, 0, fmt.Errorf("sweep sessions: %w", err)
		}
	}
	return tokens, sessions, nil
}
