package iam

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/dbtest"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/repository"
	"github.com/terraconstructs/authuser/internal/sessionstore"
)

type testEnv struct {
	db      *bun.DB
	svc     Service
	hasher  *auth.BcryptHasher
	roles   repository.RoleRepository
	links   *repository.BunPrincipalRoleRepository
	tokens  *repository.BunTokenRepository
	session *sessionstore.BunStore
}

func newTestEnv(t *testing.T, wrapRoles func(repository.RoleRepository) repository.RoleRepository) *testEnv {
	t.Helper()

	db := dbtest.NewSQLite(t)
	env := &testEnv{
		db:      db,
		hasher:  auth.NewBcryptHasher(bcrypt.MinCost),
		roles:   repository.NewBunRoleRepository(db),
		links:   repository.NewBunPrincipalRoleRepository(db),
		tokens:  repository.NewBunTokenRepository(db),
		session: sessionstore.NewBunStore(repository.NewBunSessionRepository(db)),
	}
	if wrapRoles != nil {
		env.roles = wrapRoles(env.roles)
	}

	svc, err := NewIAMService(IAMServiceDependencies{
		Principals:     repository.NewBunPrincipalRepository(db),
		Roles:          env.roles,
		PrincipalRoles: env.links,
		Tokens:         env.tokens,
		Sessions:       env.session,
		Hasher:         env.hasher,
	}, IAMServiceConfig{TokenTTL: time.Hour})
	require.NoError(t, err)
	env.svc = svc
	return env
}

func TestNewIAMService_RequiresDependencies(t *testing.T) {
	_, err := NewIAMService(IAMServiceDependencies{}, IAMServiceConfig{})
	assert.Error(t, err)
}

func TestCreatePrincipal_HashesPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, password := range []string{"bar", "correct horse battery staple", "pässwörd"} {
		p, err := env.svc.CreatePrincipal(ctx, "user-"+password, password)
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.NotEqual(t, password, p.PasswordHash)
		assert.True(t, env.hasher.Verify(p.PasswordHash, password))
	}
}

func TestCreatePrincipal_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)

	_, err = env.svc.CreatePrincipal(ctx, "foo", "baz")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCreatePrincipal_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "  ", password: "pw"},
		{name: "empty password", username: "foo", password: ""},
		{name: "username too long", username: strings.Repeat("u", maxNameLength+1), password: "pw"},
		{name: "password over bcrypt limit", username: "foo", password: strings.Repeat("p", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreatePrincipal(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPublicProjection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	role, err := env.svc.FindOrCreateRole(ctx, "user")
	require.NoError(t, err)
	_, _, err = env.svc.AttachRole(ctx, foo.ID, role.ID)
	require.NoError(t, err)

	public, err := env.svc.GetPrincipal(ctx, foo.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", public.Username)
	assert.Equal(t, []string{"user"}, public.Roles)

	body, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), foo.PasswordHash)

	// The model itself never serializes its hash either.
	raw, err := json.Marshal(foo)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), foo.PasswordHash)
}

func TestGetPrincipal_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.GetPrincipal(context.Background(), "0190b5a4-0000-7000-8000-0000000000ff")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListPrincipals_Filter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	alice, err := env.svc.CreatePrincipal(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = env.svc.CreatePrincipal(ctx, "bob", "pw")
	require.NoError(t, err)
	admin, err := env.svc.FindOrCreateRole(ctx, "admin")
	require.NoError(t, err)
	_, _, err = env.svc.AttachRole(ctx, alice.ID, admin.ID)
	require.NoError(t, err)

	all, err := env.svc.ListPrincipals(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)
	assert.Equal(t, []string{}, all[1].Roles)

	filter, err := auth.CompileFilter(`"admin" in roles`)
	require.NoError(t, err)
	admins, err := env.svc.ListPrincipals(ctx, filter)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, alice.ID, admins[0].ID)

	byName, err := auth.CompileFilter(`username == "bob"`)
	require.NoError(t, err)
	bobs, err := env.svc.ListPrincipals(ctx, byName)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "bob", bobs[0].Username)
}

func TestUpdatePrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	_, err = env.svc.CreatePrincipal(ctx, "taken", "pw")
	require.NoError(t, err)

	t.Run("rename and change password", func(t *testing.T) {
		name, password := "foo2", "new-secret"
		public, err := env.svc.UpdatePrincipal(ctx, foo.ID, PrincipalUpdate{Username: &name, Password: &password})
		require.NoError(t, err)
		assert.Equal(t, "foo2", public.Username)

		stored, err := repository.NewBunPrincipalRepository(env.db).GetByID(ctx, foo.ID)
		require.NoError(t, err)
		assert.True(t, env.hasher.Verify(stored.PasswordHash, "new-secret"))
		assert.False(t, env.hasher.Verify(stored.PasswordHash, "bar"))
	})

	t.Run("empty update is a no-op", func(t *testing.T) {
		public, err := env.svc.UpdatePrincipal(ctx, foo.ID, PrincipalUpdate{})
		require.NoError(t, err)
		assert.Equal(t, "foo2", public.Username)
	})

	t.Run("username collision", func(t *testing.T) {
		name := "taken"
		_, err := env.svc.UpdatePrincipal(ctx, foo.ID, PrincipalUpdate{Username: &name})
		assert.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		empty := ""
		_, err := env.svc.UpdatePrincipal(ctx, foo.ID, PrincipalUpdate{Password: &empty})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing principal", func(t *testing.T) {
		_, err := env.svc.UpdatePrincipal(ctx, "0190b5a4-0000-7000-8000-0000000000ff", PrincipalUpdate{})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestDeletePrincipal_Cascades(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	role, err := env.svc.FindOrCreateRole(ctx, "user")
	require.NoError(t, err)
	_, _, err = env.svc.AttachRole(ctx, foo.ID, role.ID)
	require.NoError(t, err)
	token, _, err := env.svc.IssueToken(ctx, foo.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeletePrincipal(ctx, foo.ID))

	ids, err := env.links.ListPrincipalIDsForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = env.tokens.GetByTokenHash(ctx, auth.HashToken(token))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, env.svc.DeletePrincipal(ctx, foo.ID), repository.ErrNotFound)
}

func TestAttachRole_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	role, err := env.svc.FindOrCreateRole(ctx, "user")
	require.NoError(t, err)

	first, created, err := env.svc.AttachRole(ctx, foo.ID, role.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := env.svc.AttachRole(ctx, foo.ID, role.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	ids, err := env.links.ListPrincipalIDsForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{foo.ID}, ids)
}

func TestAttachRole_Concurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	role, err := env.svc.FindOrCreateRole(ctx, "user")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.svc.AttachRole(ctx, foo.ID, role.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	count, err := env.db.NewSelect().Model((*models.PrincipalRole)(nil)).
		Where("principal_id = ?", foo.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAttachRole_MissingEntities(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)
	role, err := env.svc.FindOrCreateRole(ctx, "user")
	require.NoError(t, err)
	missing := "0190b5a4-0000-7000-8000-0000000000ff"

	_, _, err = env.svc.AttachRole(ctx, missing, role.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, _, err = env.svc.AttachRole(ctx, foo.ID, missing)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
