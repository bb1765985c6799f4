package iam

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/db/models"
	"github.com/terraconstructs/authuser/internal/repository"
)

// staleReadRoles reports the first GetByName as a miss, simulating a
// reader that lost a race with another process's insert.
type staleReadRoles struct {
	repository.RoleRepository
	missed atomic.Bool
}

func (s *staleReadRoles) GetByName(ctx context.Context, name string) (*models.Role, error) {
	if s.missed.CompareAndSwap(false, true) {
		return nil, repository.ErrNotFound
	}
	return s.RoleRepository.GetByName(ctx, name)
}

func countRoles(t *testing.T, env *testEnv, name string) int {
	t.Helper()
	count, err := env.db.NewSelect().Model((*models.Role)(nil)).Where("name = ?", name).Count(context.Background())
	require.NoError(t, err)
	return count
}

func TestFindOrCreateRole_ReturnsSameRole(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, name := range []string{"admin", "ops"} {
		first, err := env.svc.FindOrCreateRole(ctx, name)
		require.NoError(t, err)
		second, err := env.svc.FindOrCreateRole(ctx, name)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, name)
		assert.Equal(t, name, second.Name)
		assert.Equal(t, 1, countRoles(t, env, name))
	}
}

func TestFindOrCreateRole_Concurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	const callers = 32
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			role, err := env.svc.FindOrCreateRole(ctx, "x")
			errs[i] = err
			if role != nil {
				ids[i] = role.ID
			}
		}()
	}
	close(start)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, countRoles(t, env, "x"))
}

func TestFindOrCreateRole_SeparateServicesShareOneRow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	other, err := NewIAMService(IAMServiceDependencies{
		Principals:     repository.NewBunPrincipalRepository(env.db),
		Roles:          repository.NewBunRoleRepository(env.db),
		PrincipalRoles: env.links,
		Tokens:         env.tokens,
		Hasher:         env.hasher,
	}, IAMServiceConfig{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var a, b *models.Role
	wg.Add(2)
	go func() { defer wg.Done(); a, _ = env.svc.FindOrCreateRole(ctx, "shared") }()
	go func() { defer wg.Done(); b, _ = other.FindOrCreateRole(ctx, "shared") }()
	wg.Wait()

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, countRoles(t, env, "shared"))
}

func TestFindOrCreateRole_ReloadsOnConflict(t *testing.T) {
	var stale *staleReadRoles
	env := newTestEnv(t, func(r repository.RoleRepository) repository.RoleRepository {
		stale = &staleReadRoles{RoleRepository: r}
		return stale
	})
	ctx := context.Background()

	existing := &models.Role{Name: "racy"}
	require.NoError(t, repository.NewBunRoleRepository(env.db).Create(ctx, existing))

	role, err := env.svc.FindOrCreateRole(ctx, "racy")
	require.NoError(t, err)
	assert.True(t, stale.missed.Load())
	assert.Equal(t, existing.ID, role.ID)
	assert.Equal(t, 1, countRoles(t, env, "racy"))
}

func TestFindOrCreateRole_CacheFollowsRenameAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	temp, err := env.svc.FindOrCreateRole(ctx, "temp")
	require.NoError(t, err)

	_, err = env.svc.UpdateRole(ctx, temp.ID, "renamed")
	require.NoError(t, err)

	again, err := env.svc.FindOrCreateRole(ctx, "temp")
	require.NoError(t, err)
	assert.NotEqual(t, temp.ID, again.ID, "renamed role must not be served from cache under its old name")

	renamed, err := env.svc.FindOrCreateRole(ctx, "renamed")
	require.NoError(t, err)
	assert.Equal(t, temp.ID, renamed.ID)

	require.NoError(t, env.svc.DeleteRole(ctx, renamed.ID))
	recreated, err := env.svc.FindOrCreateRole(ctx, "renamed")
	require.NoError(t, err)
	assert.NotEqual(t, renamed.ID, recreated.ID)
}

func TestFindOrCreateRole_EmptyName(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.FindOrCreateRole(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRoleCRUD(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	ops, err := env.svc.CreateRole(ctx, "ops")
	require.NoError(t, err)

	_, err = env.svc.CreateRole(ctx, "ops")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := env.svc.GetRole(ctx, ops.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Name)

	updated, err := env.svc.UpdateRole(ctx, ops.ID, "sre")
	require.NoError(t, err)
	assert.Equal(t, "sre", updated.Name)

	_, err = env.svc.UpdateRole(ctx, ops.ID, "admin")
	assert.ErrorIs(t, err, repository.ErrConflict)

	all, err := env.svc.ListRoles(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, r := range all {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"admin", "sre", "user"}, names)

	filter, err := auth.CompileFilter(`name == "sre"`)
	require.NoError(t, err)
	filtered, err := env.svc.ListRoles(ctx, filter)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ops.ID, filtered[0].ID)

	require.NoError(t, env.svc.DeleteRole(ctx, ops.ID))
	_, err = env.svc.GetRole(ctx, ops.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteRole(ctx, ops.ID), repository.ErrNotFound)
}

func TestIssueAndRevokeToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)

	token, expiresAt, err := env.svc.IssueToken(ctx, foo.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	record, err := env.tokens.GetByTokenHash(ctx, auth.HashToken(token))
	require.NoError(t, err)
	assert.Equal(t, foo.ID, record.PrincipalID)
	assert.NotEqual(t, token, record.TokenHash)

	require.NoError(t, env.svc.RevokeToken(ctx, token))
	_, err = env.tokens.GetByTokenHash(ctx, auth.HashToken(token))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, env.svc.RevokeToken(ctx, token))
	assert.NoError(t, env.svc.RevokeToken(ctx, ""))
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	foo, err := env.svc.CreatePrincipal(ctx, "foo", "bar")
	require.NoError(t, err)

	_, _, err = env.svc.IssueToken(ctx, foo.ID)
	require.NoError(t, err)
	require.NoError(t, env.tokens.Create(ctx, &models.Token{
		PrincipalID: foo.ID,
		TokenHash:   auth.HashToken("old"),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}))
	_, err = env.session.Create(ctx, foo.ID, -time.Minute)
	require.NoError(t, err)
	_, err = env.session.Create(ctx, foo.ID, time.Hour)
	require.NoError(t, err)

	tokens, sessions, err := env.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokens)
	assert.Equal(t, int64(1), sessions)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, env.svc, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
