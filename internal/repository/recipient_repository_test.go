package repository_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campusconnect-mailer/internal/cache"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

func TestRecipientRepository_ResolveAndLists(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	seedUser(t, d, "u1", "Asha Rao", "asha@campus.test", model.RoleStudent, model.UserStatusActive, true)
	seedUser(t, d, "u2", "Ben Ito", "ben@campus.test", model.RoleStudent, "inactive", true)
	seedUser(t, d, "u3", "Cara Diaz", "cara@campus.test", model.RoleStaff, model.UserStatusActive, false)
	repo := &repository.RecipientRepository{DB: d}

	got, err := repo.Resolve(ctx, []string{"u1", "u3", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	empty, err := repo.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	u, err := repo.GetByID(ctx, "u3")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.False(t, u.WantsEmail)
	assert.True(t, u.CanManageCampaigns())

	none, err := repo.GetByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	students, err := repo.ListActiveByRole(ctx, model.RoleStudent)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "u1", students[0].ID)
}

type countingDirectory struct {
	repository.RecipientRepositoryInterface
	resolveCalls atomic.Int32
	getCalls     atomic.Int32
}

func (c *countingDirectory) Resolve(ctx context.Context, ids []string) ([]model.Recipient, error) {
	c.resolveCalls.Add(1)
	return c.RecipientRepositoryInterface.Resolve(ctx, ids)
}

func (c *countingDirectory) GetByID(ctx context.Context, id string) (*model.Recipient, error) {
	c.getCalls.Add(1)
	return c.RecipientRepositoryInterface.GetByID(ctx, id)
}

func TestCachedRecipientRepository_ServesRepeatLookupsFromCache(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	seedUser(t, d, "u1", "Asha Rao", "asha@campus.test", model.RoleStudent, model.UserStatusActive, true)
	seedUser(t, d, "u2", "Ben Ito", "ben@campus.test", model.RoleAdmin, model.UserStatusActive, true)

	inner := &countingDirectory{RecipientRepositoryInterface: &repository.RecipientRepository{DB: d}}
	cached := &repository.CachedRecipientRepository{Next: inner, Cache: cache.NewMemory(time.Minute, "t"), TTL: time.Minute}

	got, err := cached.Resolve(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = cached.Resolve(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), inner.resolveCalls.Load())

	u, err := cached.GetByID(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "ben@campus.test", u.Email)
	assert.Equal(t, int32(0), inner.getCalls.Load(), "resolved users are cached for GetByID too")

	ghost, err := cached.GetByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost)
}
