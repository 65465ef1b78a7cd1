package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/internal/model"
)

func strPtr(s string) *string { return &s }

func TestMemoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	require.NoError(t, repo.Create(ctx, &model.User{Subject: "sub-1", PublicID: "p1"}))
	assert.ErrorIs(t, repo.Create(ctx, &model.User{Subject: "sub-1", PublicID: "p2"}), ErrDuplicate)

	u, err := repo.FindBySubject(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", u.PublicID)
	assert.NotZero(t, u.ID)

	_, err = repo.FindBySubject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCompleteOnboardingEnforcesUniqueUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "a", PublicID: "pa", Username: strPtr("taken")}))
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "b", PublicID: "pb"}))

	_, err := repo.CompleteOnboarding(ctx, "b", func(u *model.User) error {
		u.Username = strPtr("taken")
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	u, err := repo.CompleteOnboarding(ctx, "b", func(u *model.User) error {
		u.Username = strPtr("fresh")
		u.Onboarded = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, u.Onboarded)

	found, err := repo.FindByUsername(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "b", found.Subject)
}

func TestMemoryCompleteOnboardingApplyErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "a", PublicID: "pa"}))

	boom := errors.New("boom")
	_, err := repo.CompleteOnboarding(ctx, "a", func(u *model.User) error {
		u.Onboarded = true
		return boom
	})
	assert.ErrorIs(t, err, boom)

	u, err := repo.FindBySubject(ctx, "a")
	require.NoError(t, err)
	assert.False(t, u.Onboarded)
}

func TestMemoryAwardBadgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "a", PublicID: "pa"}))

	awarded, err := repo.AwardBadge(ctx, "a", "newcomer", 10)
	require.NoError(t, err)
	assert.True(t, awarded)

	awarded, err = repo.AwardBadge(ctx, "a", "newcomer", 10)
	require.NoError(t, err)
	assert.False(t, awarded)

	u, err := repo.FindBySubject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"newcomer"}, u.Badges)
	assert.Equal(t, 10, u.Reputation)
}

func TestReturnedUsersAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "a", PublicID: "pa", Badges: []string{"x"}}))

	u, err := repo.FindBySubject(ctx, "a")
	require.NoError(t, err)
	u.Badges[0] = "mutated"

	again, err := repo.FindBySubject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.Badges)
}
