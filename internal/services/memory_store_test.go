package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

func seedUsers(t *testing.T, store *MemoryUserStore) []*models.User {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dept := "Platform"
	seed := []*models.User{
		{Name: "Alice", Email: "alice@example.com", Role: models.RoleAdmin, IsActive: true},
		{Name: "Bob", Email: "bob@example.com", Role: models.RoleDeveloper, IsActive: true, Department: &dept},
		{Name: "Carol", Email: "carol@example.com", Role: models.RoleTester, IsActive: false},
		{Name: "Dave", Email: "dave@example.com", Role: models.RoleDeveloper, IsActive: true},
	}
	for i, u := range seed {
		u.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Create(context.Background(), u))
	}
	return seed
}

func TestMemoryUserStore_List(t *testing.T) {
	store := NewMemoryUserStore()
	seedUsers(t, store)
	ctx := context.Background()

	users, total, err := store.List(ctx, UserQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, users, 4)
	assert.Equal(t, "Dave", users[0].Name, "newest first by default")

	users, total, err = store.List(ctx, UserQuery{Role: models.RoleDeveloper, SortBy: "name", Order: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "Bob", users[0].Name)
	assert.Equal(t, "Dave", users[1].Name)

	inactive := false
	users, _, err = store.List(ctx, UserQuery{IsActive: &inactive})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Carol", users[0].Name)

	users, _, err = store.List(ctx, UserQuery{Search: "platform"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", users[0].Name)

	users, total, err = store.List(ctx, UserQuery{Page: 2, Limit: 3, SortBy: "name", Order: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, users, 1)
	assert.Equal(t, "Dave", users[0].Name)
}

func TestMemoryUserStore_EmailUniqueness(t *testing.T) {
	store := NewMemoryUserStore()
	seed := seedUsers(t, store)
	ctx := context.Background()

	err := store.Create(ctx, &models.User{Name: "Alice Two", Email: " ALICE@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	taken := "bob@example.com"
	_, err = store.UpdateByAdmin(ctx, seed[0].ID.Hex(), AdminUserUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	own := "alice@example.com"
	_, err = store.UpdateByAdmin(ctx, seed[0].ID.Hex(), AdminUserUpdate{Email: &own})
	assert.NoError(t, err)
}

func TestMemoryUserStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryUserStore()
	seed := seedUsers(t, store)
	ctx := context.Background()

	u, err := store.FindByID(ctx, seed[1].ID.Hex())
	require.NoError(t, err)
	u.Name = "Mutated"

	again, err := store.FindByID(ctx, seed[1].ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Bob", again.Name)
}

func TestMemoryUserStore_DeactivationRevokesRefreshToken(t *testing.T) {
	store := NewMemoryUserStore()
	seed := seedUsers(t, store)
	ctx := context.Background()
	id := seed[1].ID.Hex()

	require.NoError(t, store.SetRefreshToken(ctx, id, "rt"))
	u, err := store.SetActive(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	assert.Nil(t, u.RefreshToken)

	assert.ErrorIs(t, store.RotateRefreshToken(ctx, id, "rt", "next"), ErrRefreshTokenMismatch)
}

func TestMemoryUserStore_UpdatePassword(t *testing.T) {
	store := NewMemoryUserStore()
	seed := seedUsers(t, store)
	ctx := context.Background()
	id := seed[0].ID.Hex()
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	require.NoError(t, store.SetRefreshToken(ctx, id, "rt"))
	require.NoError(t, store.UpdatePassword(ctx, id, "new-hash", at))

	u, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.Password)
	assert.Nil(t, u.RefreshToken)
	require.NotNil(t, u.PasswordChangedAt)
	assert.True(t, u.PasswordChangedAt.Equal(at.Truncate(time.Millisecond)))
}
