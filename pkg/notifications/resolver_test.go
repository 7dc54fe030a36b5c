package notifications_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/validator"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ActiveUsers(ctx context.Context, ids []string) ([]notifications.Recipient, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]notifications.Recipient), args.Error(1)
}

func (m *mockDirectory) ActiveUsersByRoles(ctx context.Context, roles []string) ([]notifications.Recipient, error) {
	args := m.Called(ctx, roles)
	return args.Get(0).([]notifications.Recipient), args.Error(1)
}

func (m *mockDirectory) ActiveUsersByBranch(ctx context.Context, branchID string) ([]notifications.Recipient, error) {
	args := m.Called(ctx, branchID)
	return args.Get(0).([]notifications.Recipient), args.Error(1)
}

func recipientKeys(rs []notifications.Recipient) []string {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.Key()
	}
	return keys
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	dir := notifications.NewMemoryDirectory(
		activeUser("alice", withRoles("manager"), inBranch("b1")),
		activeUser("bob", withRoles("cashier"), inBranch("b1")),
		activeUser("carol", withRoles("manager"), inBranch("b2")),
		notifications.User{ID: "dave", Roles: []string{"manager"}, BranchIDs: []string{"b1"}, Active: false},
	)
	r := notifications.NewResolver(dir)
	ctx := context.Background()

	t.Run("union is deduplicated in field order", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, notifications.RecipientSpec{
			UserID:   "bob",
			UserIDs:  []string{"bob", "alice"},
			Role:     "manager",
			BranchID: "b1",
		})
		require.NoError(t, err)
		// the directory returns users in insertion order for each lookup
		assert.Equal(t, []string{"alice", "bob", "carol"}, recipientKeys(got))
	})

	t.Run("inactive users are skipped", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, notifications.RecipientSpec{UserID: "dave"})
		assert.Nil(t, got)
		require.ErrorIs(t, err, notifications.ErrNoRecipients)
		assert.True(t, validator.IsValidationError(err))
	})

	t.Run("guest contact", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, notifications.RecipientSpec{Email: "walkin@x.com", Mobile: "9999999999"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].IsGuest())
		assert.Equal(t, "walkin@x.com", got[0].Email)
		assert.Equal(t, "9999999999", got[0].Mobile)
	})

	t.Run("contact is ignored when a user id is set", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, notifications.RecipientSpec{UserID: "alice", Email: "walkin@x.com"})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, recipientKeys(got))
	})

	t.Run("empty spec", func(t *testing.T) {
		t.Parallel()

		_, err := r.Resolve(ctx, notifications.RecipientSpec{})
		assert.ErrorIs(t, err, notifications.ErrNoRecipients)
	})
}

func TestResolver_DirectoryError(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("ActiveUsers", mock.Anything, []string{"u1"}).
		Return([]notifications.Recipient{{UserID: "u1"}}, nil)
	dir.On("ActiveUsersByRoles", mock.Anything, []string{"manager", "owner"}).
		Return([]notifications.Recipient(nil), errors.New("directory unavailable"))

	_, err := notifications.NewResolver(dir).Resolve(context.Background(), notifications.RecipientSpec{
		UserID: "u1",
		Roles:  []string{"manager", "owner", "manager"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory unavailable")
	dir.AssertExpectations(t)
}
