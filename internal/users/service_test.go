package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/auth"
)

func newTestService(t *testing.T) (*Service, *auth.Manager) {
	t.Helper()
	ledger := credits.NewMemoryLedger(credits.NewFixedClock(time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)), time.UTC)
	tokens := auth.NewManager("users-test-secret-users-test-secret", "supercv", time.Hour)
	svc := NewService(ledger, tokens)
	svc.cost = bcrypt.MinCost
	return svc, tokens
}

func TestSyncIdentityCreatesThenReuses(t *testing.T) {
	svc, tokens := newTestService(t)
	ctx := context.Background()

	first, err := svc.SyncIdentity(ctx, Identity{Email: "Ada@Example.com ", Name: "Ada"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "ada@example.com", first.Account.Email)
	assert.Equal(t, 1, first.Account.CreditBalance)

	claims, err := tokens.Verify(first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, claims.Sub)

	second, err := svc.SyncIdentity(ctx, Identity{Email: "ada@example.com", Name: "Ada L."})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Account.ID, second.Account.ID)
}

func TestSyncIdentityRejectsMissingEmail(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SyncIdentity(context.Background(), Identity{Name: "nobody"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "grace@example.com", "correct horse", "Grace")
	require.NoError(t, err)
	assert.True(t, reg.Created)
	assert.NotEmpty(t, reg.Account.PasswordHash)

	sess, err := svc.Login(ctx, "GRACE@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, sess.Account.ID)
	assert.NotEmpty(t, sess.Token)

	_, err = svc.Login(ctx, "grace@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SyncIdentity(ctx, Identity{Email: "linus@example.com"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, "linus@example.com", "long enough", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "not-an-email", "long enough", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(context.Background(), "a@example.com", "short", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginWithoutPasswordAccountFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SyncIdentity(ctx, Identity{Email: "oauth@example.com"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "oauth@example.com", "anything-at-all")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "missing@example.com", "anything-at-all")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMeUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Me(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
