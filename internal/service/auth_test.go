package service

import (
	"context"
	"testing"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_RegisterAndAuthenticate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()

		sess, err := f.auth.Register(ctx, "  Alice@Example.com ", "secret123")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", sess.User.Email)
		assert.Equal(t, model.RoleBuyer, sess.User.Role)
		assertMoney(t, "0", sess.User.Balance)
		assert.Equal(t, []notify.Kind{notify.KindRegistration}, f.notifier.kinds())

		id, err := f.auth.VerifySession(sess.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.User.ID, id.UserID)

		_, err = f.auth.Register(ctx, "alice@example.com", "another1")
		assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

		login, err := f.auth.Authenticate(ctx, "ALICE@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, sess.User.ID, login.User.ID)

		_, err = f.auth.Authenticate(ctx, "alice@example.com", "wrong-pass")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
		_, err = f.auth.Authenticate(ctx, "nobody@example.com", "secret123")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	})
}

func TestAuth_RegisterValidation(t *testing.T) {
	f := newFixture(t, repository.NewMemoryStore())
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "Bob <bob@example.com>"} {
		_, err := f.auth.Register(ctx, email, "secret123")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, email)
	}
	_, err := f.auth.Register(ctx, "bob@example.com", "12345")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAuth_OperatorLogin(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()

		_, err := f.auth.OperatorLogin(ctx, "admin", "wrong")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
		_, err = f.auth.OperatorLogin(ctx, "root", "admin-pass")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)

		first, err := f.auth.OperatorLogin(ctx, "admin", "admin-pass")
		require.NoError(t, err)
		assert.Equal(t, model.RoleOperator, first.User.Role)
		assert.Equal(t, "admin@platform.com", first.User.Email)

		second, err := f.auth.OperatorLogin(ctx, "admin", "admin-pass")
		require.NoError(t, err)
		assert.Equal(t, first.User.ID, second.User.ID)

		ops, err := f.auth.ListUsers(ctx, model.RoleOperator)
		require.NoError(t, err)
		assert.Len(t, ops, 1)

		id, err := f.auth.VerifySession(second.Token)
		require.NoError(t, err)
		assert.NoError(t, RequireRole(id, model.RoleOperator))
		assert.ErrorIs(t, RequireRole(id, model.RoleBuyer), apperr.ErrForbidden)
		assert.ErrorIs(t, RequireRole(nil, model.RoleBuyer), apperr.ErrInvalidSession)
	})
}

func TestAuth_OperatorEmailTakenByBuyer(t *testing.T) {
	f := newFixture(t, repository.NewMemoryStore())
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "admin@platform.com", "secret123")
	require.NoError(t, err)
	_, err = f.auth.OperatorLogin(ctx, "admin", "admin-pass")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAuth_UserAdministration(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")

		u, err := f.auth.SetBalance(ctx, "op", buyer, dec("12.345"))
		require.NoError(t, err)
		assertMoney(t, "12.35", u.Balance)
		_, err = f.auth.SetBalance(ctx, "op", buyer, dec("-1"))
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = f.auth.SetBalance(ctx, "op", "missing", dec("1"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		require.NoError(t, f.auth.ResetPassword(ctx, "op", buyer, "fresh-pass"))
		_, err = f.auth.Authenticate(ctx, "a@example.com", "secret123")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
		_, err = f.auth.Authenticate(ctx, "a@example.com", "fresh-pass")
		require.NoError(t, err)
		assert.ErrorIs(t, f.auth.ResetPassword(ctx, "op", buyer, "123"), apperr.ErrInvalidInput)

		profile, err := f.auth.Profile(ctx, buyer)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", profile.Email)

		_, err = f.auth.ListUsers(ctx, "admin")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		assert.ErrorIs(t, f.auth.PurgeUser(ctx, "op", "op"), apperr.ErrInvalidInput)
	})
}

func TestAuth_PurgeUserCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "100")
		keeper := f.buyer(t, "b@example.com", "100")
		cat, _ := f.category(t, "steam", "10", "10")

		_, err := f.purchase.Purchase(ctx, buyer, cat.ID, 1)
		require.NoError(t, err)
		_, err = f.purchase.Purchase(ctx, keeper, cat.ID, 1)
		require.NoError(t, err)
		_, err = f.payment.Submit(ctx, buyer, dec("5"), "addr")
		require.NoError(t, err)

		require.NoError(t, f.auth.PurgeUser(ctx, "op", buyer))

		_, err = f.auth.Profile(ctx, buyer)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		owned, err := f.purchase.ListOwned(ctx, buyer)
		require.NoError(t, err)
		assert.Empty(t, owned)
		mine, err := f.payment.ListMine(ctx, buyer)
		require.NoError(t, err)
		assert.Empty(t, mine)

		kept, err := f.purchase.ListOwned(ctx, keeper)
		require.NoError(t, err)
		assert.Len(t, kept, 1)

		assert.ErrorIs(t, f.auth.PurgeUser(ctx, "op", buyer), apperr.ErrNotFound)
	})
}
