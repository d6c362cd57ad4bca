package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/models"
)

func TestAuthenticationEngine_RegisterThenAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	grant, err := env.svc.Auth.Register(ctx, RegisterInput{
		FirstName: "Anna",
		LastName:  "Ivanova",
		Email:     "anna@example.com",
		Password:  "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, grant.Account.Role)
	assert.NotEqual(t, "s3cret", grant.Account.PasswordHash)

	claims, err := env.signer.Verify(grant.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", claims.Subject)
	assert.Equal(t, "USER", claims.Role)

	got, err := env.svc.Auth.Authenticate(ctx, "anna@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, grant.Account.ID, got.Account.ID)
}

func TestAuthenticationEngine_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"empty email", RegisterInput{Password: "x"}},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "x"}},
		{"display name", RegisterInput{Email: "Anna <anna@example.com>", Password: "x"}},
		{"empty password", RegisterInput{Email: "anna@example.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Auth.Register(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, autherr.KindValidation, autherr.KindOf(err))
		})
	}
}

func TestAuthenticationEngine_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := RegisterInput{Email: "dup@example.com", Password: "a"}
	_, err := env.svc.Auth.Register(ctx, in)
	require.NoError(t, err)

	in.Password = "b"
	_, err = env.svc.Auth.Register(ctx, in)
	require.Error(t, err)
	assert.Equal(t, autherr.KindValidation, autherr.KindOf(err))

	// the original password still works
	_, err = env.svc.Auth.Authenticate(ctx, "dup@example.com", "a")
	require.NoError(t, err)
}

func TestAuthenticationEngine_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	register(t, env, "user@example.com", "right")

	_, wrongPw := env.svc.Auth.Authenticate(ctx, "user@example.com", "wrong")
	_, unknown := env.svc.Auth.Authenticate(ctx, "nobody@example.com", "right")

	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.Equal(t, autherr.KindInvalidCredentials, autherr.KindOf(wrongPw))
	assert.Equal(t, autherr.KindInvalidCredentials, autherr.KindOf(unknown))
	assert.Equal(t, wrongPw.Error(), unknown.Error())

	_, err := env.svc.Auth.Authenticate(ctx, "", "")
	assert.Equal(t, autherr.KindValidation, autherr.KindOf(err))
}

func TestAuthenticationEngine_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := register(t, env, "me@example.com", "old")

	change, err := env.svc.Auth.ChangePassword(ctx, ChangePasswordInput{
		AccessToken: sess.AccessToken,
		NewPassword: "new",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", change.NewPassword)
	assert.Equal(t, "me@example.com", change.Account.Email)

	_, err = env.svc.Auth.Authenticate(ctx, "me@example.com", "old")
	assert.Equal(t, autherr.KindInvalidCredentials, autherr.KindOf(err))
	_, err = env.svc.Auth.Authenticate(ctx, "me@example.com", "new")
	require.NoError(t, err)
}

func TestAuthenticationEngine_ChangePasswordPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := register(t, env, "alice@example.com", "pw")
	register(t, env, "bob@example.com", "pw")

	in := ChangePasswordInput{
		AccessToken: alice.AccessToken,
		TargetEmail: "bob@example.com",
		NewPassword: "hijacked",
	}

	_, err := env.svc.Auth.ChangePassword(ctx, in, SelfOrAdmin)
	require.Error(t, err)
	assert.Equal(t, autherr.KindForbidden, autherr.KindOf(err))

	_, err = env.svc.Auth.Authenticate(ctx, "bob@example.com", "pw")
	require.NoError(t, err)

	allowAll := func(Caller, *models.Account) bool { return true }
	_, err = env.svc.Auth.ChangePassword(ctx, in, allowAll)
	require.NoError(t, err)
	_, err = env.svc.Auth.Authenticate(ctx, "bob@example.com", "hijacked")
	require.NoError(t, err)
}

func TestAuthenticationEngine_ChangePasswordErrors(t *testing.T) {
	accounts := newMemAccounts()
	env := newService(t, accounts, newMemTokens())
	ctx := context.Background()
	sess := register(t, env, "gone@example.com", "pw")

	_, err := env.svc.Auth.ChangePassword(ctx, ChangePasswordInput{AccessToken: "garbage", NewPassword: "x"}, nil)
	assert.Equal(t, autherr.KindTokenInvalid, autherr.KindOf(err))

	_, err = env.svc.Auth.ChangePassword(ctx, ChangePasswordInput{AccessToken: sess.AccessToken}, nil)
	assert.Equal(t, autherr.KindValidation, autherr.KindOf(err))

	acc, err := accounts.FindByEmail(ctx, "gone@example.com")
	require.NoError(t, err)
	accounts.delete(acc.ID)

	// the access token is still valid but its account is gone
	_, err = env.svc.Auth.ChangePassword(ctx, ChangePasswordInput{AccessToken: sess.AccessToken, NewPassword: "x"}, nil)
	assert.Equal(t, autherr.KindAccountNotFound, autherr.KindOf(err))
}

func TestSelfOrAdmin(t *testing.T) {
	target := &models.Account{Email: "t@example.com", Role: models.RoleUser}

	assert.True(t, SelfOrAdmin(Caller{Subject: "t@example.com", Role: models.RoleUser}, target))
	assert.True(t, SelfOrAdmin(Caller{Subject: "root@example.com", Role: models.RoleAdmin}, target))
	assert.False(t, SelfOrAdmin(Caller{Subject: "other@example.com", Role: models.RoleUser}, target))
}

func TestAuthenticationEngine_Accounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := register(t, env, "view@example.com", "pw")
	for _, email := range []string{"a@example.com", "b@example.com"} {
		register(t, env, email, "pw")
	}

	current, err := env.svc.Auth.GetCurrentAccount(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "view@example.com", current.Email)

	byID, err := env.svc.Auth.GetAccount(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, current, byID)

	page, err := env.svc.Auth.ListAccounts(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.Page)

	page, err = env.svc.Auth.ListAccounts(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Page)
}
