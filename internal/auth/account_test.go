package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
)

func TestCreateAccount_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   auth.NewAccount
	}{
		{"no email and no phone", auth.NewAccount{Password: "pw"}},
		{"phone without country code", auth.NewAccount{PhoneNumber: "5550100", Password: "pw"}},
		{"country code without phone", auth.NewAccount{Email: "a@x.com", PhoneCountryCode: "+1", Password: "pw"}},
		{"malformed country code", auth.NewAccount{PhoneNumber: "5550100", PhoneCountryCode: "+abc", Password: "pw"}},
		{"malformed email", auth.NewAccount{Email: "not-an-email", Password: "pw"}},
		{"display name email", auth.NewAccount{Email: "A <a@x.com>", Password: "pw"}},
		{"no password", auth.NewAccount{Email: "a@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateAccount(context.Background(), tt.in)
			assert.ErrorIs(t, err, auth.ErrValidation)

			_, err = f.svc.FindUserByEmail(context.Background(), "a@x.com")
			assert.ErrorIs(t, err, auth.ErrNotFound, "nothing is written on invalid input")
		})
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "a@x.com", "pw1")
	assert.False(t, u.IsVerified)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "pw1", u.PasswordHash)

	_, err := f.svc.CreateAccount(context.Background(), auth.NewAccount{Email: " A@X.com ", Password: "pw2"})
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestCreateAccount_DuplicatePhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccount(ctx, auth.NewAccount{PhoneNumber: "5550100", PhoneCountryCode: "+1", Password: "pw"})
	require.NoError(t, err)

	_, err = f.svc.CreateAccount(ctx, auth.NewAccount{PhoneNumber: "5550100", PhoneCountryCode: "+1", Password: "pw"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = f.svc.CreateAccount(ctx, auth.NewAccount{PhoneNumber: "5550100", PhoneCountryCode: "+44", Password: "pw"})
	assert.NoError(t, err, "same number under another country code is a different phone")

	u, err := f.svc.FindUserByPhone(ctx, "5550100", "+44")
	require.NoError(t, err)
	assert.Equal(t, "+44", *u.PhoneCountryCode)
}

func TestLogin_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "a@x.com", "pw1")

	_, err := f.svc.CreateAccount(ctx, auth.NewAccount{Email: "a@x.com", Password: "pw1"})
	require.ErrorIs(t, err, auth.ErrConflict)

	sess, err := f.svc.Login(ctx, auth.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.EqualValues(t, 15*60, sess.ExpiresIn)

	id, err := f.svc.ValidateAccessToken(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Equal(t, sess.User.ID, id.UserID)

	_, err = f.svc.Login(ctx, auth.LoginRequest{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@x.com", "pw1")

	_, err := f.svc.Login(ctx, auth.LoginRequest{Email: "nobody@x.com", Password: "pw1"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.Login(ctx, auth.LoginRequest{Password: "pw1"})
	assert.ErrorIs(t, err, auth.ErrValidation)

	f.softDelete(t, u.ID)
	_, err = f.svc.Login(ctx, auth.LoginRequest{Email: "a@x.com", Password: "pw1"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestLogin_ByPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAccount(ctx, auth.NewAccount{PhoneNumber: "5550100", PhoneCountryCode: "+1", Password: "pw"})
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, auth.LoginRequest{PhoneNumber: "5550100", PhoneCountryCode: "+1", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)

	select {
	case text := <-f.notifier.texts:
		assert.Equal(t, "New login from 5550100", text)
	case <-time.After(2 * time.Second):
		t.Fatal("login notification not sent")
	}
}

func TestLogin_NotifiesOperators(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "a@x.com", "pw1")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.svc.Login(ctx, auth.LoginRequest{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	cancel()

	select {
	case text := <-f.notifier.texts:
		assert.Equal(t, "New login from a@x.com", text)
	case <-time.After(2 * time.Second):
		t.Fatal("login notification not sent")
	}
}

func TestSyncAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, updated, err := f.svc.SyncAccount(ctx, auth.SyncAccount{
		ID:         "ext-1",
		NewAccount: auth.NewAccount{Email: "a@x.com", Password: "pw"},
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "ext-1", u.ID)
	assert.True(t, u.IsVerified)

	u, updated, err = f.svc.SyncAccount(ctx, auth.SyncAccount{
		ID:         "ext-1",
		NewAccount: auth.NewAccount{Email: "b@x.com"},
	})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "b@x.com", u.EmailOrEmpty())
	assert.True(t, u.IsActive, "sync of an existing account only touches the email")

	f.createUser(t, "c@x.com", "pw")
	_, _, err = f.svc.SyncAccount(ctx, auth.SyncAccount{ID: "ext-1", NewAccount: auth.NewAccount{Email: "c@x.com"}})
	assert.ErrorIs(t, err, auth.ErrConflict)

	got, err := f.svc.GetUser(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", got.EmailOrEmpty(), "failed sync is rolled back")
}

func TestSyncAccount_CreatesWithGeneratedID(t *testing.T) {
	f := newFixture(t)
	u, updated, err := f.svc.SyncAccount(context.Background(), auth.SyncAccount{
		NewAccount: auth.NewAccount{Email: "a@x.com"},
	})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.IsActive)
	assert.Empty(t, u.PasswordHash)

	_, err = f.svc.Login(context.Background(), auth.LoginRequest{Email: "a@x.com", Password: ""})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := auth.NewService(auth.DefaultConfig(), auth.Deps{})
	assert.Error(t, err)

	f := newFixture(t)
	assert.Equal(t, 6, f.svc.Config().CodeLength)
}

func TestSyncAccount_KeepsAContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@x.com", "pw1")

	_, updated, err := f.svc.SyncAccount(ctx, auth.SyncAccount{ID: u.ID})
	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.False(t, updated)

	got, err := f.svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.EmailOrEmpty(), "nothing is written on invalid input")

	p, err := f.svc.CreateAccount(ctx, auth.NewAccount{
		Email: "p@x.com", PhoneNumber: "5550100", PhoneCountryCode: "+1", Password: "pw",
	})
	require.NoError(t, err)
	got, updated, err = f.svc.SyncAccount(ctx, auth.SyncAccount{ID: p.ID})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Nil(t, got.Email, "the phone still identifies the account")
}
