package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(token.Config{Secret: []byte("test-secret"), Algorithm: token.AlgHS256})
	require.NoError(t, err)
	return c
}

func TestNewCodec_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     token.Config
		wantErr string
	}{
		{name: "missing secret", cfg: token.Config{Algorithm: token.AlgHS256}, wantErr: "secret is required"},
		{name: "unsupported algorithm", cfg: token.Config{Secret: []byte("s"), Algorithm: "RS256"}, wantErr: "unsupported"},
		{name: "negative leeway", cfg: token.Config{Secret: []byte("s"), Leeway: -time.Second}, wantErr: "leeway"},
		{name: "default algorithm", cfg: token.Config{Secret: []byte("s")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := token.NewCodec(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, c)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newCodec(t)
	claims := token.Claims{"user_id": "42", "scope": "login"}

	signed, err := c.Sign(claims, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(signed, "."))

	got, err := c.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, claims, got)

	_, hasExp := claims["exp"]
	assert.False(t, hasExp, "Sign must not modify the caller's claims")
}

func TestCodec_Expired(t *testing.T) {
	c := newCodec(t)
	signed, err := c.Sign(token.Claims{"user_id": "42"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = c.Verify(signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrExpired)
	assert.NotErrorIs(t, err, token.ErrMalformed)
}

func TestCodec_ExpiresWithClock(t *testing.T) {
	c := newCodec(t)
	signed, err := c.Sign(token.Claims{"user_id": "42"}, time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	later := c.WithClock(func() time.Time { return time.Now().Add(16 * time.Minute) })
	_, err = later.Verify(signed)
	assert.ErrorIs(t, err, token.ErrExpired)
}

func TestCodec_Malformed(t *testing.T) {
	c := newCodec(t)
	other, err := token.NewCodec(token.Config{Secret: []byte("other-secret")})
	require.NoError(t, err)
	foreign, err := other.Sign(token.Claims{"user_id": "42"}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "42"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "42",
		"exp":     time.Now().Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong secret":   foreign,
		"missing expiry": noExp,
		"alg none":       none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Verify(tok)
			require.Error(t, err)
			assert.ErrorIs(t, err, token.ErrMalformed)
		})
	}
}

func TestCodec_SignRequiresExpiry(t *testing.T) {
	c := newCodec(t)
	_, err := c.Sign(token.Claims{"user_id": "42"}, time.Time{})
	require.Error(t, err)
}

func TestClaims_String(t *testing.T) {
	c := token.Claims{"user_id": "42", "n": 1.0, "empty": ""}
	v, ok := c.String("user_id")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = c.String("n")
	assert.False(t, ok)
	_, ok = c.String("empty")
	assert.False(t, ok)
	_, ok = c.String("missing")
	assert.False(t, ok)
}
