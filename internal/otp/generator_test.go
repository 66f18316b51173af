package otp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/otp"
)

func TestGenerate_Lengths(t *testing.T) {
	for length := otp.MinLength; length <= otp.MaxLength; length++ {
		code, err := otp.Generate(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "non-decimal rune %q in %q", r, code)
		}
	}
}

func TestGenerate_Default(t *testing.T) {
	code, err := otp.Generate(0)
	require.NoError(t, err)
	assert.Len(t, code, otp.DefaultLength)
}

func TestGenerate_RejectsOutOfRange(t *testing.T) {
	for _, length := range []int{-1, 1, 2, 3, otp.MaxLength + 1} {
		_, err := otp.Generate(length)
		require.Error(t, err, "length %d", length)
		assert.ErrorIs(t, err, otp.ErrLength)
	}
}

func TestGenerate_Varies(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := otp.Generate(12)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	// 50 draws of 10^12 values colliding down to one is not a realistic outcome.
	assert.Greater(t, len(seen), 1)
}
