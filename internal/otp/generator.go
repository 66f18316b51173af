// Package otp generates numeric one-time codes.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/samber/oops"
)

const (
	DefaultLength = 6
	MinLength     = 4
	MaxLength     = 12
)

// ErrLength is returned for a requested length outside [MinLength, MaxLength].
var ErrLength = errors.New("invalid code length")

var ten = big.NewInt(10)

// Generate returns a decimal string of exactly length digits drawn from crypto/rand.
// A zero length selects DefaultLength.
func Generate(length int) (string, error) {
	if length == 0 {
		length = DefaultLength
	}
	if length < MinLength || length > MaxLength {
		return "", oops.Code("OTP_LENGTH_INVALID").
			With("length", length).
			With("min", MinLength).
			With("max", MaxLength).
			Wrap(ErrLength)
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", oops.Code("OTP_GENERATE_FAILED").Wrap(err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
