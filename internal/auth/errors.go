package auth

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers classify errors with errors.Is. Expired access,
// refresh and one-time credentials match their primary kind and ErrExpired;
// an expired device token matches ErrExpired alone.
var (
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
)

var (
	errExpiredUnauthenticated = fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpired)
	errExpiredUnauthorized    = fmt.Errorf("%w: %w", ErrUnauthorized, ErrExpired)
)
