// Package token signs and verifies expiring claim sets with a shared secret.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// AlgHS256 is the only supported algorithm.
const AlgHS256 = "HS256"

var (
	// ErrExpired is returned by Verify when the signature is valid but the token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned by Verify for anything that is not a well-formed, correctly signed token.
	ErrMalformed = errors.New("token malformed")
)

// Claims is the issuer-opaque payload carried by a token.
type Claims map[string]any

// String returns the claim at key when it is a non-empty string.
func (c Claims) String(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok && v != ""
}

// Config holds the signing secret and algorithm. It is passed to NewCodec
// explicitly; nothing in this package reads process-wide state.
type Config struct {
	Secret    []byte
	Algorithm string
	Leeway    time.Duration
}

// Codec encodes and decodes signed, expiring claims.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	leeway time.Duration
	now    func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("signing secret is required")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = AlgHS256
	}
	if alg != AlgHS256 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("algorithm", alg).Errorf("unsupported signing algorithm")
	}
	if cfg.Leeway < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("leeway cannot be negative")
	}
	return &Codec{
		secret: cfg.Secret,
		method: jwt.SigningMethodHS256,
		leeway: cfg.Leeway,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from now. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Sign encodes claims with the given absolute expiry. The caller's map is not modified.
func (c *Codec) Sign(claims Claims, expiry time.Time) (string, error) {
	if expiry.IsZero() {
		return "", oops.Code("TOKEN_SIGN_FAILED").Errorf("expiry is required")
	}
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["exp"] = jwt.NewNumericDate(expiry)
	mc["iat"] = jwt.NewNumericDate(c.now())

	signed, err := jwt.NewWithClaims(c.method, mc).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the claims that were passed to Sign.
// The error is ErrExpired or ErrMalformed (possibly wrapped); use errors.Is.
func (c *Codec) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return nil, oops.Code("TOKEN_MALFORMED").Wrap(ErrMalformed)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(c.leeway))
	}

	mc := jwt.MapClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, mc, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrExpired)
		}
		return nil, oops.Code("TOKEN_MALFORMED").With("reason", err.Error()).Wrap(ErrMalformed)
	}

	out := make(Claims, len(mc))
	for k, v := range mc {
		if k == "exp" || k == "iat" {
			continue
		}
		out[k] = v
	}
	return out, nil
}
