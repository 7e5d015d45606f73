package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret NewHS256 accepts.
const MinSecretLength = 32

// Signer is anything that can mint tokens for our claim set.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256 signs and verifies tokens with a shared secret. It implements both
// Signer and Verifier.
type HS256 struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ Signer = (*HS256)(nil)
var _ Verifier = (*HS256)(nil)

// NewHS256 returns an HS256 signer. When now is nil, time.Now is used.
func NewHS256(secret []byte, issuer string, now func() time.Time) (*HS256, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwtx: secret must be at least %d bytes", MinSecretLength)
	}
	if now == nil {
		now = time.Now
	}
	return &HS256{secret: secret, issuer: issuer, now: now}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign stamps the issuer and returns the compact serialisation.
func (h *HS256) Sign(c Claims) (string, error) {
	if c.Purpose == "" {
		return "", ErrInvalidClaim
	}
	c.Issuer = h.issuer
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(h.secret)
}

// Issue builds, adjusts and signs claims in one step.
func (h *HS256) Issue(subject string, purpose Purpose, ttl time.Duration, opts ...func(*Claims)) (string, Claims, error) {
	c := NewClaims(subject, purpose, ttl, h.now())
	for _, opt := range opts {
		opt(&c)
	}
	token, err := h.Sign(c)
	if err != nil {
		return "", Claims{}, err
	}
	c.Issuer = h.issuer
	return token, c, nil
}

// Verify checks signature, algorithm, issuer and exp/nbf against the
// configured clock.
func (h *HS256) Verify(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) { return h.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithTimeFunc(h.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	return c, nil
}

// VerifyPurpose is Verify followed by ExpectPurpose.
func (h *HS256) VerifyPurpose(token string, allowed ...Purpose) (Claims, error) {
	c, err := h.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if err := c.ExpectPurpose(allowed...); err != nil {
		return Claims{}, err
	}
	return c, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
