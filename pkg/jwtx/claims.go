package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetimes for each token purpose. Access TTL is configurable per
// deployment; the rest are fixed by the login and unlock flows.
const (
	DefaultAccessTokenTTL = 24 * time.Hour
	RefreshTokenTTL       = 30 * 24 * time.Hour
	LoginChallengeTTL     = 5 * time.Minute
	TwoFASetupTTL         = 15 * time.Minute
	UnlockTwoFATTL        = 10 * time.Minute
)

// Purpose scopes a token to the single step it was minted for. A refresh
// token can never authenticate a request and a login challenge can never
// refresh a session.
type Purpose string

const (
	PurposeAccess     Purpose = "access"
	PurposeRefresh    Purpose = "refresh"
	PurposeLogin2FA   Purpose = "login_2fa"
	PurposeTwoFASetup Purpose = "2fa_setup"
	PurposeUnlock2FA  Purpose = "unlock_2fa"
)

// Authentication method references carried in the "amr" claim.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
)

// Claims is the single claim set shared by every token the service mints.
// Fields irrelevant to a purpose are left empty and omitted on the wire.
type Claims struct {
	jwt.RegisteredClaims

	Purpose Purpose `json:"token_type"`

	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`

	// Authentication methods used, e.g. ["pwd","otp"] or ["google"].
	AMR []string `json:"amr,omitempty"`

	// Login challenge marker.
	TwoFAAllowed bool `json:"twoFaAllowed,omitempty"`

	// Unlock stage B correlation.
	UnlockTokenID string `json:"tokenId,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
}

// NewClaims builds claims for subject valid from now until now+ttl.
func NewClaims(subject string, purpose Purpose, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Purpose: purpose,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ExpectPurpose fails unless the token was minted for one of allowed.
func (c *Claims) ExpectPurpose(allowed ...Purpose) error {
	if slices.Contains(allowed, c.Purpose) {
		return nil
	}
	return ErrPurpose
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
