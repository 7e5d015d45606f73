package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
)

// Error categories. Every typed error below matches exactly one of these
// through errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("locked")
	ErrAccountInactive    = errors.New("account not active")
	ErrToken              = errors.New("invalid token")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
)

var (
	ErrInvalidTOTPCode      = errors.New("invalid TOTP code")
	ErrTwoFAAlreadyEnabled  = errors.New("2FA already enabled for this user")
	ErrTwoFANotEnabled      = errors.New("2FA not enabled for this user")
	ErrUnsupportedProvider  = errors.New("unsupported OAuth provider")
	ErrProviderToken        = errors.New("provider rejected the token")
	ErrProviderEmailMissing = errors.New("provider did not return an email address")
)

// ValidationError reports malformed input. It is raised before any store
// access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CredentialsError is the generic login failure. AttemptsRemaining is UX
// feedback only.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string { return "email or password incorrect" }

func (e *CredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// LockScope tells an IP block apart from an account lock.
type LockScope string

const (
	LockScopeIP      LockScope = "ip"
	LockScopeAccount LockScope = "account"
)

// LockedError is returned while an IP is blocked or an account is locked.
type LockedError struct {
	Scope       LockScope
	LockedUntil *time.Time
	Reason      string
	// EmailSent is true when this request locked the account and an unlock
	// email went out.
	EmailSent bool
	// RetryAfter is set for IP blocks.
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	if e.Scope == LockScopeIP {
		return "too many failed login attempts from this address"
	}
	return "account is locked"
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// AccountStatusError is returned for SUSPENDED, DELETED or other non-active
// accounts.
type AccountStatusError struct {
	Status domain.UserStatus
}

func (e *AccountStatusError) Error() string {
	switch e.Status {
	case domain.StatusSuspended:
		return "account is suspended"
	case domain.StatusDeleted:
		return "account has been deleted"
	default:
		return fmt.Sprintf("account is not active (%s)", e.Status)
	}
}

func (e *AccountStatusError) Is(target error) bool { return target == ErrAccountInactive }

// TokenReason says why a token was rejected.
type TokenReason string

const (
	TokenInvalid          TokenReason = "invalid"
	TokenExpired          TokenReason = "expired"
	TokenUsed             TokenReason = "used"
	TokenEmailNotVerified TokenReason = "email_not_verified"
)

// TokenError rejects an unlock, setup, challenge or refresh token.
type TokenError struct {
	Reason TokenReason
}

func (e *TokenError) Error() string {
	switch e.Reason {
	case TokenExpired:
		return "token has expired"
	case TokenUsed:
		return "token has already been used"
	case TokenEmailNotVerified:
		return "email verification is required first"
	default:
		return "token is invalid"
	}
}

func (e *TokenError) Is(target error) bool { return target == ErrToken }

// ConflictError carries a user-facing message explaining what clashed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
