package domain

import "time"

// LoginAttempt is one entry of the append-only login ledger.
type LoginAttempt struct {
	ID            string
	IPAddress     string
	Email         string
	UserID        *string // nil when the email did not resolve to an account
	Success       bool
	UserAgent     string
	FailureReason *string
	AttemptedAt   time.Time
}

// Failure reasons written to the ledger.
const (
	ReasonIPBlocked        = "IP blocked"
	ReasonUserNotFound     = "User not found"
	ReasonAccountLocked    = "Account locked"
	ReasonAccountInactive  = "Account not active"
	ReasonInvalidPassword  = "Invalid password"
	ReasonInvalidTwoFACode = "Invalid 2FA code"
	ReasonSystemError      = "System error"
)
