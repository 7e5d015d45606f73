package domain

import "time"

// UnlockToken is a single-use capability to unlock a locked account. The
// unlock token goes into the emailed link and the email token is the code
// typed on the unlock page.
type UnlockToken struct {
	ID              string
	UserID          string
	UnlockToken     string
	EmailToken      string
	IPAddress       string
	ExpiresAt       time.Time
	IsUsed          bool
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t UnlockToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Active reports whether the token can still be used at now.
func (t UnlockToken) Active(now time.Time) bool { return !t.IsUsed && !t.Expired(now) }
