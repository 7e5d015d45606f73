package domain

import "time"

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	StatusActive    UserStatus = "ACTIVE"
	StatusLocked    UserStatus = "LOCKED"
	StatusSuspended UserStatus = "SUSPENDED"
	StatusDeleted   UserStatus = "DELETED"
)

// AuthProvider records how an account was first created.
type AuthProvider string

const (
	AuthProviderLocal    AuthProvider = "local"
	AuthProviderGoogle   AuthProvider = "google"
	AuthProviderFacebook AuthProvider = "facebook"
)

// Presence is the online indicator shown to other learners.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// DefaultRole is assigned at registration.
const DefaultRole = "student"

type User struct {
	ID           string
	Username     string
	Email        string // primary, lower-cased
	FullName     string
	PasswordHash string // argon2id encoded, or legacy bcrypt
	Role         string
	Status       UserStatus

	// Lock fields are set together while Status is LOCKED.
	LockReason          *string
	LockDurationMinutes *int
	LockedUntil         *time.Time

	TwoFAEnabled  bool
	TwoFARequired bool
	TwoFASecret   *string // base32; present once setup began

	// Last TOTP step and login challenge accepted. Neither may be used twice.
	TwoFALastStep      *int64
	TwoFALastChallenge *string

	HasPasskey    bool
	EmailVerified bool
	AuthProvider  AuthProvider
	Presence      Presence
	LastLoginAt   *time.Time
	LastLoginIP   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the account may authenticate.
func (u User) IsActive() bool { return u.Status == StatusActive }

// TwoFAPending reports whether a secret was generated but never confirmed.
func (u User) TwoFAPending() bool { return !u.TwoFAEnabled && u.TwoFASecret != nil }

// UserEmail is a secondary address attached to an account. Only verified
// rows can be used to log in.
type UserEmail struct {
	ID        string
	UserID    string
	Email     string
	Verified  bool
	CreatedAt time.Time
}
