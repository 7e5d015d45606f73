package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so a Tx can only be opened from the root store, never from
// inside another transaction.
type Store interface {
	Users() Users
	Emails() Emails
	LoginAttempts() LoginAttempts
	UnlockTokens() UnlockTokens
	OAuthConnections() OAuthConnections

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a duplicate username or email.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches the primary email only. Callers pass a
	// lower-cased address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// LockUser sets status LOCKED with the lock fields and forces 2FA.
	LockUser(ctx context.Context, userID, reason string, durationMinutes int, lockedUntil time.Time) error

	// UnlockUser sets status ACTIVE, clears the lock fields and forces 2FA.
	UnlockUser(ctx context.Context, userID string) error

	// SetTwoFASecret stores a pending secret; enabled stays false.
	SetTwoFASecret(ctx context.Context, userID, secret string) error

	// EnableTwoFA sets enabled and clears the required flag.
	EnableTwoFA(ctx context.Context, userID string) error

	// DisableTwoFA clears the secret and the enabled flag.
	DisableTwoFA(ctx context.Context, userID string) error

	// ConsumeTwoFAChallenge records the TOTP step and challenge id of an
	// accepted login. It reports false, changing nothing, when step is not
	// newer than the last accepted step or challengeID was already used.
	ConsumeTwoFAChallenge(ctx context.Context, userID, challengeID string, step int64) (bool, error)

	// RecordLogin stamps last login time and IP and marks the user online.
	RecordLogin(ctx context.Context, userID, ip string, at time.Time) error

	SetPresence(ctx context.Context, userID string, p domain.Presence) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

type Emails interface {
	// AddEmail attaches a secondary address to a user.
	AddEmail(ctx context.Context, e domain.UserEmail) error

	// FindVerifiedUserID returns the owner of a verified secondary address.
	FindVerifiedUserID(ctx context.Context, email string) (string, error)
}

type LoginAttempts interface {
	// CreateLoginAttempt appends to the ledger.
	CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error

	// CountFailuresByIPSince counts failed attempts from ip at or after since,
	// skipping failures recorded with one of excludeReasons.
	CountFailuresByIPSince(ctx context.Context, ip string, since time.Time, excludeReasons ...string) (int, error)

	// ListRecentByEmail returns up to limit attempts for email, newest first,
	// skipping failures recorded with one of excludeReasons.
	ListRecentByEmail(ctx context.Context, email string, limit int, excludeReasons ...string) ([]domain.LoginAttempt, error)

	// DeleteBefore removes ledger rows older than cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type UnlockTokens interface {
	CreateUnlockToken(ctx context.Context, t domain.UnlockToken) error

	// InvalidateActive marks every unused token for the user as used.
	InvalidateActive(ctx context.Context, userID string) error

	GetByID(ctx context.Context, id string) (domain.UnlockToken, error)
	GetByUnlockToken(ctx context.Context, unlockToken string) (domain.UnlockToken, error)
	GetByEmailToken(ctx context.Context, emailToken string) (domain.UnlockToken, error)

	// MarkEmailVerified sets email_verified and its timestamp.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error

	// MarkUsed is idempotent.
	MarkUsed(ctx context.Context, id string) error

	// HasActive reports whether the user has an unused token expiring after now.
	HasActive(ctx context.Context, userID string, now time.Time) (bool, error)

	// DeleteExpired removes tokens that are used or expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type OAuthConnections interface {
	// GetByProviderUserID finds the connection for an external identity.
	GetByProviderUserID(ctx context.Context, p domain.Provider, providerUserID string) (domain.OAuthConnection, error)

	// GetByUserProvider finds a user's connection to p.
	GetByUserProvider(ctx context.Context, userID string, p domain.Provider) (domain.OAuthConnection, error)

	ListByUser(ctx context.Context, userID string) ([]domain.OAuthConnection, error)

	// CreateConnection returns ErrAlreadyExists when the identity or the
	// user/provider pair is taken.
	CreateConnection(ctx context.Context, c domain.OAuthConnection) error

	// TouchConnection refreshes profile data and last_used_at.
	TouchConnection(ctx context.Context, c domain.OAuthConnection, at time.Time) error

	// DeleteConnection returns ErrNotFound if nothing was removed.
	DeleteConnection(ctx context.Context, userID string, p domain.Provider) error
}
