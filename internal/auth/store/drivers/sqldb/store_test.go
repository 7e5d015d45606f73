package sqldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/internal/auth/store/drivers/sqldb"
	"github.com/aussiebroadwan/studyhub/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *sqldb.Store {
	t.Helper()

	s, err := sqldb.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newUser(username string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		PasswordHash: "$argon2id$dummy",
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore(t))
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.ApplyMigrations())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := sqldb.Open("mysql", "")
	require.Error(t, err)
}

// runStoreSuite exercises every repository; it is shared with the
// Postgres integration test.
func runStoreSuite(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		u := newUser("alice")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		got, err := s.Users().GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, domain.StatusActive, got.Status)
		require.Equal(t, domain.DefaultRole, got.Role)
		require.Equal(t, domain.AuthProviderLocal, got.AuthProvider)
		require.False(t, got.TwoFARequired)
		require.Nil(t, got.LockedUntil)

		_, err = s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)

		dup := newUser("alice")
		err = s.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		_, err = s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("lock and unlock", func(t *testing.T) {
		u := newUser("bob")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		until := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
		require.NoError(t, s.Users().LockUser(ctx, u.ID, "Too many failed login attempts", 30, until))

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusLocked, got.Status)
		require.NotNil(t, got.LockedUntil)
		require.True(t, until.Equal(*got.LockedUntil))
		require.Equal(t, "Too many failed login attempts", *got.LockReason)
		require.Equal(t, 30, *got.LockDurationMinutes)
		require.True(t, got.TwoFARequired)

		require.NoError(t, s.Users().UnlockUser(ctx, u.ID))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusActive, got.Status)
		require.Nil(t, got.LockedUntil)
		require.Nil(t, got.LockReason)
		require.Nil(t, got.LockDurationMinutes)
		require.True(t, got.TwoFARequired)

		require.ErrorIs(t, s.Users().LockUser(ctx, "missing", "x", 30, until), store.ErrNotFound)
	})

	t.Run("two factor", func(t *testing.T) {
		u := newUser("carol")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		require.NoError(t, s.Users().SetTwoFASecret(ctx, u.ID, "JBSWY3DPEHPK3PXP"))
		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.TwoFAPending())

		require.NoError(t, s.Users().EnableTwoFA(ctx, u.ID))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.TwoFAEnabled)
		require.False(t, got.TwoFARequired)

		require.NoError(t, s.Users().DisableTwoFA(ctx, u.ID))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFAEnabled)
		require.Nil(t, got.TwoFASecret)
	})

	t.Run("two factor challenge consumption", func(t *testing.T) {
		u := newUser("cleo")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		ok, err := s.Users().ConsumeTwoFAChallenge(ctx, u.ID, "jti-1", 100)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.TwoFALastStep)
		require.EqualValues(t, 100, *got.TwoFALastStep)
		require.NotNil(t, got.TwoFALastChallenge)
		require.Equal(t, "jti-1", *got.TwoFALastChallenge)

		// Same step under a new challenge, and same challenge at a newer step.
		ok, err = s.Users().ConsumeTwoFAChallenge(ctx, u.ID, "jti-2", 100)
		require.NoError(t, err)
		require.False(t, ok)
		ok, err = s.Users().ConsumeTwoFAChallenge(ctx, u.ID, "jti-1", 101)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.Users().ConsumeTwoFAChallenge(ctx, u.ID, "jti-2", 101)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("record login and presence", func(t *testing.T) {
		u := newUser("dave")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.Users().RecordLogin(ctx, u.ID, "10.0.0.1", at))
		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, domain.PresenceOnline, got.Presence)
		require.Equal(t, "10.0.0.1", *got.LastLoginIP)
		require.True(t, at.Equal(*got.LastLoginAt))

		require.NoError(t, s.Users().SetPresence(ctx, u.ID, domain.PresenceOffline))
		require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "$argon2id$new"))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, domain.PresenceOffline, got.Presence)
		require.Equal(t, "$argon2id$new", got.PasswordHash)
	})

	t.Run("secondary emails", func(t *testing.T) {
		u := newUser("erin")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		require.NoError(t, s.Emails().AddEmail(ctx, domain.UserEmail{
			ID: idx.New().String(), UserID: u.ID, Email: "erin@school.edu", Verified: true,
		}))
		require.NoError(t, s.Emails().AddEmail(ctx, domain.UserEmail{
			ID: idx.New().String(), UserID: u.ID, Email: "erin@pending.edu",
		}))

		id, err := s.Emails().FindVerifiedUserID(ctx, "erin@school.edu")
		require.NoError(t, err)
		require.Equal(t, u.ID, id)

		_, err = s.Emails().FindVerifiedUserID(ctx, "erin@pending.edu")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("login attempts", func(t *testing.T) {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		record := func(email, ip string, success bool, at time.Time) {
			require.NoError(t, s.LoginAttempts().CreateLoginAttempt(ctx, domain.LoginAttempt{
				ID:          idx.NewAt(at).String(),
				IPAddress:   ip,
				Email:       email,
				Success:     success,
				AttemptedAt: at,
			}))
		}

		record("f@example.com", "192.0.2.1", false, base.Add(-20*time.Minute))
		record("f@example.com", "192.0.2.1", false, base.Add(-10*time.Minute))
		record("g@example.com", "192.0.2.1", false, base.Add(-5*time.Minute))
		record("f@example.com", "192.0.2.1", true, base.Add(-4*time.Minute))
		record("f@example.com", "192.0.2.2", false, base.Add(-1*time.Minute))

		n, err := s.LoginAttempts().CountFailuresByIPSince(ctx, "192.0.2.1", base.Add(-15*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 2, n)

		recent, err := s.LoginAttempts().ListRecentByEmail(ctx, "f@example.com", 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		require.False(t, recent[0].Success)
		require.True(t, recent[1].Success)
		require.True(t, recent[0].AttemptedAt.After(recent[1].AttemptedAt))

		reason := domain.ReasonInvalidTwoFACode
		require.NoError(t, s.LoginAttempts().CreateLoginAttempt(ctx, domain.LoginAttempt{
			ID:            idx.NewAt(base.Add(-30 * time.Second)).String(),
			IPAddress:     "192.0.2.1",
			Email:         "f@example.com",
			FailureReason: &reason,
			AttemptedAt:   base.Add(-30 * time.Second),
		}))

		n, err = s.LoginAttempts().CountFailuresByIPSince(ctx, "192.0.2.1", base.Add(-15*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 3, n)
		n, err = s.LoginAttempts().CountFailuresByIPSince(ctx, "192.0.2.1", base.Add(-15*time.Minute), reason)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		recent, err = s.LoginAttempts().ListRecentByEmail(ctx, "f@example.com", 2, reason)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		require.True(t, base.Add(-time.Minute).Equal(recent[0].AttemptedAt))
		require.True(t, recent[1].Success)

		deleted, err := s.LoginAttempts().DeleteBefore(ctx, base.Add(-15*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
	})

	t.Run("unlock tokens", func(t *testing.T) {
		u := newUser("frank")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		at := time.Now().UTC()
		tok := domain.UnlockToken{
			ID:          idx.New().String(),
			UserID:      u.ID,
			UnlockToken: "unlock-1",
			EmailToken:  "email-1",
			IPAddress:   "192.0.2.1",
			ExpiresAt:   at.Add(24 * time.Hour),
		}
		require.NoError(t, s.UnlockTokens().CreateUnlockToken(ctx, tok))

		active, err := s.UnlockTokens().HasActive(ctx, u.ID, at)
		require.NoError(t, err)
		require.True(t, active)

		got, err := s.UnlockTokens().GetByEmailToken(ctx, "email-1")
		require.NoError(t, err)
		require.Equal(t, tok.ID, got.ID)
		require.False(t, got.EmailVerified)

		require.NoError(t, s.UnlockTokens().MarkEmailVerified(ctx, tok.ID, at))
		got, err = s.UnlockTokens().GetByUnlockToken(ctx, "unlock-1")
		require.NoError(t, err)
		require.True(t, got.EmailVerified)
		require.NotNil(t, got.EmailVerifiedAt)

		require.NoError(t, s.UnlockTokens().InvalidateActive(ctx, u.ID))
		got, err = s.UnlockTokens().GetByID(ctx, tok.ID)
		require.NoError(t, err)
		require.True(t, got.IsUsed)

		// Marking used twice is fine.
		require.NoError(t, s.UnlockTokens().MarkUsed(ctx, tok.ID))

		active, err = s.UnlockTokens().HasActive(ctx, u.ID, at)
		require.NoError(t, err)
		require.False(t, active)

		deleted, err := s.UnlockTokens().DeleteExpired(ctx, at)
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
	})

	t.Run("oauth connections", func(t *testing.T) {
		u := newUser("grace")
		other := newUser("heidi")
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Users().CreateUser(ctx, other))

		conn := domain.OAuthConnection{
			ID:             idx.New().String(),
			UserID:         u.ID,
			Provider:       domain.ProviderGoogle,
			ProviderUserID: "google-sub-1",
			ProviderEmail:  "grace@gmail.com",
		}
		require.NoError(t, s.OAuthConnections().CreateConnection(ctx, conn))

		// Same identity on another user.
		dup := conn
		dup.ID = idx.New().String()
		dup.UserID = other.ID
		require.ErrorIs(t, s.OAuthConnections().CreateConnection(ctx, dup), store.ErrAlreadyExists)

		// Second Google identity on the same user.
		dup = conn
		dup.ID = idx.New().String()
		dup.ProviderUserID = "google-sub-2"
		require.ErrorIs(t, s.OAuthConnections().CreateConnection(ctx, dup), store.ErrAlreadyExists)

		got, err := s.OAuthConnections().GetByProviderUserID(ctx, domain.ProviderGoogle, "google-sub-1")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.UserID)
		require.Nil(t, got.LastUsedAt)

		got.ProviderName = "Grace"
		require.NoError(t, s.OAuthConnections().TouchConnection(ctx, got, time.Now()))
		got, err = s.OAuthConnections().GetByUserProvider(ctx, u.ID, domain.ProviderGoogle)
		require.NoError(t, err)
		require.Equal(t, "Grace", got.ProviderName)
		require.NotNil(t, got.LastUsedAt)

		list, err := s.OAuthConnections().ListByUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, s.OAuthConnections().DeleteConnection(ctx, u.ID, domain.ProviderGoogle))
		require.ErrorIs(t, s.OAuthConnections().DeleteConnection(ctx, u.ID, domain.ProviderGoogle), store.ErrNotFound)
	})

	t.Run("transactions roll back on error", func(t *testing.T) {
		u := newUser("ivan")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().CreateUser(ctx, u); err != nil {
				return err
			}
			return store.ErrAlreadyExists
		})
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, u)
		}))
		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
	})
}
