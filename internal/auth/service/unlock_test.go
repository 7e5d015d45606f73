package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// lockedUser registers a user, locks the account and issues an unlock token.
func lockedUser(t *testing.T, f *fixture, username string) (domain.User, GeneratedUnlockToken) {
	t.Helper()
	ctx := context.Background()

	u := f.register(t, username, "secret1")
	_, err := f.Lockout.LockAccount(ctx, u.ID, LockReasonTooManyAttempts)
	require.NoError(t, err)
	tok, err := f.Unlock.GenerateUnlockToken(ctx, u.ID, "198.51.100.7")
	require.NoError(t, err)
	return f.user(t, u.ID), tok
}

func TestGenerateUnlockToken(t *testing.T) {
	f := newFixture(t, nil)
	_, tok := lockedUser(t, f, "alice")

	require.NotEmpty(t, tok.UnlockToken)
	require.NotEmpty(t, tok.EmailToken)
	require.NotEqual(t, tok.UnlockToken, tok.EmailToken)
	require.True(t, testEpoch.Add(UnlockTokenTTL).Equal(tok.ExpiresAt))
}

func TestNewUnlockTokenInvalidatesPrevious(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u, old := lockedUser(t, f, "alice")

	fresh, err := f.Unlock.GenerateUnlockToken(ctx, u.ID, "198.51.100.7")
	require.NoError(t, err)

	check, err := f.Unlock.VerifyUnlockToken(ctx, old.UnlockToken)
	require.NoError(t, err)
	require.False(t, check.Valid)
	require.Equal(t, TokenUsed, check.Reason)

	_, err = f.Unlock.VerifyEmailToken(ctx, old.EmailToken)
	require.ErrorIs(t, err, ErrToken)

	check, err = f.Unlock.VerifyUnlockToken(ctx, fresh.UnlockToken)
	require.NoError(t, err)
	require.True(t, check.Valid)
	require.Equal(t, u.ID, check.UserID)
	require.Equal(t, fresh.ID, check.TokenID)
	require.Equal(t, fresh.EmailToken, check.EmailToken)
}

func TestVerifyUnlockTokenReasons(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, tok := lockedUser(t, f, "alice")

	check, err := f.Unlock.VerifyUnlockToken(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, UnlockTokenCheck{Reason: TokenInvalid}, check)

	f.clock.Advance(UnlockTokenTTL)
	check, err = f.Unlock.VerifyUnlockToken(ctx, tok.UnlockToken)
	require.NoError(t, err)
	require.False(t, check.Valid)
	require.Equal(t, TokenExpired, check.Reason)

	// Used wins over expired.
	require.NoError(t, f.Unlock.UseUnlockToken(ctx, tok.ID))
	require.NoError(t, f.Unlock.UseUnlockToken(ctx, tok.ID))
	check, err = f.Unlock.VerifyUnlockToken(ctx, tok.UnlockToken)
	require.NoError(t, err)
	require.Equal(t, TokenUsed, check.Reason)
}

func TestEmailStageUnlocksWithoutTwoFA(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u, tok := lockedUser(t, f, "alice")

	_, err := f.Unlock.VerifyEmailToken(ctx, "  ")
	require.ErrorIs(t, err, ErrValidation)

	res, err := f.Unlock.VerifyEmailToken(ctx, tok.EmailToken)
	require.NoError(t, err)
	require.True(t, res.Unlocked)
	require.False(t, res.RequiresTwoFA)
	require.Empty(t, res.TempToken)

	stored := f.user(t, u.ID)
	require.Equal(t, domain.StatusActive, stored.Status)
	require.True(t, stored.TwoFARequired)
	require.Nil(t, stored.LockedUntil)

	sent := f.notifier.last(t, NotifyAccountUnlocked)
	require.Equal(t, u.Email, sent.Recipient)

	attempts, err := f.store.LoginAttempts().ListRecentByEmail(ctx, u.Email, 1)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)
	require.Equal(t, "198.51.100.7", attempts[0].IPAddress)

	// The token is single use.
	_, err = f.Unlock.VerifyEmailToken(ctx, tok.EmailToken)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, TokenUsed, terr.Reason)
}

func TestEmailStageRejectsExpiredToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u, tok := lockedUser(t, f, "alice")

	f.clock.Advance(UnlockTokenTTL + time.Minute)
	_, err := f.Unlock.VerifyEmailToken(ctx, tok.EmailToken)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, TokenExpired, terr.Reason)
	require.Equal(t, domain.StatusLocked, f.user(t, u.ID).Status)
}

func TestTwoStageUnlock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	u := f.register(t, "alice", "secret1")
	secret := f.enableTwoFA(t, u.ID)
	_, err := f.Lockout.LockAccount(ctx, u.ID, LockReasonTooManyAttempts)
	require.NoError(t, err)
	tok, err := f.Unlock.GenerateUnlockToken(ctx, u.ID, "198.51.100.7")
	require.NoError(t, err)

	t.Run("signed token without email stage", func(t *testing.T) {
		forged, _, err := f.tokens.Issue(u.ID, jwtx.PurposeUnlock2FA, jwtx.UnlockTwoFATTL, func(c *jwtx.Claims) {
			c.UnlockTokenID = tok.ID
			c.EmailVerified = true
		})
		require.NoError(t, err)

		err = f.Unlock.VerifyTwoFAUnlock(ctx, codeAt(t, secret, f.clock.Now()), forged)
		var terr *TokenError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, TokenEmailNotVerified, terr.Reason)
	})

	res, err := f.Unlock.VerifyEmailToken(ctx, tok.EmailToken)
	require.NoError(t, err)
	require.False(t, res.Unlocked)
	require.True(t, res.RequiresTwoFA)
	require.Equal(t, domain.StatusLocked, f.user(t, u.ID).Status)

	claims, err := f.tokens.VerifyPurpose(res.TempToken, jwtx.PurposeUnlock2FA)
	require.NoError(t, err)
	require.Equal(t, tok.ID, claims.UnlockTokenID)
	require.True(t, testEpoch.Add(jwtx.UnlockTwoFATTL).Equal(claims.Expiry()))

	t.Run("wrong code", func(t *testing.T) {
		err := f.Unlock.VerifyTwoFAUnlock(ctx, wrongCode(t, f, secret), res.TempToken)
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		require.Equal(t, domain.StatusLocked, f.user(t, u.ID).Status)
	})

	t.Run("access token rejected", func(t *testing.T) {
		access, _, err := f.tokens.Issue(u.ID, jwtx.PurposeAccess, time.Hour)
		require.NoError(t, err)
		err = f.Unlock.VerifyTwoFAUnlock(ctx, codeAt(t, secret, f.clock.Now()), access)
		require.ErrorIs(t, err, ErrToken)
	})

	require.NoError(t, f.Unlock.VerifyTwoFAUnlock(ctx, codeAt(t, secret, f.clock.Now()), res.TempToken))
	require.Equal(t, domain.StatusActive, f.user(t, u.ID).Status)
	require.Equal(t, 1, f.notifier.count(NotifyAccountUnlocked))

	err = f.Unlock.VerifyTwoFAUnlock(ctx, codeAt(t, secret, f.clock.Now()), res.TempToken)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, TokenUsed, terr.Reason)
}

func TestTwoStageUnlockTempTokenExpires(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	u := f.register(t, "alice", "secret1")
	secret := f.enableTwoFA(t, u.ID)
	_, err := f.Lockout.LockAccount(ctx, u.ID, LockReasonTooManyAttempts)
	require.NoError(t, err)
	tok, err := f.Unlock.GenerateUnlockToken(ctx, u.ID, "")
	require.NoError(t, err)

	res, err := f.Unlock.VerifyEmailToken(ctx, tok.EmailToken)
	require.NoError(t, err)

	f.clock.Advance(jwtx.UnlockTwoFATTL + time.Second)
	err = f.Unlock.VerifyTwoFAUnlock(ctx, codeAt(t, secret, f.clock.Now()), res.TempToken)
	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, TokenExpired, terr.Reason)
}

func TestRequestUnlockEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, f.Unlock.RequestUnlockEmail(ctx, "", "10.0.0.1"), ErrValidation)

	// Unknown and unlocked addresses get the same silent success.
	require.NoError(t, f.Unlock.RequestUnlockEmail(ctx, "ghost@example.com", "10.0.0.1"))
	f.register(t, "bob", "secret1")
	require.NoError(t, f.Unlock.RequestUnlockEmail(ctx, "bob@example.com", "10.0.0.1"))
	require.Zero(t, f.notifier.count(NotifyAccountLocked))

	u, old := lockedUser(t, f, "alice")
	require.NoError(t, f.Unlock.RequestUnlockEmail(ctx, "ALICE@example.com", "10.0.0.1"))
	sent := f.notifier.last(t, NotifyAccountLocked)
	require.Equal(t, u.Email, sent.Recipient)
	require.NotEqual(t, old.EmailToken, sent.Data["emailToken"])

	check, err := f.Unlock.VerifyUnlockToken(ctx, old.UnlockToken)
	require.NoError(t, err)
	require.False(t, check.Valid)
}

func TestUnlockStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	st, err := f.Unlock.Status(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Equal(t, LockStatus{}, st)

	u, _ := lockedUser(t, f, "alice")
	st, err = f.Unlock.Status(ctx, u.Email)
	require.NoError(t, err)
	require.True(t, st.Locked)
	require.True(t, st.HasActiveUnlockToken)
	require.Equal(t, LockReasonTooManyAttempts, st.Reason)
	require.NotNil(t, st.LockedUntil)
	require.True(t, testEpoch.Add(LockoutDuration).Equal(*st.LockedUntil))

	f.clock.Advance(UnlockTokenTTL + time.Second)
	st, err = f.Unlock.Status(ctx, u.Email)
	require.NoError(t, err)
	require.True(t, st.Locked)
	require.False(t, st.HasActiveUnlockToken)
}
