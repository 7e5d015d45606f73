package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestLedgerConsecutiveFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	record := func(success bool) {
		f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: "bob@example.com", Success: success})
		f.clock.Advance(time.Second)
	}

	record(false)
	record(false)
	record(true)
	record(false)

	n, err := f.Ledger.ConsecutiveFailures(ctx, "bob@example.com", 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = f.Ledger.ConsecutiveFailures(ctx, "nobody@example.com", 10)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLedgerCountFailuresInWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: "a@example.com"})
	f.clock.Advance(10 * time.Minute)
	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: "b@example.com"})
	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: "b@example.com", Success: true})
	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.2", Email: "b@example.com"})

	n, err := f.Ledger.CountFailuresInWindow(ctx, "10.0.0.1", TimeWindow)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	f.clock.Advance(6 * time.Minute)
	n, err = f.Ledger.CountFailuresInWindow(ctx, "10.0.0.1", TimeWindow)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAccountLockThreshold(t *testing.T) {
	for n := 1; n <= 7; n++ {
		t.Run(fmt.Sprintf("%d failures", n), func(t *testing.T) {
			f := newFixture(t, nil)
			u := f.register(t, "carol", "secret1")

			var err error
			for i := range n {
				// A fresh IP per attempt keeps the IP block out of the way.
				err = f.failLogin(t, u.Email, fmt.Sprintf("10.1.0.%d", i))
			}

			locked := f.user(t, u.ID).Status == domain.StatusLocked
			require.Equal(t, n >= MaxFailedAttempts, locked)

			if n < MaxFailedAttempts {
				var cerr *CredentialsError
				require.ErrorAs(t, err, &cerr)
				require.Equal(t, MaxFailedAttempts-n, cerr.AttemptsRemaining)
			} else {
				require.ErrorIs(t, err, ErrLocked)
			}
		})
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.register(t, "dave", "secret1")

	for i := range 4 {
		f.failLogin(t, u.Email, fmt.Sprintf("10.2.0.%d", i))
	}
	_, err := f.Auth.Login(ctx, u.Email, "secret1", RequestMeta{IP: "10.2.1.1"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	for i := range 4 {
		err := f.failLogin(t, u.Email, fmt.Sprintf("10.2.2.%d", i))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	require.Equal(t, domain.StatusActive, f.user(t, u.ID).Status)

	err = f.failLogin(t, u.Email, "10.2.3.1")
	require.ErrorIs(t, err, ErrLocked)
}

func TestIPBlockAcrossAccounts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const ip = "203.0.113.9"

	for i := range MaxFailedAttempts {
		err := f.failLogin(t, fmt.Sprintf("ghost%d@example.com", i), ip)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	block, err := f.Lockout.CheckIPBlocking(ctx, ip)
	require.NoError(t, err)
	require.True(t, block.Blocked)
	require.Equal(t, MaxFailedAttempts, block.Failures)

	u := f.register(t, "erin", "secret1")
	_, err = f.Auth.Login(ctx, u.Email, "secret1", RequestMeta{IP: ip})
	var lerr *LockedError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, LockScopeIP, lerr.Scope)
	require.Equal(t, TimeWindow, lerr.RetryAfter)

	other, err := f.Lockout.CheckIPBlocking(ctx, "203.0.113.10")
	require.NoError(t, err)
	require.False(t, other.Blocked)

	// The window slides past the original failures.
	f.clock.Advance(TimeWindow + time.Minute)
	block, err = f.Lockout.CheckIPBlocking(ctx, ip)
	require.NoError(t, err)
	require.False(t, block.Blocked)
}

func TestLockDoesNotExpireOnItsOwn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.register(t, "frank", "secret1")

	until, err := f.Lockout.LockAccount(ctx, u.ID, LockReasonTooManyAttempts)
	require.NoError(t, err)
	require.True(t, testEpoch.Add(LockoutDuration).Equal(until))

	locked := f.user(t, u.ID)
	require.Equal(t, domain.StatusLocked, locked.Status)
	require.True(t, locked.TwoFARequired)
	require.NotNil(t, locked.LockDurationMinutes)
	require.Equal(t, LockoutDurationMinutes, *locked.LockDurationMinutes)

	f.clock.Advance(24 * time.Hour)

	st, err := f.Lockout.IsAccountLocked(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, st.Locked)
	require.Equal(t, LockReasonTooManyAttempts, st.Reason)
	require.NotNil(t, st.LockedUntil)

	_, err = f.Auth.Login(ctx, u.Email, "secret1", RequestMeta{IP: "10.3.0.1"})
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, f.Lockout.UnlockAccount(ctx, u.ID))
	st, err = f.Lockout.IsAccountLocked(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, st.Locked)

	unlocked := f.user(t, u.ID)
	require.Equal(t, domain.StatusActive, unlocked.Status)
	require.Nil(t, unlocked.LockedUntil)
	require.Nil(t, unlocked.LockReason)
	require.True(t, unlocked.TwoFARequired)
}

func TestWrongTwoFACodesNeverLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.register(t, "gwen", "secret1")
	secret := f.enableTwoFA(t, u.ID)
	const ip = "10.3.0.1"

	res, err := f.Auth.Login(ctx, u.Email, "secret1", RequestMeta{IP: ip})
	require.NoError(t, err)
	require.True(t, res.TwoFARequired)

	bad := wrongCode(t, f, secret)
	for range MaxFailedAttempts {
		_, err := f.Auth.LoginTwoFA(ctx, res.TempToken, bad, RequestMeta{IP: ip})
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		f.clock.Advance(time.Second)
	}

	block, err := f.Lockout.CheckIPBlocking(ctx, ip)
	require.NoError(t, err)
	require.False(t, block.Blocked)
	require.Zero(t, block.Failures)

	// One wrong password after the wrong codes is the first strike, not the sixth.
	err = f.failLogin(t, u.Email, "10.3.0.2")
	var cerr *CredentialsError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, MaxFailedAttempts-1, cerr.AttemptsRemaining)
	require.Equal(t, domain.StatusActive, f.user(t, u.ID).Status)

	again, err := f.Auth.Login(ctx, u.Email, "secret1", RequestMeta{IP: ip})
	require.NoError(t, err)
	require.True(t, again.TwoFARequired)
}
