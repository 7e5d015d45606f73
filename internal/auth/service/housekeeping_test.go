package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHousekeepingRunOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	u, used := lockedUser(t, f, "alice")
	require.NoError(t, f.Unlock.UseUnlockToken(ctx, used.ID))
	active, err := f.Unlock.GenerateUnlockToken(ctx, u.ID, "10.0.0.1")
	require.NoError(t, err)

	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: u.Email})
	f.clock.Advance(48 * time.Hour)
	f.Ledger.Record(ctx, AttemptRecord{IP: "10.0.0.1", Email: u.Email})

	hk := NewHousekeepingService(f.store, nil, time.Minute, 24*time.Hour)
	hk.Now = f.clock.Now

	stats := hk.RunOnce(ctx)
	// The used token and the now-expired active one both go.
	require.Equal(t, int64(2), stats.UnlockTokens)
	require.Equal(t, int64(1), stats.LoginAttempts)

	check, err := f.Unlock.VerifyUnlockToken(ctx, active.UnlockToken)
	require.NoError(t, err)
	require.Equal(t, TokenInvalid, check.Reason)

	attempts, err := f.store.LoginAttempts().ListRecentByEmail(ctx, u.Email, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestHousekeepingDefaults(t *testing.T) {
	hk := NewHousekeepingService(nil, nil, 0, 0)
	require.Equal(t, time.Hour, hk.Interval)
	require.Equal(t, DefaultLedgerRetention, hk.Retention)
}

func TestHousekeepingStartStop(t *testing.T) {
	f := newFixture(t, nil)
	hk := NewHousekeepingService(f.store, nil, time.Hour, time.Hour)
	hk.Start()
	hk.Stop()
}
