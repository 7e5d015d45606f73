package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
)

const (
	MaxFailedAttempts      = 5
	LockoutDurationMinutes = 30
	TimeWindowMinutes      = 15

	LockoutDuration = LockoutDurationMinutes * time.Minute
	TimeWindow      = TimeWindowMinutes * time.Minute

	// LockReasonTooManyAttempts is stored on accounts locked by the login flow.
	LockReasonTooManyAttempts = "Too many failed login attempts"
)

type IPBlockResult struct {
	Blocked  bool
	Failures int
}

type AccountLockResult struct {
	ShouldLock          bool
	ConsecutiveFailures int
}

// LockState is the lock information exactly as stored.
type LockState struct {
	Locked      bool
	LockedUntil *time.Time
	Reason      string
}

// LockoutService decides when IPs are blocked and accounts are locked, and
// is the only writer of the account lock fields.
type LockoutService struct {
	Store  store.Store
	Ledger *LedgerService
	Now    func() time.Time
}

// CheckIPBlocking blocks ip once it has MaxFailedAttempts failures in the
// trailing TimeWindow, whatever accounts they targeted.
func (s *LockoutService) CheckIPBlocking(ctx context.Context, ip string) (IPBlockResult, error) {
	n, err := s.Ledger.CountFailuresInWindow(ctx, ip, TimeWindow)
	if err != nil {
		return IPBlockResult{}, err
	}
	return IPBlockResult{Blocked: n >= MaxFailedAttempts, Failures: n}, nil
}

// CheckAccountLocking reports whether email has reached MaxFailedAttempts
// consecutive failures. Any success resets the streak.
func (s *LockoutService) CheckAccountLocking(ctx context.Context, email string) (AccountLockResult, error) {
	n, err := s.Ledger.ConsecutiveFailures(ctx, email, MaxFailedAttempts*2)
	if err != nil {
		return AccountLockResult{}, err
	}
	return AccountLockResult{ShouldLock: n >= MaxFailedAttempts, ConsecutiveFailures: n}, nil
}

// LockAccount locks the account for LockoutDuration and forces 2FA
// adoption. It returns the locked-until time.
func (s *LockoutService) LockAccount(ctx context.Context, userID, reason string) (time.Time, error) {
	until := nowFrom(s.Now).Add(LockoutDuration)
	if err := s.Store.Users().LockUser(ctx, userID, reason, LockoutDurationMinutes, until); err != nil {
		return time.Time{}, fmt.Errorf("lock user: %w", err)
	}
	return until, nil
}

// IsAccountLocked returns the stored lock state. A lock past its
// locked-until time is still reported; only the unlock flow clears it.
func (s *LockoutService) IsAccountLocked(ctx context.Context, userID string) (LockState, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return LockState{}, fmt.Errorf("get user: %w", err)
	}
	return LockStateOf(u), nil
}

// LockStateOf reads the lock state off an already loaded user.
func LockStateOf(u domain.User) LockState {
	if u.Status != domain.StatusLocked {
		return LockState{}
	}
	st := LockState{Locked: true, LockedUntil: u.LockedUntil}
	if u.LockReason != nil {
		st.Reason = *u.LockReason
	}
	return st
}

// requireActive fails when u is locked or not ACTIVE. Access tokens are
// stateless, so account operations re-check the stored status.
func requireActive(u domain.User) error {
	if st := LockStateOf(u); st.Locked {
		return &LockedError{Scope: LockScopeAccount, LockedUntil: st.LockedUntil, Reason: st.Reason}
	}
	if !u.IsActive() {
		return &AccountStatusError{Status: u.Status}
	}
	return nil
}

// UnlockAccount reactivates the account and forces 2FA adoption.
func (s *LockoutService) UnlockAccount(ctx context.Context, userID string) error {
	return unlockIn(ctx, s.Store, userID)
}

// unlockIn runs the unlock write against st, which may be a transaction.
func unlockIn(ctx context.Context, st store.Store, userID string) error {
	if err := st.Users().UnlockUser(ctx, userID); err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}
	return nil
}
