package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/idx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// AttemptRecord is one login attempt to append to the ledger. Empty UserID
// and Reason are stored as NULL.
type AttemptRecord struct {
	IP        string
	Email     string
	UserID    string
	Success   bool
	UserAgent string
	Reason    string
}

// LedgerService appends login attempts and answers the counting queries the
// lockout policy is built on.
type LedgerService struct {
	Store store.Store
	Now   func() time.Time
}

// Record appends an attempt. Store failures are logged and swallowed so a
// ledger outage never changes the outcome of a login.
func (s *LedgerService) Record(ctx context.Context, rec AttemptRecord) {
	at := nowFrom(s.Now)
	attempt := domain.LoginAttempt{
		ID:            idx.NewAt(at).String(),
		IPAddress:     rec.IP,
		Email:         rec.Email,
		UserID:        optional(rec.UserID),
		Success:       rec.Success,
		UserAgent:     rec.UserAgent,
		FailureReason: optional(rec.Reason),
		AttemptedAt:   at,
	}
	if err := s.Store.LoginAttempts().CreateLoginAttempt(ctx, attempt); err != nil {
		slogx.FromContext(ctx).Warn("failed to record login attempt",
			slog.String("email", rec.Email),
			slog.Bool("success", rec.Success),
			slog.Any("error", err),
		)
	}
}

// nonLockingReasons are recorded for auditing but never count toward an IP
// block or an account lock. A wrong second factor follows a correct
// password, so it says nothing about password guessing.
var nonLockingReasons = []string{domain.ReasonInvalidTwoFACode}

// CountFailuresInWindow counts failed attempts from ip in the trailing window.
func (s *LedgerService) CountFailuresInWindow(ctx context.Context, ip string, window time.Duration) (int, error) {
	since := nowFrom(s.Now).Add(-window)
	n, err := s.Store.LoginAttempts().CountFailuresByIPSince(ctx, ip, since, nonLockingReasons...)
	if err != nil {
		return 0, fmt.Errorf("count failures by ip: %w", err)
	}
	return n, nil
}

// ConsecutiveFailures walks the newest maxToInspect attempts for email and
// counts failures until the first success.
func (s *LedgerService) ConsecutiveFailures(ctx context.Context, email string, maxToInspect int) (int, error) {
	attempts, err := s.Store.LoginAttempts().ListRecentByEmail(ctx, email, maxToInspect, nonLockingReasons...)
	if err != nil {
		return 0, fmt.Errorf("list recent attempts: %w", err)
	}

	n := 0
	for _, a := range attempts {
		if a.Success {
			break
		}
		n++
	}
	return n, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nowFrom(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn().UTC()
}
