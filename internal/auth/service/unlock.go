package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/idx"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
	"github.com/google/uuid"
)

// UnlockTokenTTL is how long an emailed unlock token stays valid.
const UnlockTokenTTL = 24 * time.Hour

type GeneratedUnlockToken struct {
	ID          string
	UnlockToken string
	EmailToken  string
	ExpiresAt   time.Time
}

// UnlockTokenCheck is the result of looking up an unlock link.
type UnlockTokenCheck struct {
	Valid      bool
	Reason     TokenReason
	TokenID    string
	UserID     string
	EmailToken string
}

// EmailVerification is the outcome of the email stage. Either the account
// is unlocked, or TempToken must be presented with a TOTP code.
type EmailVerification struct {
	Unlocked      bool
	RequiresTwoFA bool
	TempToken     string
	UserID        string
}

// LockStatus is what the unlock page shows for an email address.
type LockStatus struct {
	Locked               bool
	LockedUntil          *time.Time
	Reason               string
	HasActiveUnlockToken bool
}

// UnlockService runs the token based unlock workflow: an email stage and,
// for accounts with 2FA, a TOTP stage.
type UnlockService struct {
	Store       store.Store
	Lockout     *LockoutService
	Ledger      *LedgerService
	TwoFA       *TwoFAService
	Tokens      *jwtx.HS256
	Notifier    Notifier
	FrontendURL string
	Now         func() time.Time
}

// GenerateUnlockToken invalidates the user's outstanding tokens and creates
// a new pair, atomically.
func (s *UnlockService) GenerateUnlockToken(ctx context.Context, userID, ip string) (GeneratedUnlockToken, error) {
	unlockToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return GeneratedUnlockToken{}, fmt.Errorf("generate unlock token: %w", err)
	}

	at := nowFrom(s.Now)
	tok := domain.UnlockToken{
		ID:          idx.NewAt(at).String(),
		UserID:      userID,
		UnlockToken: unlockToken,
		EmailToken:  uuid.NewString(),
		IPAddress:   ip,
		ExpiresAt:   at.Add(UnlockTokenTTL),
		CreatedAt:   at,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UnlockTokens().InvalidateActive(ctx, userID); err != nil {
			return fmt.Errorf("invalidate unlock tokens: %w", err)
		}
		if err := tx.UnlockTokens().CreateUnlockToken(ctx, tok); err != nil {
			return fmt.Errorf("create unlock token: %w", err)
		}
		return nil
	})
	if err != nil {
		return GeneratedUnlockToken{}, err
	}

	return GeneratedUnlockToken{
		ID:          tok.ID,
		UnlockToken: tok.UnlockToken,
		EmailToken:  tok.EmailToken,
		ExpiresAt:   tok.ExpiresAt,
	}, nil
}

// IssueAndNotify generates a token for a locked user and emails it. It
// reports whether the email went out.
func (s *UnlockService) IssueAndNotify(ctx context.Context, u domain.User, ip string) (bool, error) {
	tok, err := s.GenerateUnlockToken(ctx, u.ID, ip)
	if err != nil {
		return false, err
	}

	sent := notify(ctx, s.Notifier, NotifyAccountLocked, u.Email, map[string]any{
		"username":    u.Username,
		"attempts":    MaxFailedAttempts,
		"unlockUrl":   s.unlockURL(tok.UnlockToken),
		"unlockToken": tok.UnlockToken,
		"emailToken":  tok.EmailToken,
		"expiresAt":   tok.ExpiresAt.Format(time.RFC1123),
	})
	return sent, nil
}

// VerifyUnlockToken checks an unlock link without consuming it.
func (s *UnlockService) VerifyUnlockToken(ctx context.Context, unlockToken string) (UnlockTokenCheck, error) {
	tok, err := s.Store.UnlockTokens().GetByUnlockToken(ctx, strings.TrimSpace(unlockToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UnlockTokenCheck{Reason: TokenInvalid}, nil
		}
		return UnlockTokenCheck{}, fmt.Errorf("get unlock token: %w", err)
	}

	if reason, ok := s.usable(tok); !ok {
		return UnlockTokenCheck{Reason: reason}, nil
	}

	return UnlockTokenCheck{
		Valid:      true,
		TokenID:    tok.ID,
		UserID:     tok.UserID,
		EmailToken: tok.EmailToken,
	}, nil
}

// VerifyEmailToken completes the email stage. Accounts without 2FA are
// unlocked immediately; the rest get a short-lived token for the TOTP stage.
func (s *UnlockService) VerifyEmailToken(ctx context.Context, emailToken string) (EmailVerification, error) {
	emailToken = strings.TrimSpace(emailToken)
	if emailToken == "" {
		return EmailVerification{}, &ValidationError{Field: "emailToken", Message: "is required"}
	}

	tok, err := s.Store.UnlockTokens().GetByEmailToken(ctx, emailToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EmailVerification{}, &TokenError{Reason: TokenInvalid}
		}
		return EmailVerification{}, fmt.Errorf("get unlock token: %w", err)
	}
	if reason, ok := s.usable(tok); !ok {
		return EmailVerification{}, &TokenError{Reason: reason}
	}

	u, err := s.Store.Users().GetUserByID(ctx, tok.UserID)
	if err != nil {
		return EmailVerification{}, fmt.Errorf("get user: %w", err)
	}

	at := nowFrom(s.Now)

	if !u.TwoFAEnabled {
		err := s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.UnlockTokens().MarkEmailVerified(ctx, tok.ID, at); err != nil {
				return fmt.Errorf("mark email verified: %w", err)
			}
			if err := unlockIn(ctx, tx, u.ID); err != nil {
				return err
			}
			if err := tx.UnlockTokens().MarkUsed(ctx, tok.ID); err != nil {
				return fmt.Errorf("mark unlock token used: %w", err)
			}
			return nil
		})
		if err != nil {
			return EmailVerification{}, err
		}

		s.completed(ctx, u, tok)
		return EmailVerification{Unlocked: true, UserID: u.ID}, nil
	}

	if err := s.Store.UnlockTokens().MarkEmailVerified(ctx, tok.ID, at); err != nil {
		return EmailVerification{}, fmt.Errorf("mark email verified: %w", err)
	}

	temp, _, err := s.Tokens.Issue(u.ID, jwtx.PurposeUnlock2FA, jwtx.UnlockTwoFATTL, func(c *jwtx.Claims) {
		c.UnlockTokenID = tok.ID
		c.EmailVerified = true
	})
	if err != nil {
		return EmailVerification{}, fmt.Errorf("issue unlock token: %w", err)
	}

	return EmailVerification{RequiresTwoFA: true, TempToken: temp, UserID: u.ID}, nil
}

// VerifyTwoFAUnlock completes the TOTP stage. The unlock token row is
// re-read; the signed temp token alone is not trusted.
func (s *UnlockService) VerifyTwoFAUnlock(ctx context.Context, code, tempToken string) error {
	claims, err := s.Tokens.VerifyPurpose(tempToken, jwtx.PurposeUnlock2FA)
	if err != nil {
		return tokenErrorFrom(err)
	}
	if claims.UnlockTokenID == "" || !claims.EmailVerified {
		return &TokenError{Reason: TokenEmailNotVerified}
	}

	tok, err := s.Store.UnlockTokens().GetByID(ctx, claims.UnlockTokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &TokenError{Reason: TokenInvalid}
		}
		return fmt.Errorf("get unlock token: %w", err)
	}
	if tok.UserID != claims.Subject {
		return &TokenError{Reason: TokenInvalid}
	}
	if reason, ok := s.usable(tok); !ok {
		return &TokenError{Reason: reason}
	}
	if !tok.EmailVerified {
		return &TokenError{Reason: TokenEmailNotVerified}
	}

	u, err := s.Store.Users().GetUserByID(ctx, tok.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !u.TwoFAEnabled || u.TwoFASecret == nil {
		return ErrTwoFANotEnabled
	}
	if !s.TwoFA.ValidateCode(*u.TwoFASecret, code) {
		return ErrInvalidTOTPCode
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := unlockIn(ctx, tx, u.ID); err != nil {
			return err
		}
		if err := tx.UnlockTokens().MarkUsed(ctx, tok.ID); err != nil {
			return fmt.Errorf("mark unlock token used: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.completed(ctx, u, tok)
	return nil
}

// UseUnlockToken marks a token used. Calling it twice is harmless.
func (s *UnlockService) UseUnlockToken(ctx context.Context, tokenID string) error {
	if err := s.Store.UnlockTokens().MarkUsed(ctx, tokenID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &TokenError{Reason: TokenInvalid}
		}
		return fmt.Errorf("mark unlock token used: %w", err)
	}
	return nil
}

// RequestUnlockEmail re-sends unlock instructions to a locked account. It
// returns nil for unknown or unlocked addresses so callers cannot discover
// which emails exist.
func (s *UnlockService) RequestUnlockEmail(ctx context.Context, email, ip string) error {
	email = normalizeEmail(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}

	u, err := resolveUserByEmail(ctx, s.Store, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.Status != domain.StatusLocked {
		return nil
	}

	sent, err := s.IssueAndNotify(ctx, u, ip)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("unlock email re-requested",
		slog.String("user_id", u.ID),
		slog.Bool("email_sent", sent),
	)
	return nil
}

// Status reports the lock state behind email. Unknown addresses look
// unlocked.
func (s *UnlockService) Status(ctx context.Context, email string) (LockStatus, error) {
	email = normalizeEmail(email)
	u, err := resolveUserByEmail(ctx, s.Store, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LockStatus{}, nil
		}
		return LockStatus{}, err
	}

	st := LockStateOf(u)
	if !st.Locked {
		return LockStatus{}, nil
	}

	active, err := s.Store.UnlockTokens().HasActive(ctx, u.ID, nowFrom(s.Now))
	if err != nil {
		return LockStatus{}, fmt.Errorf("check unlock tokens: %w", err)
	}

	return LockStatus{
		Locked:               true,
		LockedUntil:          st.LockedUntil,
		Reason:               st.Reason,
		HasActiveUnlockToken: active,
	}, nil
}

// usable checks used before expired so a consumed token always reports
// "used".
func (s *UnlockService) usable(tok domain.UnlockToken) (TokenReason, bool) {
	switch {
	case tok.IsUsed:
		return TokenUsed, false
	case tok.Expired(nowFrom(s.Now)):
		return TokenExpired, false
	default:
		return "", true
	}
}

// completed runs the side effects of a finished unlock: a success ledger
// row that resets the consecutive failure streak, and the confirmation email.
func (s *UnlockService) completed(ctx context.Context, u domain.User, tok domain.UnlockToken) {
	if s.Ledger != nil {
		s.Ledger.Record(ctx, AttemptRecord{
			IP:      tok.IPAddress,
			Email:   u.Email,
			UserID:  u.ID,
			Success: true,
		})
	}

	notify(ctx, s.Notifier, NotifyAccountUnlocked, u.Email, map[string]any{
		"username":   u.Username,
		"unlockedAt": nowFrom(s.Now).Format(time.RFC1123),
	})

	slogx.FromContext(ctx).Info("account unlocked", slog.String("user_id", u.ID))
}

func (s *UnlockService) unlockURL(unlockToken string) string {
	base := strings.TrimSuffix(s.FrontendURL, "/")
	return base + "/unlock/" + url.PathEscape(unlockToken)
}
