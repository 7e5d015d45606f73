package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/idx"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

const minPasswordLength = 6

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// RequestMeta is the client information attached to every attempt.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is exactly one of: a forced 2FA setup, a 2FA challenge, or an
// issued session.
type LoginResult struct {
	RequireTwoFASetup bool
	SetupToken        string

	TwoFARequired bool
	TempToken     string

	Session *Session
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// AuthService drives the login state machine: IP check, credential check,
// account lock check, password verification, lockout on failure, forced 2FA
// setup, 2FA challenge and finally session issuance.
type AuthService struct {
	Store    store.Store
	Tokens   *jwtx.HS256
	Ledger   *LedgerService
	Lockout  *LockoutService
	Unlock   *UnlockService
	TwoFA    *TwoFAService
	Sessions *SessionService
	Now      func() time.Time
}

// Register creates a local account. Input is validated before the store is
// touched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	if err := validateRegistration(in); err != nil {
		return domain.User{}, err
	}

	if _, err := resolveUserByEmail(ctx, s.Store, in.Email); err == nil {
		return domain.User{}, &ConflictError{Message: "email is already registered"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}
	if _, err := s.Store.Users().GetUserByUsername(ctx, in.Username); err == nil {
		return domain.User{}, &ConflictError{Message: "username is already taken"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("get user by username: %w", err)
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	at := nowFrom(s.Now)
	u := domain.User{
		ID:           idx.NewAt(at).String(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         domain.DefaultRole,
		Status:       domain.StatusActive,
		AuthProvider: domain.AuthProviderLocal,
		Presence:     domain.PresenceOffline,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, &ConflictError{Message: "username or email is already registered"}
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

func validateRegistration(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return &ValidationError{Field: "username", Message: "must be 3-30 letters, digits or underscores"}
	}
	if in.Email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if len(in.Password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	return nil
}

// ResolveUserByEmail looks up the primary address first and then verified
// secondary addresses. It returns store.ErrNotFound when neither matches.
func (s *AuthService) ResolveUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return resolveUserByEmail(ctx, s.Store, normalizeEmail(email))
}

func resolveUserByEmail(ctx context.Context, st store.Store, email string) (domain.User, error) {
	u, err := st.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}

	userID, err := st.Emails().FindVerifiedUserID(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("find secondary email: %w", err)
	}

	u, err = st.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Login authenticates email and password. Every outcome is written to the
// ledger; ledger failures never change the outcome.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return LoginResult{}, &ValidationError{Field: "email", Message: "is required"}
	}
	if password == "" {
		return LoginResult{}, &ValidationError{Field: "password", Message: "is required"}
	}

	l := slogx.FromContext(ctx).With(slog.String("ip", meta.IP))
	rec := AttemptRecord{IP: meta.IP, Email: email, UserAgent: meta.UserAgent}

	ipCheck, err := s.Lockout.CheckIPBlocking(ctx, meta.IP)
	if err != nil {
		return LoginResult{}, s.systemError(ctx, rec, err)
	}
	if ipCheck.Blocked {
		rec.Reason = domain.ReasonIPBlocked
		s.Ledger.Record(ctx, rec)
		l.Warn("login rejected: ip blocked", slog.Int("failures", ipCheck.Failures))
		return LoginResult{}, &LockedError{Scope: LockScopeIP, RetryAfter: TimeWindow}
	}

	u, err := resolveUserByEmail(ctx, s.Store, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, s.systemError(ctx, rec, err)
		}
		rec.Reason = domain.ReasonUserNotFound
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, s.credentialsError(ctx, email)
	}
	rec.UserID = u.ID

	if st := LockStateOf(u); st.Locked {
		rec.Reason = domain.ReasonAccountLocked
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, &LockedError{Scope: LockScopeAccount, LockedUntil: st.LockedUntil, Reason: st.Reason}
	}
	if !u.IsActive() {
		rec.Reason = domain.ReasonAccountInactive
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, &AccountStatusError{Status: u.Status}
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) && !errors.Is(err, cryptox.ErrUnsupportedHash) {
			return LoginResult{}, s.systemError(ctx, rec, err)
		}
		rec.Reason = domain.ReasonInvalidPassword
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, s.afterPasswordFailure(ctx, u, email, meta)
	}

	s.Ledger.Record(ctx, AttemptRecord{IP: meta.IP, Email: email, UserID: u.ID, Success: true, UserAgent: meta.UserAgent})
	s.rehashIfNeeded(ctx, u, password)

	return s.completeLogin(ctx, u, meta, []string{jwtx.AMRPassword})
}

// afterPasswordFailure applies the account lock policy once a wrong password
// has been recorded.
func (s *AuthService) afterPasswordFailure(ctx context.Context, u domain.User, email string, meta RequestMeta) error {
	l := slogx.FromContext(ctx).With(slog.String("user_id", u.ID))

	check, err := s.Lockout.CheckAccountLocking(ctx, email)
	if err != nil {
		return s.systemError(ctx, AttemptRecord{IP: meta.IP, Email: email, UserID: u.ID, UserAgent: meta.UserAgent}, err)
	}
	if !check.ShouldLock {
		return &CredentialsError{AttemptsRemaining: remainingAttempts(check.ConsecutiveFailures)}
	}

	until, err := s.Lockout.LockAccount(ctx, u.ID, LockReasonTooManyAttempts)
	if err != nil {
		return s.systemError(ctx, AttemptRecord{IP: meta.IP, Email: email, UserID: u.ID, UserAgent: meta.UserAgent}, err)
	}
	l.Warn("account locked", slog.Int("consecutive_failures", check.ConsecutiveFailures))

	sent, err := s.Unlock.IssueAndNotify(ctx, u, meta.IP)
	if err != nil {
		l.Error("failed to issue unlock token", slog.Any("error", err))
	}

	return &LockedError{
		Scope:       LockScopeAccount,
		LockedUntil: &until,
		Reason:      LockReasonTooManyAttempts,
		EmailSent:   sent,
	}
}

// credentialsError builds the generic failure for an email with no account.
func (s *AuthService) credentialsError(ctx context.Context, email string) error {
	n, err := s.Ledger.ConsecutiveFailures(ctx, email, MaxFailedAttempts*2)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to count failures", slog.Any("error", err))
		return &CredentialsError{}
	}
	return &CredentialsError{AttemptsRemaining: remainingAttempts(n)}
}

func remainingAttempts(failures int) int {
	return max(MaxFailedAttempts-failures, 0)
}

func (s *AuthService) systemError(ctx context.Context, rec AttemptRecord, err error) error {
	slogx.FromContext(ctx).Error("login failed with system error",
		slog.String("email", rec.Email),
		slog.Any("error", err),
	)
	rec.Success = false
	rec.Reason = domain.ReasonSystemError
	s.Ledger.Record(ctx, rec)
	return fmt.Errorf("login: %w", err)
}

func (s *AuthService) rehashIfNeeded(ctx context.Context, u domain.User, password string) {
	if !cryptox.NeedsRehash(u.PasswordHash) {
		return
	}
	l := slogx.FromContext(ctx)
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Warn("failed to rehash legacy password", slog.Any("error", err))
		return
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		l.Warn("failed to store rehashed password", slog.Any("error", err))
		return
	}
	l.Info("legacy password hash upgraded", slog.String("user_id", u.ID))
}

// completeLogin runs the post-credential states shared by password and
// OAuth logins.
func (s *AuthService) completeLogin(ctx context.Context, u domain.User, meta RequestMeta, amr []string) (LoginResult, error) {
	if u.TwoFARequired && !u.TwoFAEnabled {
		token, _, err := s.Tokens.Issue(u.ID, jwtx.PurposeTwoFASetup, jwtx.TwoFASetupTTL)
		if err != nil {
			return LoginResult{}, fmt.Errorf("issue setup token: %w", err)
		}
		return LoginResult{RequireTwoFASetup: true, SetupToken: token}, nil
	}

	if u.TwoFAEnabled {
		token, _, err := s.Tokens.Issue(u.ID, jwtx.PurposeLogin2FA, jwtx.LoginChallengeTTL, func(c *jwtx.Claims) {
			c.TwoFAAllowed = true
			c.AMR = amr
		})
		if err != nil {
			return LoginResult{}, fmt.Errorf("issue challenge token: %w", err)
		}
		return LoginResult{TwoFARequired: true, TempToken: token}, nil
	}

	sess, err := s.Sessions.Issue(ctx, u, meta, amr)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Session: &sess}, nil
}

// AuthenticateVerified continues a login whose identity was established
// elsewhere, such as an OAuth provider. The lock and status gates still
// apply.
func (s *AuthService) AuthenticateVerified(ctx context.Context, u domain.User, meta RequestMeta, amr []string) (LoginResult, error) {
	rec := AttemptRecord{IP: meta.IP, Email: u.Email, UserID: u.ID, UserAgent: meta.UserAgent}

	if st := LockStateOf(u); st.Locked {
		rec.Reason = domain.ReasonAccountLocked
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, &LockedError{Scope: LockScopeAccount, LockedUntil: st.LockedUntil, Reason: st.Reason}
	}
	if !u.IsActive() {
		rec.Reason = domain.ReasonAccountInactive
		s.Ledger.Record(ctx, rec)
		return LoginResult{}, &AccountStatusError{Status: u.Status}
	}

	rec.Success = true
	s.Ledger.Record(ctx, rec)
	return s.completeLogin(ctx, u, meta, amr)
}

// LoginTwoFA answers the challenge issued by Login. Wrong codes are recorded
// in the ledger but never lock the account.
func (s *AuthService) LoginTwoFA(ctx context.Context, tempToken, code string, meta RequestMeta) (LoginResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return LoginResult{}, &ValidationError{Field: "otp", Message: "is required"}
	}

	u, amr, err := s.TwoFA.VerifyLogin(ctx, tempToken, code)
	if err != nil {
		if errors.Is(err, ErrInvalidTOTPCode) {
			s.Ledger.Record(ctx, AttemptRecord{
				IP:        meta.IP,
				Email:     u.Email,
				UserID:    u.ID,
				UserAgent: meta.UserAgent,
				Reason:    domain.ReasonInvalidTwoFACode,
			})
		}
		return LoginResult{}, err
	}

	sess, err := s.Sessions.Issue(ctx, u, meta, amr)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Session: &sess}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, mapUserLookup(err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
