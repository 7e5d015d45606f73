package service

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. The ±2 step window is shared by setup, login and the
// unlock second stage.
const (
	TOTPPeriod = 30
	TOTPSkew   = 2
	qrSize     = 200
)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Skew:      TOTPSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type SetupResult struct {
	Secret     string
	OTPAuthURL string
	QRImage    string // PNG data URL
	SetupToken string
}

type TwoFAStatus struct {
	Enabled  bool
	Required bool
	Pending  bool
}

type TwoFAService struct {
	Store    store.Store
	Tokens   *jwtx.HS256
	Notifier Notifier
	Issuer   string // shown in authenticator apps
	Now      func() time.Time
}

// InitSetup creates, or re-renders, the pending TOTP secret for userID.
// The secret is persisted but stays inactive until VerifyAndEnable.
func (s *TwoFAService) InitSetup(ctx context.Context, userID string) (SetupResult, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return SetupResult{}, mapUserLookup(err)
	}
	if u.TwoFAEnabled {
		return SetupResult{}, ErrTwoFAAlreadyEnabled
	}

	opts := totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	}
	if u.TwoFASecret != nil {
		raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(*u.TwoFASecret)
		if err != nil {
			return SetupResult{}, fmt.Errorf("decode pending secret: %w", err)
		}
		opts.Secret = raw
	}

	key, err := totp.Generate(opts)
	if err != nil {
		return SetupResult{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	if u.TwoFASecret == nil {
		if err := s.Store.Users().SetTwoFASecret(ctx, userID, key.Secret()); err != nil {
			return SetupResult{}, fmt.Errorf("store TOTP secret: %w", err)
		}
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return SetupResult{}, err
	}

	setupToken, _, err := s.Tokens.Issue(userID, jwtx.PurposeTwoFASetup, jwtx.TwoFASetupTTL)
	if err != nil {
		return SetupResult{}, fmt.Errorf("issue setup token: %w", err)
	}

	return SetupResult{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRImage:    qr,
		SetupToken: setupToken,
	}, nil
}

// VerifyAndEnable turns 2FA on once code matches the pending secret. Wrong
// codes can be retried without limit.
func (s *TwoFAService) VerifyAndEnable(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapUserLookup(err)
	}
	if u.TwoFAEnabled {
		return ErrTwoFAAlreadyEnabled
	}
	if u.TwoFASecret == nil {
		return ErrTwoFANotEnabled
	}
	if !s.ValidateCode(*u.TwoFASecret, code) {
		return ErrInvalidTOTPCode
	}

	if err := s.Store.Users().EnableTwoFA(ctx, userID); err != nil {
		return fmt.Errorf("enable 2FA: %w", err)
	}

	notify(ctx, s.Notifier, NotifyTwoFAEnabled, u.Email, map[string]any{"username": u.Username})
	return nil
}

// VerifyLogin answers a login challenge. It returns the user and the
// authentication methods carried by the challenge. When only the code was
// wrong the user is still returned alongside ErrInvalidTOTPCode.
func (s *TwoFAService) VerifyLogin(ctx context.Context, tempToken, code string) (domain.User, []string, error) {
	claims, err := s.Tokens.VerifyPurpose(tempToken, jwtx.PurposeLogin2FA)
	if err != nil {
		return domain.User{}, nil, tokenErrorFrom(err)
	}
	if !claims.TwoFAAllowed {
		return domain.User{}, nil, &TokenError{Reason: TokenInvalid}
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, nil, &TokenError{Reason: TokenInvalid}
		}
		return domain.User{}, nil, fmt.Errorf("get user: %w", err)
	}
	if err := requireActive(u); err != nil {
		return u, nil, err
	}
	if !u.TwoFAEnabled || u.TwoFASecret == nil {
		return u, nil, ErrTwoFANotEnabled
	}
	if u.TwoFALastChallenge != nil && *u.TwoFALastChallenge == claims.ID {
		return u, nil, &TokenError{Reason: TokenUsed}
	}
	step, ok := s.matchStep(*u.TwoFASecret, code)
	if !ok {
		return u, nil, ErrInvalidTOTPCode
	}

	// A code is accepted once. Replaying it, even under a fresh challenge,
	// fails like a wrong code.
	fresh, err := s.Store.Users().ConsumeTwoFAChallenge(ctx, u.ID, claims.ID, step)
	if err != nil {
		return u, nil, fmt.Errorf("consume 2FA challenge: %w", err)
	}
	if !fresh {
		return u, nil, ErrInvalidTOTPCode
	}

	return u, append(claims.AMR, jwtx.AMROTP), nil
}

// Disable turns 2FA off after re-checking the account password.
func (s *TwoFAService) Disable(ctx context.Context, userID, password string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapUserLookup(err)
	}
	if err := requireActive(u); err != nil {
		return err
	}
	if !u.TwoFAEnabled {
		return ErrTwoFANotEnabled
	}
	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) || errors.Is(err, cryptox.ErrUnsupportedHash) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	if err := s.Store.Users().DisableTwoFA(ctx, userID); err != nil {
		return fmt.Errorf("disable 2FA: %w", err)
	}

	notify(ctx, s.Notifier, NotifyTwoFADisabled, u.Email, map[string]any{"username": u.Username})
	return nil
}

func (s *TwoFAService) Status(ctx context.Context, userID string) (TwoFAStatus, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return TwoFAStatus{}, mapUserLookup(err)
	}
	return TwoFAStatus{
		Enabled:  u.TwoFAEnabled,
		Required: u.TwoFARequired,
		Pending:  u.TwoFAPending(),
	}, nil
}

// ValidateCode checks a six digit code against secret at the service clock.
func (s *TwoFAService) ValidateCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, nowFrom(s.Now), totpOpts)
	return err == nil && ok
}

// matchStep returns the TOTP time step, within the skew window, that code
// was generated for.
func (s *TwoFAService) matchStep(secret, code string) (int64, bool) {
	exact := totpOpts
	exact.Skew = 0

	current := nowFrom(s.Now).Unix() / TOTPPeriod
	for off := int64(-TOTPSkew); off <= TOTPSkew; off++ {
		step := current + off
		ok, err := totp.ValidateCustom(code, secret, time.Unix(step*TOTPPeriod, 0).UTC(), exact)
		if err == nil && ok {
			return step, true
		}
	}
	return 0, false
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// tokenErrorFrom maps signed-token verification failures.
func tokenErrorFrom(err error) error {
	if errors.Is(err, jwtx.ErrExpired) {
		return &TokenError{Reason: TokenExpired}
	}
	return &TokenError{Reason: TokenInvalid}
}

func mapUserLookup(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("get user: %w", err)
}
