package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
)

// Session is a fully authenticated login.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         domain.User

	// PasskeyPending reports that the user has not registered a passkey yet.
	PasskeyPending bool
}

// SessionService mints access and refresh tokens. Tokens are stateless; the
// refresh flow re-reads the user so locks take effect on the next refresh.
type SessionService struct {
	Store      store.Store
	Tokens     *jwtx.HS256
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issue stamps the login on the user record and returns a new token pair.
func (s *SessionService) Issue(ctx context.Context, u domain.User, meta RequestMeta, amr []string) (Session, error) {
	at := nowFrom(s.Now)
	if err := s.Store.Users().RecordLogin(ctx, u.ID, meta.IP, at); err != nil {
		return Session{}, fmt.Errorf("record login: %w", err)
	}
	u.LastLoginAt = &at
	if meta.IP != "" {
		ip := meta.IP
		u.LastLoginIP = &ip
	}
	u.Presence = domain.PresenceOnline

	return s.mint(u, amr)
}

// Refresh exchanges a refresh token for a new pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.Tokens.VerifyPurpose(refreshToken, jwtx.PurposeRefresh)
	if err != nil {
		return Session{}, tokenErrorFrom(err)
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, &TokenError{Reason: TokenInvalid}
		}
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if err := requireActive(u); err != nil {
		return Session{}, err
	}

	return s.mint(u, claims.AMR)
}

// Logout marks the user offline. Issued tokens stay valid until they expire.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if err := s.Store.Users().SetPresence(ctx, userID, domain.PresenceOffline); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (s *SessionService) mint(u domain.User, amr []string) (Session, error) {
	accessTTL := s.AccessTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	refreshTTL := s.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.RefreshTokenTTL
	}

	access, _, err := s.Tokens.Issue(u.ID, jwtx.PurposeAccess, accessTTL, func(c *jwtx.Claims) {
		c.Username = u.Username
		c.Email = u.Email
		c.Role = u.Role
		c.AMR = amr
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, _, err := s.Tokens.Issue(u.ID, jwtx.PurposeRefresh, refreshTTL, func(c *jwtx.Claims) {
		c.AMR = amr
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return Session{
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresIn:      accessTTL,
		User:           u,
		PasskeyPending: !u.HasPasskey,
	}, nil
}
