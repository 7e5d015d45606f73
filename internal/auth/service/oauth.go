package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/idx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

const (
	maxUsernameBase      = 24
	usernameAttempts     = 5
	oauthPasswordEntropy = cryptox.TokenSize256
)

var usernameStrip = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// OAuthService signs users in with Google or Facebook and manages the
// provider connections of an account.
type OAuthService struct {
	Store     store.Store
	Providers map[domain.Provider]ProviderVerifier
	Auth      *AuthService
	Notifier  Notifier
	Now       func() time.Time
}

// Authenticate resolves a provider token to an account, creating or linking
// one when needed, and then runs the post-credential login states.
//
// Resolution order: an existing connection, then an account with the same
// email, then a new account.
func (s *OAuthService) Authenticate(ctx context.Context, provider domain.Provider, token string, meta RequestMeta) (LoginResult, error) {
	profile, err := s.verify(ctx, provider, token)
	if err != nil {
		return LoginResult{}, err
	}

	at := nowFrom(s.Now)
	var (
		user   domain.User
		linked bool
	)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		conn, err := tx.OAuthConnections().GetByProviderUserID(ctx, provider, profile.UserID)
		switch {
		case err == nil:
			if err := tx.OAuthConnections().TouchConnection(ctx, connectionFrom(conn, profile), at); err != nil {
				return fmt.Errorf("touch connection: %w", err)
			}
			user, err = tx.Users().GetUserByID(ctx, conn.UserID)
			if err != nil {
				return fmt.Errorf("get user: %w", err)
			}
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("get connection: %w", err)
		}

		if profile.Email == "" {
			return ErrProviderEmailMissing
		}

		user, err = resolveUserByEmail(ctx, tx, profile.Email)
		switch {
		case err == nil:
			if !profile.EmailVerified {
				return &ConflictError{Message: "an account with this email already exists; sign in and connect the provider from your settings"}
			}
			if _, err := tx.OAuthConnections().GetByUserProvider(ctx, user.ID, provider); err == nil {
				return &ConflictError{Message: "this account already has a different " + string(provider) + " account connected"}
			} else if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("get connection: %w", err)
			}
			linked = true
		case errors.Is(err, store.ErrNotFound):
			user, err = s.createUser(ctx, tx, profile, at)
			if err != nil {
				return err
			}
		default:
			return err
		}

		return s.createConnection(ctx, tx, user.ID, profile, at)
	})
	if err != nil {
		return LoginResult{}, err
	}

	if linked {
		s.notifyConnected(ctx, user, profile)
	}

	return s.Auth.AuthenticateVerified(ctx, user, meta, []string{string(provider)})
}

// Connections lists the providers linked to userID.
func (s *OAuthService) Connections(ctx context.Context, userID string) ([]domain.OAuthConnection, error) {
	conns, err := s.Store.OAuthConnections().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

// Connect links a provider identity to an authenticated account.
func (s *OAuthService) Connect(ctx context.Context, userID string, provider domain.Provider, token string) (domain.OAuthConnection, error) {
	profile, err := s.verify(ctx, provider, token)
	if err != nil {
		return domain.OAuthConnection{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.OAuthConnection{}, mapUserLookup(err)
	}
	if err := requireActive(u); err != nil {
		return domain.OAuthConnection{}, err
	}

	existing, err := s.Store.OAuthConnections().GetByProviderUserID(ctx, provider, profile.UserID)
	switch {
	case err == nil:
		if existing.UserID == userID {
			return domain.OAuthConnection{}, &ConflictError{Message: "this " + string(provider) + " account is already connected to your account"}
		}
		return domain.OAuthConnection{}, &ConflictError{Message: "this " + string(provider) + " account is linked to another account"}
	case !errors.Is(err, store.ErrNotFound):
		return domain.OAuthConnection{}, fmt.Errorf("get connection: %w", err)
	}

	if _, err := s.Store.OAuthConnections().GetByUserProvider(ctx, userID, provider); err == nil {
		return domain.OAuthConnection{}, &ConflictError{Message: "you already have a " + string(provider) + " account connected"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.OAuthConnection{}, fmt.Errorf("get connection: %w", err)
	}

	at := nowFrom(s.Now)
	if err := s.createConnection(ctx, s.Store, userID, profile, at); err != nil {
		return domain.OAuthConnection{}, err
	}

	conn, err := s.Store.OAuthConnections().GetByUserProvider(ctx, userID, provider)
	if err != nil {
		return domain.OAuthConnection{}, fmt.Errorf("get connection: %w", err)
	}

	s.notifyConnected(ctx, u, profile)
	return conn, nil
}

// Disconnect removes a provider link. No password confirmation is asked.
func (s *OAuthService) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	if !provider.Valid() {
		return ErrUnsupportedProvider
	}
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapUserLookup(err)
	}
	if err := requireActive(u); err != nil {
		return err
	}
	if err := s.Store.OAuthConnections().DeleteConnection(ctx, userID, provider); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete connection: %w", err)
	}
	slogx.FromContext(ctx).Info("oauth provider disconnected",
		slog.String("user_id", userID),
		slog.String("provider", string(provider)),
	)
	return nil
}

func (s *OAuthService) verify(ctx context.Context, provider domain.Provider, token string) (domain.ProviderProfile, error) {
	if !provider.Valid() {
		return domain.ProviderProfile{}, ErrUnsupportedProvider
	}
	v, ok := s.Providers[provider]
	if !ok || v == nil {
		return domain.ProviderProfile{}, ErrUnsupportedProvider
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ProviderProfile{}, &ValidationError{Field: "token", Message: "is required"}
	}

	profile, err := v.Verify(ctx, token)
	if err != nil {
		slogx.FromContext(ctx).Info("provider token rejected",
			slog.String("provider", string(provider)),
			slog.Any("error", err),
		)
		if errors.Is(err, ErrProviderToken) {
			return domain.ProviderProfile{}, &TokenError{Reason: TokenInvalid}
		}
		return domain.ProviderProfile{}, fmt.Errorf("verify %s token: %w", provider, err)
	}
	profile.Provider = provider
	return profile, nil
}

func (s *OAuthService) createUser(ctx context.Context, tx store.Store, p domain.ProviderProfile, at time.Time) (domain.User, error) {
	username, err := s.pickUsername(ctx, tx, p)
	if err != nil {
		return domain.User{}, err
	}

	// Provider-only accounts get a random password nobody knows.
	secret, err := cryptox.GenerateToken(oauthPasswordEntropy)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate password: %w", err)
	}
	hash, err := cryptox.HashPassword(secret)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := domain.User{
		ID:            idx.NewAt(at).String(),
		Username:      username,
		Email:         p.Email,
		FullName:      p.Name,
		PasswordHash:  hash,
		Role:          domain.DefaultRole,
		Status:        domain.StatusActive,
		EmailVerified: p.EmailVerified,
		AuthProvider:  domain.AuthProvider(p.Provider),
		Presence:      domain.PresenceOffline,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := tx.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, &ConflictError{Message: "an account with this email already exists"}
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created from provider",
		slog.String("user_id", u.ID),
		slog.String("provider", string(p.Provider)),
	)
	return u, nil
}

// pickUsername derives a username from the provider email or name and adds
// a random suffix until it is free.
func (s *OAuthService) pickUsername(ctx context.Context, st store.Store, p domain.ProviderProfile) (string, error) {
	base := p.Email
	if i := strings.IndexByte(base, '@'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = p.Name
	}
	base = usernameStrip.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if len(base) > maxUsernameBase {
		base = base[:maxUsernameBase]
	}
	for len(base) < 3 {
		base += "_"
	}

	candidate := base
	for range usernameAttempts {
		_, err := st.Users().GetUserByUsername(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("get user by username: %w", err)
		}

		suffix, err := cryptox.GenerateToken(3)
		if err != nil {
			return "", fmt.Errorf("generate username suffix: %w", err)
		}
		candidate = base + "_" + usernameStrip.ReplaceAllString(suffix, "")
	}
	return "", &ConflictError{Message: "could not pick a free username"}
}

func (s *OAuthService) createConnection(ctx context.Context, st store.Store, userID string, p domain.ProviderProfile, at time.Time) error {
	conn := domain.OAuthConnection{
		ID:              idx.NewAt(at).String(),
		UserID:          userID,
		Provider:        p.Provider,
		ProviderUserID:  p.UserID,
		ProviderEmail:   p.Email,
		ProviderName:    p.Name,
		ProviderPicture: p.Picture,
		CreatedAt:       at,
		UpdatedAt:       at,
		LastUsedAt:      &at,
	}
	if err := st.OAuthConnections().CreateConnection(ctx, conn); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return &ConflictError{Message: "this " + string(p.Provider) + " account is already connected"}
		}
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (s *OAuthService) notifyConnected(ctx context.Context, u domain.User, p domain.ProviderProfile) {
	notify(ctx, s.Notifier, NotifyOAuthConnected, u.Email, map[string]any{
		"username":      u.Username,
		"provider":      string(p.Provider),
		"providerEmail": p.Email,
	})
}

// connectionFrom refreshes the stored profile fields from a new provider
// response.
func connectionFrom(c domain.OAuthConnection, p domain.ProviderProfile) domain.OAuthConnection {
	if p.Email != "" {
		c.ProviderEmail = p.Email
	}
	if p.Name != "" {
		c.ProviderName = p.Name
	}
	if p.Picture != "" {
		c.ProviderPicture = p.Picture
	}
	return c
}
