package http

import (
	"net/http"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
)

func userResponse(u domain.User) *authsdk.UserResponse {
	return &authsdk.UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		TwoFAEnabled:  u.TwoFAEnabled,
		HasPasskey:    u.HasPasskey,
		AuthProvider:  string(u.AuthProvider),
		LastLoginAt:   u.LastLoginAt,
	}
}

func loginResponse(res service.LoginResult) authsdk.LoginResponse {
	switch {
	case res.RequireTwoFASetup:
		return authsdk.LoginResponse{
			Message:           "two-factor authentication setup is required",
			RequireTwoFASetup: true,
			SetupToken:        res.SetupToken,
		}
	case res.TwoFARequired:
		return authsdk.LoginResponse{
			Message:       "two-factor authentication code required",
			TwoFARequired: true,
			TempToken:     res.TempToken,
		}
	default:
		return sessionResponse(*res.Session)
	}
}

func sessionResponse(s service.Session) authsdk.LoginResponse {
	return authsdk.LoginResponse{
		Token:          s.AccessToken,
		RefreshToken:   s.RefreshToken,
		ExpiresIn:      int(s.ExpiresIn.Seconds()),
		PasskeyPending: s.PasskeyPending,
		User:           userResponse(s.User),
	}
}

func connectionResponse(c domain.OAuthConnection) authsdk.OAuthConnectionResponse {
	return authsdk.OAuthConnectionResponse{
		Provider:      string(c.Provider),
		ProviderEmail: c.ProviderEmail,
		ProviderName:  c.ProviderName,
		ConnectedAt:   c.CreatedAt,
		LastUsedAt:    c.LastUsedAt,
	}
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{IP: httpx.ClientIP(r), UserAgent: r.UserAgent()}
}
