package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the StudyHub user-service authentication API.
// It is stateless: tokens are passed to each call explicitly.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// ForwardedFor, when set, is sent as X-Forwarded-For. The service only
	// honours it when the connection comes from one of its trusted proxies.
	ForwardedFor string
}

// NewClient creates a new client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithIP returns a copy of c that presents ip as the client address.
func (c *Client) WithIP(ip string) *Client {
	cp := *c
	cp.ForwardedFor = ip
	return &cp
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/register", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login starts a password login.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginTwoFA answers a two-factor challenge with a TOTP code.
func (c *Client) LoginTwoFA(ctx context.Context, tempToken, code string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login-2fa", tempToken, OTPRequest{OTP: code}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/refresh", "", RefreshRequest{RefreshToken: refreshToken}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session identified by accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", accessToken, nil, nil, http.StatusOK)
}

// Me returns the account behind accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", accessToken, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupTwoFA generates a new TOTP secret. token is either an access token
// or a setup token from a forced-setup login.
func (c *Client) SetupTwoFA(ctx context.Context, token string) (*TwoFASetupResponse, error) {
	var out TwoFASetupResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/2fa/setup", token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFA confirms the pending secret and enables two-factor
// authentication.
func (c *Client) VerifyTwoFA(ctx context.Context, token, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/2fa/verify", token, TwoFAVerifyRequest{Code: code}, nil, http.StatusOK)
}

// DisableTwoFA turns two-factor authentication off after re-checking the
// password.
func (c *Client) DisableTwoFA(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/2fa/disable", accessToken, TwoFADisableRequest{Password: password}, nil, http.StatusOK)
}

// TwoFAStatus reports the caller's two-factor state.
func (c *Client) TwoFAStatus(ctx context.Context, accessToken string) (*TwoFAStatusResponse, error) {
	var out TwoFAStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/auth/2fa/status", accessToken, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckUnlockToken reports whether an unlock link is still usable.
func (c *Client) CheckUnlockToken(ctx context.Context, unlockToken string) (*UnlockTokenStatusResponse, error) {
	var out UnlockTokenStatusResponse
	path := "/v1/unlock/verify-token/" + url.PathEscape(unlockToken)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyUnlockEmail completes the email stage of an unlock.
func (c *Client) VerifyUnlockEmail(ctx context.Context, emailToken string) (*VerifyEmailResponse, error) {
	var out VerifyEmailResponse
	err := c.do(ctx, http.MethodPost, "/v1/unlock/verify-email", "", VerifyEmailRequest{EmailToken: emailToken}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyUnlockTwoFA completes the two-factor stage of an unlock.
func (c *Client) VerifyUnlockTwoFA(ctx context.Context, tempToken, code string) (*MessageResponse, error) {
	var out MessageResponse
	body := VerifyUnlockTwoFARequest{OTP: code, TempToken: tempToken}
	if err := c.do(ctx, http.MethodPost, "/v1/unlock/verify-2fa", "", body, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestUnlockEmail asks for a fresh unlock email. The response is the
// same whether or not the address belongs to a locked account.
func (c *Client) RequestUnlockEmail(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	err := c.do(ctx, http.MethodPost, "/v1/unlock/request-email", "", RequestUnlockEmailRequest{Email: email}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockStatus reports whether the account for email is locked.
func (c *Client) LockStatus(ctx context.Context, email string) (*LockStatusResponse, error) {
	var out LockStatusResponse
	path := "/v1/unlock/status/" + url.PathEscape(email)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginWithProvider logs in with a Google ID token or a Facebook access
// token. provider is "google" or "facebook".
func (c *Client) LoginWithProvider(ctx context.Context, provider, token string) (*LoginResponse, error) {
	var out LoginResponse
	path := "/v1/auth/" + url.PathEscape(provider)
	if err := c.do(ctx, http.MethodPost, path, "", OAuthLoginRequest{Token: token}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connections lists the providers linked to the caller's account.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]OAuthConnectionResponse, error) {
	var out OAuthConnectionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/auth/oauth/connections", accessToken, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// Connect links a provider identity to the caller's account.
func (c *Client) Connect(ctx context.Context, accessToken, provider, token string) (*OAuthConnectionResponse, error) {
	var out OAuthConnectionResponse
	path := "/v1/auth/oauth/connect/" + url.PathEscape(provider)
	if err := c.do(ctx, http.MethodPost, path, accessToken, OAuthLoginRequest{Token: token}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect removes a linked provider.
func (c *Client) Disconnect(ctx context.Context, accessToken, provider string) error {
	path := "/v1/auth/oauth/disconnect/" + url.PathEscape(provider)
	return c.do(ctx, http.MethodDelete, path, accessToken, nil, nil, http.StatusOK)
}

// Readyz queries the readiness probe.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
