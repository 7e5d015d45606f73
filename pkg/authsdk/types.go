package authsdk

import "time"

// ============================================================================
// Accounts
// ============================================================================

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FullName      string     `json:"fullName"`
	Role          string     `json:"role,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	TwoFAEnabled  bool       `json:"twoFaEnabled"`
	HasPasskey    bool       `json:"hasPasskey"`
	AuthProvider  string     `json:"authProvider,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// ============================================================================
// Login & sessions
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by every step that can complete a login:
// password login, login-2fa and the OAuth provider logins. Exactly one of
// the three shapes is populated.
type LoginResponse struct {
	Message string `json:"message,omitempty"`

	// Forced two-factor setup.
	RequireTwoFASetup bool   `json:"requireTwoFASetup,omitempty"`
	SetupToken        string `json:"setupToken,omitempty"`

	// Two-factor challenge.
	TwoFARequired bool   `json:"twoFaRequired,omitempty"`
	TempToken     string `json:"tempToken,omitempty"`

	// Session.
	Token          string        `json:"token,omitempty"`
	RefreshToken   string        `json:"refreshToken,omitempty"`
	ExpiresIn      int           `json:"expiresIn,omitempty"`
	PasskeyPending bool          `json:"passkeyPending,omitempty"`
	User           *UserResponse `json:"user,omitempty"`
}

// OTPRequest carries a six digit TOTP code.
type OTPRequest struct {
	OTP string `json:"otp"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Two-factor authentication
// ============================================================================

// TwoFASetupResponse is returned by POST /v1/auth/2fa/setup.
type TwoFASetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"` // PNG data URL
	SetupToken string `json:"setupToken"`
}

// TwoFAVerifyRequest is the body of POST /v1/auth/2fa/verify.
type TwoFAVerifyRequest struct {
	Code string `json:"code"`
}

// TwoFADisableRequest is the body of POST /v1/auth/2fa/disable.
type TwoFADisableRequest struct {
	Password string `json:"password"`
}

// TwoFAStatusResponse is returned by GET /v1/auth/2fa/status.
type TwoFAStatusResponse struct {
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
	Pending  bool `json:"pending"`
}

// ============================================================================
// Unlock
// ============================================================================

// UnlockTokenStatusResponse is returned by GET /v1/unlock/verify-token/{token}.
type UnlockTokenStatusResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// VerifyEmailRequest is the body of POST /v1/unlock/verify-email.
type VerifyEmailRequest struct {
	EmailToken string `json:"emailToken"`
}

// VerifyEmailResponse reports whether the account is unlocked or a second
// factor is still needed.
type VerifyEmailResponse struct {
	Unlocked      bool   `json:"unlocked"`
	RequiresTwoFA bool   `json:"requiresTwoFA"`
	TempToken     string `json:"tempToken,omitempty"`
	Message       string `json:"message"`
}

// VerifyUnlockTwoFARequest is the body of POST /v1/unlock/verify-2fa.
type VerifyUnlockTwoFARequest struct {
	OTP       string `json:"otp"`
	TempToken string `json:"tempToken"`
}

// RequestUnlockEmailRequest is the body of POST /v1/unlock/request-email.
type RequestUnlockEmailRequest struct {
	Email string `json:"email"`
}

// LockStatusResponse is returned by GET /v1/unlock/status/{email}.
type LockStatusResponse struct {
	Locked               bool       `json:"locked"`
	LockedUntil          *time.Time `json:"lockedUntil,omitempty"`
	Reason               string     `json:"reason,omitempty"`
	HasActiveUnlockToken bool       `json:"hasActiveUnlockToken"`
}

// ============================================================================
// OAuth
// ============================================================================

// OAuthLoginRequest carries the provider-issued token (Google ID token or
// Facebook access token).
type OAuthLoginRequest struct {
	Token string `json:"token"`
}

// OAuthConnectionResponse is one linked provider identity.
type OAuthConnectionResponse struct {
	Provider      string     `json:"provider"`
	ProviderEmail string     `json:"providerEmail,omitempty"`
	ProviderName  string     `json:"providerName,omitempty"`
	ConnectedAt   time.Time  `json:"connectedAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
}

// OAuthConnectionsResponse is returned by GET /v1/auth/oauth/connections.
type OAuthConnectionsResponse struct {
	Connections []OAuthConnectionResponse `json:"connections"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the readiness of individual dependencies.
type HealthChecks struct {
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}
