package domain

import "time"

// Provider is an external identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// OAuthConnection links an account to an external identity. The
// (Provider, ProviderUserID) pair is unique across all accounts.
type OAuthConnection struct {
	ID              string
	UserID          string
	Provider        Provider
	ProviderUserID  string
	ProviderEmail   string
	ProviderName    string
	ProviderPicture string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastUsedAt      *time.Time
}

// ProviderProfile is what a provider returns after verifying a token.
type ProviderProfile struct {
	Provider      Provider
	UserID        string
	Email         string // may be empty for Facebook
	EmailVerified bool
	Name          string
	Picture       string
}
