package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
)

const (
	defaultGoogleBaseURL   = "https://oauth2.googleapis.com"
	defaultFacebookBaseURL = "https://graph.facebook.com"
	providerTimeout        = 10 * time.Second
)

// ProviderVerifier exchanges a client-supplied provider token for the
// identity it belongs to. Rejected tokens return ErrProviderToken.
type ProviderVerifier interface {
	Verify(ctx context.Context, token string) (domain.ProviderProfile, error)
}

// GoogleVerifier validates Google ID tokens against the tokeninfo endpoint.
type GoogleVerifier struct {
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
}

type googleTokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // "true" or true depending on endpoint version
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (v *GoogleVerifier) Verify(ctx context.Context, token string) (domain.ProviderProfile, error) {
	endpoint := baseURL(v.BaseURL, defaultGoogleBaseURL) + "/tokeninfo?id_token=" + url.QueryEscape(token)

	var info googleTokenInfo
	if err := getJSON(ctx, v.HTTPClient, endpoint, &info); err != nil {
		return domain.ProviderProfile{}, err
	}
	if info.Sub == "" {
		return domain.ProviderProfile{}, ErrProviderToken
	}
	if v.ClientID != "" && info.Aud != v.ClientID {
		return domain.ProviderProfile{}, fmt.Errorf("%w: audience mismatch", ErrProviderToken)
	}

	verified := false
	switch ev := info.EmailVerified.(type) {
	case bool:
		verified = ev
	case string:
		verified = ev == "true"
	}

	return domain.ProviderProfile{
		Provider:      domain.ProviderGoogle,
		UserID:        info.Sub,
		Email:         strings.ToLower(info.Email),
		EmailVerified: verified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}

// FacebookVerifier resolves a Facebook access token through the Graph API.
type FacebookVerifier struct {
	BaseURL    string
	HTTPClient *http.Client
}

type facebookMe struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (v *FacebookVerifier) Verify(ctx context.Context, token string) (domain.ProviderProfile, error) {
	q := url.Values{}
	q.Set("fields", "id,name,email,picture")
	q.Set("access_token", token)
	endpoint := baseURL(v.BaseURL, defaultFacebookBaseURL) + "/me?" + q.Encode()

	var me facebookMe
	if err := getJSON(ctx, v.HTTPClient, endpoint, &me); err != nil {
		return domain.ProviderProfile{}, err
	}
	if me.ID == "" {
		return domain.ProviderProfile{}, ErrProviderToken
	}

	// Facebook only exposes confirmed addresses.
	return domain.ProviderProfile{
		Provider:      domain.ProviderFacebook,
		UserID:        me.ID,
		Email:         strings.ToLower(me.Email),
		EmailVerified: me.Email != "",
		Name:          me.Name,
		Picture:       me.Picture.Data.URL,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, target any) error {
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider returned %s", resp.Status)
		}
		return ErrProviderToken
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func baseURL(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return strings.TrimSuffix(configured, "/")
}
