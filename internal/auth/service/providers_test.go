package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestGoogleVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokeninfo", r.URL.Path)
		switch r.URL.Query().Get("id_token") {
		case "good":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"aud":            "client-1",
				"sub":            "g-42",
				"email":          "Alice@Example.com",
				"email_verified": "true",
				"name":           "Alice",
				"picture":        "https://img.test/a.png",
			})
		case "other-aud":
			_ = json.NewEncoder(w).Encode(map[string]any{"aud": "client-2", "sub": "g-42"})
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		}
	}))
	defer srv.Close()

	v := &GoogleVerifier{ClientID: "client-1", BaseURL: srv.URL + "/", HTTPClient: srv.Client()}
	ctx := context.Background()

	p, err := v.Verify(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, domain.ProviderProfile{
		Provider:      domain.ProviderGoogle,
		UserID:        "g-42",
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
		Picture:       "https://img.test/a.png",
	}, p)

	_, err = v.Verify(ctx, "other-aud")
	require.ErrorIs(t, err, ErrProviderToken)

	_, err = v.Verify(ctx, "expired")
	require.ErrorIs(t, err, ErrProviderToken)

	_, err = v.Verify(ctx, "boom")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrProviderToken)
}

func TestFacebookVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		require.Equal(t, "id,name,email,picture", r.URL.Query().Get("fields"))
		switch r.URL.Query().Get("access_token") {
		case "with-email":
			_, _ = w.Write([]byte(`{"id":"fb-1","name":"Bob","email":"bob@example.com",
				"picture":{"data":{"url":"https://img.test/b.png"}}}`))
		case "no-email":
			_, _ = w.Write([]byte(`{"id":"fb-2","name":"Carol"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := &FacebookVerifier{BaseURL: srv.URL, HTTPClient: srv.Client()}
	ctx := context.Background()

	p, err := v.Verify(ctx, "with-email")
	require.NoError(t, err)
	require.Equal(t, "fb-1", p.UserID)
	require.Equal(t, "bob@example.com", p.Email)
	require.True(t, p.EmailVerified)
	require.Equal(t, "https://img.test/b.png", p.Picture)

	p, err = v.Verify(ctx, "no-email")
	require.NoError(t, err)
	require.Empty(t, p.Email)
	require.False(t, p.EmailVerified)

	_, err = v.Verify(ctx, "revoked")
	require.ErrorIs(t, err, ErrProviderToken)
}
