package http

import (
	"net/http"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
)

// OAuthHandler serves Google and Facebook sign-in and account linking.
type OAuthHandler struct {
	OAuth *service.OAuthService
}

// HandleGoogle handles POST /v1/auth/google
//
//	@Summary		Sign in with Google
//	@Description	Exchanges a Google ID token. Links to an existing account with the same verified email, or creates one.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OAuthLoginRequest	true	"Google ID token"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Email conflict or provider error"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Provider rejected the token"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Router			/v1/auth/google [post].
func (h *OAuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, domain.ProviderGoogle)
}

// HandleFacebook handles POST /v1/auth/facebook
//
//	@Summary		Sign in with Facebook
//	@Description	Exchanges a Facebook access token. Fails when the Facebook profile has no email.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OAuthLoginRequest	true	"Facebook access token"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Email missing, email conflict or provider error"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Provider rejected the token"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Router			/v1/auth/facebook [post].
func (h *OAuthHandler) HandleFacebook(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, domain.ProviderFacebook)
}

func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request, provider domain.Provider) {
	var req authsdk.OAuthLoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.OAuth.Authenticate(r.Context(), provider, req.Token, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleConnections handles GET /v1/auth/oauth/connections
//
//	@Summary		List linked providers
//	@Tags			OAuth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.OAuthConnectionsResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/oauth/connections [get].
func (h *OAuthHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	conns, err := h.OAuth.Connections(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.OAuthConnectionsResponse{Connections: make([]authsdk.OAuthConnectionResponse, 0, len(conns))}
	for _, c := range conns {
		resp.Connections = append(resp.Connections, connectionResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleConnect handles POST /v1/auth/oauth/connect/{provider}
//
//	@Summary		Link a provider
//	@Description	Links a provider identity to the caller. One identity per provider; an identity linked anywhere else is rejected.
//	@Tags			OAuth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string						true	"google or facebook"
//	@Param			request		body		authsdk.OAuthLoginRequest	true	"Provider token"
//	@Success		200			{object}	authsdk.OAuthConnectionResponse
//	@Failure		400			{object}	authsdk.ErrorResponse	"Already linked or unsupported provider"
//	@Failure		401			{object}	authsdk.ErrorResponse	"Invalid access or provider token"
//	@Router			/v1/auth/oauth/connect/{provider} [post].
func (h *OAuthHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.OAuthLoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	conn, err := h.OAuth.Connect(r.Context(), userID, domain.Provider(r.PathValue("provider")), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, connectionResponse(conn))
}

// HandleDisconnect handles DELETE /v1/auth/oauth/disconnect/{provider}
//
//	@Summary		Unlink a provider
//	@Tags			OAuth
//	@Security		BearerAuth
//	@Produce		json
//	@Param			provider	path		string	true	"google or facebook"
//	@Success		200			{object}	authsdk.MessageResponse
//	@Failure		400			{object}	authsdk.ErrorResponse	"Unsupported provider"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Provider not linked"
//	@Router			/v1/auth/oauth/disconnect/{provider} [delete].
func (h *OAuthHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	provider := domain.Provider(r.PathValue("provider"))
	if err := h.OAuth.Disconnect(r.Context(), userID, provider); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: string(provider) + " disconnected"})
}
