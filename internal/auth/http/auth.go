package http

import (
	"net/http"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// AuthHandler serves registration, password login and sessions.
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register an account
//	@Description	Creates a local account. Usernames are 3 to 30 characters of letters, digits and underscores.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failure or duplicate username/email"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.Auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("account registered", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusCreated, userResponse(u))
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Password login
//	@Description	Returns a session, a two-factor challenge (twoFaRequired + tempToken) or a forced setup (requireTwoFASetup + setupToken).
//	@Description	Five consecutive failures lock the account and email an unlock link. Five failures from one address within 15 minutes block that address.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Email or password incorrect"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended or deleted"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Address blocked"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Auth.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleLoginTwoFA handles POST /v1/auth/login-2fa
//
//	@Summary		Answer a two-factor challenge
//	@Description	The bearer token is the tempToken returned by login. It is valid for five minutes.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OTPRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing or wrong code"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Challenge token invalid or expired"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Router			/v1/auth/login-2fa [post].
func (h *AuthHandler) HandleLoginTwoFA(w http.ResponseWriter, r *http.Request) {
	tempToken, ok := httpx.BearerToken(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.OTPRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Auth.LoginTwoFA(r.Context(), tempToken, req.OTP, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Refresh a session
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Refresh token invalid or expired"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended or deleted"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	s, err := h.Sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(s))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Marks the account offline. Tokens are stateless and expire on their own.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.Sessions.Logout(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "logged out"})
}

// HandleMe handles GET /v1/auth/me
//
//	@Summary		Current account
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Account no longer exists"
//	@Router			/v1/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	u, err := h.Auth.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(u))
}
