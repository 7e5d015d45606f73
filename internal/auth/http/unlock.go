package http

import (
	"net/http"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
)

// UnlockHandler serves the account unlock workflow. None of these endpoints
// take a bearer token; the unlock and email tokens are the credentials.
type UnlockHandler struct {
	Unlock *service.UnlockService
}

// HandleVerifyToken handles GET /v1/unlock/verify-token/{token}
//
//	@Summary		Check an unlock link
//	@Description	Reports whether the token from the unlock email is still usable. Does not consume it.
//	@Tags			Unlock
//	@Produce		json
//	@Param			token	path		string	true	"Unlock token"
//	@Success		200		{object}	authsdk.UnlockTokenStatusResponse
//	@Router			/v1/unlock/verify-token/{token} [get].
func (h *UnlockHandler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	check, err := h.Unlock.VerifyUnlockToken(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.UnlockTokenStatusResponse{Valid: check.Valid}
	if !check.Valid {
		resp.Reason = string(check.Reason)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyEmail handles POST /v1/unlock/verify-email
//
//	@Summary		Complete the email stage
//	@Description	Unlocks accounts without 2FA immediately. Accounts with 2FA receive a ten minute tempToken for /v1/unlock/verify-2fa.
//	@Tags			Unlock
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyEmailRequest	true	"Email token"
//	@Success		200		{object}	authsdk.VerifyEmailResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing token"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Token invalid, expired or used"
//	@Router			/v1/unlock/verify-email [post].
func (h *UnlockHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyEmailRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.Unlock.VerifyEmailToken(r.Context(), req.EmailToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.VerifyEmailResponse{
		Unlocked:      res.Unlocked,
		RequiresTwoFA: res.RequiresTwoFA,
		TempToken:     res.TempToken,
		Message:       "account unlocked",
	}
	if res.RequiresTwoFA {
		resp.Message = "email verified, enter your authenticator code to finish unlocking"
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyTwoFA handles POST /v1/unlock/verify-2fa
//
//	@Summary		Complete the 2FA stage
//	@Tags			Unlock
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyUnlockTwoFARequest	true	"TOTP code and tempToken"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Wrong code or email stage incomplete"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Token invalid, expired or used"
//	@Router			/v1/unlock/verify-2fa [post].
func (h *UnlockHandler) HandleVerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyUnlockTwoFARequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.OTP == "" || req.TempToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Unlock.VerifyTwoFAUnlock(r.Context(), req.OTP, req.TempToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "account unlocked"})
}

// HandleRequestEmail handles POST /v1/unlock/request-email
//
//	@Summary		Re-send unlock instructions
//	@Description	Always answers with the same message so the endpoint cannot be used to discover accounts.
//	@Tags			Unlock
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RequestUnlockEmailRequest	true	"Account email"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing email"
//	@Router			/v1/unlock/request-email [post].
func (h *UnlockHandler) HandleRequestEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RequestUnlockEmailRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Unlock.RequestUnlockEmail(r.Context(), req.Email, httpx.ClientIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Message: "if that account is locked, unlock instructions have been sent",
	})
}

// HandleStatus handles GET /v1/unlock/status/{email}
//
//	@Summary		Lock status
//	@Description	Unknown addresses report as unlocked.
//	@Tags			Unlock
//	@Produce		json
//	@Param			email	path		string	true	"Account email"
//	@Success		200		{object}	authsdk.LockStatusResponse
//	@Router			/v1/unlock/status/{email} [get].
func (h *UnlockHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Unlock.Status(r.Context(), r.PathValue("email"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LockStatusResponse{
		Locked:               st.Locked,
		LockedUntil:          st.LockedUntil,
		Reason:               st.Reason,
		HasActiveUnlockToken: st.HasActiveUnlockToken,
	})
}
