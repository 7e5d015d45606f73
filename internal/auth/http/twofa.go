package http

import (
	"net/http"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// TwoFAHandler handles the TOTP lifecycle endpoints.
type TwoFAHandler struct {
	TwoFA *service.TwoFAService
}

// HandleSetup handles POST /v1/auth/2fa/setup
//
//	@Summary		Start TOTP setup
//	@Description	Generates (or re-renders) the pending TOTP secret. Accepts an access token or the setupToken from a forced-setup login.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFASetupResponse	"Secret, otpauth URL and QR code"
//	@Failure		400	{object}	authsdk.ErrorResponse		"2FA already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/auth/2fa/setup [post].
func (h *TwoFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	res, err := h.TwoFA.InitSetup(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFASetupResponse{
		Secret:     res.Secret,
		OTPAuthURL: res.OTPAuthURL,
		QRCode:     res.QRImage,
		SetupToken: res.SetupToken,
	})
}

// HandleVerify handles POST /v1/auth/2fa/verify
//
//	@Summary		Verify TOTP code and enable 2FA
//	@Description	Confirms the pending secret. Clears the forced-setup flag. No session is issued; log in again afterwards.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFAVerifyRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code, no pending setup or already enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing token"
//	@Router			/v1/auth/2fa/verify [post].
func (h *TwoFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserID(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TwoFAVerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFA.VerifyAndEnable(ctx, userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("2FA enabled")
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "two-factor authentication enabled"})
}

// HandleDisable handles POST /v1/auth/2fa/disable
//
//	@Summary		Disable 2FA
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFADisableRequest	true	"Current password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"2FA not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Wrong password or invalid token"
//	@Router			/v1/auth/2fa/disable [post].
func (h *TwoFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserID(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TwoFADisableRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFA.Disable(ctx, userID, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("2FA disabled")
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "two-factor authentication disabled"})
}

// HandleStatus handles GET /v1/auth/2fa/status
//
//	@Summary		2FA status
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFAStatusResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/2fa/status [get].
func (h *TwoFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	st, err := h.TwoFA.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFAStatusResponse{
		Enabled:  st.Enabled,
		Required: st.Required,
		Pending:  st.Pending,
	})
}
