package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// writeServiceError maps a service error onto the public error body.
// Anything unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var (
		verr  *service.ValidationError
		cerr  *service.CredentialsError
		lerr  *service.LockedError
		serr  *service.AccountStatusError
		terr  *service.TokenError
		cferr *service.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		e := authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation, verr.Message)
		if verr.Field != "" {
			e = e.With("field", verr.Field)
		}
		e.WriteError(w)

	case errors.As(err, &cerr):
		authsdk.ErrInvalidCredentials.With("attemptsRemaining", cerr.AttemptsRemaining).WriteError(w)

	case errors.As(err, &lerr):
		writeLocked(w, lerr)

	case errors.As(err, &serr):
		authsdk.NewAPIError(http.StatusForbidden, authsdk.ErrorCodeAccountInactive, serr.Error()).
			With("status", string(serr.Status)).
			WriteError(w)

	case errors.As(err, &terr):
		status := http.StatusUnauthorized
		if terr.Reason == service.TokenEmailNotVerified {
			status = http.StatusBadRequest
		}
		authsdk.NewAPIError(status, authsdk.ErrorCodeInvalidToken, terr.Error()).
			With("reason", string(terr.Reason)).
			WriteError(w)

	case errors.As(err, &cferr):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeConflict, cferr.Message).WriteError(w)

	case errors.Is(err, service.ErrInvalidCredentials):
		// Password re-check on authenticated endpoints.
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "password incorrect").
			WriteError(w)

	case errors.Is(err, service.ErrInvalidTOTPCode):
		authsdk.ErrInvalidCode.WriteError(w)

	case errors.Is(err, service.ErrTwoFAAlreadyEnabled):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeTwoFAEnabled, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrTwoFANotEnabled):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeTwoFANotEnabled, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrUnsupportedProvider),
		errors.Is(err, service.ErrProviderEmailMissing):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeProvider, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrNotFound):
		authsdk.ErrNotFound.WriteError(w)

	default:
		log.Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func writeLocked(w http.ResponseWriter, lerr *service.LockedError) {
	if lerr.Scope == service.LockScopeIP {
		if lerr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(lerr.RetryAfter.Seconds())))
		}
		authsdk.ErrTooManyAttempts.WriteError(w)
		return
	}

	e := authsdk.ErrAccountLocked.With("emailSent", lerr.EmailSent)
	if lerr.Reason != "" {
		e = e.With("reason", lerr.Reason)
	}
	if lerr.LockedUntil != nil {
		e = e.With("lockedUntil", lerr.LockedUntil.UTC().Format(time.RFC3339))
	}
	e.WriteError(w)
}
