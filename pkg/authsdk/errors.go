package authsdk

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"

	"github.com/aussiebroadwan/studyhub/pkg/httpx"
)

// Error codes returned in the "error" field.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeValidation         = "validation_error"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeTooManyAttempts    = "too_many_attempts"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeAccountInactive    = "account_inactive"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeConflict           = "conflict"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeTwoFAEnabled       = "two_factor_already_enabled"
	ErrorCodeTwoFANotEnabled    = "two_factor_not_enabled"
	ErrorCodeProvider           = "provider_error"
	ErrorCodeServerError        = "server_error"
)

// APIError is the error body every endpoint returns. It is written by the
// server and decoded by Client.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine readable error code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// Details are merged into the top level of the JSON body, e.g.
	// lockedUntil, reason, attemptsRemaining.
	Details map[string]any `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// With returns a copy of e carrying an extra detail field.
func (e *APIError) With(key string, value any) *APIError {
	cp := *e
	cp.Details = maps.Clone(e.Details)
	if cp.Details == nil {
		cp.Details = map[string]any{}
	}
	cp.Details[key] = value
	return &cp
}

// WriteError writes e as the HTTP response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	body := make(map[string]any, len(e.Details)+2)
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["error_description"] = e.Description
	httpx.WriteJSON(w, e.StatusCode, body)
}

// UnmarshalJSON keeps unknown fields as Details.
func (e *APIError) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Code, _ = raw["error"].(string)
	e.Description, _ = raw["error_description"].(string)
	delete(raw, "error")
	delete(raw, "error_description")
	if len(raw) > 0 {
		e.Details = raw
	}
	return nil
}

// ErrorResponse documents the error body for API docs. Extra fields such
// as lockedUntil or attemptsRemaining appear next to these two.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewAPIError creates an APIError with the given status, code and description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	// ErrInvalidRequest is returned for malformed JSON bodies or missing fields.
	ErrInvalidRequest = NewAPIError(http.StatusBadRequest, ErrorCodeInvalidRequest,
		"the request is malformed or missing required parameters")

	// ErrInvalidCredentials never reveals whether the email or the password was wrong.
	ErrInvalidCredentials = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidCredentials,
		"email or password incorrect")

	// ErrTooManyAttempts is returned while the client IP is blocked.
	ErrTooManyAttempts = NewAPIError(http.StatusTooManyRequests, ErrorCodeTooManyAttempts,
		"too many failed login attempts, please try again later")

	// ErrAccountLocked is returned for locked accounts.
	ErrAccountLocked = NewAPIError(http.StatusLocked, ErrorCodeAccountLocked,
		"account is locked, check your email for unlock instructions")

	// ErrInvalidToken is returned when a bearer, setup or unlock token is unusable.
	ErrInvalidToken = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidToken,
		"the token is missing, invalid or expired")

	// ErrInvalidCode is returned for a wrong TOTP code.
	ErrInvalidCode = NewAPIError(http.StatusBadRequest, ErrorCodeInvalidCode,
		"invalid verification code")

	// ErrNotFound is returned when the addressed resource does not exist.
	ErrNotFound = NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "not found")

	// ErrServerError hides infrastructure failures from callers.
	ErrServerError = NewAPIError(http.StatusInternalServerError, ErrorCodeServerError,
		"internal server error")
)
