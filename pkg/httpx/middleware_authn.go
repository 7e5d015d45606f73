package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// AuthnMiddleware requires a bearer token minted for one of allowed
// purposes (PurposeAccess when none are given) and injects its claims.
func AuthnMiddleware(v jwtx.Verifier, allowed ...jwtx.Purpose) Middleware {
	if len(allowed) == 0 {
		allowed = []jwtx.Purpose{jwtx.PurposeAccess}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.VerifyPurpose(raw, allowed...)
			switch {
			case errors.Is(err, jwtx.ErrExpired):
				writeBearerError(w, "token expired")
				return
			case errors.Is(err, jwtx.ErrPurpose):
				writeBearerError(w, "token not valid for this endpoint")
				return
			case err != nil:
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = slogx.With(contextWithAuth(ctx, claims), "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[7:])
	return raw, raw != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
