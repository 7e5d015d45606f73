package httpx

import (
	"context"

	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"

	// CtxKeyClientIP holds the address resolved by ClientIPMiddleware.
	CtxKeyClientIP ctxKey = "client_ip"
)

// UserID returns the authenticated subject injected by AuthnMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CtxKeyUserID).(string)
	return id, ok && id != ""
}

// ClaimsFrom returns the verified claims injected by AuthnMiddleware.
func ClaimsFrom(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}
