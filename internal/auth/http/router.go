package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/aussiebroadwan/studyhub/pkg/slogx"

	_ "github.com/aussiebroadwan/studyhub/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	Services *service.Services

	// Limits and Limiters default to DefaultRateLimits and process-local
	// token buckets. Set them before ApplyRoutes.
	Limits   httpx.RateLimits
	Limiters httpx.LimiterFactory

	// RedisPing is reported by /readyz when set.
	RedisPing PingFunc

	// TrustedProxies may set X-Forwarded-For. Empty means the socket
	// address is the client.
	TrustedProxies httpx.TrustedProxies
}

func NewRouter(
	svcs *service.Services,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Services:     svcs,
		Limits:       httpx.DefaultRateLimits(),
		Limiters:     httpx.MemoryLimiterFactory,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.middlewares = append(r.middlewares, httpx.ClientIPMiddleware(r.TrustedProxies))

	r.registerAuth()
	r.registerTwoFA()
	r.registerUnlock()
	r.registerOAuth()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			StudyHub User Service API
//	@version		0.1.0
//	@description	Account security for StudyHub: password and social login, login throttling, account lockout with emailed unlock links, and TOTP two-factor authentication.
//	@description
//	@description				Access, refresh and challenge tokens are HS256 JWTs. Each token carries a purpose and is only accepted by the endpoints for that purpose.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/studyhub
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit builds a rate limiter for one route. name namespaces the shared
// Redis keyspace.
func (r *Router) limit(name string, cfg httpx.RateLimitConfig, key httpx.KeyExtractor) httpx.Middleware {
	return httpx.RateLimitWith(r.Limiters(name, cfg), cfg, key)
}

func (r *Router) byIP(name string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(name, cfg, httpx.IPKeyExtractor)
}

func (r *Router) byUser(name string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(name, cfg, httpx.CompositeKeyExtractor(":", httpx.UserIDKeyExtractor, httpx.IPKeyExtractor))
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.Services.Auth, Sessions: r.Services.Sessions}

	// POST /register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			r.byIP("register", r.Limits.Strict),
		),
	)

	// POST /login - strict rate limit by IP + email. The lockout policy
	// runs behind this and counts every attempt that gets through.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.limit("login", r.Limits.Strict, httpx.CompositeKeyExtractor(":",
				httpx.IPKeyExtractor,
				httpx.JSONFieldKeyExtractor("email"),
			)),
		),
	)

	// POST /login-2fa - the challenge token is verified by the service so
	// expired and wrong-purpose tokens get a typed reason.
	r.Mux.Handle("POST /v1/auth/login-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleLoginTwoFA),
			r.byIP("login-2fa", r.Limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			r.byIP("refresh", r.Limits.Moderate),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("logout", r.Limits.Moderate),
		),
	)

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("me", r.Limits.Lenient),
		),
	)
}

func (r *Router) registerTwoFA() {
	h := &TwoFAHandler{TwoFA: r.Services.TwoFA}

	// Setup and verify also accept the setup token from a forced-setup login.
	setupAuthn := httpx.AuthnMiddleware(r.verifier, jwtx.PurposeAccess, jwtx.PurposeTwoFASetup)

	r.Mux.Handle("POST /v1/auth/2fa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			setupAuthn,
			r.byUser("2fa-setup", r.Limits.Moderate),
		),
	)

	// POST /2fa/verify - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /v1/auth/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			setupAuthn,
			r.byUser("2fa-verify", r.Limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/auth/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("2fa-disable", r.Limits.Strict),
		),
	)

	r.Mux.Handle("GET /v1/auth/2fa/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("2fa-status", r.Limits.Lenient),
		),
	)
}

func (r *Router) registerUnlock() {
	h := &UnlockHandler{Unlock: r.Services.Unlock}

	r.Mux.Handle("GET /v1/unlock/verify-token/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyToken),
			r.byIP("unlock-verify-token", r.Limits.Moderate),
		),
	)

	r.Mux.Handle("POST /v1/unlock/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail),
			r.byIP("unlock-verify-email", r.Limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/unlock/verify-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyTwoFA),
			r.byIP("unlock-verify-2fa", r.Limits.Strict),
		),
	)

	// POST /request-email - strict rate limit by IP + email (sends mail)
	r.Mux.Handle("POST /v1/unlock/request-email",
		httpx.Chain(http.HandlerFunc(h.HandleRequestEmail),
			r.limit("unlock-request-email", r.Limits.Strict, httpx.CompositeKeyExtractor(":",
				httpx.IPKeyExtractor,
				httpx.JSONFieldKeyExtractor("email"),
			)),
		),
	)

	r.Mux.Handle("GET /v1/unlock/status/{email}",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			r.byIP("unlock-status", r.Limits.Moderate),
		),
	)
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{OAuth: r.Services.OAuth}

	r.Mux.Handle("POST /v1/auth/google",
		httpx.Chain(http.HandlerFunc(h.HandleGoogle),
			r.byIP("oauth-google", r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/facebook",
		httpx.Chain(http.HandlerFunc(h.HandleFacebook),
			r.byIP("oauth-facebook", r.Limits.Strict),
		),
	)

	r.Mux.Handle("GET /v1/auth/oauth/connections",
		httpx.Chain(http.HandlerFunc(h.HandleConnections),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("oauth-connections", r.Limits.Lenient),
		),
	)
	r.Mux.Handle("POST /v1/auth/oauth/connect/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleConnect),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("oauth-connect", r.Limits.Moderate),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/oauth/disconnect/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleDisconnect),
			httpx.AuthnMiddleware(r.verifier),
			r.byUser("oauth-disconnect", r.Limits.Moderate),
		),
	)
}

func (r *Router) registerSystem() {
	h := &HealthHandler{
		Started:   r.startTime,
		Version:   r.buildVersion,
		Store:     r.store,
		RedisPing: r.RedisPing,
	}

	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(http.HandlerFunc(h.HandleLivez),
			r.byIP("livez", r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(http.HandlerFunc(h.HandleReadyz),
			r.byIP("readyz", r.Limits.Public),
		),
	)
}
