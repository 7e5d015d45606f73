package service

import (
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
)

type Options struct {
	Store       store.Store
	Tokens      *jwtx.HS256
	Notifier    Notifier
	Providers   map[domain.Provider]ProviderVerifier
	FrontendURL string
	TOTPIssuer  string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	// Now overrides the clock for every service; nil means time.Now.
	Now func() time.Time
}

// Services is the wired set of security services sharing one store, token
// signer, notifier and clock.
type Services struct {
	Ledger   *LedgerService
	Lockout  *LockoutService
	Unlock   *UnlockService
	TwoFA    *TwoFAService
	Sessions *SessionService
	Auth     *AuthService
	OAuth    *OAuthService
}

func New(opts Options) *Services {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	issuer := opts.TOTPIssuer
	if issuer == "" {
		issuer = "StudyHub"
	}

	ledger := &LedgerService{Store: opts.Store, Now: opts.Now}
	lockout := &LockoutService{Store: opts.Store, Ledger: ledger, Now: opts.Now}
	twofa := &TwoFAService{
		Store:    opts.Store,
		Tokens:   opts.Tokens,
		Notifier: notifier,
		Issuer:   issuer,
		Now:      opts.Now,
	}
	unlock := &UnlockService{
		Store:       opts.Store,
		Lockout:     lockout,
		Ledger:      ledger,
		TwoFA:       twofa,
		Tokens:      opts.Tokens,
		Notifier:    notifier,
		FrontendURL: opts.FrontendURL,
		Now:         opts.Now,
	}
	sessions := &SessionService{
		Store:      opts.Store,
		Tokens:     opts.Tokens,
		AccessTTL:  opts.AccessTTL,
		RefreshTTL: opts.RefreshTTL,
		Now:        opts.Now,
	}
	auth := &AuthService{
		Store:    opts.Store,
		Tokens:   opts.Tokens,
		Ledger:   ledger,
		Lockout:  lockout,
		Unlock:   unlock,
		TwoFA:    twofa,
		Sessions: sessions,
		Now:      opts.Now,
	}
	oauth := &OAuthService{
		Store:     opts.Store,
		Providers: opts.Providers,
		Auth:      auth,
		Notifier:  notifier,
		Now:       opts.Now,
	}

	return &Services{
		Ledger:   ledger,
		Lockout:  lockout,
		Unlock:   unlock,
		TwoFA:    twofa,
		Sessions: sessions,
		Auth:     auth,
		OAuth:    oauth,
	}
}
