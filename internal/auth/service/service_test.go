package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/aussiebroadwan/studyhub/internal/auth/store/drivers/sqldb"
	"github.com/aussiebroadwan/studyhub/pkg/cryptox"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-pepper")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// testEpoch sits on a 30 second TOTP step boundary.
var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentNotification struct {
	Kind      NotificationKind
	Recipient string
	Data      map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) SendSecurityNotification(
	_ context.Context,
	kind NotificationKind,
	recipient string,
	data map[string]any,
) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{Kind: kind, Recipient: recipient, Data: data})
	return nil
}

func (n *recordingNotifier) last(t *testing.T, kind NotificationKind) sentNotification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return sentNotification{}
}

func (n *recordingNotifier) count(kind NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

type fixture struct {
	*Services
	store    *sqldb.Store
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *jwtx.HS256
}

func newFixture(t *testing.T, providers map[domain.Provider]ProviderVerifier) *fixture {
	t.Helper()

	st, err := sqldb.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := &fakeClock{t: testEpoch}
	tokens, err := jwtx.NewHS256([]byte(strings.Repeat("s", jwtx.MinSecretLength)), "studyhub", clock.Now)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svcs := New(Options{
		Store:       st,
		Tokens:      tokens,
		Notifier:    notifier,
		Providers:   providers,
		FrontendURL: "https://studyhub.test",
		TOTPIssuer:  "StudyHub",
		AccessTTL:   time.Hour,
		Now:         clock.Now,
	})

	return &fixture{Services: svcs, store: st, clock: clock, notifier: notifier, tokens: tokens}
}

func (f *fixture) register(t *testing.T, username, password string) domain.User {
	t.Helper()
	u, err := f.Auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		FullName: strings.ToUpper(username[:1]) + username[1:],
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// failLogin submits a wrong password and advances the clock one second so
// ledger rows stay ordered.
func (f *fixture) failLogin(t *testing.T, email, ip string) error {
	t.Helper()
	_, err := f.Auth.Login(context.Background(), email, "wrong-password", RequestMeta{IP: ip, UserAgent: "test"})
	require.Error(t, err)
	f.clock.Advance(time.Second)
	return err
}

// enableTwoFA runs setup and verification and returns the secret.
func (f *fixture) enableTwoFA(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()

	setup, err := f.TwoFA.InitSetup(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, f.TwoFA.VerifyAndEnable(ctx, userID, codeAt(t, setup.Secret, f.clock.Now())))
	return setup.Secret
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    TOTPPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code the current window rejects.
func wrongCode(t *testing.T, f *fixture, secret string) string {
	t.Helper()
	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !f.TwoFA.ValidateCode(secret, c) {
			return c
		}
	}
	t.Fatal("no rejected code found")
	return ""
}
