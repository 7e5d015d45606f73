package http_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestLockoutUnlockAndTwoFAFlow walks a locked account back to a 2FA
// protected session: five bad passwords, email unlock, forced 2FA setup and
// a 2FA challenge.
func TestLockoutUnlockAndTwoFAFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	user, err := ts.client.Register(ctx, authsdk.RegisterRequest{
		Username: "alice",
		Email:    "alice@x.com",
		Password: "secret1",
		FullName: "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@x.com", user.Email)
	require.Equal(t, "Alice", user.FullName)

	// Each attempt comes from its own address so the IP block stays out of
	// the way of the account lock.
	clientAt := func(n int) *authsdk.Client {
		return ts.client.WithIP(fmt.Sprintf("203.0.113.%d", n))
	}
	wrong := authsdk.LoginRequest{Email: "alice@x.com", Password: "wrong"}
	right := authsdk.LoginRequest{Email: "alice@x.com", Password: "secret1"}

	for i := 1; i < 5; i++ {
		_, err := clientAt(i).Login(ctx, wrong)
		apiErr := requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
		require.EqualValues(t, 5-i, apiErr.Details["attemptsRemaining"])
	}

	_, err = clientAt(5).Login(ctx, wrong)
	apiErr := requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
	require.Equal(t, true, apiErr.Details["emailSent"])
	require.NotEmpty(t, apiErr.Details["lockedUntil"])

	locked := ts.mail.last(t, service.NotifyAccountLocked)
	require.Equal(t, "alice@x.com", locked.Recipient)
	emailToken, _ := locked.Data["emailToken"].(string)
	require.NotEmpty(t, emailToken)

	// The right password does not get past the lock.
	_, err = clientAt(6).Login(ctx, right)
	requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)

	status, err := ts.client.LockStatus(ctx, "alice@x.com")
	require.NoError(t, err)
	require.True(t, status.Locked)
	require.True(t, status.HasActiveUnlockToken)

	// Email stage: no 2FA yet, so the account unlocks immediately.
	verified, err := ts.client.VerifyUnlockEmail(ctx, emailToken)
	require.NoError(t, err)
	require.True(t, verified.Unlocked)
	require.False(t, verified.RequiresTwoFA)

	_, err = ts.client.VerifyUnlockEmail(ctx, emailToken)
	apiErr = requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	require.Equal(t, "used", apiErr.Details["reason"])

	status, err = ts.client.LockStatus(ctx, "alice@x.com")
	require.NoError(t, err)
	require.False(t, status.Locked)

	// Unlocking forces 2FA setup on the next login.
	login, err := clientAt(7).Login(ctx, right)
	require.NoError(t, err)
	require.True(t, login.RequireTwoFASetup)
	require.NotEmpty(t, login.SetupToken)
	require.Empty(t, login.Token)

	// The setup token only opens the 2FA setup endpoints.
	_, err = ts.client.Me(ctx, login.SetupToken)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	setup, err := ts.client.SetupTwoFA(ctx, login.SetupToken)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.OTPAuthURL, "otpauth://totp/")

	err = ts.client.VerifyTwoFA(ctx, login.SetupToken, "000000x")
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	require.NoError(t, ts.client.VerifyTwoFA(ctx, login.SetupToken, totpNow(t, setup.Secret)))

	// Password now leads to a challenge, and the challenge to a session.
	login, err = clientAt(7).Login(ctx, right)
	require.NoError(t, err)
	require.False(t, login.RequireTwoFASetup)
	require.True(t, login.TwoFARequired)
	require.NotEmpty(t, login.TempToken)

	session, err := clientAt(7).LoginTwoFA(ctx, login.TempToken, totpNow(t, setup.Secret))
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.NotEmpty(t, session.RefreshToken)
	require.NotNil(t, session.User)
	require.Equal(t, user.ID, session.User.ID)

	st, err := ts.client.TwoFAStatus(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, authsdk.TwoFAStatusResponse{Enabled: true, Required: false, Pending: false}, *st)

	me, err := ts.client.Me(ctx, session.Token)
	require.NoError(t, err)
	require.True(t, me.TwoFAEnabled)
	require.NotNil(t, me.LastLoginAt)
}

func TestTwoStageUnlockOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	_, err := ts.client.Register(ctx, authsdk.RegisterRequest{
		Username: "bob", Email: "bob@x.com", Password: "secret1", FullName: "Bob",
	})
	require.NoError(t, err)

	login, err := ts.client.Login(ctx, authsdk.LoginRequest{Email: "bob@x.com", Password: "secret1"})
	require.NoError(t, err)
	setup, err := ts.client.SetupTwoFA(ctx, login.Token)
	require.NoError(t, err)
	require.NoError(t, ts.client.VerifyTwoFA(ctx, login.Token, totpNow(t, setup.Secret)))

	for i := 1; i <= 5; i++ {
		_, err = ts.client.WithIP(fmt.Sprintf("198.51.100.%d", i)).
			Login(ctx, authsdk.LoginRequest{Email: "bob@x.com", Password: "nope"})
		require.Error(t, err)
	}
	emailToken, _ := ts.mail.last(t, service.NotifyAccountLocked).Data["emailToken"].(string)

	verified, err := ts.client.VerifyUnlockEmail(ctx, emailToken)
	require.NoError(t, err)
	require.False(t, verified.Unlocked)
	require.True(t, verified.RequiresTwoFA)
	require.NotEmpty(t, verified.TempToken)

	_, err = ts.client.VerifyUnlockTwoFA(ctx, verified.TempToken, "12345x")
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	_, err = ts.client.VerifyUnlockTwoFA(ctx, verified.TempToken, totpNow(t, setup.Secret))
	require.NoError(t, err)

	status, err := ts.client.LockStatus(ctx, "bob@x.com")
	require.NoError(t, err)
	require.False(t, status.Locked)
	ts.mail.last(t, service.NotifyAccountUnlocked)
}

func TestGoogleLoginResolvesSameUser(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	first, err := ts.client.WithIP("192.0.2.10").LoginWithProvider(ctx, "google", "google-id-token")
	require.NoError(t, err)
	require.NotEmpty(t, first.Token)

	second, err := ts.client.WithIP("192.0.2.20").LoginWithProvider(ctx, "google", "google-id-token")
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)

	conns, err := ts.client.Connections(ctx, second.Token)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, "google", conns[0].Provider)
	require.Equal(t, "gina@gmail.com", conns[0].ProviderEmail)

	_, err = ts.client.Connect(ctx, second.Token, "google", "google-id-token")
	apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeConflict)
	require.Contains(t, apiErr.Description, "already connected")

	_, err = ts.client.LoginWithProvider(ctx, "google", "forged")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	require.NoError(t, ts.client.Disconnect(ctx, second.Token, "google"))
	err = ts.client.Disconnect(ctx, second.Token, "google")
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	err = ts.client.Disconnect(ctx, second.Token, "github")
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeProvider)
}
