package service

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSMTPNotifierRender(t *testing.T) {
	n := &SMTPNotifier{From: "StudyHub <no-reply@studyhub.test>"}

	msg, err := n.Render(NotifyAccountLocked, "alice@example.com", map[string]any{
		"username":   "alice",
		"attempts":   5,
		"unlockUrl":  "https://studyhub.test/unlock/abc",
		"emailToken": "email-token-1",
		"expiresAt":  "tomorrow",
	})
	require.NoError(t, err)

	s := string(msg)
	require.Contains(t, s, "To: alice@example.com\r\n")
	require.Contains(t, s, "Subject: Your StudyHub account has been locked\r\n")
	require.Contains(t, s, "after 5 failed sign-in attempts")
	require.Contains(t, s, "https://studyhub.test/unlock/abc")
	require.Contains(t, s, "email-token-1")
	require.NotContains(t, strings.ReplaceAll(s, "\r\n", ""), "\n")

	msg, err = n.Render(NotifyOAuthConnected, "alice@example.com", map[string]any{
		"username": "alice",
		"provider": "google",
	})
	require.NoError(t, err)
	require.Contains(t, string(msg), "Your google account can now be used")

	_, err = n.Render(NotificationKind("nope"), "alice@example.com", nil)
	require.Error(t, err)
}

func TestSMTPNotifierSend(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotAuth smtp.Auth
	)
	n := &SMTPNotifier{
		Host:     "smtp.studyhub.test",
		Port:     2525,
		Username: "mailer",
		Password: "pw",
		From:     "no-reply@studyhub.test",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotAuth = addr, to, a
			return nil
		},
	}

	err := n.SendSecurityNotification(context.Background(), NotifyTwoFAEnabled, "bob@example.com",
		map[string]any{"username": "bob"})
	require.NoError(t, err)
	require.Equal(t, "smtp.studyhub.test:2525", gotAddr)
	require.Equal(t, []string{"bob@example.com"}, gotTo)
	require.NotNil(t, gotAuth)

	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	err = n.SendSecurityNotification(context.Background(), NotifyTwoFADisabled, "bob@example.com",
		map[string]any{"username": "bob"})
	require.ErrorContains(t, err, "connection refused")
}

func TestNotifySwallowsFailures(t *testing.T) {
	ctx := context.Background()
	require.False(t, notify(ctx, nil, NotifyTwoFAEnabled, "a@example.com", nil))
	require.False(t, notify(ctx, &recordingNotifier{err: errors.New("down")}, NotifyTwoFAEnabled, "a@example.com", nil))
	require.True(t, notify(ctx, LogNotifier{}, NotifyTwoFAEnabled, "a@example.com", map[string]any{"username": "a"}))
}
