package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/aussiebroadwan/studyhub/pkg/slogx"
)

// NotificationKind selects the security email template.
type NotificationKind string

const (
	NotifyAccountLocked   NotificationKind = "account_locked"
	NotifyAccountUnlocked NotificationKind = "account_unlocked"
	NotifyTwoFAEnabled    NotificationKind = "2fa_enabled"
	NotifyTwoFADisabled   NotificationKind = "2fa_disabled"
	NotifyOAuthConnected  NotificationKind = "oauth_connected"
)

// Notifier delivers security notifications. Implementations own templating
// and transport; the security flows only pass a kind and template data.
type Notifier interface {
	SendSecurityNotification(ctx context.Context, kind NotificationKind, recipient string, data map[string]any) error
}

// LogNotifier writes notifications to the context logger instead of
// sending them. It is the default when no SMTP host is configured.
type LogNotifier struct{}

func (LogNotifier) SendSecurityNotification(
	ctx context.Context,
	kind NotificationKind,
	recipient string,
	data map[string]any,
) error {
	attrs := []any{slog.String("kind", string(kind)), slog.String("recipient", recipient)}
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}
	slogx.FromContext(ctx).Info("security notification", attrs...)
	return nil
}

// SMTPNotifier renders plain-text emails and sends them over SMTP.
type SMTPNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// send defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var emailTemplates = map[NotificationKind]emailTemplate{
	NotifyAccountLocked: {
		subject: "Your StudyHub account has been locked",
		body: template.Must(template.New("locked").Parse(`Hi {{.username}},

We locked your StudyHub account after {{.attempts}} failed sign-in attempts.

To unlock it, open this link:
{{.unlockUrl}}

or enter this code on the unlock page:
{{.emailToken}}

The link expires at {{.expiresAt}}. If this wasn't you, consider changing
your password once you are back in.
`)),
	},
	NotifyAccountUnlocked: {
		subject: "Your StudyHub account has been unlocked",
		body: template.Must(template.New("unlocked").Parse(`Hi {{.username}},

Your StudyHub account was unlocked at {{.unlockedAt}}. You will be asked to
set up two-factor authentication the next time you sign in.
`)),
	},
	NotifyTwoFAEnabled: {
		subject: "Two-factor authentication enabled",
		body: template.Must(template.New("2fa_enabled").Parse(`Hi {{.username}},

Two-factor authentication is now enabled on your StudyHub account.
`)),
	},
	NotifyTwoFADisabled: {
		subject: "Two-factor authentication disabled",
		body: template.Must(template.New("2fa_disabled").Parse(`Hi {{.username}},

Two-factor authentication was turned off for your StudyHub account. If this
wasn't you, reset your password immediately.
`)),
	},
	NotifyOAuthConnected: {
		subject: "New sign-in method connected",
		body: template.Must(template.New("oauth_connected").Parse(`Hi {{.username}},

Your {{.provider}} account{{with .providerEmail}} ({{.}}){{end}} can now be used to sign in to StudyHub.
`)),
	},
}

// Render builds the full RFC 5322 message for kind.
func (n *SMTPNotifier) Render(kind NotificationKind, recipient string, data map[string]any) ([]byte, error) {
	tmpl, ok := emailTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("notifier: unknown notification kind %q", kind)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("notifier: render %s: %w", kind, err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.From)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", tmpl.subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}

func (n *SMTPNotifier) SendSecurityNotification(
	ctx context.Context,
	kind NotificationKind,
	recipient string,
	data map[string]any,
) error {
	msg, err := n.Render(kind, recipient, data)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.Host)
	}

	send := n.send
	if send == nil {
		send = smtp.SendMail
	}

	addr := net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
	if err := send(addr, auth, n.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("notifier: send %s: %w", kind, err)
	}

	slogx.FromContext(ctx).Debug("security email sent", slog.String("kind", string(kind)))
	return nil
}

// notify sends a notification and logs failures. Emails are never allowed
// to fail the security operation that triggered them.
func notify(ctx context.Context, n Notifier, kind NotificationKind, recipient string, data map[string]any) bool {
	if n == nil {
		return false
	}
	if err := n.SendSecurityNotification(ctx, kind, recipient, data); err != nil {
		slogx.FromContext(ctx).Error("failed to send security notification",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return false
	}
	return true
}
