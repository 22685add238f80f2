package alerts

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// EmailConfig carries SMTP settings. Empty host or recipients leave the
// channel unconfigured.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// sendMailFunc matches smtp.SendMail; swapped in tests.
type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Email delivers alerts over SMTP.
type Email struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

// NewEmail creates the email channel.
func NewEmail(cfg EmailConfig) *Email {
	return &Email{cfg: cfg, sendMail: smtp.SendMail}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Enabled() bool {
	return e.cfg.Host != "" && e.cfg.From != "" && len(e.cfg.To) > 0
}

// emailHTML renders the HTML body: the alert facts as a list, the catalyst
// tags when present, then the body text.
func emailHTML(a domain.Alert) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>%s %s</h2>", html.EscapeString(string(a.Symbol)), html.EscapeString(kindLabel(a.Kind)))
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>score %.1f</li>", a.Score)
	fmt.Fprintf(&b, "<li>priority %s</li>", a.Priority)
	if a.Price > 0 {
		fmt.Fprintf(&b, "<li>price %.2f</li>", a.Price)
	}
	if a.VolumeRatio > 0 {
		fmt.Fprintf(&b, "<li>volume %.1fx average</li>", a.VolumeRatio)
	}
	fmt.Fprintf(&b, "<li>detected %s</li>", a.DetectedAt.UTC().Format(time.RFC3339))
	b.WriteString("</ul>")
	if len(a.CatalystTags) > 0 {
		b.WriteString("<p>catalysts</p><ul>")
		for _, tag := range a.CatalystTags {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(tag))
		}
		b.WriteString("</ul>")
	}
	fmt.Fprintf(&b, "<p>%s</p>", strings.ReplaceAll(html.EscapeString(a.Body), "\n", "<br>"))
	b.WriteString("</body></html>")
	return b.String()
}

// Send builds an RFC 5322 message with the priority-tagged subject line and
// an HTML body, then submits it. SMTP failures are transient; the next
// delivery may find the relay healthy again.
func (e *Email) Send(ctx context.Context, a domain.Alert) error {
	if !e.Enabled() {
		return fmt.Errorf("%w: email", domain.ErrChannelUnconfigured)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: email: %v", domain.ErrChannelTransient, err)
	}

	subject := fmt.Sprintf("[%s] %s: %s", a.Priority, a.Kind, a.Symbol)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(emailHTML(a))
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	if err := e.sendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("%w: smtp send: %v", domain.ErrChannelTransient, err)
	}
	return nil
}
