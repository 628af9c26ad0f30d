// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mailer

import (
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Pass       string
	From       string // defaults to User
	InviteLink string // workspace invite embedded in welcome emails
}

// Mailer sends email over SMTP. Callers hold it behind small per-use
// interfaces and pass nil when SMTP is unconfigured.
type Mailer struct {
	dialer *gomail.Dialer
	cfg    Config
}

func New(cfg Config) *Mailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		cfg:    cfg,
	}
}

// Send delivers a plain-text email.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// SendOutreach satisfies outreach.Mailer.
func (m *Mailer) SendOutreach(to, subject, body string) error {
	return m.Send(to, subject, body)
}

// SendWelcome satisfies onboarding.WelcomeMailer. The message carries
// the workspace invite link when one is configured.
func (m *Mailer) SendWelcome(to, firstName, lastName string) error {
	name := strings.TrimSpace(firstName + " " + lastName)
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	b.WriteString("Welcome to the community! Your membership registration has been received.\n\n")
	if m.cfg.InviteLink != "" {
		fmt.Fprintf(&b, "Join our Slack workspace here: %s\n\n", m.cfg.InviteLink)
	}
	b.WriteString("Once you join, you will be added to the channels of the committees you selected.\n\n")
	b.WriteString("See you there!")

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Welcome aboard!")
	msg.SetBody("text/plain", b.String())
	msg.AddAlternative("text/html", welcomeHTML(name, m.cfg.InviteLink))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send welcome to %s: %w", to, err)
	}
	return nil
}

func welcomeHTML(name, invite string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", name)
	b.WriteString("<p>Welcome to the community! Your membership registration has been received.</p>")
	if invite != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Join our Slack workspace</a></p>`, invite)
	}
	b.WriteString("<p>Once you join, you will be added to the channels of the committees you selected.</p>")
	b.WriteString("<p>See you there!</p>")
	return b.String()
}
