package config

import (
	"strings"
	"time"
)

// MailConfig configures the SMTP relay. Fields are read with the MAIL_ prefix.
type MailConfig struct {
	// SMTPHost disables delivery when empty; messages are then only logged.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"25"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"FROM"          envDefault:"harvestd <noreply@localhost>"`
	// Timeout bounds dialing and sending one message.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to mail configuration values.
func (m *MailConfig) Sanitize() {
	m.SMTPHost = strings.TrimSpace(m.SMTPHost)
	if m.SMTPPort <= 0 || m.SMTPPort > 65535 {
		m.SMTPPort = 25
	}
	if m.Timeout <= 0 {
		m.Timeout = 30 * time.Second
	}
	if m.From = strings.TrimSpace(m.From); m.From == "" {
		m.From = "harvestd <noreply@localhost>"
	}
}

// Enabled reports whether an SMTP relay is configured.
func (m *MailConfig) Enabled() bool {
	return m.SMTPHost != ""
}
