// Package email sends operator alerts via SMTP.
package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"
)

// Config holds SMTP configuration
type Config struct {
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	FromName   string
	Recipients []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if SMTP and at least one recipient are set
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && len(s.config.Recipients) > 0
}

// SendEmail sends a plain text email to the configured recipients
func (s *Service) SendEmail(subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	msg := buildMessage(s.fromHeader(), s.config.Recipients, subject, body)
	return s.send(s.server, s.auth, s.config.From, s.config.Recipients, msg)
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

// SyncFailure describes a failed sheet sync for the alert body
type SyncFailure struct {
	RunID      string
	Trigger    string
	SourceURL  string
	StartedAt  time.Time
	HTTPStatus int
	Error      string
}

// SendSyncFailure alerts operators that a sync failed and can be retried
func (s *Service) SendSyncFailure(failure SyncFailure) error {
	body, err := renderTemplate(syncFailureTemplate, failure)
	if err != nil {
		return fmt.Errorf("render sync failure template: %w", err)
	}
	subject := "Review sheet sync failed"
	if failure.HTTPStatus > 0 {
		subject = fmt.Sprintf("Review sheet sync failed (HTTP %d)", failure.HTTPStatus)
	}
	return s.SendEmail(subject, body)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const syncFailureTemplate = `The review sheet sync did not complete.

Run:      {{.RunID}}
Trigger:  {{.Trigger}}
Started:  {{.StartedAt.UTC.Format "2006-01-02 15:04:05 MST"}}
Source:   {{.SourceURL}}
{{- if .HTTPStatus}}
Status:   HTTP {{.HTTPStatus}}
{{- end}}

Error:
{{.Error}}

The previous sheet data is still being served. Trigger a manual sync once the
source is reachable again.
`
