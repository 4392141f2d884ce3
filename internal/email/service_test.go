package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port:       "587",
				From:       "alerts@example.com",
				Recipients: []string{"ops@example.com"},
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host:       "smtp.example.com",
				Port:       "587",
				Recipients: []string{"ops@example.com"},
			},
			expected: false,
		},
		{
			name: "no recipients",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "alerts@example.com",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host:       "smtp.example.com",
				Port:       "587",
				From:       "alerts@example.com",
				Recipients: []string{"ops@example.com"},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendSyncFailure(t *testing.T) {
	svc := NewService(Config{
		Host:       "smtp.example.com",
		Port:       "587",
		From:       "alerts@example.com",
		FromName:   "Review Dashboard",
		Recipients: []string{"ops@example.com", "lead@example.com"},
	})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := svc.SendSyncFailure(SyncFailure{
		RunID:      "run-123",
		Trigger:    "scheduled",
		SourceURL:  "https://example.com/reviews.csv",
		StartedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		HTTPStatus: 503,
		Error:      "upstream returned HTTP 503",
	})
	if err != nil {
		t.Fatalf("SendSyncFailure failed: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected server address %q", gotAddr)
	}
	if len(gotTo) != 2 {
		t.Errorf("expected 2 recipients, got %v", gotTo)
	}
	for _, want := range []string{
		"Subject: Review sheet sync failed (HTTP 503)",
		"From: Review Dashboard <alerts@example.com>",
		"Run:      run-123",
		"Status:   HTTP 503",
		"2024-05-01 09:00:00 UTC",
		"upstream returned HTTP 503",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message should contain %q:\n%s", want, gotMsg)
		}
	}
}

func TestSendSyncFailureWithoutStatus(t *testing.T) {
	body, err := renderTemplate(syncFailureTemplate, SyncFailure{
		RunID:     "run-9",
		StartedAt: time.Now(),
		Error:     "fetch attempt 3/3: context deadline exceeded",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(body, "Status:") {
		t.Error("status line should be omitted when there is no HTTP status")
	}
}

func TestSendEmailNotConfigured(t *testing.T) {
	svc := NewService(Config{})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("must not be called")
	}

	if err := svc.SendEmail("subject", "body"); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}
