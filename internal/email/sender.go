// Package email dispatches deadline reminder emails through an HTTP mail
// provider. Sending is fallible and best-effort; callers decide what a
// failure means for the alert being processed.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jalonhq/jalon/internal/config"
)

// Reminder is the payload of one deadline reminder email.
type Reminder struct {
	To            string
	Subject       string
	Body          string
	VendorName    string
	ProjectName   string
	MilestoneName string
	PlannedDate   time.Time
	DaysRemaining int
	IsOverdue     bool
}

// Sender delivers deadline reminder emails.
type Sender interface {
	SendDeadlineReminder(ctx context.Context, r Reminder) error
}

// NewSender returns an HTTP sender when an endpoint is configured, otherwise
// a no-op sender that only logs. The service stays functional without a mail
// provider; alerts then deliver on the in-app channel only.
func NewSender(cfg config.EmailConfig) Sender {
	if cfg.Endpoint == "" {
		slog.Info("email endpoint not configured, using noop sender", "component", "email")
		return &NoopSender{}
	}
	return NewHTTPSender(cfg)
}

// HTTPSender posts reminder emails as JSON to a mail provider endpoint.
type HTTPSender struct {
	endpoint  string
	apiKey    string
	fromEmail string
	fromName  string
	client    *http.Client
}

// NewHTTPSender creates a sender for the configured provider endpoint.
func NewHTTPSender(cfg config.EmailConfig) *HTTPSender {
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		client:    &http.Client{Timeout: timeout},
	}
}

type wireAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type wireMessage struct {
	From    wireAddress `json:"from"`
	To      wireAddress `json:"to"`
	Subject string      `json:"subject"`
	Text    string      `json:"text"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// SendDeadlineReminder delivers one reminder. A non-2xx response is an error;
// the body is truncated into the message for diagnostics.
func (s *HTTPSender) SendDeadlineReminder(ctx context.Context, r Reminder) error {
	if r.To == "" {
		return fmt.Errorf("email: recipient required")
	}

	msg := wireMessage{
		From:    wireAddress{Email: s.fromEmail, Name: s.fromName},
		To:      wireAddress{Email: r.To, Name: r.VendorName},
		Subject: r.Subject,
		Text:    r.Body,
		Metadata: map[string]string{
			"project":   r.ProjectName,
			"milestone": r.MilestoneName,
			"category":  reminderCategory(r),
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("email: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/messages", &buf)
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func reminderCategory(r Reminder) string {
	if r.IsOverdue {
		return "overdue"
	}
	return fmt.Sprintf("reminder_j%d", r.DaysRemaining)
}

// NoopSender logs instead of sending. Used when no provider is configured
// and in tests.
type NoopSender struct{}

// SendDeadlineReminder logs the reminder and reports success.
func (n *NoopSender) SendDeadlineReminder(_ context.Context, r Reminder) error {
	slog.Info("email send skipped (noop sender)",
		"component", "email",
		"to", r.To,
		"subject", r.Subject,
	)
	return nil
}
