// Package notify delivers outbound email and chat notifications.
// Delivery is best-effort: callers log failures and carry on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Email is one templated message.
type Email struct {
	Recipients []string
	Template   string
	Title      string
	Data       map[string]string
}

// Mailer sends templated email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// Notifier posts a short text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogMailer writes messages to the logger instead of sending them.
// Codes and links end up in the log, so only use it for local development.
type LogMailer struct {
	Logger *zap.SugaredLogger
}

func (m LogMailer) Send(_ context.Context, msg Email) error {
	m.Logger.Infow("email",
		"recipients", msg.Recipients,
		"template", msg.Template,
		"title", msg.Title,
		"data", msg.Data,
	)
	return nil
}

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	Logger *zap.SugaredLogger
}

func (n LogNotifier) Notify(_ context.Context, text string) error {
	n.Logger.Infow("notification", "text", text)
	return nil
}

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewSlackNotifier returns a notifier with a short client timeout.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SlackNotifier) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return oops.Code("SLACK_NOTIFY_FAILED").Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return oops.Code("SLACK_NOTIFY_FAILED").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return oops.Code("SLACK_NOTIFY_FAILED").Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return oops.Code("SLACK_NOTIFY_FAILED").With("status", resp.StatusCode).Errorf("webhook rejected message")
	}
	return nil
}
