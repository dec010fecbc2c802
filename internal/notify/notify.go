// Package notify delivers circulation reminders.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/izposoja/internal/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogDispatcher writes reminders to the log. It is used when no webhook
// is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

// SendReminder logs r.
func (d *LogDispatcher) SendReminder(ctx context.Context, r circulation.Reminder) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "reminder",
		"kind", r.Kind,
		"loan", r.LoanID,
		"borrower", r.BorrowerID,
		"title", r.TitleName,
		"due", r.DueDate.Format(time.DateOnly),
		"days_overdue", r.DaysOverdue,
	)
	return nil
}

// WebhookDispatcher posts reminders as JSON to a URL.
type WebhookDispatcher struct {
	URL    string
	Client *http.Client
}

// NewWebhookDispatcher returns a dispatcher posting to url with the given
// request timeout.
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// SendReminder posts r. Any non-2xx response is an error.
func (d *WebhookDispatcher) SendReminder(ctx context.Context, r circulation.Reminder) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reminder: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating reminder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting reminder: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("posting reminder: unexpected status %d", resp.StatusCode)
	}
	return nil
}
