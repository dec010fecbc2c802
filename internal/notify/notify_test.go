package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/circulation"
)

var reminder = circulation.Reminder{
	Kind:        circulation.ReminderOverdue,
	LoanID:      12,
	BorrowerID:  3,
	TitleID:     7,
	TitleName:   "Solaris",
	DueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	DaysOverdue: 4,
	FineAccrued: 2,
}

func TestWebhookDispatcher(t *testing.T) {
	var got circulation.Reminder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second)
	require.NoError(t, d.SendReminder(context.Background(), reminder))
	assert.Equal(t, reminder.LoanID, got.LoanID)
	assert.Equal(t, reminder.Kind, got.Kind)
	assert.True(t, reminder.DueDate.Equal(got.DueDate))
}

func TestWebhookDispatcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookDispatcher(srv.URL, time.Second).SendReminder(context.Background(), reminder)
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestWebhookDispatcherTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := NewWebhookDispatcher(srv.URL, 20*time.Millisecond).SendReminder(context.Background(), reminder)
	assert.Error(t, err)
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := &LogDispatcher{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, d.SendReminder(context.Background(), reminder))
	assert.Contains(t, buf.String(), "kind=overdue")
	assert.Contains(t, buf.String(), "loan=12")
	assert.Contains(t, buf.String(), "due=2026-03-01")
}
