package circulation

import (
	"context"
	"log/slog"
	"time"

	"github.com/erazemk/izposoja/internal/fine"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Reminder kinds.
const (
	ReminderReadyForPickup = "ready_for_pickup"
	ReminderDueSoon        = "due_soon"
	ReminderOverdue        = "overdue"
)

// Reminder is a notice to a borrower about one loan.
type Reminder struct {
	Kind        string    `json:"kind"`
	LoanID      int64     `json:"loan_id"`
	BorrowerID  int64     `json:"borrower_id"`
	TitleID     int64     `json:"title_id"`
	TitleName   string    `json:"title_name"`
	DueDate     time.Time `json:"due_date"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
	FineAccrued float64   `json:"fine_accrued,omitempty"`
}

// ReminderDispatcher delivers reminders. Delivery is best effort.
type ReminderDispatcher interface {
	SendReminder(ctx context.Context, r Reminder) error
}

// SweepResult counts the reminders of one sweep.
type SweepResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// notify dispatches r and logs a failure. It never returns an error: the
// loan change it reports on is already committed.
func (s *Service) notify(ctx context.Context, r Reminder) bool {
	if s.reminders == nil {
		return true
	}
	if err := s.reminders.SendReminder(ctx, r); err != nil {
		slog.Warn("failed to send reminder", "kind", r.Kind, "loan", r.LoanID, "borrower", r.BorrowerID, "error", err)
		return false
	}
	return true
}

// SendReminders notifies borrowers whose loans are overdue or due within
// the configured lead time.
func (s *Service) SendReminders(ctx context.Context) (SweepResult, error) {
	now := s.now()
	loans, err := store.ListLoans(ctx, s.db, store.LoanFilter{Statuses: []string{model.LoanStatusBorrowed}})
	if err != nil {
		return SweepResult{}, err
	}

	lead := time.Duration(s.policy.ReminderLeadDays) * day
	var res SweepResult
	for _, l := range loans {
		r := Reminder{
			Kind:       ReminderDueSoon,
			LoanID:     l.ID,
			BorrowerID: l.BorrowerID,
			TitleID:    l.TitleID,
			TitleName:  l.TitleName,
			DueDate:    l.DueDate,
		}
		switch {
		case l.IsOverdue(now):
			r.Kind = ReminderOverdue
			r.DaysOverdue = fine.DaysOverdue(l.DueDate, now)
			r.FineAccrued = fine.Compute(l.DueDate, now, s.policy.DailyFineRate)
		case l.DueDate.Sub(now) > lead:
			continue
		}

		if s.notify(ctx, r) {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	if err := store.SetLastReminderSweep(ctx, s.db, now.UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("failed to record reminder sweep", "error", err)
	}

	slog.Info("reminder sweep finished", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}
