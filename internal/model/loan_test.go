package model

import (
	"testing"
	"time"
)

func TestLoanEffectiveStatus(t *testing.T) {
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		status string
		now    time.Time
		want   string
	}{
		{LoanStatusBorrowed, due.Add(-time.Hour), LoanStatusBorrowed},
		{LoanStatusBorrowed, due, LoanStatusBorrowed},
		{LoanStatusBorrowed, due.Add(time.Second), LoanStatusOverdue},
		{LoanStatusWaiting, due.Add(48 * time.Hour), LoanStatusWaiting},
		{LoanStatusReturned, due.Add(48 * time.Hour), LoanStatusReturned},
	}

	for _, tt := range tests {
		l := &Loan{Status: tt.status, DueDate: due}
		if got := l.Effective(tt.now); got != tt.want {
			t.Errorf("Effective(%s, %v) = %q, want %q", tt.status, tt.now, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range OpenLoanStatuses {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
	if !IsTerminal(LoanStatusReturned) || !IsTerminal(LoanStatusRejected) {
		t.Error("returned and rejected must be terminal")
	}
}
