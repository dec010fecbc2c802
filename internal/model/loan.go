package model

import "time"

// Loan statuses as stored.
const (
	LoanStatusWaiting        = "waiting"
	LoanStatusReadyForPickup = "ready_for_pickup"
	LoanStatusBorrowed       = "borrowed"
	LoanStatusReturned       = "returned"
	LoanStatusRejected       = "rejected"

	// LoanStatusOverdue is never stored. It is derived for borrowed loans
	// whose due date has passed.
	LoanStatusOverdue = "overdue"
)

// OpenLoanStatuses are the non-terminal statuses.
var OpenLoanStatuses = []string{LoanStatusWaiting, LoanStatusReadyForPickup, LoanStatusBorrowed}

// IsTerminal reports whether a stored status ends the loan lifecycle.
func IsTerminal(status string) bool {
	return status == LoanStatusReturned || status == LoanStatusRejected
}

// ValidLoanStatus reports whether s is a status that can be filtered on.
func ValidLoanStatus(s string) bool {
	switch s {
	case LoanStatusWaiting, LoanStatusReadyForPickup, LoanStatusBorrowed,
		LoanStatusReturned, LoanStatusRejected, LoanStatusOverdue:
		return true
	}
	return false
}

// Loan is a single circulation record.
type Loan struct {
	ID           int64      `json:"id" db:"id"`
	TitleID      int64      `json:"title_id" db:"title_id"`
	BorrowerID   int64      `json:"borrower_id" db:"borrower_id"`
	Status       string     `json:"status" db:"status"`
	RequestedAt  time.Time  `json:"requested_at" db:"requested_at"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	PickedUpAt   *time.Time `json:"picked_up_at,omitempty" db:"picked_up_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	RenewalCount int        `json:"renewal_count" db:"renewal_count"`
	MaxRenewals  int        `json:"max_renewals" db:"max_renewals"`
	FineAmount   *float64   `json:"fine_amount,omitempty" db:"fine_amount"`
	CopyReserved bool       `json:"-" db:"copy_reserved"`

	// Derived at read time (not stored).
	EffectiveStatus string   `json:"effective_status" db:"-"`
	AccruedFine     *float64 `json:"accrued_fine,omitempty" db:"-"`

	// Joined fields (not always populated).
	TitleName string `json:"title_name,omitempty" db:"title_name"`
}

// IsOverdue reports whether the loan is borrowed and past its due date at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanStatusBorrowed && l.DueDate.Before(now)
}

// Effective returns the status as seen at now, deriving overdue.
func (l *Loan) Effective(now time.Time) string {
	if l.IsOverdue(now) {
		return LoanStatusOverdue
	}
	return l.Status
}
