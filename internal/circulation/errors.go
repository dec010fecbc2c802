package circulation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a loan, title or borrower does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a loan is not in a status the
	// operation can start from.
	ErrInvalidState = errors.New("invalid loan state")

	// ErrConflict is returned when a write lost a race with a concurrent
	// request. It is retried internally; callers only see it once the
	// retry budget is spent, and may retry themselves.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrInvariantViolation is returned when the catalog counters disagree
	// with the loans. It always signals a bug.
	ErrInvariantViolation = errors.New("circulation invariant violated")

	// ErrFeeOracleUnavailable is returned when the fee ledger cannot be read
	// and policy requires fee data.
	ErrFeeOracleUnavailable = errors.New("fee oracle unavailable")
)

// Reason identifies why a request was denied by policy.
type Reason string

// Denial reasons.
const (
	ReasonNotFound             Reason = "not_found"
	ReasonOutOfStock           Reason = "out_of_stock"
	ReasonHasOverdueLoans      Reason = "has_overdue_loans"
	ReasonBorrowLimitReached   Reason = "borrow_limit_reached"
	ReasonFeeThresholdNotMet   Reason = "fee_threshold_not_met"
	ReasonUnpaidFines          Reason = "unpaid_fines"
	ReasonAlreadyRequested     Reason = "already_requested"
	ReasonRenewalLimitExceeded Reason = "renewal_limit_exceeded"
	ReasonCannotRenewOverdue   Reason = "cannot_renew_overdue"
)

// DenialError is an expected, user-facing refusal.
type DenialError struct {
	Reason Reason
	Detail string
}

func deny(reason Reason, format string, args ...any) *DenialError {
	return &DenialError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *DenialError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

// Is makes a not_found denial match ErrNotFound.
func (e *DenialError) Is(target error) bool {
	return target == ErrNotFound && e.Reason == ReasonNotFound
}

// Denied returns the denial reason carried by err, if any.
func Denied(err error) (Reason, bool) {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// ValidationError reports malformed input. The operation wrote nothing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
