// Package circulation implements the lending engine: the eligibility gate,
// the loan state machine and the operations built on them.
//
// Every operation that moves a copy in or out of the catalog does so in the
// same transaction as the loan write. Requests that lose a race are retried
// from the gate, so callers see the real denial reason instead of a conflict.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/fine"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Service exposes the circulation operations.
type Service struct {
	db        *sqlx.DB
	gate      *Gate
	policy    config.Circulation
	reminders ReminderDispatcher
	now       func() time.Time
	retry     []RetryOption
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetry configures the conflict retry loop.
func WithRetry(opts ...RetryOption) Option {
	return func(s *Service) { s.retry = opts }
}

// NewService returns a circulation service. fees and reminders may be nil.
func NewService(db *sqlx.DB, policy config.Circulation, fees FeeOracle, reminders ReminderDispatcher, opts ...Option) *Service {
	s := &Service{
		db:        db,
		gate:      NewGate(db, fees, policy),
		policy:    policy,
		reminders: reminders,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the lending policy the service enforces.
func (s *Service) Policy() config.Circulation {
	return s.policy
}

// RequestBorrow checks eligibility, reserves a copy and creates the loan.
// Titles that require pickup start in waiting; the rest are borrowed at once.
func (s *Service) RequestBorrow(ctx context.Context, req BorrowRequest) (*model.Loan, error) {
	if req.RequestedDays != nil {
		if d := *req.RequestedDays; d < 1 || d > s.policy.MaxLoanDays {
			return nil, &ValidationError{Field: "requested_days", Message: fmt.Sprintf("must be between 1 and %d", s.policy.MaxLoanDays)}
		}
	}

	borrower, err := s.borrower(ctx, req.BorrowerID)
	if err != nil {
		return nil, err
	}

	var loan *model.Loan
	err = RetryOnConflict(ctx, func(ctx context.Context) error {
		now := s.now()
		decision, err := s.gate.Evaluate(ctx, borrower, req, now)
		if err != nil {
			return err
		}
		loan, err = s.createLoan(ctx, borrower, decision, now)
		return err
	}, s.retry...)

	if reason, ok := Denied(err); ok {
		slog.Info("borrow request denied", "borrower", req.BorrowerID, "title", req.TitleID, "reason", reason)
		return nil, err
	}
	if errors.Is(err, ErrConflict) {
		slog.Error("borrow request kept conflicting", "borrower", req.BorrowerID, "title", req.TitleID, "error", err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	slog.Info("loan created", "loan", loan.ID, "borrower", loan.BorrowerID, "title", loan.TitleID, "status", loan.Status)
	return s.decorate(loan, s.now()), nil
}

func (s *Service) createLoan(ctx context.Context, borrower *model.User, d *Decision, now time.Time) (*model.Loan, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := revalidate(ctx, tx, borrower.ID, d.Title.ID, d.Limits, now); err != nil {
		return nil, err
	}

	if err := store.ReserveCopy(ctx, tx, d.Title.ID); err != nil {
		if errors.Is(err, store.ErrOutOfStock) {
			return nil, fmt.Errorf("reserving copy of title %d: %w", d.Title.ID, ErrConflict)
		}
		return nil, err
	}

	loan := model.Loan{
		TitleID:      d.Title.ID,
		BorrowerID:   borrower.ID,
		Status:       InitialStatus(d.Title.RequiresPickup),
		RequestedAt:  now,
		DueDate:      d.DueDate,
		MaxRenewals:  d.Limits.MaxRenewals,
		CopyReserved: true,
	}
	if loan.Status == model.LoanStatusBorrowed {
		loan.PickedUpAt = &now
	}

	id, err := store.InsertLoan(ctx, tx, loan)
	if errors.Is(err, store.ErrEligibilityChanged) {
		return nil, fmt.Errorf("inserting loan: %w", ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing loan: %w", err)
	}

	return store.GetLoan(ctx, s.db, id)
}

// MarkReady moves a waiting loan to ready_for_pickup and tells the borrower.
func (s *Service) MarkReady(ctx context.Context, loanID int64) (*model.Loan, error) {
	loan, err := s.apply(ctx, loanID, ActionMarkReady, func(*model.Loan, time.Time) (store.LoanUpdate, error) {
		return store.LoanUpdate{}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Reminder{
		Kind:       ReminderReadyForPickup,
		LoanID:     loan.ID,
		BorrowerID: loan.BorrowerID,
		TitleID:    loan.TitleID,
		TitleName:  loan.TitleName,
		DueDate:    loan.DueDate,
	})
	return loan, nil
}

// ConfirmPickup hands the copy over. The loan period restarts now, keeping
// the length chosen when the loan was requested.
func (s *Service) ConfirmPickup(ctx context.Context, loanID int64) (*model.Loan, error) {
	return s.apply(ctx, loanID, ActionPickup, func(l *model.Loan, now time.Time) (store.LoanUpdate, error) {
		period := l.DueDate.Sub(l.RequestedAt)
		if period <= 0 {
			period = time.Duration(s.policy.DefaultLoanDays) * day
		}
		return store.LoanUpdate{
			"picked_up_at": now.UTC(),
			"due_date":     now.Add(period).UTC(),
		}, nil
	})
}

// RejectRequest refuses a waiting or uncollected request and releases its copy.
func (s *Service) RejectRequest(ctx context.Context, loanID int64) (*model.Loan, error) {
	return s.apply(ctx, loanID, ActionReject, func(*model.Loan, time.Time) (store.LoanUpdate, error) {
		return store.LoanUpdate{}, nil
	})
}

// ReturnLoan closes a borrowed loan, stores its fine and releases the copy.
// settlement defaults to now and may not lie in the future.
func (s *Service) ReturnLoan(ctx context.Context, loanID int64, settlement *time.Time) (*model.Loan, error) {
	if settlement != nil && settlement.After(s.now()) {
		return nil, &ValidationError{Field: "settlement", Message: "must not be in the future"}
	}

	return s.apply(ctx, loanID, ActionReturn, func(l *model.Loan, now time.Time) (store.LoanUpdate, error) {
		at := now
		if settlement != nil {
			at = *settlement
		}
		if at.Before(l.RequestedAt) {
			return nil, &ValidationError{Field: "settlement", Message: "must not be before the loan was requested"}
		}
		return store.LoanUpdate{
			"returned_at": at.UTC(),
			"fine_amount": fine.Compute(l.DueDate, at, s.policy.DailyFineRate),
		}, nil
	})
}

// RenewLoan extends a borrowed loan by extraDays, or the default renewal
// period. Overdue loans and loans out of renewals are refused.
func (s *Service) RenewLoan(ctx context.Context, loanID int64, extraDays *int) (*model.Loan, error) {
	days := s.policy.DefaultRenewalDays
	if extraDays != nil {
		days = *extraDays
		if days < 1 || days > s.policy.MaxLoanDays {
			return nil, &ValidationError{Field: "extra_days", Message: fmt.Sprintf("must be between 1 and %d", s.policy.MaxLoanDays)}
		}
	}

	var loan *model.Loan
	err := RetryOnConflict(ctx, func(ctx context.Context) error {
		now := s.now()
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		l, err := s.loadForAction(ctx, tx, loanID, ActionRenew)
		if err != nil {
			return err
		}
		if l.RenewalCount >= l.MaxRenewals {
			return deny(ReasonRenewalLimitExceeded, "%d of %d renewals used", l.RenewalCount, l.MaxRenewals)
		}
		if l.IsOverdue(now) {
			return deny(ReasonCannotRenewOverdue, "due %s", l.DueDate.Format(time.DateOnly))
		}

		err = store.RenewBorrowedLoan(ctx, tx, loanID, l.RenewalCount, l.DueDate.Add(time.Duration(days)*day))
		if errors.Is(err, store.ErrStatusChanged) {
			return fmt.Errorf("renewing loan %d: %w", loanID, ErrConflict)
		}
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing renewal: %w", err)
		}
		loan, err = store.GetLoan(ctx, s.db, loanID)
		return err
	}, s.retry...)
	if err != nil {
		if reason, ok := Denied(err); ok {
			slog.Info("renewal denied", "loan", loanID, "reason", reason)
		}
		return nil, err
	}

	slog.Info("loan renewed", "loan", loan.ID, "renewals", loan.RenewalCount, "due", loan.DueDate)
	return s.decorate(loan, s.now()), nil
}

// apply runs a state machine action on a loan in one transaction. update
// supplies the columns the action writes besides the status.
func (s *Service) apply(ctx context.Context, loanID int64, action Action, update func(*model.Loan, time.Time) (store.LoanUpdate, error)) (*model.Loan, error) {
	var loan *model.Loan
	err := RetryOnConflict(ctx, func(ctx context.Context) error {
		now := s.now()
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		l, err := s.loadForAction(ctx, tx, loanID, action)
		if err != nil {
			return err
		}

		set, err := update(l, now)
		if err != nil {
			return err
		}
		set["status"] = Target(action)

		if Releases(action) {
			set["copy_reserved"] = false
			if l.CopyReserved {
				if err := store.ReleaseCopy(ctx, tx, l.TitleID); err != nil {
					if errors.Is(err, store.ErrInvariantViolation) {
						slog.Error("catalog counter out of sync", "loan", l.ID, "title", l.TitleID, "action", action)
						return fmt.Errorf("releasing copy for loan %d: %w", l.ID, ErrInvariantViolation)
					}
					return err
				}
			}
		}

		err = store.TransitionLoan(ctx, tx, loanID, []string{l.Status}, set)
		if errors.Is(err, store.ErrStatusChanged) {
			return fmt.Errorf("loan %d: %w", loanID, ErrConflict)
		}
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing %s: %w", action, err)
		}
		loan, err = store.GetLoan(ctx, s.db, loanID)
		return err
	}, s.retry...)
	if err != nil {
		return nil, err
	}

	slog.Info("loan updated", "loan", loan.ID, "action", action, "status", loan.Status)
	return s.decorate(loan, s.now()), nil
}

func (s *Service) loadForAction(ctx context.Context, tx *sqlx.Tx, loanID int64, action Action) (*model.Loan, error) {
	l, err := store.GetLoan(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("loan %d: %w", loanID, ErrNotFound)
	}
	if !CanApply(action, l.Status) {
		if model.IsTerminal(l.Status) {
			return nil, fmt.Errorf("loan %d is already %s: %w", loanID, l.Status, ErrInvalidState)
		}
		return nil, fmt.Errorf("cannot %s a %s loan: %w", action, l.Status, ErrInvalidState)
	}
	return l, nil
}

// LoanFilter narrows ListLoans. Statuses match the stored status or, for
// overdue, the derived one; borrowed therefore includes overdue loans.
type LoanFilter struct {
	BorrowerID int64
	TitleID    int64
	Statuses   []string
}

// ListLoans returns loans matching the filter with derived fields filled in.
func (s *Service) ListLoans(ctx context.Context, f LoanFilter) ([]model.Loan, error) {
	var stored []string
	for _, st := range f.Statuses {
		if !model.ValidLoanStatus(st) {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", st)}
		}
		if st == model.LoanStatusOverdue {
			st = model.LoanStatusBorrowed
		}
		if !slices.Contains(stored, st) {
			stored = append(stored, st)
		}
	}
	overdueOnly := slices.Contains(f.Statuses, model.LoanStatusOverdue) &&
		!slices.Contains(f.Statuses, model.LoanStatusBorrowed)

	loans, err := store.ListLoans(ctx, s.db, store.LoanFilter{
		BorrowerID: f.BorrowerID,
		TitleID:    f.TitleID,
		Statuses:   stored,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]model.Loan, 0, len(loans))
	for i := range loans {
		l := s.decorate(&loans[i], now)
		if overdueOnly && l.Status == model.LoanStatusBorrowed && l.EffectiveStatus != model.LoanStatusOverdue {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

// GetLoan returns one loan with derived fields filled in.
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*model.Loan, error) {
	l, err := store.GetLoan(ctx, s.db, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("loan %d: %w", loanID, ErrNotFound)
	}
	return s.decorate(l, s.now()), nil
}

// ComputeFine returns the fine owed on a loan as of asOf, or now. Returned
// loans report the fine stored at return; loans never borrowed owe nothing.
func (s *Service) ComputeFine(ctx context.Context, loanID int64, asOf *time.Time) (float64, error) {
	l, err := store.GetLoan(ctx, s.db, loanID)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, fmt.Errorf("loan %d: %w", loanID, ErrNotFound)
	}

	switch l.Status {
	case model.LoanStatusReturned:
		if l.FineAmount != nil {
			return *l.FineAmount, nil
		}
		if l.ReturnedAt != nil {
			return fine.Compute(l.DueDate, *l.ReturnedAt, s.policy.DailyFineRate), nil
		}
		return 0, nil
	case model.LoanStatusBorrowed:
		at := s.now()
		if asOf != nil {
			at = *asOf
		}
		return fine.Compute(l.DueDate, at, s.policy.DailyFineRate), nil
	default:
		return 0, nil
	}
}

// Snapshot is the computed view of a borrower's standing.
type Snapshot struct {
	BorrowerID     int64  `json:"borrower_id"`
	Class          string `json:"class"`
	ActiveLoans    int    `json:"active_loans"`
	MaxActiveLoans int    `json:"max_active_loans"`
	OverdueLoans   int    `json:"overdue_loans"`
	HasOverdue     bool   `json:"has_overdue"`
}

// BorrowerSnapshot returns the borrower's open loan count and overdue state.
func (s *Service) BorrowerSnapshot(ctx context.Context, borrowerID int64) (*Snapshot, error) {
	borrower, err := s.borrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}

	loans, err := store.ListLoans(ctx, s.db, store.LoanFilter{BorrowerID: borrowerID, Statuses: model.OpenLoanStatuses})
	if err != nil {
		return nil, err
	}

	class := borrower.BorrowerClass
	if _, ok := s.policy.Classes[class]; !ok {
		class = s.policy.DefaultClass
	}

	now := s.now()
	snap := &Snapshot{
		BorrowerID:     borrowerID,
		Class:          class,
		ActiveLoans:    len(loans),
		MaxActiveLoans: s.policy.Limits(class).MaxActiveLoans,
	}
	for i := range loans {
		if loans[i].IsOverdue(now) {
			snap.OverdueLoans++
		}
	}
	snap.HasOverdue = snap.OverdueLoans > 0
	return snap, nil
}

func (s *Service) borrower(ctx context.Context, id int64) (*model.User, error) {
	u, err := store.GetUser(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.DeletedAt != nil {
		return nil, fmt.Errorf("borrower %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *Service) decorate(l *model.Loan, now time.Time) *model.Loan {
	l.EffectiveStatus = l.Effective(now)
	if l.Status == model.LoanStatusBorrowed {
		f := fine.Compute(l.DueDate, now, s.policy.DailyFineRate)
		l.AccruedFine = &f
	}
	return l
}
