package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

const day = 24 * time.Hour

// FeeOracle answers whether a borrower has paid their dues. A nil account
// with a nil error means the ledger holds no record for the borrower.
type FeeOracle interface {
	FeeStatus(ctx context.Context, borrowerID int64) (*model.FeeAccount, error)
}

// BorrowRequest asks for one copy of a title.
type BorrowRequest struct {
	BorrowerID    int64 `json:"borrower_id"`
	TitleID       int64 `json:"title_id"`
	RequestedDays *int  `json:"requested_days,omitempty"`
}

// Decision is the outcome of a passed eligibility check.
type Decision struct {
	Title   *model.Title
	Limits  config.ClassLimits
	DueDate time.Time
}

// Gate decides whether a borrow request may proceed.
type Gate struct {
	db     *sqlx.DB
	fees   FeeOracle
	policy config.Circulation
}

// NewGate returns a gate reading loans and titles from db. fees may be nil,
// which skips the fee check.
func NewGate(db *sqlx.DB, fees FeeOracle, policy config.Circulation) *Gate {
	return &Gate{db: db, fees: fees, policy: policy}
}

// Evaluate runs the eligibility checks in order and stops at the first one
// that fails: catalog availability, overdue loans, the active loan cap, fee
// eligibility, and finally a duplicate open loan of the same title.
func (g *Gate) Evaluate(ctx context.Context, borrower *model.User, req BorrowRequest, now time.Time) (*Decision, error) {
	title, err := store.GetTitle(ctx, g.db, req.TitleID)
	if err != nil {
		return nil, err
	}
	if title == nil || title.DeletedAt != nil {
		return nil, deny(ReasonNotFound, "title %d", req.TitleID)
	}
	if title.AvailableCopies <= 0 {
		return nil, deny(ReasonOutOfStock, "no copies of %q available", title.Title)
	}

	overdue, err := store.HasOverdueLoans(ctx, g.db, borrower.ID, now)
	if err != nil {
		return nil, err
	}
	if overdue {
		return nil, deny(ReasonHasOverdueLoans, "")
	}

	limits := g.policy.Limits(borrower.BorrowerClass)
	active, err := store.CountOpenLoans(ctx, g.db, borrower.ID)
	if err != nil {
		return nil, err
	}
	if active >= limits.MaxActiveLoans {
		return nil, deny(ReasonBorrowLimitReached, "%d of %d loans in use", active, limits.MaxActiveLoans)
	}

	if err := g.checkFees(ctx, borrower.ID); err != nil {
		return nil, err
	}

	dup, err := store.HasOpenLoanFor(ctx, g.db, borrower.ID, title.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, deny(ReasonAlreadyRequested, "title %d", title.ID)
	}

	days := g.policy.LoanDays(borrower.BorrowerClass)
	if req.RequestedDays != nil {
		days = *req.RequestedDays
	}

	return &Decision{
		Title:   title,
		Limits:  limits,
		DueDate: now.Add(time.Duration(days) * day),
	}, nil
}

func (g *Gate) checkFees(ctx context.Context, borrowerID int64) error {
	if !g.policy.FeeCheck || g.fees == nil {
		return nil
	}
	permissive := g.policy.OnMissingFeeData == config.MissingFeeAllow

	account, err := g.fees.FeeStatus(ctx, borrowerID)
	if err != nil {
		if permissive {
			slog.Warn("fee oracle unavailable, allowing request", "borrower", borrowerID, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrFeeOracleUnavailable, err)
	}

	if account == nil {
		if permissive {
			return nil
		}
		return deny(ReasonFeeThresholdNotMet, "no fee record")
	}

	if account.AmountDue > 0 {
		required := math.Round(g.policy.FeeThreshold*account.AmountDue*100) / 100
		if account.AmountPaid < required {
			return deny(ReasonFeeThresholdNotMet, "paid %.2f of %.2f required for %s",
				account.AmountPaid, required, account.Period)
		}
	}

	if g.policy.BlockOnUnpaidFines && account.UnpaidFines > 0 {
		return deny(ReasonUnpaidFines, "%.2f outstanding", account.UnpaidFines)
	}
	return nil
}

// revalidate repeats the borrower checks inside the write transaction.
// Anything that changed since Evaluate is a lost race and reported as
// ErrConflict, so the retried request gets the real denial from the gate.
func revalidate(ctx context.Context, tx *sqlx.Tx, borrowerID, titleID int64, limits config.ClassLimits, now time.Time) error {
	overdue, err := store.HasOverdueLoans(ctx, tx, borrowerID, now)
	if err != nil {
		return err
	}
	active, err := store.CountOpenLoans(ctx, tx, borrowerID)
	if err != nil {
		return err
	}
	dup, err := store.HasOpenLoanFor(ctx, tx, borrowerID, titleID)
	if err != nil {
		return err
	}
	if overdue || dup || active >= limits.MaxActiveLoans {
		return fmt.Errorf("borrower %d: %w", borrowerID, ErrConflict)
	}
	return nil
}
