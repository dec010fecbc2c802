package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const loanColumns = `l.id, l.title_id, l.borrower_id, l.status, l.requested_at, l.due_date,
	l.picked_up_at, l.returned_at, l.renewal_count, l.max_renewals, l.fine_amount, l.copy_reserved,
	t.title AS title_name`

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	BorrowerID int64
	TitleID    int64
	Statuses   []string
}

// InsertLoan stores a new loan. A second open loan for the same title and
// borrower violates idx_loans_open_pair and is reported as ErrEligibilityChanged.
func InsertLoan(ctx context.Context, tx *sqlx.Tx, l model.Loan) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO loans (title_id, borrower_id, status, requested_at, due_date, picked_up_at,
		                    max_renewals, copy_reserved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.TitleID, l.BorrowerID, l.Status, l.RequestedAt.UTC(), l.DueDate.UTC(), utcPtr(l.PickedUpAt),
		l.MaxRenewals, l.CopyReserved,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEligibilityChanged
		}
		return 0, fmt.Errorf("inserting loan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting loan id: %w", err)
	}
	return id, nil
}

// GetLoan returns a loan by ID with the title name joined in.
func GetLoan(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.Loan, error) {
	l := &model.Loan{}
	err := sqlx.GetContext(ctx, q, l,
		`SELECT `+loanColumns+` FROM loans l JOIN titles t ON t.id = l.title_id WHERE l.id = ?`, id,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	return l, nil
}

// ListLoans returns loans matching the filter, oldest request first.
func ListLoans(ctx context.Context, q sqlx.QueryerContext, f LoanFilter) ([]model.Loan, error) {
	ds := dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("titles").As("t"), goqu.On(goqu.I("t.id").Eq(goqu.I("l.title_id")))).
		Select(goqu.L(loanColumns)).
		Order(goqu.I("l.requested_at").Asc(), goqu.I("l.id").Asc())

	if f.BorrowerID != 0 {
		ds = ds.Where(goqu.I("l.borrower_id").Eq(f.BorrowerID))
	}
	if f.TitleID != 0 {
		ds = ds.Where(goqu.I("l.title_id").Eq(f.TitleID))
	}
	if len(f.Statuses) > 0 {
		ds = ds.Where(goqu.I("l.status").In(f.Statuses))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building loan query: %w", err)
	}

	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, q, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	return loans, nil
}

// CountOpenLoans returns the number of non-terminal loans of a borrower.
func CountOpenLoans(ctx context.Context, q sqlx.QueryerContext, borrowerID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND status IN ('waiting', 'ready_for_pickup', 'borrowed')`,
		borrowerID,
	)
	if err != nil {
		return 0, fmt.Errorf("counting open loans: %w", err)
	}
	return n, nil
}

// HasOverdueLoans reports whether the borrower holds a borrowed loan whose
// due date is before now.
func HasOverdueLoans(ctx context.Context, q sqlx.QueryerContext, borrowerID int64, now time.Time) (bool, error) {
	var due []time.Time
	err := sqlx.SelectContext(ctx, q, &due,
		`SELECT due_date FROM loans WHERE borrower_id = ? AND status = 'borrowed'`, borrowerID,
	)
	if err != nil {
		return false, fmt.Errorf("checking overdue loans: %w", err)
	}
	for _, d := range due {
		if d.Before(now) {
			return true, nil
		}
	}
	return false, nil
}

// HasOpenLoanFor reports whether the borrower already has a non-terminal
// loan of the title.
func HasOpenLoanFor(ctx context.Context, q sqlx.QueryerContext, borrowerID, titleID int64) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND title_id = ?
		 AND status IN ('waiting', 'ready_for_pickup', 'borrowed')`,
		borrowerID, titleID,
	)
	if err != nil {
		return false, fmt.Errorf("checking open loan: %w", err)
	}
	return n > 0, nil
}

// LoanUpdate is the set of columns a transition writes.
type LoanUpdate = goqu.Record

// TransitionLoan applies update to a loan that is still in one of the from
// statuses. When the row has moved on in the meantime nothing is written and
// ErrStatusChanged is returned.
func TransitionLoan(ctx context.Context, tx *sqlx.Tx, id int64, from []string, update LoanUpdate) error {
	query, args, err := dialect.Update("loans").
		Set(update).
		Where(goqu.C("id").Eq(id), goqu.C("status").In(from)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building loan update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating loan: %w", err)
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// RenewBorrowedLoan extends a borrowed loan's due date, provided the renewal
// count is still expected. Two renewals racing on the same count cannot
// both succeed.
func RenewBorrowedLoan(ctx context.Context, tx *sqlx.Tx, id int64, expectedCount int, due time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET due_date = ?, renewal_count = renewal_count + 1
		 WHERE id = ? AND status = 'borrowed' AND renewal_count = ? AND renewal_count < max_renewals`,
		due.UTC(), id, expectedCount,
	)
	if err != nil {
		return fmt.Errorf("renewing loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renewing loan: %w", err)
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isUniqueViolation(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
