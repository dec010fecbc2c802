// Package store holds the SQL persistence functions.
//
// Functions that take a *sqlx.Tx run inside the caller's transaction; the
// others open their own or run a single statement. Lookups return (nil, nil)
// when the row does not exist.
package store

import (
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

// dialect builds SQLite flavoured queries for the dynamic list filters.
var dialect = goqu.Dialect("sqlite3")

var (
	// ErrOutOfStock is returned by ReserveCopy when no copy is available.
	ErrOutOfStock = errors.New("no copies available")

	// ErrInvariantViolation is returned when a counter update would break
	// 0 <= available_copies <= total_copies. It signals a bug upstream.
	ErrInvariantViolation = errors.New("copy counter invariant violated")

	// ErrStatusChanged is returned when a conditional loan update finds the
	// loan no longer in the expected state.
	ErrStatusChanged = errors.New("loan changed concurrently")

	// ErrEligibilityChanged is returned when the borrower's loans changed
	// between the eligibility check and the write.
	ErrEligibilityChanged = errors.New("borrower loans changed concurrently")

	// ErrCopiesOnLoan is returned when withdrawing copies that are lent out.
	ErrCopiesOnLoan = errors.New("copies are on loan")

	// ErrOpenLoans is returned when deleting a title or user that still has
	// waiting, ready or borrowed loans.
	ErrOpenLoans = errors.New("open loans exist")
)
