package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

// FeeLedger reads borrower dues from the fee_accounts table. The table is
// owned by the external ledger; the engine only reads it.
type FeeLedger struct {
	DB *sqlx.DB

	// Period selects the fee period to check. Empty means the latest period
	// on record for the borrower.
	Period string
}

// FeeStatus returns the borrower's fee account, or nil if the ledger has no
// record for them.
func (l *FeeLedger) FeeStatus(ctx context.Context, borrowerID int64) (*model.FeeAccount, error) {
	query := `SELECT borrower_id, period, amount_due, amount_paid, unpaid_fines
		FROM fee_accounts WHERE borrower_id = ? ORDER BY period DESC LIMIT 1`
	args := []any{borrowerID}
	if l.Period != "" {
		query = `SELECT borrower_id, period, amount_due, amount_paid, unpaid_fines
			FROM fee_accounts WHERE borrower_id = ? AND period = ?`
		args = append(args, l.Period)
	}

	var accounts []model.FeeAccount
	if err := l.DB.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, fmt.Errorf("reading fee account: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// SetFeeAccount creates or replaces a borrower's account for a period.
// Used to seed the ledger from the command line.
func SetFeeAccount(ctx context.Context, db *sqlx.DB, a model.FeeAccount) error {
	if a.AmountDue < 0 || a.AmountPaid < 0 || a.UnpaidFines < 0 {
		return fmt.Errorf("fee amounts must not be negative")
	}
	_, err := db.NamedExecContext(ctx,
		`INSERT INTO fee_accounts (borrower_id, period, amount_due, amount_paid, unpaid_fines)
		 VALUES (:borrower_id, :period, :amount_due, :amount_paid, :unpaid_fines)
		 ON CONFLICT(borrower_id, period) DO UPDATE SET
		     amount_due = excluded.amount_due,
		     amount_paid = excluded.amount_paid,
		     unpaid_fines = excluded.unpaid_fines`,
		a,
	)
	if err != nil {
		return fmt.Errorf("setting fee account: %w", err)
	}
	return nil
}
