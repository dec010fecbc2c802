package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReserveCopy takes one available copy of a title. It is a conditional
// decrement, so two transactions can never both take the last copy.
func ReserveCopy(ctx context.Context, tx *sqlx.Tx, titleID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE titles SET available_copies = available_copies - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND available_copies > 0`,
		titleID,
	)
	if err != nil {
		return fmt.Errorf("reserving copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserving copy: %w", err)
	}
	if n == 0 {
		return ErrOutOfStock
	}
	return nil
}

// ReleaseCopy gives a reserved copy back. Releasing past total_copies means
// a copy was released twice and fails with ErrInvariantViolation.
func ReleaseCopy(ctx context.Context, tx *sqlx.Tx, titleID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE titles SET available_copies = available_copies + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND available_copies < total_copies`,
		titleID,
	)
	if err != nil {
		return fmt.Errorf("releasing copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing copy: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("releasing copy of title %d: %w", titleID, ErrInvariantViolation)
	}
	return nil
}

// AdjustCopies adds (delta > 0) or withdraws (delta < 0) physical copies of
// a title. Total and available move together, so the number of copies on
// loan is unchanged. Withdrawing more copies than are on the shelf fails.
func AdjustCopies(ctx context.Context, db *sqlx.DB, titleID int64, delta int) error {
	if delta == 0 {
		return fmt.Errorf("delta must be non-zero")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := GetTitle(ctx, tx, titleID)
	if err != nil {
		return err
	}
	if t == nil || t.DeletedAt != nil {
		return fmt.Errorf("title %d not found", titleID)
	}

	if t.AvailableCopies+delta < 0 {
		return fmt.Errorf("withdrawing %d of %d copies with %d on loan: %w",
			-delta, t.TotalCopies, t.OnLoan(), ErrCopiesOnLoan)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE titles SET total_copies = total_copies + ?, available_copies = available_copies + ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		delta, delta, titleID,
	); err != nil {
		return fmt.Errorf("adjusting copies: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing adjustment: %w", err)
	}
	return nil
}
