package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const userColumns = `id, username, password_hash, role, borrower_class, created_at, deleted_at`

// CreateUser creates a new user. borrowerClass is only meaningful for borrowers.
func CreateUser(ctx context.Context, db *sqlx.DB, username, passwordHash, role, borrowerClass string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, borrower_class) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, borrowerClass,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.User, error) {
	u := &model.User{}
	err := sqlx.GetContext(ctx, q, u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sqlx.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sqlx.DB) ([]model.User, error) {
	var users []model.User
	err := db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user's role and borrower class.
func UpdateUser(ctx context.Context, db *sqlx.DB, id int64, role, borrowerClass string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET role = ?, borrower_class = ? WHERE id = ? AND deleted_at IS NULL`,
		role, borrowerClass, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sqlx.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user. Borrowers with open loans cannot be deleted.
func DeleteUser(ctx context.Context, db *sqlx.DB, id int64) error {
	var open int
	if err := db.GetContext(ctx, &open,
		`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND status IN ('waiting', 'ready_for_pickup', 'borrowed')`, id,
	); err != nil {
		return fmt.Errorf("counting open loans: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("user has %d open loans: %w", open, ErrOpenLoans)
	}

	_, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
