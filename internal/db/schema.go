package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id             INTEGER PRIMARY KEY,
    username       TEXT NOT NULL,
    password_hash  TEXT NOT NULL,
    role           TEXT NOT NULL DEFAULT 'borrower' CHECK (role IN ('admin', 'librarian', 'borrower')),
    borrower_class TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at     DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS titles (
    id               INTEGER PRIMARY KEY,
    title            TEXT NOT NULL,
    author           TEXT NOT NULL DEFAULT '',
    isbn             TEXT NOT NULL DEFAULT '',
    total_copies     INTEGER NOT NULL DEFAULT 0 CHECK (total_copies >= 0),
    available_copies INTEGER NOT NULL DEFAULT 0,
    requires_pickup  INTEGER NOT NULL DEFAULT 0,
    cover            BLOB,
    cover_mime       TEXT,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at       DATETIME,
    CHECK (available_copies >= 0 AND available_copies <= total_copies)
);

CREATE TABLE IF NOT EXISTS loans (
    id            INTEGER PRIMARY KEY,
    title_id      INTEGER NOT NULL REFERENCES titles(id),
    borrower_id   INTEGER NOT NULL REFERENCES users(id),
    status        TEXT NOT NULL CHECK (status IN ('waiting', 'ready_for_pickup', 'borrowed', 'returned', 'rejected')),
    requested_at  DATETIME NOT NULL,
    due_date      DATETIME NOT NULL,
    picked_up_at  DATETIME,
    returned_at   DATETIME,
    renewal_count INTEGER NOT NULL DEFAULT 0 CHECK (renewal_count >= 0),
    max_renewals  INTEGER NOT NULL DEFAULT 0 CHECK (max_renewals >= 0),
    fine_amount   REAL,
    copy_reserved INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_title ON loans(title_id, status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_pair
    ON loans(title_id, borrower_id) WHERE status IN ('waiting', 'ready_for_pickup', 'borrowed');

CREATE TABLE IF NOT EXISTS fee_accounts (
    borrower_id  INTEGER NOT NULL,
    period       TEXT NOT NULL,
    amount_due   REAL NOT NULL DEFAULT 0 CHECK (amount_due >= 0),
    amount_paid  REAL NOT NULL DEFAULT 0 CHECK (amount_paid >= 0),
    unpaid_fines REAL NOT NULL DEFAULT 0 CHECK (unpaid_fines >= 0),
    PRIMARY KEY (borrower_id, period)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
