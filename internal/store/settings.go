package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// GetJWTSecret returns the signing secret, generating and storing one on
// first use. INSERT OR IGNORE followed by a read keeps concurrent startups
// on the same value.
func GetJWTSecret(ctx context.Context, db *sqlx.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		hex.EncodeToString(buf),
	); err != nil {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	var secret string
	if err := db.GetContext(ctx, &secret, `SELECT value FROM settings WHERE key = 'jwt_secret'`); err != nil {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}
	return secret, nil
}

// LastReminderSweep returns the stored time of the last reminder sweep as
// written by SetLastReminderSweep, or "" if none ran yet.
func LastReminderSweep(ctx context.Context, db *sqlx.DB) (string, error) {
	var values []string
	if err := db.SelectContext(ctx, &values, `SELECT value FROM settings WHERE key = 'last_reminder_sweep'`); err != nil {
		return "", fmt.Errorf("querying last reminder sweep: %w", err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// SetLastReminderSweep records when the reminder sweep last ran.
func SetLastReminderSweep(ctx context.Context, db *sqlx.DB, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('last_reminder_sweep', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		value,
	)
	if err != nil {
		return fmt.Errorf("storing last reminder sweep: %w", err)
	}
	return nil
}
