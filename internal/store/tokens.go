package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevokeToken adds a token's JTI to the revocation list.
func RevokeToken(ctx context.Context, db *sqlx.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, db *sqlx.DB, jti string) (bool, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti); err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeRevokedTokens deletes revocations whose tokens have expired by now.
// Expiry is compared in Go since stored timestamps are driver-formatted text.
func PurgeRevokedTokens(ctx context.Context, db *sqlx.DB, now time.Time) (int64, error) {
	rows := []struct {
		JTI       string    `db:"jti"`
		ExpiresAt time.Time `db:"expires_at"`
	}{}
	if err := db.SelectContext(ctx, &rows, `SELECT jti, expires_at FROM revoked_tokens`); err != nil {
		return 0, fmt.Errorf("listing revoked tokens: %w", err)
	}

	var n int64
	for _, r := range rows {
		if !r.ExpiresAt.Before(now) {
			continue
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE jti = ?`, r.JTI); err != nil {
			return n, fmt.Errorf("purging revoked token: %w", err)
		}
		n++
	}
	return n, nil
}
