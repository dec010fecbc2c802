package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const titleColumns = `id, title, author, isbn, total_copies, available_copies, requires_pickup,
	cover_mime, created_at, updated_at, deleted_at`

// CreateTitle creates a catalog entry with copies copies, all available.
func CreateTitle(ctx context.Context, db *sqlx.DB, t model.Title) (*model.Title, error) {
	if t.TotalCopies < 0 {
		return nil, fmt.Errorf("total copies must not be negative")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO titles (title, author, isbn, total_copies, available_copies, requires_pickup)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Title, t.Author, t.ISBN, t.TotalCopies, t.TotalCopies, t.RequiresPickup,
	)
	if err != nil {
		return nil, fmt.Errorf("creating title: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting title id: %w", err)
	}

	return GetTitle(ctx, db, id)
}

// GetTitle returns a title by ID, including soft-deleted ones.
func GetTitle(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.Title, error) {
	t := &model.Title{}
	err := sqlx.GetContext(ctx, q, t, `SELECT `+titleColumns+` FROM titles WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting title: %w", err)
	}
	return t, nil
}

// ListTitles returns non-deleted titles, optionally filtered by a search term
// matched against title and author, or an exact ISBN.
func ListTitles(ctx context.Context, db *sqlx.DB, search string) ([]model.Title, error) {
	ds := dialect.From("titles").
		Select(goqu.L(titleColumns)).
		Where(goqu.C("deleted_at").IsNull()).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc())

	if search != "" {
		pattern := "%" + search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").Like(pattern),
			goqu.C("author").Like(pattern),
			goqu.C("isbn").Eq(search),
		))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building title query: %w", err)
	}

	var titles []model.Title
	if err := sqlx.SelectContext(ctx, db, &titles, query, args...); err != nil {
		return nil, fmt.Errorf("listing titles: %w", err)
	}
	return titles, nil
}

// UpdateTitle updates a title's bibliographic fields and workflow flag.
// Copy counters are not touched; see AdjustCopies.
func UpdateTitle(ctx context.Context, db *sqlx.DB, t model.Title) error {
	_, err := db.ExecContext(ctx,
		`UPDATE titles SET title = ?, author = ?, isbn = ?, requires_pickup = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		t.Title, t.Author, t.ISBN, t.RequiresPickup, t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return nil
}

// DeleteTitle soft-deletes a title. Titles with open loans cannot be deleted.
func DeleteTitle(ctx context.Context, db *sqlx.DB, id int64) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var open int
	if err := tx.GetContext(ctx, &open,
		`SELECT COUNT(*) FROM loans WHERE title_id = ? AND status IN ('waiting', 'ready_for_pickup', 'borrowed')`, id,
	); err != nil {
		return fmt.Errorf("counting open loans: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("title has %d open loans: %w", open, ErrOpenLoans)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE titles SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	); err != nil {
		return fmt.Errorf("deleting title: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing title deletion: %w", err)
	}
	return nil
}

// SetTitleCover sets a title's cover image.
func SetTitleCover(ctx context.Context, db *sqlx.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE titles SET cover = ?, cover_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting title cover: %w", err)
	}
	return nil
}

// GetTitleCover returns a title's cover image and MIME type.
func GetTitleCover(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM titles WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting title cover: %w", err)
	}
	return image, mime.String, nil
}
