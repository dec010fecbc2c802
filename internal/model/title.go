package model

import "time"

// Title is a catalog entry with a number of physical copies.
type Title struct {
	ID              int64      `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	ISBN            string     `json:"isbn" db:"isbn"`
	TotalCopies     int        `json:"total_copies" db:"total_copies"`
	AvailableCopies int        `json:"available_copies" db:"available_copies"`
	RequiresPickup  bool       `json:"requires_pickup" db:"requires_pickup"`
	CoverMime       *string    `json:"cover_mime,omitempty" db:"cover_mime"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// OnLoan returns the number of copies currently reserved by open loans.
func (t *Title) OnLoan() int {
	return t.TotalCopies - t.AvailableCopies
}
