package api

import (
	"net/http"

	"github.com/erazemk/izposoja/internal/circulation"
)

// BorrowersHandler serves borrower standing.
type BorrowersHandler struct {
	Circulation *circulation.Service
}

// Snapshot handles GET /api/borrowers/{id}/snapshot.
func (h *BorrowersHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid borrower id")
		return
	}
	if !GetClaims(r.Context()).CanActFor(id) {
		jsonError(w, http.StatusForbidden, "cannot view another user's standing")
		return
	}

	snap, err := h.Circulation.BorrowerSnapshot(r.Context(), id)
	if err != nil {
		circulationError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, snap)
}

// Reminders handles POST /api/reminders/sweep.
func (h *BorrowersHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.Circulation.SendReminders(r.Context())
	if err != nil {
		circulationError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
