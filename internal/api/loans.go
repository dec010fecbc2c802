package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/circulation"
	"github.com/erazemk/izposoja/internal/model"
)

// LoansHandler handles circulation endpoints.
type LoansHandler struct {
	Circulation *circulation.Service
}

type borrowRequest struct {
	TitleID       int64 `json:"title_id"`
	BorrowerID    int64 `json:"borrower_id"`
	RequestedDays *int  `json:"requested_days"`
}

type returnRequest struct {
	Settlement *time.Time `json:"settlement"`
}

type renewRequest struct {
	ExtraDays *int `json:"extra_days"`
}

type fineResponse struct {
	LoanID int64     `json:"loan_id"`
	AsOf   time.Time `json:"as_of"`
	Amount float64   `json:"amount"`
}

// Create handles POST /api/loans. Borrowers borrow for themselves; staff
// may borrow on behalf of any borrower.
func (h *LoansHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TitleID <= 0 {
		jsonError(w, http.StatusBadRequest, "title_id required")
		return
	}
	if req.BorrowerID == 0 {
		req.BorrowerID = claims.UserID
	}
	if !claims.CanActFor(req.BorrowerID) {
		jsonError(w, http.StatusForbidden, "cannot borrow for another user")
		return
	}

	loan, err := h.Circulation.RequestBorrow(r.Context(), circulation.BorrowRequest{
		BorrowerID:    req.BorrowerID,
		TitleID:       req.TitleID,
		RequestedDays: req.RequestedDays,
	})
	if err != nil {
		circulationError(w, r, err)
		return
	}

	slog.Info("borrow requested", "user", claims.Username, "loan", loan.ID, "status", loan.Status)
	jsonResponse(w, http.StatusCreated, loan)
}

// List handles GET /api/loans?borrower_id=&title_id=&status=a,b.
// Borrowers only see their own loans.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	var f circulation.LoanFilter
	var err error
	if v := q.Get("borrower_id"); v != "" {
		if f.BorrowerID, err = strconv.ParseInt(v, 10, 64); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid borrower_id")
			return
		}
	}
	if v := q.Get("title_id"); v != "" {
		if f.TitleID, err = strconv.ParseInt(v, 10, 64); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid title_id")
			return
		}
	}
	if v := q.Get("status"); v != "" {
		f.Statuses = strings.Split(v, ",")
	}

	if !claims.IsStaff() {
		if f.BorrowerID != 0 && f.BorrowerID != claims.UserID {
			jsonError(w, http.StatusForbidden, "cannot list another user's loans")
			return
		}
		f.BorrowerID = claims.UserID
	}

	loans, err := h.Circulation.ListLoans(r.Context(), f)
	if err != nil {
		circulationError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, loans)
}

// Get handles GET /api/loans/{id}.
func (h *LoansHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.visibleLoan(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, loan)
}

// Fine handles GET /api/loans/{id}/fine?as_of=.
func (h *LoansHandler) Fine(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.visibleLoan(w, r)
	if !ok {
		return
	}

	asOf := time.Now()
	var asOfParam *time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "as_of must be RFC 3339 or YYYY-MM-DD")
			return
		}
		asOf, asOfParam = t, &t
	}

	amount, err := h.Circulation.ComputeFine(r.Context(), loan.ID, asOfParam)
	if err != nil {
		circulationError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, fineResponse{LoanID: loan.ID, AsOf: asOf, Amount: amount})
}

// MarkReady handles POST /api/loans/{id}/ready.
func (h *LoansHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Circulation.MarkReady)
}

// Pickup handles POST /api/loans/{id}/pickup.
func (h *LoansHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Circulation.ConfirmPickup)
}

// Reject handles POST /api/loans/{id}/reject.
func (h *LoansHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Circulation.RejectRequest)
}

// Return handles POST /api/loans/{id}/return with an optional settlement time.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	h.act(w, r, func(ctx context.Context, id int64) (*model.Loan, error) {
		return h.Circulation.ReturnLoan(ctx, id, req.Settlement)
	})
}

// Renew handles POST /api/loans/{id}/renew. Borrowers may renew their own loans.
func (h *LoansHandler) Renew(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.visibleLoan(w, r)
	if !ok {
		return
	}

	var req renewRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	renewed, err := h.Circulation.RenewLoan(r.Context(), loan.ID, req.ExtraDays)
	if err != nil {
		circulationError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, renewed)
}

func (h *LoansHandler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*model.Loan, error)) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	loan, err := fn(r.Context(), id)
	if err != nil {
		circulationError(w, r, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("loan status changed", "user", claims.Username, "loan", loan.ID, "status", loan.Status)
	jsonResponse(w, http.StatusOK, loan)
}

// visibleLoan loads the loan in the path. Borrowers asking for someone
// else's loan get a 404 so loan IDs do not leak.
func (h *LoansHandler) visibleLoan(w http.ResponseWriter, r *http.Request) (*model.Loan, bool) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid loan id")
		return nil, false
	}

	loan, err := h.Circulation.GetLoan(r.Context(), id)
	if err != nil {
		circulationError(w, r, err)
		return nil, false
	}
	if !GetClaims(r.Context()).CanActFor(loan.BorrowerID) {
		jsonError(w, http.StatusNotFound, "loan not found")
		return nil, false
	}
	return loan, true
}

// decodeOptional decodes a JSON body if one was sent.
func decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	err := decodeJSON(r, target)
	if err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
