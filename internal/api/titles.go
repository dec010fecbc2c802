package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// TitlesHandler handles catalog endpoints.
type TitlesHandler struct {
	DB *sqlx.DB
}

type titleRequest struct {
	Title          string `json:"title"`
	Author         string `json:"author"`
	ISBN           string `json:"isbn"`
	TotalCopies    int    `json:"total_copies"`
	RequiresPickup bool   `json:"requires_pickup"`
}

type adjustCopiesRequest struct {
	Delta int `json:"delta"`
}

// List handles GET /api/titles.
func (h *TitlesHandler) List(w http.ResponseWriter, r *http.Request) {
	titles, err := store.ListTitles(r.Context(), h.DB, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		slog.Error("failed to list titles", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list titles")
		return
	}
	if titles == nil {
		titles = []model.Title{}
	}
	jsonResponse(w, http.StatusOK, titles)
}

// Create handles POST /api/titles.
func (h *TitlesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}
	if req.TotalCopies < 0 {
		jsonError(w, http.StatusBadRequest, "total_copies must not be negative")
		return
	}

	title, err := store.CreateTitle(r.Context(), h.DB, model.Title{
		Title:          req.Title,
		Author:         req.Author,
		ISBN:           req.ISBN,
		TotalCopies:    req.TotalCopies,
		RequiresPickup: req.RequiresPickup,
	})
	if err != nil {
		slog.Error("failed to create title", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create title")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("title created", "user", claims.Username, "title", title.Title, "copies", title.TotalCopies)
	jsonResponse(w, http.StatusCreated, title)
}

// Get handles GET /api/titles/{id}.
func (h *TitlesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	title, err := store.GetTitle(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get title", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get title")
		return
	}
	if title == nil || title.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "title not found")
		return
	}

	jsonResponse(w, http.StatusOK, title)
}

// Update handles PUT /api/titles/{id}. Copy counts change through
// AdjustCopies only.
func (h *TitlesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	var req titleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}

	if err := store.UpdateTitle(r.Context(), h.DB, model.Title{
		ID:             id,
		Title:          req.Title,
		Author:         req.Author,
		ISBN:           req.ISBN,
		RequiresPickup: req.RequiresPickup,
	}); err != nil {
		slog.Error("failed to update title", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update title")
		return
	}

	title, _ := store.GetTitle(r.Context(), h.DB, id)
	if title == nil || title.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "title not found")
		return
	}
	jsonResponse(w, http.StatusOK, title)
}

// Delete handles DELETE /api/titles/{id}.
func (h *TitlesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	if err := store.DeleteTitle(r.Context(), h.DB, id); err != nil {
		if errors.Is(err, store.ErrOpenLoans) {
			jsonError(w, http.StatusConflict, "title has open loans")
			return
		}
		slog.Error("failed to delete title", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete title")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("title deleted", "user", claims.Username, "title", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "title deleted"})
}

// AdjustCopies handles POST /api/titles/{id}/copies.
func (h *TitlesHandler) AdjustCopies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	var req adjustCopiesRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		jsonError(w, http.StatusBadRequest, "delta must be non-zero")
		return
	}

	if _, ok := h.liveTitle(w, r, id); !ok {
		return
	}

	if err := store.AdjustCopies(r.Context(), h.DB, id, req.Delta); err != nil {
		if errors.Is(err, store.ErrCopiesOnLoan) {
			jsonError(w, http.StatusConflict, "cannot withdraw copies that are on loan")
			return
		}
		slog.Error("failed to adjust copies", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to adjust copies")
		return
	}

	title, ok := h.liveTitle(w, r, id)
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("copies adjusted", "user", claims.Username, "title", id, "delta", req.Delta, "total", title.TotalCopies)
	jsonResponse(w, http.StatusOK, title)
}

// liveTitle loads a title that is not soft-deleted, writing the error
// response itself when there is none.
func (h *TitlesHandler) liveTitle(w http.ResponseWriter, r *http.Request, id int64) (*model.Title, bool) {
	title, err := store.GetTitle(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get title", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get title")
		return nil, false
	}
	if title == nil || title.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "title not found")
		return nil, false
	}
	return title, true
}

// UploadCover handles PUT /api/titles/{id}/cover.
func (h *TitlesHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	cover, err := imaging.ProcessCover(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetTitleCover(r.Context(), h.DB, id, cover.Data, cover.MIME); err != nil {
		slog.Error("failed to save cover", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save cover")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"width": cover.Width, "height": cover.Height})
}

// GetCover handles GET /api/titles/{id}/cover.
func (h *TitlesHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	data, mime, err := store.GetTitleCover(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get cover", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get cover")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no cover")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
