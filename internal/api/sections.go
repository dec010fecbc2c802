package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/izposoja/internal/allocate"
)

type assignRequest struct {
	Members  []string           `json:"members"`
	Sections []allocate.Section `json:"sections"`
}

type assignResponse struct {
	Assignments     []allocate.Assignment[string] `json:"assignments"`
	Counts          map[string]int                `json:"counts"`
	UnassignedCount int                           `json:"unassigned_count"`
}

// AssignSections handles POST /api/sections/assign.
func AssignSections(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	seen := make(map[string]bool, len(req.Sections))
	for _, s := range req.Sections {
		if s.ID == "" || seen[s.ID] {
			jsonError(w, http.StatusBadRequest, "section ids must be unique and non-empty")
			return
		}
		if s.CurrentCount < 0 || (s.Capacity != nil && *s.Capacity < 0) {
			jsonError(w, http.StatusBadRequest, "section counts must not be negative")
			return
		}
		seen[s.ID] = true
	}

	res := allocate.Assign(req.Members, req.Sections)

	claims := GetClaims(r.Context())
	slog.Info("members assigned to sections", "user", claims.Username,
		"assigned", len(res.Assignments), "unassigned", res.UnassignedCount)
	jsonResponse(w, http.StatusOK, assignResponse{
		Assignments:     res.Assignments,
		Counts:          allocate.Counts(res),
		UnassignedCount: res.UnassignedCount,
	})
}
