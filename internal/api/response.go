package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/izposoja/internal/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// circulationError maps an engine error to a response. Denials and
// validation problems go back to the caller as-is; everything unexpected
// is logged and hidden behind a 500.
func circulationError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *circulation.ValidationError
	var denial *circulation.DenialError

	switch {
	case errors.As(err, &verr):
		jsonResponse(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &denial):
		status := http.StatusUnprocessableEntity
		if denial.Reason == circulation.ReasonNotFound {
			status = http.StatusNotFound
		}
		jsonResponse(w, status, errorBody{Error: denial.Error(), Reason: string(denial.Reason)})
	case errors.Is(err, circulation.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, circulation.ErrInvalidState):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, circulation.ErrConflict):
		jsonResponse(w, http.StatusConflict, errorBody{Error: "request conflicted with another, try again", Retryable: true})
	case errors.Is(err, circulation.ErrFeeOracleUnavailable):
		slog.Warn("fee oracle unavailable", "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusServiceUnavailable, "fee records are unavailable")
	default:
		slog.Error("circulation request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestID(r.Context()), "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
