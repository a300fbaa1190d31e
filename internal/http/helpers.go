package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"paghetta/internal/core"
	"paghetta/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps domain errors to HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrAlreadyPaid),
		errors.Is(err, core.ErrLoanNotActive):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidRate),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidDayOfWeek),
		errors.Is(err, core.ErrInvalidDayOfMonth),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyDescription):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// parseAmount converts a decimal string like "12.34" to Money.
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}
