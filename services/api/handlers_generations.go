package api

import (
	"errors"
	"net/http"
	"strconv"

	"stagegen/services/ledger"
)

func (a *API) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		respondError(w, http.StatusNotImplemented, errors.New("generation history is not configured"))
		return
	}

	limit := ledger.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	rows, err := a.history.Recent(r.Context(), limit)
	if err != nil {
		a.config.Logger.Printf("ERROR list generations: %v", err)
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "generations": rows})
}
