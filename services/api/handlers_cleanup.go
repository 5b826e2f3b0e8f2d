package api

import (
	"errors"
	"net/http"

	"stagegen/pkg/render"
)

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report := a.sweeper.Sweep(r.Context())

	body, err := a.renderer.Render("sweep.tmpl", render.SweepSummary{
		Removed: len(report.Removed),
		Errors:  len(report.Errors),
		Skipped: report.Skipped,
	})
	if err != nil {
		a.config.Logger.Printf("ERROR render cleanup summary: %v", err)
		respondText(w, http.StatusInternalServerError, "Cleanup failed: "+err.Error()+"\n")
		return
	}

	status := http.StatusOK
	if len(report.Errors) > 0 {
		status = http.StatusInternalServerError
		body += "Cleanup failed: " + errors.Join(report.Errors...).Error() + "\n"
	}
	respondText(w, status, body)
}
