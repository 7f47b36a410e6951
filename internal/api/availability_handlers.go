package api

import (
	"context"
	"net/http"

	"github.com/hackgods/doctor-availability/internal/availability"
)

// AvailabilityChecker is the part of the scheduler the HTTP layer needs.
type AvailabilityChecker interface {
	RunNow(ctx context.Context) (availability.Report, error)
	LastReport() (availability.Report, bool)
}

func runAvailabilityCheckHandler(checker AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := checker.RunNow(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func lastAvailabilityReportHandler(checker AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := checker.LastReport()
		if !ok {
			writeError(w, http.StatusNotFound, "no_report", "no availability pass has completed yet")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
