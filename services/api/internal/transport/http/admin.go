package http

import (
	"context"
	"net/http"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/app"
)

// BackgroundRunner is the scheduler surface the admin endpoints drive:
// status reporting plus out-of-band triggers for both background jobs.
type BackgroundRunner interface {
	Status(ctx context.Context) (app.SchedulerStatus, error)
	RunCleanupNow(ctx context.Context) (app.FullSweepResult, error)
	RunMonitorNow(ctx context.Context) (app.MonitorReport, error)
}

// HandleBackgroundStatus reports scheduler and inventory state.
func HandleBackgroundStatus(sched BackgroundRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		status, err := sched.Status(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// HandleCleanupNow triggers the cleanup sweep out-of-band.
func HandleCleanupNow(sched BackgroundRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		result, err := sched.RunCleanupNow(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleMonitorNow triggers a transaction-monitor tick out-of-band.
func HandleMonitorNow(sched BackgroundRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		report, err := sched.RunMonitorNow(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, monitorReportResponse{
			Checked:      report.Checked,
			Settled:      report.Settled,
			Released:     report.Released,
			StillWaiting: report.StillWait,
			Parked:       report.Parked,
		})
	}
}

type monitorReportResponse struct {
	Checked      int `json:"checked"`
	Settled      int `json:"settled"`
	Released     int `json:"released"`
	StillWaiting int `json:"still_waiting"`
	Parked       int `json:"parked"`
}
