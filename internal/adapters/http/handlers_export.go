package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/application"
	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/export"
)

const defaultExportLimit = 1000

func (h *Handler) exportQueryFromRequest(r *http.Request) (application.ExportQuery, error) {
	q := r.URL.Query()
	startDate, err := parseDate(q.Get("start_date"))
	if err != nil {
		return application.ExportQuery{}, err
	}
	endDate, err := parseDate(q.Get("end_date"))
	if err != nil {
		return application.ExportQuery{}, err
	}
	if !endDate.IsZero() {
		// The end bound is inclusive of the whole day.
		endDate = endDate.Add(24*time.Hour - time.Nanosecond)
	}
	limit, err := parseIntParam("limit", q.Get("limit"), defaultExportLimit)
	if err != nil {
		return application.ExportQuery{}, err
	}
	return application.ExportQuery{
		ExternalUser: q.Get("user"),
		StartDate:    startDate,
		EndDate:      endDate,
		MediaType:    q.Get("media_type"),
		Limit:        limit,
	}, nil
}

// exportCSV streams the scoped watch history as a CSV download. The rows are
// fully resolved before the first header byte goes out, so errors still map
// to a JSON error response.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	query, err := h.exportQueryFromRequest(r)
	if err != nil {
		writeMappedError(r.Context(), w, "export_csv", err)
		return
	}
	records, err := h.service.ExportRecords(r.Context(), auth.Account, query)
	if err != nil {
		writeMappedError(r.Context(), w, "export_csv", err)
		return
	}

	filename := fmt.Sprintf("watch_history_%s.csv", h.now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.WriteCSV(r.Context(), w, records); err != nil {
		// Headers are already out; all that is left is to log the abort.
		httpLogger().WarnContext(r.Context(), "csv stream aborted",
			"operation", "export_csv",
			"outcome", "failure",
			"request_id", requestIDFromContext(r.Context()),
			"error", err.Error(),
		)
	}
}

func (h *Handler) historyPreview(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	query, err := h.exportQueryFromRequest(r)
	if err != nil {
		writeMappedError(r.Context(), w, "history_preview", err)
		return
	}
	views, err := h.service.HistoryPreview(r.Context(), auth.Account, query)
	if err != nil {
		writeMappedError(r.Context(), w, "history_preview", err)
		return
	}
	writeSuccess(w, http.StatusOK, views)
}

func (h *Handler) listExternalUsers(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "list_external_users", domain.ErrUnauthorized)
		return
	}
	views, err := h.service.ListExternalUsers(r.Context(), auth.Account)
	if err != nil {
		writeMappedError(r.Context(), w, "list_external_users", err)
		return
	}
	writeSuccess(w, http.StatusOK, views)
}
