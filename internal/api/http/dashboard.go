package apihttp

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	statistic "flowdistributor/internal/analytics/domain/statistic"
	dashboard "flowdistributor/internal/dashboard/application"
	"flowdistributor/internal/dashboard/interfaces/export"
)

const timeLayout = time.RFC3339

type dashboardHandler struct {
	reader DashboardReader
}

// Overview handles GET /api/v1/dashboard.
func (h *dashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reader.Latest()
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Account handles GET /api/v1/accounts/{id}.
func (h *dashboardHandler) Account(w http.ResponseWriter, r *http.Request) {
	view, err := h.reader.Account(chi.URLParam(r, "id"))
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type heatmapResponse struct {
	statistic.Heatmap
	BusiestDay string `json:"busiest_day,omitempty"`
	PeakHour   *int   `json:"peak_hour,omitempty"`
	Total      int    `json:"total"`
}

// Heatmap handles GET /api/v1/accounts/{id}/heatmap?status=.
func (h *dashboardHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	include, err := resolveStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	heatmap, err := h.reader.AccountHeatmap(chi.URLParam(r, "id"), include)
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	resp := heatmapResponse{Heatmap: heatmap, Total: heatmap.Total()}
	if day, ok := heatmap.BusiestDay(); ok {
		resp.BusiestDay = day.String()
	}
	if hour, ok := heatmap.PeakHour(); ok {
		resp.PeakHour = &hour
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportXLSX handles GET /api/v1/exports/dashboard.xlsx.
func (h *dashboardHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reader.Latest()
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	content, err := export.BuildOverviewXLSX(overview)
	if err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "dashboard.xlsx", content)
}

// ExportPDF handles GET /api/v1/exports/dashboard.pdf.
func (h *dashboardHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reader.Latest()
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	content, err := export.BuildOverviewPDF(overview)
	if err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	writeAttachment(w, "application/pdf", "dashboard.pdf", content)
}

// ExportCSV handles GET /api/v1/exports/accounts.csv, one row per account
// and month.
func (h *dashboardHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reader.Latest()
	if err != nil {
		writeDashboardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"account_id",
		"display_name",
		"month",
		"period_start",
		"income",
		"expense",
		"net",
		"entries",
	})
	for _, account := range overview.Accounts {
		for _, period := range account.Monthly {
			_ = writer.Write([]string{
				account.ID,
				account.DisplayName,
				period.Key.String(),
				period.PeriodStart.Format(timeLayout),
				period.Balance.TotalIncome.StringFixed(2),
				period.Balance.TotalExpense.StringFixed(2),
				period.Balance.NetBalance.StringFixed(2),
				strconv.Itoa(period.Balance.Count),
			})
		}
	}
	writer.Flush()
}

func resolveStatusFilter(value string) (statistic.Predicate, error) {
	switch value {
	case "", "not_cancelled":
		return statistic.NotCancelled, nil
	case "completed":
		return statistic.CompletedOnly, nil
	case "pending":
		return statistic.PendingOnly, nil
	case "all":
		return statistic.All, nil
	default:
		return nil, errors.New("status must be completed, pending, not_cancelled or all")
	}
}

func writeDashboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNotReady):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, dashboard.ErrAccountNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "dashboard error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, content []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
