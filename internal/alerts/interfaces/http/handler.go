package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	alertapp "flowdistributor/internal/alerts/application"
	alerts "flowdistributor/internal/alerts/domain"
	"flowdistributor/internal/auth"
)

// SessionHeader carries the dashboard session used for dismissals.
const SessionHeader = "X-Session-ID"

// Handler provides alert HTTP endpoints.
type Handler struct {
	service *alertapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *alertapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	return &Handler{service: service}, nil
}

// List handles GET /api/v1/alerts. The optional severity query keeps alerts
// at or above the given severity.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list := h.service.Current(sessionID(r))
	if raw := strings.TrimSpace(r.URL.Query().Get("severity")); raw != "" {
		floor := alerts.Severity(strings.ToLower(raw))
		if floor.Rank() == 0 {
			http.Error(w, "unknown severity", http.StatusBadRequest)
			return
		}
		filtered := list[:0]
		for _, alert := range list {
			if alert.Severity.Rank() >= floor.Rank() {
				filtered = append(filtered, alert)
			}
		}
		list = filtered
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// Dismiss handles POST /api/v1/alerts/{id}/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session := sessionID(r)
	if session == "" {
		http.Error(w, "session required", http.StatusBadRequest)
		return
	}
	if err := h.service.Dismiss(session, id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(r *http.Request) string {
	if value := strings.TrimSpace(r.Header.Get(SessionHeader)); value != "" {
		return value
	}
	return auth.SubjectFromContext(r.Context())
}
