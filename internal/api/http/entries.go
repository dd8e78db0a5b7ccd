package apihttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	cache "flowdistributor/internal/cache/domain"
)

type entriesHandler struct {
	cache  CacheController
	logger *log.Logger
}

type setRequest struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Set handles POST /api/v1/entries/{collection} and
// PUT /api/v1/entries/{collection}/{id}.
func (h *entriesHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		id = req.ID
	}
	h.apply(w, r, cache.Mutation{
		Op:         cache.OpSet,
		Collection: chi.URLParam(r, "collection"),
		DocumentID: id,
		Data:       req.Data,
	})
}

// Delete handles DELETE /api/v1/entries/{collection}/{id}.
func (h *entriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cache.Mutation{
		Op:         cache.OpDelete,
		Collection: chi.URLParam(r, "collection"),
		DocumentID: chi.URLParam(r, "id"),
	})
}

func (h *entriesHandler) apply(w http.ResponseWriter, r *http.Request, m cache.Mutation) {
	applied, err := h.cache.Apply(r.Context(), m)
	if err != nil {
		var failure *cache.WriteFailure
		switch {
		case errors.As(err, &failure):
			h.logger.Printf("api: write rolled back mutation=%s collection=%s id=%s: %v", failure.Mutation.ID, failure.Mutation.Collection, failure.Mutation.DocumentID, failure.Err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "mutation": failure.Mutation})
		case errors.Is(err, cache.ErrInvalidMutation), errors.Is(err, cache.ErrUnknownCollection):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, cache.ErrOffline), errors.Is(err, cache.ErrClosed), errors.Is(err, cache.ErrSubscription):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, "apply failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

// Status handles GET /api/v1/cache.
func (h *entriesHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Status())
}

// Clear handles DELETE /api/v1/cache.
func (h *entriesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Printf("api: cache clear failed: %v", err)
		http.Error(w, "cache clear failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
