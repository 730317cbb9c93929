// Package handlers contains the HTTP handlers for the stream search API,
// the token resolver, and download progress.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"streamscout/models"
	"streamscout/services/aggregate"
	"streamscout/services/scraper"
)

// StreamHandler serves the aggregated stream lists.
type StreamHandler struct {
	engine *aggregate.Engine
}

func NewStreamHandler(engine *aggregate.Engine) *StreamHandler {
	return &StreamHandler{engine: engine}
}

// GetStreams handles GET /stream/{type}/{id}.json.
func (h *StreamHandler) GetStreams(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaType := vars["type"]
	id := strings.TrimSuffix(vars["id"], ".json")

	if mediaType != "movie" && mediaType != "series" {
		writeError(w, http.StatusBadRequest, "type must be movie or series")
		return
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	streams, err := h.engine.Aggregate(r.Context(), mediaType, id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, scraper.ErrEasynewsCredentials) {
			writeError(w, http.StatusUnauthorized, "easynews credentials rejected")
			return
		}
		log.Printf("[http] stream search %s/%s failed: %v", mediaType, id, err)
		writeError(w, http.StatusBadGateway, "stream search failed")
		return
	}
	if streams == nil {
		streams = []models.PreviewStream{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
