// Package api wires the HTTP routes.
package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"streamscout/handlers"
)

// Handlers groups everything the router needs. Nil optional handlers leave
// their routes unregistered.
type Handlers struct {
	Streams   *handlers.StreamHandler
	Resolve   *handlers.ResolveHandler
	Downloads *handlers.DownloadsHandler
	Settings  *handlers.SettingsHandler
}

// NewRouter builds the mux router with all routes registered.
func NewRouter(h Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, corsMiddleware)

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	r.HandleFunc("/stream/{type}/{id}", h.Streams.GetStreams).Methods(http.MethodGet)
	r.HandleFunc("/resolve/{provider}/{token}", h.Resolve.Resolve).Methods(http.MethodGet, http.MethodHead)

	if h.Downloads != nil {
		r.HandleFunc("/downloads/progress", h.Downloads.Progress).Methods(http.MethodGet)
	}
	if h.Settings != nil {
		r.HandleFunc("/api/settings", h.Settings.Get).Methods(http.MethodGet)
		r.HandleFunc("/api/settings", h.Settings.Update).Methods(http.MethodPost, http.MethodPut)
	}
	return r
}

// requestIDMiddleware tags every response so log lines and client reports
// can be correlated. Inbound ids are kept when the caller supplies one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware lets browser-based players hit the API cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
