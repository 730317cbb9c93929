package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"streamscout/services/resolver"
)

// ResolveHandler turns preview tokens into playable responses: a redirect
// for remote URLs, the file itself for completed usenet downloads.
type ResolveHandler struct {
	resolver *resolver.Service
}

func NewResolveHandler(svc *resolver.Service) *ResolveHandler {
	return &ResolveHandler{resolver: svc}
}

// Resolve handles GET /resolve/{provider}/{token}.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	provider := vars["provider"]
	rawToken := vars["token"]

	resolved, err := h.resolver.Resolve(r.Context(), provider, rawToken)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, resolver.ErrDead) {
			writeError(w, http.StatusNotFound, "stream is no longer available")
			return
		}
		log.Printf("[http] resolving %s token failed: %v", provider, err)
		writeError(w, http.StatusBadGateway, "stream resolution failed")
		return
	}

	if resolved.LocalPath != "" {
		http.ServeFile(w, r, resolved.LocalPath)
		return
	}
	http.Redirect(w, r, resolved.URL, http.StatusFound)
}
