package handlers

import (
	"net/http"

	"streamscout/models"
	"streamscout/services/usenet"
)

// DownloadsHandler reports usenet download progress so clients can show a
// buffering indicator while SABnzbd works.
type DownloadsHandler struct {
	controller *usenet.Controller
}

func NewDownloadsHandler(controller *usenet.Controller) *DownloadsHandler {
	return &DownloadsHandler{controller: controller}
}

// Progress handles GET /downloads/progress?url=<nzb download url> (or
// ?id=<download id>). Polling is side-effect free.
func (h *DownloadsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "usenet downloads are not configured")
		return
	}
	var (
		download models.Download
		ok       bool
	)
	switch {
	case r.URL.Query().Get("url") != "":
		download, ok = h.controller.Progress(r.URL.Query().Get("url"))
	case r.URL.Query().Get("id") != "":
		download, ok = h.controller.ProgressByID(r.URL.Query().Get("id"))
	default:
		writeError(w, http.StatusBadRequest, "missing url or id parameter")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown download")
		return
	}
	writeJSON(w, http.StatusOK, download)
}
