package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"streamscout/config"
)

// SettingsHandler exposes the persisted configuration. Updates are written
// atomically and handed to onUpdate so the scraper set reloads in place;
// cache backend changes still need a restart.
type SettingsHandler struct {
	cfg      *config.Manager
	onUpdate func(config.Settings)
}

func NewSettingsHandler(cfg *config.Manager, onUpdate func(config.Settings)) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, onUpdate: onUpdate}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.cfg.Load()
	if err != nil {
		log.Printf("[http] loading settings failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	redacted := settings
	redacted.Debrid.Token = redact(settings.Debrid.Token)
	redacted.Easynews.Password = redact(settings.Easynews.Password)
	redacted.Usenet.SABnzbdAPIKey = redact(settings.Usenet.SABnzbdAPIKey)
	redacted.Usenet.IndexerAPIKey = redact(settings.Usenet.IndexerAPIKey)
	writeJSON(w, http.StatusOK, redacted)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var incoming config.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "malformed settings payload")
		return
	}

	// Redacted secrets round-tripping back unchanged keep their stored value.
	current, err := h.cfg.Load()
	if err == nil {
		if isRedacted(incoming.Debrid.Token) {
			incoming.Debrid.Token = current.Debrid.Token
		}
		if isRedacted(incoming.Easynews.Password) {
			incoming.Easynews.Password = current.Easynews.Password
		}
		if isRedacted(incoming.Usenet.SABnzbdAPIKey) {
			incoming.Usenet.SABnzbdAPIKey = current.Usenet.SABnzbdAPIKey
		}
		if isRedacted(incoming.Usenet.IndexerAPIKey) {
			incoming.Usenet.IndexerAPIKey = current.Usenet.IndexerAPIKey
		}
	}

	if err := h.cfg.Save(incoming); err != nil {
		log.Printf("[http] saving settings failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	if h.onUpdate != nil {
		h.onUpdate(incoming)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func isRedacted(value string) bool {
	return value == "********"
}
