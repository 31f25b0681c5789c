package handlers

import (
	"errors"
	"net/http"

	"rockguard/internal/alerts"
	"rockguard/internal/logger"
	"rockguard/internal/session"
)

// AlertsHandler lets admins send alerts to field responders.
type AlertsHandler struct {
	dispatcher *alerts.Dispatcher
	sessions   *session.Provider
}

func NewAlertsHandler(dispatcher *alerts.Dispatcher, sessions *session.Provider) *AlertsHandler {
	return &AlertsHandler{dispatcher: dispatcher, sessions: sessions}
}

// Register mounts the alert routes on mux.
func (h *AlertsHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/alerts", wrap(http.HandlerFunc(h.History)))
	mux.Handle("POST /api/alerts", wrap(http.HandlerFunc(h.Send)))
	mux.Handle("GET /api/responders", wrap(http.HandlerFunc(h.Responders)))
}

// requireAdmin writes 403 and returns false unless an admin is signed in.
func (h *AlertsHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, err := h.sessions.CurrentUser(r.Context())
	if err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return false
	}
	if !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

// Send dispatches an alert.
func (h *AlertsHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req alerts.Request
	if status, err := decodeJSON(w, r, DefaultMaxBodySize, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}

	sent, err := h.dispatcher.Dispatch(req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, sent)
	case errors.Is(err, alerts.ErrMissingFields),
		errors.Is(err, alerts.ErrNoTargets),
		errors.Is(err, alerts.ErrNoRecipients),
		errors.Is(err, alerts.ErrInvalidSeverity),
		errors.Is(err, alerts.ErrInvalidIncident):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("alert dispatch failed")
		writeError(w, http.StatusInternalServerError, "alert dispatch failed")
	}
}

// History lists sent alerts, newest first.
func (h *AlertsHandler) History(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": h.dispatcher.History()})
}

// Responders lists who alerts can be assigned to.
func (h *AlertsHandler) Responders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"responders": h.dispatcher.Responders()})
}
