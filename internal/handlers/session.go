package handlers

import (
	"errors"
	"net/http"

	"rockguard/internal/logger"
	"rockguard/internal/models"
	"rockguard/internal/session"
)

// SessionHandler signs users in and out through the mock provider.
type SessionHandler struct {
	provider *session.Provider
}

func NewSessionHandler(provider *session.Provider) *SessionHandler {
	return &SessionHandler{provider: provider}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries the signed-in user, null when signed out.
type SessionResponse struct {
	User *models.User `json:"user"`
}

// Register mounts the session routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/session", wrap(http.HandlerFunc(h.Current)))
	mux.Handle("POST /api/session", wrap(http.HandlerFunc(h.Login)))
	mux.Handle("DELETE /api/session", wrap(http.HandlerFunc(h.Logout)))
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if status, err := decodeJSON(w, r, DefaultMaxBodySize, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}

	user, err := h.provider.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{User: user})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Logout(r.Context()); err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	user, err := h.provider.CurrentUser(r.Context())
	if err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{User: user})
}
