package handlers

import (
	"net/http"
	"time"

	"rockguard/internal/models"
	"rockguard/internal/notifications"
)

// NotificationsHandler serves the notification center. The store is taken
// from the request context, attached by middleware.WithStore.
type NotificationsHandler struct {
	maxBodySize int64
	now         func() time.Time
}

// NewNotificationsHandler creates the handler. A zero maxBodySize selects
// DefaultMaxBodySize.
func NewNotificationsHandler(maxBodySize int64) *NotificationsHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &NotificationsHandler{maxBodySize: maxBodySize, now: time.Now}
}

// NotificationView is a notification as rendered in a list.
type NotificationView struct {
	models.Notification
	Age string `json:"age"`
}

// ListResponse is returned by GET /api/notifications
type ListResponse struct {
	Tab           models.Tab         `json:"tab"`
	Notifications []NotificationView `json:"notifications"`
	UnreadCount   int                `json:"unread_count"`
	Counts        models.TabCounts   `json:"counts"`
}

// Register mounts the notification routes on mux.
func (h *NotificationsHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/notifications", wrap(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/notifications", wrap(http.HandlerFunc(h.Create)))
	mux.Handle("POST /api/notifications/read-all", wrap(http.HandlerFunc(h.MarkAllRead)))
	mux.Handle("POST /api/notifications/{id}/read", wrap(http.HandlerFunc(h.MarkRead)))
	mux.Handle("DELETE /api/notifications/{id}", wrap(http.HandlerFunc(h.Delete)))
}

// List returns the notifications of one tab plus the badge counts.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	store := notifications.FromContext(r.Context())
	snap := store.Snapshot()
	tab := models.ParseTab(r.URL.Query().Get("tab"))
	now := h.now()

	filtered := snap.Filter(tab)
	views := make([]NotificationView, len(filtered))
	for i, n := range filtered {
		views[i] = NotificationView{Notification: n, Age: models.FormatAge(n.Timestamp, now)}
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Tab:           tab,
		Notifications: views,
		UnreadCount:   snap.UnreadCount,
		Counts:        snap.Counts(),
	})
}

// Create adds a notification from the request body.
func (h *NotificationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	store := notifications.FromContext(r.Context())

	var p models.Payload
	if status, err := decodeJSON(w, r, h.maxBodySize, &p); err != nil {
		writeError(w, status, err.Error())
		return
	}

	p.Normalize()
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, store.AddFrom(notifications.OriginAPI, p))
}

// MarkRead marks one notification read. Unknown ids are accepted.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	notifications.FromContext(r.Context()).MarkAsRead(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead marks every notification read.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	notifications.FromContext(r.Context()).MarkAllAsRead()
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes one notification. Unknown ids are accepted.
func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	notifications.FromContext(r.Context()).Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
