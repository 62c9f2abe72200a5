package handlers

import (
	"net/http"
	"strconv"

	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
)

// Realtime upgrades a request to a websocket registered for ownerID.
type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, ownerID string)
}

// NotificationsHandler serves the notification tray.
type NotificationsHandler struct {
	repo repository.NotificationRepository
	hub  Realtime
	log  zerolog.Logger
}

func NewNotificationsHandler(repo repository.NotificationRepository, hub Realtime, log zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{repo: repo, hub: hub, log: log}
}

// List handles GET /api/notifications?unread=true&limit=N
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	unread, _ := strconv.ParseBool(query.Get("unread"))
	limit := 0
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.repo.ListNotifications(r.Context(), owner, unread, limit)
	if err != nil {
		writeServiceError(w, r, err, "Notification", "Failed to list notifications")
		return
	}
	if items == nil {
		items = []*repository.Notification{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"count":         len(items),
	})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.repo.MarkRead(r.Context(), owner, urlParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Notification", "Failed to mark notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe handles GET /api/notifications/ws
func (h *NotificationsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, owner)
}
