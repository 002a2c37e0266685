package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// Emitter signals a user's live sessions after a write.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, data any)
}

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	svc     notification.Service
	emitter Emitter
}

func NewNotificationHandler(svc notification.Service, emitter Emitter) *NotificationHandler {
	return &NotificationHandler{svc: svc, emitter: emitter}
}

type readEvent struct {
	ID     string     `json:"id"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

type idEvent struct {
	ID string `json:"id"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.svc.List(r.Context(), actor, targetUser(r), q)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), actor, targetUser(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: n})
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	stats, err := h.svc.Stats(r.Context(), actor, targetUser(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Create stores a notification; without user_id it targets the caller.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = actor.UserID
	}
	n, err := h.svc.Create(r.Context(), actor, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.emitter.EmitToUser(r.Context(), n.UserID, domain.EventNewNotification, n)
	writeJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, changed, err := h.svc.MarkRead(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	if changed {
		h.emitter.EmitToUser(r.Context(), n.UserID, domain.EventNotificationRead, readEvent{ID: n.NotificationID, ReadAt: n.ReadAt})
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID := targetUser(r)
	n, err := h.svc.MarkAllRead(r.Context(), actor, userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if n > 0 {
		h.emitter.EmitToUser(r.Context(), ownerOrActor(userID, actor), domain.EventAllNotificationsRead, CountEnvelope{Count: n})
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: n})
}

func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.Archive(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.emitter.EmitToUser(r.Context(), n.UserID, domain.EventNotificationArchived, idEvent{ID: n.NotificationID})
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpdateNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Update(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.emitter.EmitToUser(r.Context(), n.UserID, domain.EventNotificationUpdated, n)
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.emitter.EmitToUser(r.Context(), n.UserID, domain.EventNotificationDeleted, idEvent{ID: n.NotificationID})
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "notification deleted"})
}

func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID := targetUser(r)
	n, err := h.svc.DeleteAll(r.Context(), actor, userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if n > 0 {
		h.emitter.EmitToUser(r.Context(), ownerOrActor(userID, actor), domain.EventAllNotificationsDeleted, CountEnvelope{Count: n})
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: n})
}

// targetUser is the user_id query parameter; empty means the caller.
func targetUser(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func ownerOrActor(userID string, actor domain.Actor) string {
	if userID == "" {
		return actor.UserID
	}
	return userID
}

func parseListQuery(r *http.Request) (notification.ListQuery, error) {
	v := r.URL.Query()
	q := notification.ListQuery{
		Type:   domain.NotificationType(v.Get("type")),
		Status: domain.Status(v.Get("status")),
	}
	var err error
	if s := v.Get("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			return q, errInvalidParam("page")
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.PageSize, err = strconv.Atoi(s); err != nil {
			return q, errInvalidParam("limit")
		}
	}
	return q, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return string(e) + " must be an integer" }

// Sweep purges expired records on demand, ahead of the background sweeper.
func (h *NotificationHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	purged, err := h.svc.SweepExpired(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: purged})
}
