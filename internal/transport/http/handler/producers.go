package handler

import (
	"context"
	"net/http"

	"github.com/cuchu-notify/internal/application/dispatch"
	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/pkg/validate"
)

// Producer is the dispatch side used by internal event sources.
type Producer interface {
	Notify(ctx context.Context, req dispatch.Request) (*domain.Notification, error)
	Welcome(ctx context.Context, ev dispatch.UserRegistered) (*domain.Notification, error)
	Ring(ctx context.Context, ev dispatch.Doorbell) (*domain.Notification, error)
}

// ProducerHandler accepts events from other backend services.
type ProducerHandler struct {
	producer Producer
}

func NewProducerHandler(p Producer) *ProducerHandler {
	return &ProducerHandler{producer: p}
}

type notifyRequest struct {
	domain.CreateNotificationRequest
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,e164"`
}

func (h *ProducerHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	n, err := h.producer.Notify(r.Context(), dispatch.Request{
		Notification: req.CreateNotificationRequest,
		Email:        req.Email,
		Phone:        req.Phone,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *ProducerHandler) UserRegistered(w http.ResponseWriter, r *http.Request) {
	var ev dispatch.UserRegistered
	if !decodeJSON(w, r, &ev) {
		return
	}
	if err := validate.Struct(&ev); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	n, err := h.producer.Welcome(r.Context(), ev)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *ProducerHandler) Doorbell(w http.ResponseWriter, r *http.Request) {
	var ev dispatch.Doorbell
	if !decodeJSON(w, r, &ev) {
		return
	}
	if err := validate.Struct(&ev); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	n, err := h.producer.Ring(r.Context(), ev)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}
