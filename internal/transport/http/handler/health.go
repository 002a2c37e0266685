package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	sessions func() int
}

// NewHealthHandler takes the live session count reported by the status action.
func NewHealthHandler(sessions func() int) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

type statusEnvelope struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "status":
		n := 0
		if h.sessions != nil {
			n = h.sessions()
		}
		writeJSON(w, http.StatusOK, statusEnvelope{Status: "ok", Sessions: n})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
