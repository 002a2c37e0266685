package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuchu-notify/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// WSHandler is the realtime endpoint. The credential is checked before the
// upgrade, so a rejected client never holds a session.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	buffer   int
	log      *slog.Logger
}

func NewWSHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:    hub,
		buffer: DefaultSendBuffer,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.hub.Registry().Admit(r.Context(), credential(r))
	if err != nil {
		h.log.InfoContext(r.Context(), "realtime handshake rejected", "remote", r.RemoteAddr, "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing credential"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.WarnContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}

	s := NewSession(identity, h.buffer)
	h.hub.Connect(s)
	h.log.InfoContext(r.Context(), "realtime session opened", "session_id", s.ID(), "user_id", s.UserID())

	go h.writePump(conn, s)
	h.readPump(r.Context(), conn, s)

	s.Close()
	h.hub.Disconnect(s)
	h.log.Info("realtime session closed", "session_id", s.ID(), "user_id", s.UserID())
}

func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, s *Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("realtime read ended", "session_id", s.ID(), "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			h.reject(s, domain.ErrBadRequest, "frame must be {\"event\", \"data\"}")
			continue
		}
		if err := h.hub.Handle(ctx, s, f); err != nil {
			h.reject(s, err, err.Error())
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// reject sends an error event to s alone.
func (h *WSHandler) reject(s *Session, err error, msg string) {
	kind := "internal"
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		kind = "validation"
		msg = strings.TrimSuffix(msg, ": "+domain.ErrBadRequest.Error())
	case errors.Is(err, domain.ErrForbidden):
		kind = "forbidden"
		msg = strings.TrimSuffix(msg, ": "+domain.ErrForbidden.Error())
	}
	raw, _ := json.Marshal(ErrorPayload{Kind: kind, Message: msg})
	frame, _ := json.Marshal(Frame{Event: domain.EventError, Data: raw})
	if !s.send(frame) {
		h.hub.evict(s)
	}
}

// credential reads the bearer token from the Authorization header, falling back
// to the token query parameter for browsers that cannot set headers on upgrade.
func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
