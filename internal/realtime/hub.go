package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuchu-notify/internal/domain"
)

// Envelope is one emitted event addressed to a channel. Except, when set, is a
// session id that must not receive it.
type Envelope struct {
	Channel string          `json:"channel"`
	Except  string          `json:"except,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Relay carries envelopes between instances. Publish must eventually hand every
// envelope back to each subscribed instance, the publisher included.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
}

// Hub fans emitted events out to the sessions of a Registry. Emits never block
// and never fail the caller; with no sessions in the target channel the event is dropped.
type Hub struct {
	reg   *Registry
	relay Relay
	log   *slog.Logger
	now   func() time.Time
}

type HubOption func(*Hub)

// WithRelay routes emits through r so sessions on other instances receive them.
func WithRelay(r Relay) HubOption {
	return func(h *Hub) { h.relay = r }
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(reg *Registry, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{reg: reg, log: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Registry() *Registry { return h.reg }

func (h *Hub) EmitToUser(ctx context.Context, userID, event string, data any) {
	h.emit(ctx, UserChannel(userID), "", event, data)
}

func (h *Hub) EmitToChannel(ctx context.Context, channel, event string, data any) {
	h.emit(ctx, channel, "", event, data)
}

// EmitToChannelExcept delivers to every member of channel but the session with id except.
func (h *Hub) EmitToChannelExcept(ctx context.Context, channel, except, event string, data any) {
	h.emit(ctx, channel, except, event, data)
}

func (h *Hub) EmitToAll(ctx context.Context, event string, data any) {
	h.emit(ctx, GeneralChannel, "", event, data)
}

func (h *Hub) emit(ctx context.Context, channel, except, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.ErrorContext(ctx, "realtime payload not encodable", "event", event, "err", err)
		return
	}
	env := Envelope{Channel: channel, Except: except, Event: event, Data: raw}
	if h.relay != nil {
		err := h.relay.Publish(ctx, env)
		if err == nil {
			return
		}
		h.log.WarnContext(ctx, "realtime relay publish failed, delivering locally", "event", event, "err", err)
	}
	h.Deliver(env)
}

// Deliver hands env to the local members of its channel. Relays call it for
// every envelope they receive.
func (h *Hub) Deliver(env Envelope) {
	members := h.reg.Members(env.Channel)
	if len(members) == 0 {
		return
	}
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		h.log.Error("realtime frame not encodable", "event", env.Event, "err", err)
		return
	}
	for _, s := range members {
		if s.ID() == env.Except {
			continue
		}
		if !s.send(frame) {
			h.evict(s)
		}
	}
}

// evict drops a session that cannot keep up. Its writer observes Done and closes the connection.
func (h *Hub) evict(s *Session) {
	s.Close()
	if h.Disconnect(s) {
		h.log.Warn("realtime session evicted", "session_id", s.ID(), "user_id", s.UserID())
	}
}

// Connect registers an admitted session.
func (h *Hub) Connect(s *Session) {
	h.reg.Register(s)
}

// Disconnect unregisters s and tells the user's other sessions it went offline.
// It is safe to call repeatedly and for sessions that were never registered;
// only the call that performed the cleanup reports true.
func (h *Hub) Disconnect(s *Session) bool {
	if !h.reg.Unregister(s) {
		return false
	}
	h.emit(context.Background(), UserChannel(s.UserID()), s.ID(), domain.EventPresenceUpdate, presence{
		UserID:   s.UserID(),
		Status:   PresenceOffline,
		LastSeen: h.now().UTC(),
	})
	return true
}
