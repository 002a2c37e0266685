package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cuchu-notify/internal/domain"
)

// Channel names.
const (
	GeneralChannel     = "general"
	userPrefix         = "user:"
	notificationPrefix = "notification:"
	chatPrefix         = "chat:"
	maxRoomIDLength    = 128
)

func UserChannel(userID string) string { return userPrefix + userID }

func NotificationChannel(roomID string) string { return notificationPrefix + roomID }

func ChatChannel(roomID string) string { return chatPrefix + roomID }

// Validator turns a bearer credential into an identity.
type Validator interface {
	Identify(ctx context.Context, credential string) (domain.Identity, error)
}

// Registry tracks admitted sessions and their channel memberships.
type Registry struct {
	validator Validator
	log       *slog.Logger

	mu          sync.RWMutex
	sessions    map[string]*Session
	channels    map[string]map[string]*Session
	memberships map[string]map[string]struct{}
}

func NewRegistry(v Validator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		validator:   v,
		log:         logger,
		sessions:    make(map[string]*Session),
		channels:    make(map[string]map[string]*Session),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Admit validates credential without touching registry state. Every failure wraps domain.ErrUnauthorized.
func (r *Registry) Admit(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("missing credential: %w", domain.ErrUnauthorized)
	}
	identity, err := r.validator.Identify(ctx, credential)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	if identity.UserID == "" {
		return domain.Identity{}, fmt.Errorf("credential has no user: %w", domain.ErrUnauthorized)
	}
	return identity, nil
}

// Register adds s and joins it to its personal channel and the broadcast channel.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	r.join(s, UserChannel(s.UserID()))
	r.join(s, GeneralChannel)
	r.log.Debug("session registered", "session_id", s.ID(), "user_id", s.UserID())
}

// Join adds s to channel. Joining twice is a no-op; unregistered sessions are ignored.
func (r *Registry) Join(s *Session, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; !ok {
		return false
	}
	r.join(s, channel)
	return true
}

func (r *Registry) join(s *Session, channel string) {
	members := r.channels[channel]
	if members == nil {
		members = make(map[string]*Session)
		r.channels[channel] = members
	}
	members[s.ID()] = s

	joined := r.memberships[s.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		r.memberships[s.ID()] = joined
	}
	joined[channel] = struct{}{}
}

// Leave removes s from channel. Leaving a channel not joined is a no-op.
func (r *Registry) Leave(s *Session, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(s.ID(), channel)
}

func (r *Registry) leave(sessionID, channel string) {
	if members := r.channels[channel]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	if joined := r.memberships[sessionID]; joined != nil {
		delete(joined, channel)
	}
}

// Unregister drops s and all its memberships. It reports whether s was registered,
// so concurrent disconnect paths can tell which one did the cleanup.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; !ok {
		return false
	}
	for channel := range r.memberships[s.ID()] {
		r.leave(s.ID(), channel)
	}
	delete(r.memberships, s.ID())
	delete(r.sessions, s.ID())
	r.log.Debug("session unregistered", "session_id", s.ID(), "user_id", s.UserID())
	return true
}

// Members returns a snapshot of the sessions in channel.
func (r *Registry) Members(channel string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.channels[channel]
	out := make([]*Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// IsMember reports whether s currently belongs to channel.
func (r *Registry) IsMember(s *Session, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][s.ID()]
	return ok
}

// Channels returns the channels s belongs to.
func (r *Registry) Channels(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.memberships[s.ID()]))
	for c := range r.memberships[s.ID()] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
