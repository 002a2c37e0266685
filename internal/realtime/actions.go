package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/pkg/id"
)

// Presence states a client may announce.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

const maxChatMessageLength = 4000

type presence struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type sendMessageRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type presenceRequest struct {
	Status string `json:"status"`
}

// ChatMessage is the new-message payload. Sender is copied from the session identity.
type ChatMessage struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	UserID    string          `json:"userId"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Sender    domain.Identity `json:"user"`
}

type typing struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
}

// ErrorPayload is sent as an error event when a client action is rejected.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Handle applies one client frame on behalf of s. A returned error wraps
// domain.ErrBadRequest or domain.ErrForbidden; the connection stays open.
func (h *Hub) Handle(ctx context.Context, s *Session, f Frame) error {
	switch f.Event {
	case domain.ActionJoinNotificationRoom, domain.ActionLeaveNotificationRoom,
		domain.ActionJoinChatRoom, domain.ActionLeaveChatRoom:
		room, err := parseRoom(f.Data)
		if err != nil {
			return err
		}
		channel := NotificationChannel(room)
		if f.Event == domain.ActionJoinChatRoom || f.Event == domain.ActionLeaveChatRoom {
			channel = ChatChannel(room)
		}
		if f.Event == domain.ActionJoinNotificationRoom || f.Event == domain.ActionJoinChatRoom {
			h.reg.Join(s, channel)
		} else {
			h.reg.Leave(s, channel)
		}
		return nil

	case domain.ActionSendMessage:
		var req sendMessageRequest
		if err := decode(f.Data, &req); err != nil {
			return err
		}
		room, err := validRoom(req.RoomID)
		if err != nil {
			return err
		}
		msg := strings.TrimSpace(req.Message)
		if msg == "" || utf8.RuneCountInString(msg) > maxChatMessageLength {
			return fmt.Errorf("message must be 1..%d characters: %w", maxChatMessageLength, domain.ErrBadRequest)
		}
		if req.Type == "" {
			req.Type = "text"
		}
		now := h.now().UTC()
		h.EmitToChannel(ctx, ChatChannel(room), domain.EventNewMessage, ChatMessage{
			ID:        id.NewAt(now),
			RoomID:    room,
			UserID:    s.UserID(),
			Message:   msg,
			Type:      req.Type,
			Timestamp: now,
			Sender:    domain.Identity{UserID: s.UserID(), Name: s.Identity().Name, Avatar: s.Identity().Avatar},
		})
		return nil

	case domain.ActionTypingStart, domain.ActionTypingStop:
		room, err := parseRoom(f.Data)
		if err != nil {
			return err
		}
		event, payload := domain.EventUserTyping, typing{UserID: s.UserID(), RoomID: room, Name: s.Identity().Name}
		if f.Event == domain.ActionTypingStop {
			event, payload = domain.EventUserStopTyping, typing{UserID: s.UserID(), RoomID: room}
		}
		h.EmitToChannelExcept(ctx, ChatChannel(room), s.ID(), event, payload)
		return nil

	case domain.ActionSetPresence:
		status, err := parsePresence(f.Data)
		if err != nil {
			return err
		}
		h.EmitToChannelExcept(ctx, UserChannel(s.UserID()), s.ID(), domain.EventPresenceUpdate, presence{
			UserID:   s.UserID(),
			Status:   status,
			LastSeen: h.now().UTC(),
		})
		return nil
	}
	return fmt.Errorf("unknown event %q: %w", f.Event, domain.ErrBadRequest)
}

// parseRoom accepts {"roomId": "..."} or a bare JSON string.
func parseRoom(raw json.RawMessage) (string, error) {
	var room string
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &room); err != nil {
			return "", fmt.Errorf("roomId: %w", domain.ErrBadRequest)
		}
	} else {
		var req roomRequest
		if err := decode(raw, &req); err != nil {
			return "", err
		}
		room = req.RoomID
	}
	return validRoom(room)
}

// parsePresence accepts {"status": "..."} or a bare JSON string.
func parsePresence(raw json.RawMessage) (string, error) {
	var status string
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &status); err != nil {
			return "", fmt.Errorf("status: %w", domain.ErrBadRequest)
		}
	} else {
		var req presenceRequest
		if err := decode(raw, &req); err != nil {
			return "", err
		}
		status = req.Status
	}
	switch status {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return status, nil
	}
	return "", fmt.Errorf("status must be online, away or offline: %w", domain.ErrBadRequest)
}

func validRoom(room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" || len(room) > maxRoomIDLength {
		return "", fmt.Errorf("roomId must be 1..%d bytes: %w", maxRoomIDLength, domain.ErrBadRequest)
	}
	return room, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("missing data: %w", domain.ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed data: %w", domain.ErrBadRequest)
	}
	return nil
}
