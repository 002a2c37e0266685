package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	TypeDoorbell     NotificationType = "doorbell"
	TypeMessage      NotificationType = "message"
	TypeVideoCall    NotificationType = "video_call"
	TypePayment      NotificationType = "payment"
	TypeSubscription NotificationType = "subscription"
	TypeSystem       NotificationType = "system"
)

// NotificationTypes lists every accepted type, in display order.
var NotificationTypes = []NotificationType{
	TypeDoorbell, TypeMessage, TypeVideoCall, TypePayment, TypeSubscription, TypeSystem,
}

func (t NotificationType) Valid() bool {
	for _, v := range NotificationTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a record in status from may move to status to.
// unread -> read -> archived and unread -> archived; nothing leaves archived.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusUnread:
		return to == StatusRead || to == StatusArchived
	case StatusRead:
		return to == StatusArchived
	}
	return false
}

// Length limits for notification text, counted in runes.
const (
	MaxTitleLength   = 200
	MaxMessageLength = 1000
)

type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id"`
	UserID         string           `json:"user_id" dynamodbav:"user_id"`
	Type           NotificationType `json:"type" dynamodbav:"type"`
	Title          string           `json:"title" dynamodbav:"title"`
	Message        string           `json:"message" dynamodbav:"message"`
	Priority       Priority         `json:"priority" dynamodbav:"priority"`
	Status         Status           `json:"status" dynamodbav:"status"`
	Data           json.RawMessage  `json:"data,omitempty" dynamodbav:"data,omitempty"`
	ReadAt         *time.Time       `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" dynamodbav:"updated_at"`
}

// Expired reports whether the record's expiry has passed at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

type CreateNotificationRequest struct {
	UserID    string           `json:"user_id" validate:"required"`
	Type      NotificationType `json:"type" validate:"required,oneof=doorbell message video_call payment subscription system"`
	Title     string           `json:"title" validate:"required,max=200"`
	Message   string           `json:"message" validate:"required,max=1000"`
	Priority  Priority         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data      json.RawMessage  `json:"data"`
	ExpiresAt *time.Time       `json:"expires_at"`
}

// UpdateNotificationRequest edits content only. Nil fields are left untouched.
type UpdateNotificationRequest struct {
	Title    *string         `json:"title" validate:"omitempty,max=200"`
	Message  *string         `json:"message" validate:"omitempty,max=1000"`
	Priority *Priority       `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data     json.RawMessage `json:"data"`
}

// NotificationFilter narrows a listing. Zero values mean "any".
type NotificationFilter struct {
	Type   NotificationType
	Status Status
}

// NotificationPage is one offset page of a user's notifications, newest first.
type NotificationPage struct {
	Items    []Notification `json:"notifications"`
	Page     int            `json:"page"`
	PageSize int            `json:"limit"`
	Total    int            `json:"total"`
	Pages    int            `json:"pages"`
}

// NotificationStats is the per-user aggregate behind the dashboard badges.
type NotificationStats struct {
	Total    int                      `json:"total"`
	Unread   int                      `json:"unread"`
	Read     int                      `json:"read"`
	Archived int                      `json:"archived"`
	ByType   map[NotificationType]int `json:"by_type"`
}
