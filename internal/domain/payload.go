package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the typed attachment carried in Notification.Data.
// Each notification type has exactly one payload shape; system notifications
// accept an arbitrary JSON object.
type Payload interface {
	PayloadType() NotificationType
}

type DoorbellPayload struct {
	DeviceID    string `json:"device_id" validate:"required"`
	VisitorName string `json:"visitor_name,omitempty" validate:"omitempty,max=100"`
	SnapshotKey string `json:"snapshot_key,omitempty"`
	SnapshotURL string `json:"snapshot_url,omitempty" validate:"omitempty,url"`
}

type MessagePayload struct {
	SenderID       string `json:"sender_id" validate:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type VideoCallPayload struct {
	CallID   string `json:"call_id" validate:"required"`
	CallerID string `json:"caller_id,omitempty"`
}

type PaymentPayload struct {
	PaymentID string  `json:"payment_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Currency  string  `json:"currency" validate:"required,len=3"`
	Provider  string  `json:"provider,omitempty" validate:"omitempty,oneof=stripe mercadopago"`
}

type SubscriptionPayload struct {
	PlanID string `json:"plan_id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=active cancelled expired pending"`
}

// SystemPayload is the untyped fallback for generic events.
type SystemPayload map[string]any

func (DoorbellPayload) PayloadType() NotificationType     { return TypeDoorbell }
func (MessagePayload) PayloadType() NotificationType      { return TypeMessage }
func (VideoCallPayload) PayloadType() NotificationType    { return TypeVideoCall }
func (PaymentPayload) PayloadType() NotificationType      { return TypePayment }
func (SubscriptionPayload) PayloadType() NotificationType { return TypeSubscription }
func (SystemPayload) PayloadType() NotificationType       { return TypeSystem }

// EmptyPayload reports whether raw carries no attachment at all.
func EmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParsePayload strictly decodes raw into the payload shape of t.
// Unknown fields are rejected for typed payloads.
func ParsePayload(t NotificationType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case TypeDoorbell:
		p = &DoorbellPayload{}
	case TypeMessage:
		p = &MessagePayload{}
	case TypeVideoCall:
		p = &VideoCallPayload{}
	case TypePayment:
		p = &PaymentPayload{}
	case TypeSubscription:
		p = &SubscriptionPayload{}
	case TypeSystem:
		var sp SystemPayload
		if err := json.Unmarshal(raw, &sp); err != nil {
			return nil, fmt.Errorf("data must be a JSON object: %w", ErrBadRequest)
		}
		return sp, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q: %w", t, ErrBadRequest)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("data does not match %s payload: %v: %w", t, err, ErrBadRequest)
	}
	if dec.More() {
		return nil, fmt.Errorf("data must be a single %s payload: %w", t, ErrBadRequest)
	}
	return p, nil
}

// EncodePayload serializes p for storage in Notification.Data.
func EncodePayload(p Payload) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.PayloadType(), err)
	}
	return b, nil
}
