// Package dispatch is the producer side of notifications: it writes the record,
// signals connected sessions and fans out to the optional outbound channels.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/domain"
)

// Emitter signals a user's live sessions.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, data any)
}

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

type Alerter interface {
	Alert(ctx context.Context, n *domain.Notification) error
	SendSMS(ctx context.Context, to, message string) error
}

type SnapshotStore interface {
	PutSnapshot(ctx context.Context, deviceID string, at time.Time, image []byte) (key, url string, err error)
}

// Renderer builds email bodies.
type Renderer struct {
	Welcome      func(name string) (subject, html string, err error)
	Notification func(n *domain.Notification) (subject, html string, err error)
}

// Request is one notification to deliver. Email and Phone, when set, receive
// a copy; Phone only for urgent notifications.
type Request struct {
	Notification domain.CreateNotificationRequest
	Email        string
	Phone        string
}

type UserRegistered struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"max=100"`
	Email  string `json:"email" validate:"omitempty,email"`
}

type Doorbell struct {
	UserID      string `json:"user_id" validate:"required"`
	DeviceID    string `json:"device_id" validate:"required"`
	VisitorName string `json:"visitor_name" validate:"max=100"`
	// Snapshot is the camera frame, base64 in JSON.
	Snapshot []byte `json:"snapshot"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type Deps struct {
	Notifications notification.Service
	Emitter       Emitter
	// Mailer, Alerter and Snapshots are optional.
	Mailer    Mailer
	Alerter   Alerter
	Snapshots SnapshotStore
	Renderer  Renderer
	Logger    *slog.Logger
	Clock     func() time.Time
}

type Dispatcher struct {
	notifications notification.Service
	emitter       Emitter
	mailer        Mailer
	alerter       Alerter
	snapshots     SnapshotStore
	render        Renderer
	log           *slog.Logger
	clock         func() time.Time
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		notifications: deps.Notifications,
		emitter:       deps.Emitter,
		mailer:        deps.Mailer,
		alerter:       deps.Alerter,
		snapshots:     deps.Snapshots,
		render:        deps.Renderer,
		log:           deps.Logger,
		clock:         deps.Clock,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	return d
}

// Notify stores the notification as the system producer, then signals the
// owner's sessions and the outbound channels. Only the store write can fail the call.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (*domain.Notification, error) {
	n, err := d.notifications.Create(ctx, domain.SystemActor, req.Notification)
	if err != nil {
		return nil, err
	}
	d.emitter.EmitToUser(ctx, n.UserID, domain.EventNewNotification, n)

	if req.Email != "" {
		d.email(ctx, req.Email, n)
	}
	if n.Priority == domain.PriorityUrgent && d.alerter != nil {
		if err := d.alerter.Alert(ctx, n); err != nil {
			d.log.WarnContext(ctx, "urgent alert failed", "notification_id", n.NotificationID, "err", err)
		}
		if req.Phone != "" {
			if err := d.alerter.SendSMS(ctx, req.Phone, smsText(n)); err != nil {
				d.log.WarnContext(ctx, "sms failed", "notification_id", n.NotificationID, "err", err)
			}
		}
	}
	return n, nil
}

func (d *Dispatcher) email(ctx context.Context, to string, n *domain.Notification) {
	if d.mailer == nil || d.render.Notification == nil {
		return
	}
	subject, html, err := d.render.Notification(n)
	if err == nil {
		err = d.mailer.SendEmail(ctx, to, subject, html)
	}
	if err != nil {
		d.log.WarnContext(ctx, "notification email failed", "notification_id", n.NotificationID, "err", err)
	}
}

// Welcome greets a newly registered user with a system notification and,
// when an address is known, a welcome email.
func (d *Dispatcher) Welcome(ctx context.Context, ev UserRegistered) (*domain.Notification, error) {
	n, err := d.Notify(ctx, Request{Notification: domain.CreateNotificationRequest{
		UserID:   ev.UserID,
		Type:     domain.TypeSystem,
		Title:    "Welcome to Cuchu!",
		Message:  "Thank you for joining our platform.",
		Priority: domain.PriorityLow,
		Data:     json.RawMessage(`{"event":"welcome"}`),
	}})
	if err != nil {
		return nil, err
	}
	if ev.Email != "" && d.mailer != nil && d.render.Welcome != nil {
		subject, html, err := d.render.Welcome(ev.Name)
		if err == nil {
			err = d.mailer.SendEmail(ctx, ev.Email, subject, html)
		}
		if err != nil {
			d.log.WarnContext(ctx, "welcome email failed", "user_id", ev.UserID, "err", err)
		}
	}
	return n, nil
}

// Ring records a doorbell press. The snapshot is uploaded first so the
// notification can link it; a failed upload still notifies, without the link.
func (d *Dispatcher) Ring(ctx context.Context, ev Doorbell) (*domain.Notification, error) {
	payload := domain.DoorbellPayload{DeviceID: ev.DeviceID, VisitorName: strings.TrimSpace(ev.VisitorName)}
	if len(ev.Snapshot) > 0 && d.snapshots != nil {
		key, url, err := d.snapshots.PutSnapshot(ctx, ev.DeviceID, d.clock(), ev.Snapshot)
		if err != nil {
			d.log.WarnContext(ctx, "doorbell snapshot upload failed", "device_id", ev.DeviceID, "err", err)
		} else {
			payload.SnapshotKey, payload.SnapshotURL = key, url
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode doorbell payload: %w", err)
	}

	message := "Someone is at your door."
	if payload.VisitorName != "" {
		message = payload.VisitorName + " is at your door."
	}
	return d.Notify(ctx, Request{
		Notification: domain.CreateNotificationRequest{
			UserID:   ev.UserID,
			Type:     domain.TypeDoorbell,
			Title:    "Doorbell",
			Message:  message,
			Priority: domain.PriorityUrgent,
			Data:     data,
		},
		Phone: ev.Phone,
	})
}

func smsText(n *domain.Notification) string {
	text := n.Title + ": " + n.Message
	if r := []rune(text); len(r) > 160 {
		text = string(r[:157]) + "..."
	}
	return text
}
