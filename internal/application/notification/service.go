package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuchu-notify/internal/application/access"
	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/pkg/id"
	"github.com/cuchu-notify/internal/pkg/validate"
)

// Paging defaults for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service interface {
	Create(ctx context.Context, actor domain.Actor, req domain.CreateNotificationRequest) (*domain.Notification, error)
	Get(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error)
	// MarkRead reports whether this call moved the record from unread to read.
	MarkRead(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, bool, error)
	MarkAllRead(ctx context.Context, actor domain.Actor, userID string) (int, error)
	Archive(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error)
	Update(ctx context.Context, actor domain.Actor, notificationID string, req domain.UpdateNotificationRequest) (*domain.Notification, error)
	Delete(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error)
	DeleteAll(ctx context.Context, actor domain.Actor, userID string) (int, error)
	SweepExpired(ctx context.Context) (int, error)

	List(ctx context.Context, actor domain.Actor, userID string, q ListQuery) (*domain.NotificationPage, error)
	UnreadCount(ctx context.Context, actor domain.Actor, userID string) (int, error)
	Stats(ctx context.Context, actor domain.Actor, userID string) (*domain.NotificationStats, error)
}

type ServiceDeps struct {
	Store  Store
	Policy *access.Policy
	Logger *slog.Logger
	// Clock overrides time.Now; tests use it to pin timestamps.
	Clock func() time.Time
}

type service struct {
	store  Store
	policy *access.Policy
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:  deps.Store,
		policy: deps.Policy,
		log:    deps.Logger,
		clock:  deps.Clock,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.policy == nil {
		s.policy = access.NewPolicy(s.log)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *service) now() time.Time { return s.clock().UTC() }

func (s *service) Create(ctx context.Context, actor domain.Actor, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if !s.policy.Authorize(ctx, actor, req.UserID, "notification.create") {
		return nil, fmt.Errorf("cannot create notifications for another user: %w", domain.ErrForbidden)
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future: %w", domain.ErrBadRequest)
	}
	data, err := normalizePayload(req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	n := &domain.Notification{
		NotificationID: id.NewAt(now),
		UserID:         req.UserID,
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
		Priority:       priority,
		Status:         domain.StatusUnread,
		Data:           data,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		n.ExpiresAt = &exp
	}
	if err := s.store.Put(ctx, n); err != nil {
		return nil, s.unavailable(ctx, "create notification", err)
	}
	return n, nil
}

func (s *service) Get(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error) {
	return s.load(ctx, actor, notificationID, "notification.get")
}

func (s *service) MarkRead(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, bool, error) {
	n, err := s.load(ctx, actor, notificationID, "notification.mark_read")
	if err != nil {
		return nil, false, err
	}
	if n.Status != domain.StatusUnread {
		return n, false, nil
	}
	changed, err := s.store.MarkRead(ctx, n.NotificationID, n.UserID, s.now())
	if err != nil {
		return nil, false, s.storeErr(ctx, "mark notification read", err)
	}
	n, err = s.reload(ctx, n.NotificationID)
	if err != nil {
		return nil, false, err
	}
	return n, changed, nil
}

func (s *service) MarkAllRead(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	userID, err := s.target(ctx, actor, userID, "notification.mark_all_read")
	if err != nil {
		return 0, err
	}
	changed, err := s.store.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, s.unavailable(ctx, "mark all notifications read", err)
	}
	return changed, nil
}

func (s *service) Archive(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error) {
	n, err := s.load(ctx, actor, notificationID, "notification.archive")
	if err != nil {
		return nil, err
	}
	if n.Status == domain.StatusArchived {
		return n, nil
	}
	if _, err := s.store.Archive(ctx, n.NotificationID, n.UserID, s.now()); err != nil {
		return nil, s.storeErr(ctx, "archive notification", err)
	}
	return s.reload(ctx, n.NotificationID)
}

func (s *service) Update(ctx context.Context, actor domain.Actor, notificationID string, req domain.UpdateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	n, err := s.load(ctx, actor, notificationID, "notification.update")
	if err != nil {
		return nil, err
	}
	var c ContentUpdate
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("field 'title' failed 'required': %w", domain.ErrBadRequest)
		}
		c.Title = &title
	}
	if req.Message != nil {
		msg := strings.TrimSpace(*req.Message)
		if msg == "" {
			return nil, fmt.Errorf("field 'message' failed 'required': %w", domain.ErrBadRequest)
		}
		c.Message = &msg
	}
	c.Priority = req.Priority
	if req.Data != nil {
		data, err := normalizePayload(n.Type, req.Data)
		if err != nil {
			return nil, err
		}
		// An explicit null clears the attachment.
		if data == nil {
			data = []byte("null")
		}
		c.Data = data
	}
	if c.Empty() {
		return n, nil
	}
	if err := s.store.UpdateContent(ctx, n.NotificationID, n.UserID, c, s.now()); err != nil {
		return nil, s.storeErr(ctx, "update notification", err)
	}
	return s.reload(ctx, n.NotificationID)
}

// Delete removes the record and returns it as it was, so callers can signal the owner.
func (s *service) Delete(ctx context.Context, actor domain.Actor, notificationID string) (*domain.Notification, error) {
	n, err := s.load(ctx, actor, notificationID, "notification.delete")
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, n.NotificationID, n.UserID); err != nil {
		return nil, s.storeErr(ctx, "delete notification", err)
	}
	return n, nil
}

func (s *service) DeleteAll(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	userID, err := s.target(ctx, actor, userID, "notification.delete_all")
	if err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, s.unavailable(ctx, "delete all notifications", err)
	}
	return deleted, nil
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	purged, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, s.unavailable(ctx, "sweep expired notifications", err)
	}
	return purged, nil
}

// load fetches a live record and applies the ownership rule. Records that are
// missing, expired or owned by someone else are indistinguishable to the caller.
func (s *service) load(ctx context.Context, actor domain.Actor, notificationID, action string) (*domain.Notification, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	n, err := s.reload(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != actor.UserID && !s.policy.Authorize(ctx, actor, n.UserID, action) {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return n, nil
}

func (s *service) reload(ctx context.Context, notificationID string) (*domain.Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return nil, s.storeErr(ctx, "get notification", err)
	}
	if n.Expired(s.now()) {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return n, nil
}

// target resolves the user a collection operation applies to. An empty userID
// means the actor's own notifications.
func (s *service) target(ctx context.Context, actor domain.Actor, userID, action string) (string, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID == "" {
		return "", fmt.Errorf("no user to act on: %w", domain.ErrUnauthorized)
	}
	if !s.policy.Authorize(ctx, actor, userID, action) {
		return "", fmt.Errorf("cannot access another user's notifications: %w", domain.ErrForbidden)
	}
	return userID, nil
}

// storeErr passes domain.ErrNotFound through and treats anything else as an infrastructure failure.
func (s *service) storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return s.unavailable(ctx, op, err)
}

func (s *service) unavailable(ctx context.Context, op string, err error) error {
	s.log.ErrorContext(ctx, "notification store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, domain.ErrUnavailable)
}

// normalizePayload validates raw against the payload shape of t and returns its
// canonical encoding. A missing payload yields nil.
func normalizePayload(t domain.NotificationType, raw []byte) ([]byte, error) {
	if domain.EmptyPayload(raw) {
		return nil, nil
	}
	p, err := domain.ParsePayload(t, raw)
	if err != nil {
		return nil, err
	}
	if _, generic := p.(domain.SystemPayload); !generic {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("data: %v: %w", err, domain.ErrBadRequest)
		}
	}
	return domain.EncodePayload(p)
}
