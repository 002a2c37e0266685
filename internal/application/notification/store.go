package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuchu-notify/internal/domain"
)

// Store is the persistence contract behind the notification service.
//
// Every state transition is a single conditional write keyed on the owner, so a
// transition never overwrites a concurrent content edit and vice versa.
// Methods return domain.ErrNotFound for missing records; any other error is an
// infrastructure failure.
type Store interface {
	// Put inserts n. It fails if a record with the same id exists.
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	// MarkRead moves an unread record owned by userID to read, stamping readAt.
	// It reports false without error when the record was not unread.
	MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	// Archive moves a non-archived record owned by userID to archived; readAt is untouched.
	Archive(ctx context.Context, notificationID, userID string, at time.Time) (bool, error)
	UpdateContent(ctx context.Context, notificationID, userID string, c ContentUpdate, at time.Time) error
	Delete(ctx context.Context, notificationID, userID string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// List returns one page ordered by createdAt then id, newest first, and the
	// total number of matching records. Records expired at now are excluded.
	List(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time, offset, limit int) ([]domain.Notification, int, error)
	Count(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time) (int, error)
	// Tally groups the user's live records by type and status.
	Tally(ctx context.Context, userID string, now time.Time) ([]TallyRow, error)
}

// ContentUpdate carries the editable fields. Nil fields are left untouched.
type ContentUpdate struct {
	Title    *string
	Message  *string
	Priority *domain.Priority
	Data     json.RawMessage
}

func (c ContentUpdate) Empty() bool {
	return c.Title == nil && c.Message == nil && c.Priority == nil && c.Data == nil
}

type TallyRow struct {
	Type   domain.NotificationType
	Status domain.Status
	Count  int
}
