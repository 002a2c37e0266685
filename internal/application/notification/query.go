package notification

import (
	"context"
	"fmt"
	"math"

	"github.com/cuchu-notify/internal/domain"
)

// ListQuery is the raw paging and filter input of List. Zero values select defaults.
type ListQuery struct {
	Page     int
	PageSize int
	Type     domain.NotificationType
	Status   domain.Status
}

func (q ListQuery) normalize() (ListQuery, error) {
	if q.Page < 0 {
		return q, fmt.Errorf("page must be positive: %w", domain.ErrBadRequest)
	}
	if q.PageSize < 0 {
		return q, fmt.Errorf("limit must be positive: %w", domain.ErrBadRequest)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return q, fmt.Errorf("page %d is out of range: %w", q.Page, domain.ErrBadRequest)
	}
	if q.Type != "" && !q.Type.Valid() {
		return q, fmt.Errorf("unknown type %q: %w", q.Type, domain.ErrBadRequest)
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, fmt.Errorf("unknown status %q: %w", q.Status, domain.ErrBadRequest)
	}
	return q, nil
}

func (s *service) List(ctx context.Context, actor domain.Actor, userID string, q ListQuery) (*domain.NotificationPage, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	userID, err = s.target(ctx, actor, userID, "notification.list")
	if err != nil {
		return nil, err
	}
	f := domain.NotificationFilter{Type: q.Type, Status: q.Status}
	items, total, err := s.store.List(ctx, userID, f, s.now(), (q.Page-1)*q.PageSize, q.PageSize)
	if err != nil {
		return nil, s.unavailable(ctx, "list notifications", err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return &domain.NotificationPage{
		Items:    items,
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    total,
		Pages:    (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (s *service) UnreadCount(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	userID, err := s.target(ctx, actor, userID, "notification.unread_count")
	if err != nil {
		return 0, err
	}
	n, err := s.store.Count(ctx, userID, domain.NotificationFilter{Status: domain.StatusUnread}, s.now())
	if err != nil {
		return 0, s.unavailable(ctx, "count unread notifications", err)
	}
	return n, nil
}

// Stats folds the per type and status tally into totals. Every known type is
// present in ByType, with zero when the user has none.
func (s *service) Stats(ctx context.Context, actor domain.Actor, userID string) (*domain.NotificationStats, error) {
	userID, err := s.target(ctx, actor, userID, "notification.stats")
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Tally(ctx, userID, s.now())
	if err != nil {
		return nil, s.unavailable(ctx, "notification stats", err)
	}
	st := &domain.NotificationStats{ByType: make(map[domain.NotificationType]int, len(domain.NotificationTypes))}
	for _, t := range domain.NotificationTypes {
		st.ByType[t] = 0
	}
	for _, r := range rows {
		st.Total += r.Count
		st.ByType[r.Type] += r.Count
		switch r.Status {
		case domain.StatusUnread:
			st.Unread += r.Count
		case domain.StatusRead:
			st.Read += r.Count
		case domain.StatusArchived:
			st.Archived += r.Count
		}
	}
	return st, nil
}
