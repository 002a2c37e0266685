package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/domain"
)

const notificationColumns = `notification_id, user_id, type, title, message, priority, status,
	data, read_at, expires_at, created_at, updated_at`

// liveClause keeps rows whose expiry has not passed; it binds one argument, now in unix nanos.
const liveClause = `(expires_at IS NULL OR expires_at > ?)`

var _ notification.Store = (*NotificationStore)(nil)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	var data any
	if len(n.Data) > 0 {
		data = string(n.Data)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NotificationID, n.UserID, string(n.Type), n.Title, n.Message, string(n.Priority), string(n.Status),
		data, nanos(n.ReadAt), nanos(n.ExpiresAt), n.CreatedAt.UnixNano(), n.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE notification_id = ?`, notificationID)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications
		SET status = 'read', read_at = ?, updated_at = ?
		WHERE notification_id = ? AND user_id = ? AND status = 'unread'`,
		at.UnixNano(), at.UnixNano(), notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return s.changed(ctx, res, notificationID, userID)
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications
		SET status = 'read', read_at = ?, updated_at = ?
		WHERE user_id = ? AND status = 'unread' AND `+liveClause,
		at.UnixNano(), at.UnixNano(), userID, at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected(res)
}

func (s *NotificationStore) Archive(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications
		SET status = 'archived', updated_at = ?
		WHERE notification_id = ? AND user_id = ? AND status != 'archived'`,
		at.UnixNano(), notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("archive notification: %w", err)
	}
	return s.changed(ctx, res, notificationID, userID)
}

func (s *NotificationStore) UpdateContent(ctx context.Context, notificationID, userID string, c notification.ContentUpdate, at time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{at.UnixNano()}
	if c.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *c.Title)
	}
	if c.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *c.Message)
	}
	if c.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*c.Priority))
	}
	if c.Data != nil {
		sets = append(sets, "data = ?")
		if domain.EmptyPayload(c.Data) {
			args = append(args, nil)
		} else {
			args = append(args, string(c.Data))
		}
	}
	args = append(args, notificationID, userID)

	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET `+strings.Join(sets, ", ")+
		` WHERE notification_id = ? AND user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) Delete(ctx context.Context, notificationID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE notification_id = ? AND user_id = ?`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all notifications: %w", err)
	}
	return affected(res)
}

func (s *NotificationStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return affected(res)
}

func (s *NotificationStore) List(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time, offset, limit int) ([]domain.Notification, int, error) {
	where, args := filterClause(userID, f, now)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE `+where+
		` ORDER BY created_at DESC, notification_id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]domain.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

func (s *NotificationStore) Count(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time) (int, error) {
	where, args := filterClause(userID, f, now)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) Tally(ctx context.Context, userID string, now time.Time) ([]notification.TallyRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, status, COUNT(*) FROM notifications
		WHERE user_id = ? AND `+liveClause+` GROUP BY type, status`, userID, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("tally notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []notification.TallyRow
	for rows.Next() {
		var r notification.TallyRow
		if err := rows.Scan(&r.Type, &r.Status, &r.Count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// changed turns a conditional update result into the Store contract: true when
// the row moved, false when it exists but was already past the transition, and
// domain.ErrNotFound when no such row is owned by userID.
func (s *NotificationStore) changed(ctx context.Context, res sql.Result, notificationID, userID string) (bool, error) {
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications WHERE notification_id = ? AND user_id = ?`, notificationID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return false, nil
}

func filterClause(userID string, f domain.NotificationFilter, now time.Time) (string, []any) {
	where := "user_id = ? AND " + liveClause
	args := []any{userID, now.UnixNano()}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, string(f.Status))
	}
	return where, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc scanner) (*domain.Notification, error) {
	var (
		n                    domain.Notification
		data                 sql.NullString
		readAt, expiresAt    sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&n.NotificationID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority, &n.Status,
		&data, &readAt, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		n.Data = []byte(data.String)
	}
	n.ReadAt = fromNanos(readAt)
	n.ExpiresAt = fromNanos(expiresAt)
	n.CreatedAt = time.Unix(0, createdAt).UTC()
	n.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &n, nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
