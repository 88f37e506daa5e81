package chatstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/marketpulse/pkg/notifications"
	"github.com/dmitrymomot/marketpulse/pkg/pg"
)

const notificationColumns = `id, recipient_id, notification_type, title, message, link_url,
	metadata, is_read, read_at, created_at`

type notificationRow struct {
	ID          int64          `db:"id"`
	RecipientID int64          `db:"recipient_id"`
	Type        string         `db:"notification_type"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	LinkURL     string         `db:"link_url"`
	Metadata    map[string]any `db:"metadata"`
	IsRead      bool           `db:"is_read"`
	ReadAt      *time.Time     `db:"read_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r notificationRow) notification() notifications.Notification {
	return notifications.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Type:        notifications.Type(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		LinkURL:     r.LinkURL,
		Metadata:    r.Metadata,
		IsRead:      r.IsRead,
		ReadAt:      r.ReadAt,
		CreatedAt:   r.CreatedAt,
	}
}

// Notifications adapts the store to notifications.Storage.
func (p *Postgres) Notifications() *NotificationStore {
	return &NotificationStore{db: p.db}
}

// NotificationStore persists notifications in the notifications table.
type NotificationStore struct {
	db DB
}

func (s *NotificationStore) Create(ctx context.Context, n *notifications.Notification) error {
	if n == nil || n.RecipientID <= 0 {
		return fmt.Errorf("%w: recipient is required", notifications.ErrInvalidNotification)
	}
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO notifications (recipient_id, notification_type, title, message, link_url, metadata, is_read, read_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		n.RecipientID, string(n.Type), n.Title, n.Message, n.LinkURL, metadata, n.IsRead, n.ReadAt, createdAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return queryErr(err)
	}
	return nil
}

func (s *NotificationStore) Get(ctx context.Context, userID, notifID int64) (notifications.Notification, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE recipient_id = $1 AND id = $2`,
		userID, notifID,
	)
	if err != nil {
		return notifications.Notification{}, queryErr(err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[notificationRow])
	switch {
	case pg.IsNotFoundError(err):
		return notifications.Notification{}, notifications.ErrNotificationNotFound
	case err != nil:
		return notifications.Notification{}, queryErr(err)
	}
	return row.notification(), nil
}

func (s *NotificationStore) List(ctx context.Context, userID int64, opts notifications.ListOptions) ([]notifications.Notification, error) {
	query, args := listNotificationsQuery(userID, opts)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, queryErr(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[notificationRow])
	if err != nil {
		return nil, queryErr(err)
	}
	out := make([]notifications.Notification, len(list))
	for i, r := range list {
		out[i] = r.notification()
	}
	return out, nil
}

func listNotificationsQuery(userID int64, opts notifications.ListOptions) (string, []any) {
	var b strings.Builder
	args := []any{userID}
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`)
	if opts.OnlyUnread {
		b.WriteString(` AND NOT is_read`)
	}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		fmt.Fprintf(&b, ` AND notification_type = ANY($%d)`, len(args))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&b, ` AND created_at >= $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}
	return b.String(), args
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID int64, at time.Time, notifIDs ...int64) (int, error) {
	if len(notifIDs) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
UPDATE notifications SET is_read = TRUE, read_at = $2
WHERE recipient_id = $1 AND id = ANY($3) AND NOT is_read`,
		userID, at, notifIDs,
	)
	if err != nil {
		return 0, queryErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, userID,
	).Scan(&n)
	if err != nil {
		return 0, queryErr(err)
	}
	return n, nil
}
