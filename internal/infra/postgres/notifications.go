package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jts-services/portal/internal/repository"
)

// NotificationRepository is the Postgres implementation of repository.NotificationRepository.
// Inserts fire the notifications_notify trigger, which the realtime listener picks up.
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification skips the insert, and so the realtime push, when the
// owner already has a notification with the same dedup key.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *repository.Notification) (bool, error) {
	kind := n.Kind
	if kind == "" {
		kind = "info"
	}
	var dedupKey *string
	if n.DedupKey != "" {
		dedupKey = &n.DedupKey
	}

	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO notifications (owner_id, title, body, kind, dedup_key)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id, dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING
		 RETURNING id::text, kind, created_at`,
		n.OwnerID, n.Title, n.Body, kind, dedupKey,
	).Scan(&n.ID, &n.Kind, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("InsertNotification", err)
	}
	return true, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*repository.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT id::text, owner_id, title, body, kind, read_at, created_at
		 FROM notifications
		 WHERE owner_id = $1 AND (NOT $2 OR read_at IS NULL)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		ownerID, unreadOnly, limit,
	)
	if err != nil {
		return nil, mapError("ListNotifications", err)
	}
	defer rows.Close()

	list := []*repository.Notification{}
	for rows.Next() {
		n := &repository.Notification{}
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &n.Kind, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, mapError("ListNotifications: scan", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListNotifications: rows", err)
	}
	return list, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, ownerID, notificationID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, now())
		 WHERE id = $1 AND owner_id = $2`,
		notificationID, ownerID,
	)
	if err != nil {
		return mapError("MarkRead", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("MarkRead: %w", repository.ErrNotFound)
	}
	return nil
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)
