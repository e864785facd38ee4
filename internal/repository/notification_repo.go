package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/google/uuid"
)

type NotificationFilter string

const (
	FilterAll      NotificationFilter = "all"
	FilterUnread   NotificationFilter = "unread"
	FilterRead     NotificationFilter = "read"
	FilterArchived NotificationFilter = "archived"
)

func (f NotificationFilter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterRead, FilterArchived:
		return true
	}
	return false
}

type CreateNotificationInput struct {
	UserID    uuid.UUID
	Type      models.NotificationType
	Title     string
	Message   string
	Priority  models.NotificationPriority
	Data      models.NotificationData
	Channels  models.DeliveryChannels
	ExpiresAt *time.Time
}

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	id, user_id, type, title, message, priority, status, data,
	channel_email, channel_push, channel_in_app, created_at, updated_at, expires_at
`

const notExpired = `(expires_at IS NULL OR expires_at > NOW())`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var rawData []byte
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Priority,
		&n.Status,
		&rawData,
		&n.Channels.Email,
		&n.Channels.Push,
		&n.Channels.InApp,
		&n.CreatedAt,
		&n.UpdatedAt,
		&n.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	data, err := json.Marshal(input.Data)
	if err != nil {
		return nil, fmt.Errorf("encode notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (
			user_id, type, title, message, priority, status, data,
			channel_email, channel_push, channel_in_app, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, 'unread', $6::jsonb, $7, $8, $9, $10)
		RETURNING ` + notificationColumns

	return scanNotification(r.db.QueryRow(ctx, query,
		input.UserID,
		string(input.Type),
		input.Title,
		input.Message,
		string(input.Priority),
		string(data),
		input.Channels.Email,
		input.Channels.Push,
		input.Channels.InApp,
		input.ExpiresAt,
	))
}

func (r *NotificationRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND user_id = $2 AND ` + notExpired

	return scanNotification(r.db.QueryRow(ctx, query, id, userID))
}

func filterClause(filter NotificationFilter) string {
	switch filter {
	case FilterUnread:
		return "status = 'unread'"
	case FilterRead:
		return "status = 'read'"
	case FilterArchived:
		return "status = 'archived'"
	default:
		return "status <> 'archived'"
	}
}

func (r *NotificationRepository) List(
	ctx context.Context,
	userID uuid.UUID,
	filter NotificationFilter,
	limit int,
	offset int,
) ([]models.Notification, int, error) {
	where := `user_id = $1 AND ` + notExpired + ` AND ` + filterClause(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND status = 'unread' AND `+notExpired,
		userID,
	).Scan(&count)
	return count, err
}

// Transition moves a notification owned by userID into status to, provided
// its current status is one of from. It returns pgx.ErrNoRows when nothing
// matched, which covers both a missing row and a disallowed source status.
func (r *NotificationRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	userID uuid.UUID,
	from []models.NotificationStatus,
	to models.NotificationStatus,
) (*models.Notification, error) {
	fromValues := make([]string, 0, len(from))
	for _, status := range from {
		fromValues = append(fromValues, string(status))
	}

	query := `
		UPDATE notifications
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = ANY($4::text[]) AND ` + notExpired + `
		RETURNING ` + notificationColumns

	return scanNotification(r.db.QueryRow(ctx, query, id, userID, string(to), fromValues))
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2 AND `+notExpired,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET status = 'read', updated_at = NOW()
		WHERE user_id = $1 AND status = 'unread' AND `+notExpired,
		userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1 AND `+notExpired, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) CountOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND `+notExpired,
		userID, uuidStrings(ids),
	).Scan(&count)
	return count, err
}

func (r *NotificationRepository) MarkSelectedRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET status = 'read', updated_at = NOW()
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND status = 'unread' AND `+notExpired,
		userID, uuidStrings(ids),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) DeleteSelected(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND `+notExpired,
		userID, uuidStrings(ids),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
