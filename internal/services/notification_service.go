package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MuhammadKashif10/onlyif-backend/internal/metrics"
	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

const (
	ActionMarkRead   = "mark_read"
	ActionMarkUnread = "mark_unread"
	ActionArchive    = "archive"

	BulkMarkAllRead      = "mark_all_read"
	BulkDeleteAll        = "delete_all"
	BulkMarkSelectedRead = "mark_selected_read"
	BulkDeleteSelected   = "delete_selected"

	maxTitleLength   = 200
	maxMessageLength = 2000

	mirrorPreviewLength = 140
)

type notificationStore interface {
	Create(ctx context.Context, input repository.CreateNotificationInput) (*models.Notification, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter, limit int, offset int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	Transition(ctx context.Context, id uuid.UUID, userID uuid.UUID, from []models.NotificationStatus, to models.NotificationStatus) (*models.Notification, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
	CountOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkSelectedRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	DeleteSelected(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type userReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type NotificationService struct {
	store notificationStore
	users userReader
	now   func() time.Time
}

func NewNotificationService(store notificationStore, users userReader) *NotificationService {
	return &NotificationService{
		store: store,
		users: users,
		now:   time.Now,
	}
}

type CreateNotificationInput struct {
	Type         models.NotificationType
	Title        string
	Message      string
	TargetUserID uuid.UUID
	Data         models.NotificationData
	Priority     models.NotificationPriority
	Channels     *models.DeliveryChannels
	ExpiresAt    *time.Time
}

type CreatedNotification struct {
	Notification *models.Notification `json:"notification"`
	UnreadCount  int                  `json:"unreadCount"`
}

type NotificationPage struct {
	Notifications []models.Notification
	Total         int
	UnreadCount   int
}

type BulkResult struct {
	AffectedCount int64 `json:"affectedCount"`
	UnreadCount   int   `json:"unreadCount"`
}

func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*CreatedNotification, error) {
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)

	switch {
	case !input.Type.Valid():
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, input.Type)
	case title == "" || utf8.RuneCountInString(title) > maxTitleLength:
		return nil, fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTitleLength)
	case message == "" || utf8.RuneCountInString(message) > maxMessageLength:
		return nil, fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidInput, maxMessageLength)
	case input.TargetUserID == uuid.Nil:
		return nil, fmt.Errorf("%w: targetUserId is required", ErrInvalidInput)
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiresAt must be in the future", ErrInvalidInput)
	}

	channels := models.DeliveryChannels{InApp: true}
	if input.Channels != nil {
		channels = *input.Channels
	}

	if _, err := s.users.GetByID(ctx, input.TargetUserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	notification, err := s.store.Create(ctx, repository.CreateNotificationInput{
		UserID:    input.TargetUserID,
		Type:      input.Type,
		Title:     title,
		Message:   message,
		Priority:  priority,
		Data:      input.Data,
		Channels:  channels,
		ExpiresAt: input.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(notification.Type)).Inc()

	unread, err := s.store.CountUnread(ctx, input.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &CreatedNotification{Notification: notification, UnreadCount: unread}, nil
}

// truncateRunes cuts s to at most limit characters, marking the cut with
// an ellipsis. It never splits a multi-byte character.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// MirrorChatMessage records a new_message notification for a recipient who
// had no live connection when the message was delivered.
func (s *NotificationService) MirrorChatMessage(ctx context.Context, message *models.ChatMessage) error {
	preview := truncateRunes(message.Text, mirrorPreviewLength)

	_, err := s.Create(ctx, CreateNotificationInput{
		Type:         models.NotificationNewMessage,
		Title:        "New message",
		Message:      preview,
		TargetUserID: message.ReceiverID,
		Priority:     models.PriorityMedium,
		Data: models.NotificationData{
			ActionURL: "/messages/" + message.ConversationID.String(),
			Extra: map[string]any{
				"conversationId": message.ConversationID.String(),
				"messageId":      message.ID,
				"senderId":       message.SenderID.String(),
			},
		},
	})
	return err
}

func (s *NotificationService) List(
	ctx context.Context,
	userID uuid.UUID,
	filter repository.NotificationFilter,
	page int,
	limit int,
) (*NotificationPage, error) {
	if filter == "" {
		filter = repository.FilterAll
	}
	if !filter.Valid() || page <= 0 || limit <= 0 {
		return nil, ErrInvalidInput
	}

	notifications, total, err := s.store.List(ctx, userID, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{
		Notifications: notifications,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

func (s *NotificationService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	notification, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notification, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// ApplyAction runs a single-notification state change. Repeating a change
// that already holds returns the notification untouched.
func (s *NotificationService) ApplyAction(ctx context.Context, userID, id uuid.UUID, action string) (*models.Notification, error) {
	var from []models.NotificationStatus
	var to models.NotificationStatus

	switch action {
	case ActionMarkRead:
		from, to = []models.NotificationStatus{models.StatusUnread}, models.StatusRead
	case ActionMarkUnread:
		from, to = []models.NotificationStatus{models.StatusRead}, models.StatusUnread
	case ActionArchive:
		from, to = []models.NotificationStatus{models.StatusUnread, models.StatusRead}, models.StatusArchived
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, action)
	}

	updated, err := s.store.Transition(ctx, id, userID, from, to)
	if err == nil {
		metrics.NotificationTransitions.WithLabelValues(action).Inc()
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	// mark_unread on unread is a no-op; anything else left here starts from archived.
	if action == ActionMarkUnread && current.Status == models.StatusUnread {
		return current, nil
	}
	return nil, fmt.Errorf("%w: cannot %s a %s notification", ErrInvalidStateTransition, action, current.Status)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	deleted, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotificationNotFound
	}
	metrics.NotificationTransitions.WithLabelValues("delete").Inc()
	return nil
}

// ParseNotificationIDs keeps the well-formed, distinct ids from raw and
// reports how many entries were rejected.
func ParseNotificationIDs(raw []string) ([]uuid.UUID, int) {
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	rejected := 0
	for _, value := range raw {
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil || id == uuid.Nil {
			rejected++
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rejected
}

func (s *NotificationService) Bulk(ctx context.Context, userID uuid.UUID, action string, rawIDs []string) (*BulkResult, error) {
	var affected int64
	var err error

	switch action {
	case BulkMarkAllRead:
		affected, err = s.store.MarkAllRead(ctx, userID)
	case BulkDeleteAll:
		affected, err = s.store.DeleteAll(ctx, userID)
	case BulkMarkSelectedRead, BulkDeleteSelected:
		ids, rejected := ParseNotificationIDs(rawIDs)
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: notificationIds must contain at least one valid id", ErrInvalidInput)
		}
		if rejected > 0 {
			logrus.WithFields(logrus.Fields{
				"user_id":  userID,
				"action":   action,
				"rejected": rejected,
			}).Debug("ignoring malformed notification ids")
		}

		owned, countErr := s.store.CountOwned(ctx, userID, ids)
		if countErr != nil {
			return nil, countErr
		}
		if owned == 0 {
			return nil, fmt.Errorf("%w: none of the notificationIds belong to the caller", ErrInvalidInput)
		}

		if action == BulkMarkSelectedRead {
			affected, err = s.store.MarkSelectedRead(ctx, userID, ids)
		} else {
			affected, err = s.store.DeleteSelected(ctx, userID, ids)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported bulk action %q", ErrInvalidInput, action)
	}
	if err != nil {
		return nil, err
	}
	metrics.NotificationTransitions.WithLabelValues(action).Add(float64(affected))

	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BulkResult{AffectedCount: affected, UnreadCount: unread}, nil
}

func (s *NotificationService) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.NotificationsPurged.Add(float64(purged))
	return purged, nil
}
