package handlers

import (
	"context"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/repository"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type notificationApplicationService interface {
	List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter, page int, limit int) (*services.NotificationPage, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	ApplyAction(ctx context.Context, userID, id uuid.UUID, action string) (*models.Notification, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Bulk(ctx context.Context, userID uuid.UUID, action string, rawIDs []string) (*services.BulkResult, error)
	Create(ctx context.Context, input services.CreateNotificationInput) (*services.CreatedNotification, error)
}

type NotificationHandler struct {
	service notificationApplicationService
}

type updateNotificationRequest struct {
	Action string `json:"action" validate:"required,oneof=mark_read mark_unread archive"`
}

type bulkNotificationRequest struct {
	Action          string   `json:"action" validate:"required,oneof=mark_all_read delete_all mark_selected_read delete_selected"`
	NotificationIDs []string `json:"notificationIds" validate:"max=500"`
}

type createNotificationRequest struct {
	Type         string                   `json:"type" validate:"required"`
	Title        string                   `json:"title" validate:"required,max=200"`
	Message      string                   `json:"message" validate:"required,max=2000"`
	TargetUserID string                   `json:"targetUserId" validate:"required,uuid"`
	Data         models.NotificationData  `json:"data"`
	Priority     string                   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Channels     *models.DeliveryChannels `json:"channels"`
	ExpiresAt    *time.Time               `json:"expiresAt"`
}

func NewNotificationHandler(service notificationApplicationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	page, limit := parsePageParams(c.Query("page"), c.Query("limit"))
	filter := repository.NotificationFilter(c.Query("filter", string(repository.FilterAll)))
	if !filter.Valid() {
		return badRequest(c, "filter must be one of all, unread, read, archived")
	}

	result, err := h.service.List(c.Context(), actor.ID, filter, page, limit)
	if err != nil {
		return mapServiceError(c, err)
	}

	return sendSuccess(c, fiber.StatusOK, fiber.Map{
		"notifications": result.Notifications,
		"pagination":    buildPaginationMeta(page, limit, result.Total),
		"unreadCount":   result.UnreadCount,
	})
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	count, err := h.service.UnreadCount(c.Context(), actor.ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, fiber.Map{"unreadCount": count})
}

func (h *NotificationHandler) Get(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification id")
	}

	notification, err := h.service.Get(c.Context(), actor.ID, id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, notification)
}

func (h *NotificationHandler) Update(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification id")
	}

	var req updateNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	notification, err := h.service.ApplyAction(c.Context(), actor.ID, id, req.Action)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, notification)
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification id")
	}

	if err := h.service.Delete(c.Context(), actor.ID, id); err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, fiber.Map{"id": id, "deleted": true})
}

func (h *NotificationHandler) Bulk(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req bulkNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.Bulk(c.Context(), actor.ID, req.Action, req.NotificationIDs)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, result)
}

func (h *NotificationHandler) Create(c *fiber.Ctx) error {
	if _, ok := actorFromLocals(c); !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req createNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.service.Create(c.Context(), services.CreateNotificationInput{
		Type:         models.NotificationType(req.Type),
		Title:        req.Title,
		Message:      req.Message,
		TargetUserID: uuid.MustParse(req.TargetUserID),
		Data:         req.Data,
		Priority:     models.NotificationPriority(req.Priority),
		Channels:     req.Channels,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusCreated, created)
}

// RegisterNotificationRoutes mounts the notification endpoints on router.
// Fixed segments are registered before /:id.
func RegisterNotificationRoutes(router fiber.Router, h *NotificationHandler) {
	router.Get("", h.List)
	router.Post("", h.Create)
	router.Get("/unread-count", h.UnreadCount)
	router.Patch("/bulk", h.Bulk)
	router.Get("/:id", h.Get)
	router.Patch("/:id", h.Update)
	router.Delete("/:id", h.Delete)
}
