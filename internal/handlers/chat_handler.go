package handlers

import (
	"context"
	"strconv"

	"github.com/MuhammadKashif10/onlyif-backend/internal/middleware"
	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	chatws "github.com/MuhammadKashif10/onlyif-backend/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type chatApplicationService interface {
	ResolveConversation(ctx context.Context, actor services.Actor, counterpartyID uuid.UUID, propertyID string, requestedType models.ConversationType) (*models.Conversation, bool, error)
	ListConversations(ctx context.Context, actor services.Actor) ([]models.ConversationSummary, error)
	ConversationHistory(ctx context.Context, actor services.Actor, conversationID uuid.UUID, afterID int64, limit int) (*services.ChatHistory, error)
	CounterpartyHistory(ctx context.Context, actor services.Actor, counterpartyID uuid.UUID, propertyID string, afterID int64, limit int) (*services.ChatHistory, error)
	SendMessage(ctx context.Context, actor services.Actor, receiverID uuid.UUID, propertyID string, text string) (*services.ChatDelivery, error)
}

type ChatHandler struct {
	service chatApplicationService
	hub     *chatws.Hub
	baseCtx context.Context
}

type createConversationRequest struct {
	CounterpartyID string `json:"counterpartyId" validate:"required,uuid"`
	PropertyID     string `json:"propertyId" validate:"max=128"`
	Type           string `json:"type" validate:"omitempty,oneof=buyer_agent agent_seller buyer_seller"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required,uuid"`
	Text       string `json:"text" validate:"required,max=4000"`
	PropertyID string `json:"propertyId" validate:"max=128"`
}

// NewChatHandler builds the chat endpoints. baseCtx bounds the lifetime of
// live sockets.
func NewChatHandler(baseCtx context.Context, service chatApplicationService, hub *chatws.Hub) *ChatHandler {
	return &ChatHandler{
		service: service,
		hub:     hub,
		baseCtx: baseCtx,
	}
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req createConversationRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	conversation, created, err := h.service.ResolveConversation(
		c.Context(),
		actor,
		uuid.MustParse(req.CounterpartyID),
		req.PropertyID,
		models.ConversationType(req.Type),
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return sendSuccess(c, status, fiber.Map{"conversation": conversation, "created": created})
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	conversations, err := h.service.ListConversations(c.Context(), actor)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}
	afterID, ok := parseNonNegativeInt64(c.Query("afterId"))
	if !ok {
		return badRequest(c, "afterId must be a non-negative integer")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	history, err := h.service.ConversationHistory(c.Context(), actor, conversationID, afterID, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, history)
}

func (h *ChatHandler) GetCounterpartyMessages(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	counterpartyID, ok := parseUUIDParam(c, "counterpartyId")
	if !ok {
		return badRequest(c, "Invalid counterparty id")
	}
	afterID, ok := parseNonNegativeInt64(c.Query("afterId"))
	if !ok {
		return badRequest(c, "afterId must be a non-negative integer")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	history, err := h.service.CounterpartyHistory(c.Context(), actor, counterpartyID, c.Query("propertyId"), afterID, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return sendSuccess(c, fiber.StatusOK, history)
}

// SendMessage persists a message and then pushes it to both participants'
// live rooms.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actor, ok := actorFromLocals(c)
	if !ok {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req sendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	delivery, err := h.service.SendMessage(c.Context(), actor, uuid.MustParse(req.ReceiverID), req.PropertyID, req.Text)
	if err != nil {
		return mapServiceError(c, err)
	}

	// A failed publish leaves the message stored; receivers get it on resync.
	live := true
	if err := h.hub.Dispatch(c.Context(), "rest", delivery, ""); err != nil {
		logrus.WithError(err).WithField("message_id", delivery.Message.ID).Warn("live dispatch failed")
		live = false
	}

	return sendSuccess(c, fiber.StatusCreated, fiber.Map{
		"message":        delivery.Message,
		"conversationId": delivery.Conversation.ID,
		"live":           live,
	})
}

// WebSocketUpgrade rejects plain HTTP requests on the live channel route.
// It runs after middleware.QueryTokenAuth.
func (h *ChatHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return sendError(c, fiber.StatusUpgradeRequired, "WebSocket upgrade required")
	}
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, ok := conn.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok {
		_ = conn.Close()
		return
	}
	role, _ := conn.Locals(middleware.LocalRole).(string)

	client := chatws.NewClient(h.hub, conn, services.Actor{ID: userID, Role: role})
	client.Serve(h.baseCtx, h.service)
}
