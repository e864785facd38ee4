package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxPropertyIDLength = 128
	maxChatTextLength   = 4000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Actor is the authenticated caller, taken from the verified bearer token.
type Actor struct {
	ID   uuid.UUID
	Role string
}

type conversationStore interface {
	CreateOrGet(ctx context.Context, input repository.CreateConversationInput) (*models.Conversation, bool, error)
	GetByParticipants(ctx context.Context, first uuid.UUID, second uuid.UUID, propertyID string) (*models.Conversation, error)
	GetByIDForParticipant(ctx context.Context, conversationID uuid.UUID, participantID uuid.UUID) (*models.Conversation, error)
	ListForParticipant(ctx context.Context, participantID uuid.UUID) ([]models.ConversationSummary, error)
}

type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo conversationStore
	userRepo         userReader
	restrictedMode   bool
}

type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.ChatMessage
}

type ChatHistory struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.ChatMessage `json:"messages"`
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo conversationStore,
	userRepo userReader,
	restrictedMode bool,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		restrictedMode:   restrictedMode,
	}
}

// ConversationTypeFor derives the conversation type from the two
// participants' roles. ok is false for pairings that cannot chat.
func ConversationTypeFor(roleA, roleB string) (models.ConversationType, bool) {
	pair := map[string]bool{roleA: true, roleB: true}
	switch {
	case roleA == roleB:
		return "", false
	case pair[models.RoleBuyer] && pair[models.RoleAgent]:
		return models.ConversationBuyerAgent, true
	case pair[models.RoleAgent] && pair[models.RoleSeller]:
		return models.ConversationAgentSeller, true
	case pair[models.RoleBuyer] && pair[models.RoleSeller]:
		return models.ConversationBuyerSeller, true
	}
	return "", false
}

func normalizePropertyID(raw string) (string, error) {
	propertyID := strings.TrimSpace(raw)
	if utf8.RuneCountInString(propertyID) > maxPropertyIDLength {
		return "", fmt.Errorf("%w: propertyId is too long", ErrInvalidInput)
	}
	return propertyID, nil
}

// ResolveConversation returns the conversation between actor and
// counterparty for propertyID, creating it on first contact. created reports
// whether this call created it.
func (s *ChatService) ResolveConversation(
	ctx context.Context,
	actor Actor,
	counterpartyID uuid.UUID,
	rawPropertyID string,
	requestedType models.ConversationType,
) (conversation *models.Conversation, created bool, err error) {
	if counterpartyID == uuid.Nil || counterpartyID == actor.ID {
		return nil, false, fmt.Errorf("%w: counterpartyId must reference another user", ErrInvalidInput)
	}
	if requestedType != "" && !requestedType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown conversation type %q", ErrInvalidInput, requestedType)
	}
	propertyID, err := normalizePropertyID(rawPropertyID)
	if err != nil {
		return nil, false, err
	}

	counterparty, err := s.userRepo.GetByID(ctx, counterpartyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}
	if !counterparty.IsActive {
		return nil, false, ErrUserNotFound
	}

	conversationType, ok := ConversationTypeFor(actor.Role, counterparty.Role)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s cannot message %s", ErrInvalidInput, actor.Role, counterparty.Role)
	}
	if requestedType != "" && requestedType != conversationType {
		return nil, false, fmt.Errorf("%w: conversation type %s does not match participants (%s)", ErrInvalidInput, requestedType, conversationType)
	}

	existing, err := s.conversationRepo.GetByParticipants(ctx, actor.ID, counterpartyID, propertyID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	if s.restrictedMode && actor.Role == models.RoleSeller {
		return nil, false, ErrSellerRestricted
	}

	return s.conversationRepo.CreateOrGet(ctx, repository.CreateConversationInput{
		Type:       conversationType,
		CreatedBy:  actor.ID,
		OtherID:    counterpartyID,
		PropertyID: propertyID,
	})
}

func (s *ChatService) ListConversations(ctx context.Context, actor Actor) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListForParticipant(ctx, actor.ID)
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// ConversationHistory returns messages after afterID and marks the actor's
// inbound messages in the conversation as read.
func (s *ChatService) ConversationHistory(
	ctx context.Context,
	actor Actor,
	conversationID uuid.UUID,
	afterID int64,
	limit int,
) (*ChatHistory, error) {
	if conversationID == uuid.Nil || afterID < 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	messages, err := s.readMessages(ctx, conversation.ID, actor.ID, afterID, clampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	if conversation.UnreadCounts != nil {
		conversation.UnreadCounts[actor.ID] = 0
	}

	return &ChatHistory{Conversation: conversation, Messages: messages}, nil
}

// CounterpartyHistory is ConversationHistory keyed by the other participant.
// A pair that never talked yields an empty history and a nil conversation.
func (s *ChatService) CounterpartyHistory(
	ctx context.Context,
	actor Actor,
	counterpartyID uuid.UUID,
	rawPropertyID string,
	afterID int64,
	limit int,
) (*ChatHistory, error) {
	if counterpartyID == uuid.Nil || counterpartyID == actor.ID || afterID < 0 {
		return nil, ErrInvalidInput
	}
	propertyID, err := normalizePropertyID(rawPropertyID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.GetByParticipants(ctx, actor.ID, counterpartyID, propertyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ChatHistory{Messages: []models.ChatMessage{}}, nil
		}
		return nil, err
	}

	return s.ConversationHistory(ctx, actor, conversation.ID, afterID, limit)
}

func (s *ChatService) readMessages(
	ctx context.Context,
	conversationID uuid.UUID,
	readerID uuid.UUID,
	afterID int64,
	limit int,
) ([]models.ChatMessage, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	messages, err := txMessageRepo.ListAfter(ctx, conversationID, afterID, limit)
	if err != nil {
		return nil, err
	}
	if err := txMessageRepo.MarkConversationRead(ctx, conversationID, readerID); err != nil {
		return nil, err
	}
	if err := txConversationRepo.ResetUnread(ctx, conversationID, readerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range messages {
		if messages[i].ReceiverID == readerID && messages[i].ReadAt == nil {
			messages[i].ReadAt = &now
		}
	}
	return messages, nil
}

// SendMessage persists text from actor to receiverID. An existing
// conversation accepts replies from either side; a first message goes through
// ResolveConversation and its seller restriction.
func (s *ChatService) SendMessage(
	ctx context.Context,
	actor Actor,
	receiverID uuid.UUID,
	rawPropertyID string,
	text string,
) (*ChatDelivery, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxChatTextLength {
		return nil, fmt.Errorf("%w: text must be 1-%d characters", ErrInvalidInput, maxChatTextLength)
	}
	if receiverID == uuid.Nil || receiverID == actor.ID {
		return nil, fmt.Errorf("%w: receiverId must reference another user", ErrInvalidInput)
	}
	propertyID, err := normalizePropertyID(rawPropertyID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.GetByParticipants(ctx, actor.ID, receiverID, propertyID)
	if errors.Is(err, pgx.ErrNoRows) {
		conversation, _, err = s.ResolveConversation(ctx, actor, receiverID, propertyID, "")
	}
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(ctx, conversation.ID, actor.ID, receiverID, trimmed)
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.RecordMessage(ctx, message); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	conversation.LastMessage = &models.LastMessage{
		Text:     message.Text,
		SenderID: message.SenderID,
		SentAt:   message.CreatedAt,
	}
	if conversation.UnreadCounts != nil {
		conversation.UnreadCounts[receiverID]++
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
	}, nil
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
