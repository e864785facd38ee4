package repository

import (
	"context"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/google/uuid"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type CreateConversationInput struct {
	Type       models.ConversationType
	CreatedBy  uuid.UUID
	OtherID    uuid.UUID
	PropertyID string
}

const conversationColumns = `
	id, type, participant_a, participant_b, property_id, created_by,
	last_message_text, last_message_at, last_message_sender_id,
	unread_a, unread_b, created_at, updated_at
`

func scanConversation(row rowScanner, extra ...any) (*models.Conversation, error) {
	var conversation models.Conversation
	var lastText *string
	var lastAt *time.Time
	var lastSender *uuid.UUID
	var unreadA, unreadB int

	dest := []any{
		&conversation.ID,
		&conversation.Type,
		&conversation.Participants[0],
		&conversation.Participants[1],
		&conversation.PropertyID,
		&conversation.CreatedBy,
		&lastText,
		&lastAt,
		&lastSender,
		&unreadA,
		&unreadB,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if lastText != nil && lastAt != nil && lastSender != nil {
		conversation.LastMessage = &models.LastMessage{
			Text:     *lastText,
			SenderID: *lastSender,
			SentAt:   *lastAt,
		}
	}
	conversation.UnreadCounts = map[uuid.UUID]int{
		conversation.Participants[0]: unreadA,
		conversation.Participants[1]: unreadB,
	}

	return &conversation, nil
}

// CreateOrGet inserts the conversation for the participant pair and property,
// or returns the existing one. created reports whether this call inserted it.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	input CreateConversationInput,
) (conversation *models.Conversation, created bool, err error) {
	a, b := OrderPair(input.CreatedBy, input.OtherID)

	query := `
		INSERT INTO conversations (type, participant_a, participant_b, property_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_a, participant_b, property_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns + `, (xmax = 0)`

	conversation, err = scanConversation(
		r.db.QueryRow(ctx, query, string(input.Type), a, b, input.PropertyID, input.CreatedBy),
		&created,
	)
	if err != nil {
		return nil, false, err
	}
	return conversation, created, nil
}

func (r *ConversationRepository) GetByParticipants(
	ctx context.Context,
	first uuid.UUID,
	second uuid.UUID,
	propertyID string,
) (*models.Conversation, error) {
	a, b := OrderPair(first, second)

	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = $1 AND participant_b = $2 AND property_id = $3`

	return scanConversation(r.db.QueryRow(ctx, query, a, b, propertyID))
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID uuid.UUID,
	participantID uuid.UUID,
) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND (participant_a = $2 OR participant_b = $2)`

	return scanConversation(r.db.QueryRow(ctx, query, conversationID, participantID))
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID uuid.UUID,
) ([]models.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY COALESCE(last_message_at, updated_at, created_at) DESC, id DESC`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{
			Conversation:   *conversation,
			CounterpartyID: conversation.Counterparty(participantID),
			UnreadCount:    conversation.UnreadCounts[participantID],
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// RecordMessage stores the last message summary and bumps the receiver's
// unread counter.
func (r *ConversationRepository) RecordMessage(ctx context.Context, message *models.ChatMessage) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_at = $3,
		    last_message_sender_id = $4,
		    unread_a = unread_a + CASE WHEN participant_a = $5 THEN 1 ELSE 0 END,
		    unread_b = unread_b + CASE WHEN participant_b = $5 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1
	`, message.ConversationID, message.Text, message.CreatedAt, message.SenderID, message.ReceiverID)
	return err
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, readerID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
		    unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1
	`, conversationID, readerID)
	return err
}
