package repository

import (
	"context"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID uuid.UUID,
	senderID uuid.UUID,
	receiverID uuid.UUID,
	text string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, sender_id, receiver_id, body, created_at, read_at
	`

	var message models.ChatMessage
	err := r.db.QueryRow(ctx, query, conversationID, senderID, receiverID, text).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Text,
		&message.CreatedAt,
		&message.ReadAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListAfter returns up to limit messages with an id greater than afterID in
// ascending order. afterID 0 starts from the beginning of the conversation.
func (r *MessageRepository) ListAfter(
	ctx context.Context,
	conversationID uuid.UUID,
	afterID int64,
	limit int,
) ([]models.ChatMessage, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.ReceiverID,
			&message.Text,
			&message.CreatedAt,
			&message.ReadAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID uuid.UUID,
	readerID uuid.UUID,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read_at = NOW()
		WHERE conversation_id = $1
		  AND receiver_id = $2
		  AND read_at IS NULL
	`, conversationID, readerID)
	return err
}
