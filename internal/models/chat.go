package models

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationBuyerAgent  ConversationType = "buyer_agent"
	ConversationAgentSeller ConversationType = "agent_seller"
	ConversationBuyerSeller ConversationType = "buyer_seller"
)

func (t ConversationType) Valid() bool {
	switch t {
	case ConversationBuyerAgent, ConversationAgentSeller, ConversationBuyerSeller:
		return true
	}
	return false
}

type LastMessage struct {
	Text     string    `json:"text"`
	SenderID uuid.UUID `json:"senderId"`
	SentAt   time.Time `json:"sentAt"`
}

type Conversation struct {
	ID           uuid.UUID         `json:"id"`
	Type         ConversationType  `json:"type"`
	Participants [2]uuid.UUID      `json:"participants"`
	PropertyID   string            `json:"propertyId,omitempty"`
	CreatedBy    uuid.UUID         `json:"createdBy"`
	LastMessage  *LastMessage      `json:"lastMessage,omitempty"`
	UnreadCounts map[uuid.UUID]int `json:"unreadCounts"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Counterparty returns the other participant, or uuid.Nil if userID is not
// part of the conversation.
func (c *Conversation) Counterparty(userID uuid.UUID) uuid.UUID {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return uuid.Nil
}

type ChatMessage struct {
	ID             int64      `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	ReceiverID     uuid.UUID  `json:"receiverId"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

type ConversationSummary struct {
	Conversation
	CounterpartyID uuid.UUID `json:"counterpartyId"`
	UnreadCount    int       `json:"unreadCount"`
}
