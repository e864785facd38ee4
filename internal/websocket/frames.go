package chatws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	"github.com/google/uuid"
)

const (
	EventAddUser     = "add-user"
	EventSendMessage = "send-message"
	EventPing        = "ping"

	EventJoined  = "joined"
	EventMessage = "message"
	EventError   = "error"
	EventPong    = "pong"
)

type inboundFrame struct {
	Event      string `json:"event"`
	UserID     string `json:"userId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	Text       string `json:"text,omitempty"`
	PropertyID string `json:"propertyId,omitempty"`
	ClientRef  string `json:"clientRef,omitempty"`
}

// Frame is every server to client event on the live channel.
type Frame struct {
	Event          string              `json:"event"`
	UserID         string              `json:"userId,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
	Message        *models.ChatMessage `json:"message,omitempty"`
	ClientRef      string              `json:"clientRef,omitempty"`
	Code           string              `json:"code,omitempty"`
	Error          string              `json:"error,omitempty"`
	Timestamp      string              `json:"timestamp"`
}

// Envelope is a frame addressed to user rooms. It is what travels through
// the broker between instances.
type Envelope struct {
	Recipients []uuid.UUID `json:"recipients"`
	Frame      Frame       `json:"frame"`
}

func newFrame(event string) Frame {
	return Frame{Event: event, Timestamp: services.FormatChatTimestamp(time.Now())}
}

func messageFrame(delivery *services.ChatDelivery, clientRef string) Frame {
	frame := newFrame(EventMessage)
	frame.ConversationID = delivery.Message.ConversationID.String()
	frame.Message = delivery.Message
	frame.ClientRef = clientRef
	return frame
}

func errorFrame(code, message, clientRef string) Frame {
	frame := newFrame(EventError)
	frame.Code = code
	frame.Error = message
	frame.ClientRef = clientRef
	return frame
}

func encodeFrame(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}

// errorCode maps service errors to the stable codes sent in error frames.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, services.ErrSellerRestricted):
		return "seller_restricted", err.Error()
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid_input", err.Error()
	case errors.Is(err, services.ErrUserNotFound):
		return "user_not_found", "receiver not found"
	case errors.Is(err, services.ErrConversationNotFound):
		return "conversation_not_found", "conversation not found"
	default:
		return "internal_error", "failed to send message"
	}
}
