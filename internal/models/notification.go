package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewListing       NotificationType = "new_listing"
	NotificationNewProperty      NotificationType = "new_property"
	NotificationPriceDrop        NotificationType = "price_drop"
	NotificationSavedSearchMatch NotificationType = "saved_search_match"
	NotificationMarketUpdate     NotificationType = "market_update"
	NotificationViewingReminder  NotificationType = "viewing_reminder"
	NotificationOfferUpdate      NotificationType = "offer_update"
	NotificationDocumentRequired NotificationType = "document_required"
	NotificationSystemAlert      NotificationType = "system_alert"
	NotificationNewMessage       NotificationType = "new_message"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewListing, NotificationNewProperty, NotificationPriceDrop,
		NotificationSavedSearchMatch, NotificationMarketUpdate, NotificationViewingReminder,
		NotificationOfferUpdate, NotificationDocumentRequired, NotificationSystemAlert,
		NotificationNewMessage:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

func (p NotificationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type NotificationStatus string

const (
	StatusUnread   NotificationStatus = "unread"
	StatusRead     NotificationStatus = "read"
	StatusArchived NotificationStatus = "archived"
)

type NotificationData struct {
	PropertyID string         `json:"propertyId,omitempty"`
	SearchID   string         `json:"searchId,omitempty"`
	ActionURL  string         `json:"actionUrl,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

type DeliveryChannels struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	InApp bool `json:"inApp"`
}

type Notification struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"userId"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Priority  NotificationPriority `json:"priority"`
	Status    NotificationStatus   `json:"status"`
	Data      NotificationData     `json:"data"`
	Channels  DeliveryChannels     `json:"channels"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
}

// Expired reports whether the notification is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
