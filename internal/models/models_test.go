package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNotificationTypeValid(t *testing.T) {
	if !NotificationPriceDrop.Valid() || !NotificationNewMessage.Valid() {
		t.Fatal("expected known notification types to be valid")
	}
	if NotificationType("promo_blast").Valid() {
		t.Fatal("expected unknown notification type to be invalid")
	}
}

func TestNotificationExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"past", &past, true},
		{"exactly now", &now, true},
		{"future", &future, false},
	}
	for _, tc := range cases {
		n := Notification{ExpiresAt: tc.expiresAt}
		if got := n.Expired(now); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestConversationCounterparty(t *testing.T) {
	a, b, stranger := uuid.New(), uuid.New(), uuid.New()
	conv := Conversation{Participants: [2]uuid.UUID{a, b}}

	if conv.Counterparty(a) != b || conv.Counterparty(b) != a {
		t.Fatal("expected participants to resolve to each other")
	}
	if conv.Counterparty(stranger) != uuid.Nil {
		t.Fatal("expected uuid.Nil for non participant")
	}
	if conv.HasParticipant(stranger) {
		t.Fatal("stranger must not be a participant")
	}
}
