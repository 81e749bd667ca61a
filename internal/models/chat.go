package models

import "time"

type Conversation struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	CoachID    int64     `json:"coach_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChatMessage rows with a nil SenderID are system announcements (offer
// accepted, contract renewed, chat closed). OfferID links the message that
// renders an offer card back to the offer row.
type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       *int64    `json:"sender_id,omitempty"`
	Content        string    `json:"content"`
	IsSystem       bool      `json:"is_system"`
	OfferID        *int64    `json:"offer_id,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationSummary struct {
	Conversation
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
