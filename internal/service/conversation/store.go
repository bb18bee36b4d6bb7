// Package conversation persists the server side of coach sessions: one
// conversation per session token, holding ordered user/assistant messages.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

var (
	ErrUserRequired         = errors.New("user id is required")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessage       = errors.New("message needs a valid role and content")
)

// Conversation is the row a session token points at.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is implemented by MemoryStore and GormStore.
type Store interface {
	Create(ctx context.Context, userID string) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	// Append stores msg, assigning its ID and, when zero, its timestamp.
	Append(ctx context.Context, conversationID string, msg coach.Message) (coach.Message, error)
	// Messages returns the transcript in append order; limit <= 0 means all,
	// otherwise only the most recent limit messages.
	Messages(ctx context.Context, conversationID string, limit int) ([]coach.Message, error)
}

func validate(msg coach.Message) error {
	if !msg.Role.Valid() || msg.Content == "" {
		return ErrInvalidMessage
	}
	return nil
}

func tail(messages []coach.Message, limit int) []coach.Message {
	if limit > 0 && len(messages) > limit {
		return messages[len(messages)-limit:]
	}
	return messages
}
