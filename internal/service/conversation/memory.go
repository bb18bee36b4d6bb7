package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// MemoryStore keeps conversations in process memory. Everything is lost on
// restart, after which clients holding old tokens get a new conversation.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]coach.Message
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]coach.Message),
	}
}

func (s *MemoryStore) Create(_ context.Context, userID string) (Conversation, error) {
	if userID == "" {
		return Conversation{}, ErrUserRequired
	}

	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]coach.Message, 0, 16)
	s.mu.Unlock()

	return conv, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, msg coach.Message) (coach.Message, error) {
	if err := validate(msg); err != nil {
		return coach.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return coach.Message{}, ErrConversationNotFound
	}

	msg.ID = uuid.NewString()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

func (s *MemoryStore) Messages(_ context.Context, conversationID string, limit int) ([]coach.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	messages = tail(messages, limit)
	copied := make([]coach.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Len reports how many conversations are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
