// Package session holds the widget's conversation state: an append-only
// message log and the server-issued session token.
package session

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// Manager owns the transcript and token for one widget instance. It has no
// teardown; a new Manager is a new session.
type Manager struct {
	mu       sync.RWMutex
	token    string
	hasToken bool
	messages []coach.Message
	now      func() time.Time
}

// New starts a session whose transcript holds a single assistant greeting.
func New(greeting string) *Manager {
	m := &Manager{
		messages: make([]coach.Message, 0, 16),
		now:      time.Now,
	}
	m.append(coach.RoleAssistant, greeting)
	return m
}

// AppendUserTurn records a user utterance and returns the stored message.
func (m *Manager) AppendUserTurn(text string) coach.Message {
	return m.append(coach.RoleUser, text)
}

// AppendAssistantTurn records an assistant reply and returns the stored message.
func (m *Manager) AppendAssistantTurn(text string) coach.Message {
	return m.append(coach.RoleAssistant, text)
}

func (m *Manager) append(role coach.Role, text string) coach.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := coach.Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   text,
		Timestamp: m.now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return msg
}

// AdoptSessionToken stores token if no token is held yet. Later tokens are
// ignored, so adoption is idempotent regardless of call order. It reports
// whether token became the held token.
func (m *Manager) AdoptSessionToken(token string) bool {
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasToken {
		return false
	}
	m.token = token
	m.hasToken = true
	return true
}

// SessionToken returns the held token, if any.
func (m *Manager) SessionToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.hasToken
}

// Messages returns a copy of the transcript in append order.
func (m *Manager) Messages() []coach.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := make([]coach.Message, len(m.messages))
	copy(copied, m.messages)
	return copied
}

// Len returns the number of messages in the transcript.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func newMessageID() string {
	id, err := gonanoid.New()
	if err != nil {
		// only fails when crypto/rand is unavailable
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id
}
