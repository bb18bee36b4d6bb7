package coach

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two roles a transcript may hold.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable entry of a conversation transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// Greeting seeds every fresh widget session.
	Greeting = "Hi! I'm your Coach. Ask me anything about your uploads, or hold a conversation by voice."

	// FallbackReply replaces the assistant turn when no reply could be obtained.
	FallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)
