// Package sessions tracks in-memory conversational state for active voice
// calls. Each session is keyed by the provider's call SID and holds the
// ordered transcript used to build context for the AI gateway.
package sessions

import (
	"sync"
	"time"
)

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single utterance in a call's conversation. Messages are
// immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is the minimal message shape passed to the AI gateway as
// conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session holds the conversational state for one call. All methods are safe
// for concurrent use; appends for the same call are serialized by the
// session's own lock so transcript order matches delivery order.
type Session struct {
	CallSID   string
	From      string
	To        string
	CreatedAt time.Time

	mu           sync.Mutex
	messages     []Message
	lastActivity time.Time
}

func newSession(callSID, from, to string, now time.Time) *Session {
	return &Session{
		CallSID:      callSID,
		From:         from,
		To:           to,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// Append adds a message with the current timestamp and refreshes the
// session's last-activity time. Appending to a session that has already been
// removed from the store is harmless; the session is simply unreachable.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	s.lastActivity = now
}

// History projects the message log to the shape the AI gateway expects.
// When excludeLast is true the most recently appended message is dropped,
// for callers that pass the latest user utterance separately as the prompt.
func (s *Session) History(excludeLast bool) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages)
	if excludeLast && n > 0 {
		n--
	}
	turns := make([]Turn, 0, n)
	for _, msg := range s.messages[:n] {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// Messages returns a copy of the full message log in insertion order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastActivity returns the time of the session's most recent mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}
