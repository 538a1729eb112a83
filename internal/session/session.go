package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation entry. ToolCallID links a tool result back
// to the assistant turn that requested it.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().Unix()}
}

// Session is a conversation with its ordered message history.
type Session struct {
	ID            string    `json:"session_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Messages      []Message `json:"messages"`
	CreatedAt     int64     `json:"created_at"`
	UpdatedAt     int64     `json:"updated_at"`
}

// New creates an empty session, optionally bound to a wallet address.
func New(walletAddress string) *Session {
	now := time.Now().Unix()
	return &Session{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Messages:      []Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Append adds messages in order, dropping the oldest entries once the history
// exceeds maxMessages. A non-positive maxMessages means unbounded.
func (s *Session) Append(maxMessages int, msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	if maxMessages > 0 && len(s.Messages) > maxMessages {
		overflow := len(s.Messages) - maxMessages
		s.Messages = append(s.Messages[:0:0], s.Messages[overflow:]...)
	}
	s.UpdatedAt = time.Now().Unix()
}
