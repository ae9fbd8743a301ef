// Package memory provides conversation history storage and the
// long-term memory service client.
package memory

import (
	"time"

	"github.com/kliniksehat/alicia/internal/llm"
)

// Conversation is a stored conversation with its messages.
type Conversation struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []llm.Message
}

// Store persists conversation history.
type Store interface {
	GetOrCreateConversation(id string) (*Conversation, error)
	AddMessage(conversationID string, msg llm.Message) error
	GetMessages(conversationID string) []llm.Message
	Clear(conversationID string) error
	Close() error
}
