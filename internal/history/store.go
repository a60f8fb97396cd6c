// Package history persists per-conversation chat transcripts. State is keyed
// by an explicit conversation ID passed with each request — no module-level
// lookup tables. The window handed to the LLM is bounded; the stores keep the
// full transcript.
package history

import (
	"context"
	"time"
)

// Message is one turn in a conversation.
type Message struct {
	Role      string // user, assistant
	Content   string
	CreatedAt time.Time
}

// Store persists conversation turns.
type Store interface {
	// Append records one turn at the end of a conversation.
	Append(ctx context.Context, conversationID string, msg Message) error
	// Recent returns up to limit most recent turns in chronological order.
	Recent(ctx context.Context, conversationID string, limit int) ([]Message, error)
	Close() error
}
