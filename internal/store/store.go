// ABOUTME: Core types for conversation persistence: Message, canonical keys, Snapshot interface
// ABOUTME: A Snapshot holds every conversation and is rewritten in full on each mutation

package store

import (
	"sort"
	"strings"
)

// Message is a single chat message between two identities. Messages are
// immutable once appended except for the Read flag, which flips false->true
// exactly once.
type Message struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	Read      bool   `json:"read"`
}

// ConversationKey canonicalizes an unordered pair of identities so that
// (a, b) and (b, a) address the same conversation.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// Snapshot is the narrow persistence boundary for conversation history.
// Implementations load and store the complete conversation map keyed by
// canonical pair string. Keeping the interface this small lets the
// full-rewrite file backend be swapped for an append-only log later without
// touching Conversations.
type Snapshot interface {
	LoadAll() (map[string][]Message, error)
	SaveAll(conversations map[string][]Message) error
}
