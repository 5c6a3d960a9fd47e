// ABOUTME: In-memory conversation store with synchronous full-snapshot persistence
// ABOUTME: Owns all message history; mutation is serialized behind a single mutex

package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Conversations owns every conversation keyed by canonical pair string.
// All mutation goes through Append and MarkRead; concurrent callers are
// serialized by an internal mutex. Persistence is best-effort: a failed save
// is logged and the in-memory state keeps the mutation.
type Conversations struct {
	mu     sync.Mutex
	byKey  map[string][]Message
	lastID int64

	// persistMu serializes snapshot writes. The snapshot copy is taken while
	// holding persistMu so a later mutation can never be overwritten by an
	// earlier, staler copy.
	persistMu sync.Mutex

	snap   Snapshot
	logger *slog.Logger
}

// Open loads all conversations from the snapshot backend.
func Open(snap Snapshot, logger *slog.Logger) (*Conversations, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byKey, err := snap.LoadAll()
	if err != nil {
		return nil, err
	}

	var lastID int64
	for _, messages := range byKey {
		for _, m := range messages {
			if m.ID > lastID {
				lastID = m.ID
			}
		}
	}

	c := &Conversations{
		byKey:  byKey,
		lastID: lastID,
		snap:   snap,
		logger: logger.With("component", "store"),
	}
	c.logger.Info("conversation store loaded", "conversations", len(byKey))
	return c, nil
}

// Append records a message from sender to receiver. Whitespace-only text is
// rejected: no message is created and ok is false. The message ID is
// millisecond-based and strictly increasing within the process. The full
// store is persisted before Append returns.
func (c *Conversations) Append(sender, receiver, text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}

	now := time.Now().UnixMilli()

	c.mu.Lock()
	id := now
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id

	msg := Message{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: now,
		Read:      false,
	}

	key := ConversationKey(sender, receiver)
	c.byKey[key] = append(c.byKey[key], msg)
	c.mu.Unlock()

	c.persist()
	return msg, true
}

// History returns the full conversation between a and b in insertion order,
// or an empty slice if the pair has no history. The returned slice is a copy.
func (c *Conversations) History(a, b string) []Message {
	key := ConversationKey(a, b)

	c.mu.Lock()
	defer c.mu.Unlock()

	messages := c.byKey[key]
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// MarkRead flips the read flag of the identified message in the conversation
// between owner and counterpart. It reports whether the message was found.
// The snapshot is persisted only when the flag actually changed, so repeated
// calls for the same message are no-ops.
func (c *Conversations) MarkRead(owner, counterpart string, messageID int64) bool {
	key := ConversationKey(owner, counterpart)

	c.mu.Lock()
	found := false
	changed := false
	messages := c.byKey[key]
	for i := range messages {
		if messages[i].ID == messageID {
			found = true
			if !messages[i].Read {
				messages[i].Read = true
				changed = true
			}
			break
		}
	}
	c.mu.Unlock()

	if changed {
		c.persist()
	}
	return found
}

// Flush writes the current state to the snapshot backend. Used on shutdown.
func (c *Conversations) Flush() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	return c.snap.SaveAll(c.copyAll())
}

// persist saves a consistent copy of the store. The in-memory lock is not
// held across the I/O; persistMu keeps concurrent saves ordered.
func (c *Conversations) persist() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if err := c.snap.SaveAll(c.copyAll()); err != nil {
		c.logger.Error("persisting conversations failed, in-memory state retained", "error", err)
	}
}

// copyAll takes a deep copy of the conversation map under the in-memory lock.
func (c *Conversations) copyAll() map[string][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]Message, len(c.byKey))
	for key, messages := range c.byKey {
		cp := make([]Message, len(messages))
		copy(cp, messages)
		out[key] = cp
	}
	return out
}
