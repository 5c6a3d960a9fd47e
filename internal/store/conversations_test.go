// ABOUTME: Tests for the conversation store: canonical keys, append, read flags
// ABOUTME: Covers whitespace rejection, idempotent MarkRead, restart durability

package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSnapshot records SaveAll calls and keeps the last saved state.
type countingSnapshot struct {
	mu    sync.Mutex
	saves int
	last  map[string][]Message
	fail  bool
}

func (s *countingSnapshot) LoadAll() (map[string][]Message, error) {
	return make(map[string][]Message), nil
}

func (s *countingSnapshot) SaveAll(conversations map[string][]Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = conversations
	if s.fail {
		return assert.AnError
	}
	return nil
}

func (s *countingSnapshot) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestConversationKey_Canonical(t *testing.T) {
	assert.Equal(t, "alex_maria", ConversationKey("maria", "alex"))
	assert.Equal(t, "alex_maria", ConversationKey("alex", "maria"))
}

func TestAppend_HistorySymmetry(t *testing.T) {
	c, err := Open(&countingSnapshot{}, nil)
	require.NoError(t, err)

	_, ok := c.Append("alex", "maria", "hi")
	require.True(t, ok)
	_, ok = c.Append("maria", "alex", "hello back")
	require.True(t, ok)

	ab := c.History("alex", "maria")
	ba := c.History("maria", "alex")
	assert.Equal(t, ab, ba)
	require.Len(t, ab, 2)
	assert.Equal(t, "hi", ab[0].Text)
	assert.Equal(t, "hello back", ab[1].Text)
}

func TestAppend_RejectsWhitespaceOnlyText(t *testing.T) {
	snap := &countingSnapshot{}
	c, err := Open(snap, nil)
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\t", "\n  \n"} {
		_, ok := c.Append("alex", "maria", text)
		assert.False(t, ok, "text %q should be rejected", text)
	}

	assert.Empty(t, c.History("alex", "maria"))
	assert.Equal(t, 0, snap.saveCount())
}

func TestAppend_TrimsText(t *testing.T) {
	c, err := Open(&countingSnapshot{}, nil)
	require.NoError(t, err)

	msg, ok := c.Append("alex", "maria", "  hi there \n")
	require.True(t, ok)
	assert.Equal(t, "hi there", msg.Text)
}

func TestAppend_IDsStrictlyIncrease(t *testing.T) {
	c, err := Open(&countingSnapshot{}, nil)
	require.NoError(t, err)

	var prev int64
	for i := 0; i < 50; i++ {
		msg, ok := c.Append("alex", "maria", "msg")
		require.True(t, ok)
		assert.Greater(t, msg.ID, prev)
		prev = msg.ID
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	snap := &countingSnapshot{}
	c, err := Open(snap, nil)
	require.NoError(t, err)

	msg, ok := c.Append("alex", "maria", "hi")
	require.True(t, ok)
	savesAfterAppend := snap.saveCount()

	require.True(t, c.MarkRead("maria", "alex", msg.ID))
	assert.Equal(t, savesAfterAppend+1, snap.saveCount())

	// Second call finds the message but changes nothing, so no new save.
	require.True(t, c.MarkRead("maria", "alex", msg.ID))
	assert.Equal(t, savesAfterAppend+1, snap.saveCount())

	history := c.History("alex", "maria")
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)
}

func TestMarkRead_UnknownMessage(t *testing.T) {
	snap := &countingSnapshot{}
	c, err := Open(snap, nil)
	require.NoError(t, err)

	assert.False(t, c.MarkRead("alex", "maria", 12345))
	assert.Equal(t, 0, snap.saveCount())
}

func TestAppend_KeepsMemoryOnPersistFailure(t *testing.T) {
	snap := &countingSnapshot{fail: true}
	c, err := Open(snap, nil)
	require.NoError(t, err)

	_, ok := c.Append("alex", "maria", "hi")
	require.True(t, ok)

	// Durability failed but the mutation is still visible.
	assert.Len(t, c.History("alex", "maria"), 1)
}

func TestHistory_ReturnsCopy(t *testing.T) {
	c, err := Open(&countingSnapshot{}, nil)
	require.NoError(t, err)

	msg, ok := c.Append("alex", "maria", "hi")
	require.True(t, ok)

	h := c.History("alex", "maria")
	h[0].Text = "mutated"

	require.True(t, c.MarkRead("maria", "alex", msg.ID))
	assert.Equal(t, "hi", c.History("alex", "maria")[0].Text)
}

func TestFileSnapshot_RestartDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "messages.json")

	snap, err := NewFileSnapshot(path)
	require.NoError(t, err)
	c, err := Open(snap, nil)
	require.NoError(t, err)

	var ids []int64
	pairs := [][2]string{{"alex", "maria"}, {"alex", "demo"}, {"maria", "artem"}}
	for _, pair := range pairs {
		for _, text := range []string{"first", "second", "third"} {
			msg, ok := c.Append(pair[0], pair[1], text)
			require.True(t, ok)
			ids = append(ids, msg.ID)
		}
	}
	require.True(t, c.MarkRead("maria", "alex", ids[0]))

	before := make(map[string][]Message)
	for _, pair := range pairs {
		before[ConversationKey(pair[0], pair[1])] = c.History(pair[0], pair[1])
	}

	// Reload from disk into a fresh store.
	snap2, err := NewFileSnapshot(path)
	require.NoError(t, err)
	reloaded, err := Open(snap2, nil)
	require.NoError(t, err)

	for key, messages := range before {
		parts := [2]string{messages[0].Sender, messages[0].Receiver}
		assert.Equal(t, messages, reloaded.History(parts[0], parts[1]), "conversation %s", key)
	}

	// New IDs must continue increasing past the reloaded maximum.
	msg, ok := reloaded.Append("alex", "maria", "after restart")
	require.True(t, ok)
	assert.Greater(t, msg.ID, ids[len(ids)-1])
}

func TestFileSnapshot_LoadMissingFile(t *testing.T) {
	snap, err := NewFileSnapshot(filepath.Join(t.TempDir(), "messages.json"))
	require.NoError(t, err)

	conversations, err := snap.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestConversations_ConcurrentAppend(t *testing.T) {
	snap := &countingSnapshot{}
	c, err := Open(snap, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c.Append("alex", "maria", "concurrent")
			}
		}()
	}
	wg.Wait()

	history := c.History("alex", "maria")
	require.Len(t, history, 200)

	seen := make(map[int64]bool, len(history))
	for _, m := range history {
		assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
		seen[m.ID] = true
	}
}
