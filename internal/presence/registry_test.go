// ABOUTME: Tests for the presence registry
// ABOUTME: Covers last-connect-wins, the stale-disconnect guard, and snapshot merging

package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/directory"
)

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Deliver(payload []byte) bool { return !h.closed }
func (h *fakeHandle) Close()                      { h.closed = true }

type fakeUsers struct {
	users   []directory.User
	touched map[string]time.Time
}

func (f *fakeUsers) All(ctx context.Context) ([]directory.User, error) {
	return f.users, nil
}

func (f *fakeUsers) Touch(ctx context.Context, username string, lastSeen time.Time) error {
	if f.touched == nil {
		f.touched = make(map[string]time.Time)
	}
	f.touched[username] = lastSeen
	return nil
}

func TestConnect_LastConnectWins(t *testing.T) {
	r := NewRegistry(&fakeUsers{}, nil)
	ctx := context.Background()

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}

	superseded, wasOnline := r.Connect(ctx, "alex", h1)
	assert.Nil(t, superseded)
	assert.False(t, wasOnline)

	superseded, wasOnline = r.Connect(ctx, "alex", h2)
	assert.Same(t, h1, superseded)
	assert.True(t, wasOnline)

	current, ok := r.Get("alex")
	require.True(t, ok)
	assert.Same(t, h2, current)
}

func TestDisconnect_StaleHandleGuard(t *testing.T) {
	r := NewRegistry(&fakeUsers{}, nil)
	ctx := context.Background()

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}

	r.Connect(ctx, "alex", h1)
	r.Connect(ctx, "alex", h2)

	// The superseded connection closing must not mark alex offline.
	assert.False(t, r.Disconnect(ctx, "alex", h1))
	assert.True(t, r.IsOnline("alex"))

	assert.True(t, r.Disconnect(ctx, "alex", h2))
	assert.False(t, r.IsOnline("alex"))
}

func TestDisconnect_UnknownIdentity(t *testing.T) {
	r := NewRegistry(&fakeUsers{}, nil)
	assert.False(t, r.Disconnect(context.Background(), "ghost", &fakeHandle{}))
}

func TestSnapshot_MergesDirectoryAndRegistry(t *testing.T) {
	seen := time.Now().Add(-time.Hour)
	users := &fakeUsers{users: []directory.User{
		{Username: "maria", LastSeen: seen},
		{Username: "demo", LastSeen: seen},
	}}
	r := NewRegistry(users, nil)
	ctx := context.Background()

	r.Connect(ctx, "maria", &fakeHandle{})
	r.Connect(ctx, "zoe", &fakeHandle{}) // online but not in the directory

	snapshot := r.Snapshot(ctx)
	require.Len(t, snapshot, 3)

	// Sorted by username.
	assert.Equal(t, "demo", snapshot[0].Username)
	assert.Equal(t, "maria", snapshot[1].Username)
	assert.Equal(t, "zoe", snapshot[2].Username)

	assert.False(t, snapshot[0].Online)
	assert.Equal(t, seen.UnixMilli(), snapshot[0].LastSeen)

	assert.True(t, snapshot[1].Online)
	assert.Greater(t, snapshot[1].LastSeen, seen.UnixMilli(), "connect must refresh lastSeen")

	assert.True(t, snapshot[2].Online)
}

func TestTransitions_TouchDirectory(t *testing.T) {
	users := &fakeUsers{}
	r := NewRegistry(users, nil)
	ctx := context.Background()

	h := &fakeHandle{}
	r.Connect(ctx, "alex", h)
	require.Contains(t, users.touched, "alex")
	connectSeen := users.touched["alex"]

	r.Disconnect(ctx, "alex", h)
	assert.False(t, users.touched["alex"].Before(connectSeen))
}

func TestHandles_Snapshot(t *testing.T) {
	r := NewRegistry(&fakeUsers{}, nil)
	ctx := context.Background()

	r.Connect(ctx, "alex", &fakeHandle{})
	r.Connect(ctx, "maria", &fakeHandle{})

	assert.Len(t, r.Handles(), 2)
}
