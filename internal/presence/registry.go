// ABOUTME: Tracks which identities currently hold a live connection handle
// ABOUTME: Single source of truth for online status and lastSeen timestamps

package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/directory"
)

// Handle is a live connection that events can be written to. Deliver must not
// block: it reports false when the connection is closed or its outbound queue
// is full.
type Handle interface {
	Deliver(payload []byte) bool
	Close()
}

// UserSource supplies the known identities that have no current connection,
// so snapshots can include offline users. Implemented by directory.Store.
type UserSource interface {
	All(ctx context.Context) ([]directory.User, error)
	Touch(ctx context.Context, username string, lastSeen time.Time) error
}

// UserPresence is one entry of a presence snapshot in wire shape.
type UserPresence struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen"` // epoch milliseconds
}

// Registry maps identities to their live connection handles. At most one
// handle is registered per identity at any instant; a later Connect for the
// same identity supersedes the earlier handle.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Handle
	lastSeen map[string]int64 // identities seen this process, epoch ms

	users  UserSource
	logger *slog.Logger
}

// NewRegistry creates a Registry backed by the given user source.
func NewRegistry(users UserSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:    make(map[string]Handle),
		lastSeen: make(map[string]int64),
		users:    users,
		logger:   logger.With("component", "presence"),
	}
}

// Connect registers handle as the live connection for identity. Any prior
// handle is superseded and returned so the caller can close it; wasOnline
// reports whether such a handle existed. lastSeen is updated.
func (r *Registry) Connect(ctx context.Context, identity string, handle Handle) (superseded Handle, wasOnline bool) {
	now := time.Now()

	r.mu.Lock()
	superseded, wasOnline = r.conns[identity]
	r.conns[identity] = handle
	r.lastSeen[identity] = now.UnixMilli()
	total := len(r.conns)
	r.mu.Unlock()

	r.touch(ctx, identity, now)
	r.logger.Info("identity connected",
		"identity", identity,
		"superseded", wasOnline,
		"online", total,
	)
	return superseded, wasOnline
}

// Disconnect removes the mapping for identity only if the registered handle
// is still the one disconnecting, guarding against a stale disconnect from a
// superseded connection clearing a newer one. It reports whether the mapping
// was removed. lastSeen is updated either way.
func (r *Registry) Disconnect(ctx context.Context, identity string, handle Handle) bool {
	now := time.Now()

	r.mu.Lock()
	current, ok := r.conns[identity]
	removed := ok && current == handle
	if removed {
		delete(r.conns, identity)
	}
	r.lastSeen[identity] = now.UnixMilli()
	total := len(r.conns)
	r.mu.Unlock()

	r.touch(ctx, identity, now)
	if removed {
		r.logger.Info("identity disconnected", "identity", identity, "online", total)
	} else {
		r.logger.Debug("stale disconnect ignored", "identity", identity)
	}
	return removed
}

// IsOnline reports whether identity currently has a live connection.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[identity]
	return ok
}

// Get returns the live handle for identity, if any.
func (r *Registry) Get(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[identity]
	return h, ok
}

// Handles returns a snapshot of all live connection handles. The copy lets
// callers write to connections without holding the registry lock.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.conns))
	for _, h := range r.conns {
		handles = append(handles, h)
	}
	return handles
}

// Snapshot returns presence for every known identity, sorted by username.
// Online identities come from the registry; offline ones are seeded from the
// user source. An error from the user source degrades the snapshot to online
// identities only.
func (r *Registry) Snapshot(ctx context.Context) []UserPresence {
	byName := make(map[string]*UserPresence)

	users, err := r.users.All(ctx)
	if err != nil {
		r.logger.Error("listing directory for snapshot", "error", err)
	}
	for _, u := range users {
		byName[u.Username] = &UserPresence{
			Username: u.Username,
			LastSeen: u.LastSeen.UnixMilli(),
		}
	}

	r.mu.RLock()
	for identity, seen := range r.lastSeen {
		entry, ok := byName[identity]
		if !ok {
			entry = &UserPresence{Username: identity}
			byName[identity] = entry
		}
		entry.LastSeen = seen
	}
	for identity := range r.conns {
		entry, ok := byName[identity]
		if !ok {
			entry = &UserPresence{Username: identity}
			byName[identity] = entry
		}
		entry.Online = true
	}
	r.mu.RUnlock()

	snapshot := make([]UserPresence, 0, len(byName))
	for _, entry := range byName {
		snapshot = append(snapshot, *entry)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Username < snapshot[j].Username
	})
	return snapshot
}

// touch propagates lastSeen to the durable directory, best-effort.
func (r *Registry) touch(ctx context.Context, identity string, when time.Time) {
	if err := r.users.Touch(ctx, identity, when); err != nil {
		r.logger.Warn("updating directory last_seen", "identity", identity, "error", err)
	}
}
