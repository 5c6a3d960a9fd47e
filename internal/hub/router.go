// ABOUTME: Outbound event routing: targeted delivery and broadcast to all online identities
// ABOUTME: Transport failures are absorbed here and never escalate to the caller

package hub

import (
	"encoding/json"
	"log/slog"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
)

// Router delivers serialized events to online identities through the
// presence registry. A recipient that is offline, slow, or mid-disconnect is
// treated as unreachable and skipped.
type Router struct {
	registry *presence.Registry
	logger   *slog.Logger
}

// NewRouter creates a Router over the given registry.
func NewRouter(registry *presence.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger.With("component", "router"),
	}
}

// SendTo delivers one event to a single identity. No-op when the identity is
// offline or its connection is not writable.
func (r *Router) SendTo(identity string, event any) {
	handle, ok := r.registry.Get(identity)
	if !ok {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("encoding event", "error", err)
		return
	}

	if !handle.Deliver(payload) {
		r.logger.Debug("recipient unreachable, event dropped", "identity", identity)
	}
}

// SendToAll delivers one event to every online identity. A failure on one
// recipient never blocks or aborts delivery to the rest.
func (r *Router) SendToAll(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("encoding event", "error", err)
		return
	}

	for _, handle := range r.registry.Handles() {
		handle.Deliver(payload)
	}
}
