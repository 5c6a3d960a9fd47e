// ABOUTME: Inbound event dispatch for one connection session
// ABOUTME: Implements the Unauthenticated/Authenticated state machine over wire events

package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/protocol"
)

// handleFrame decodes and dispatches one inbound frame. Malformed frames are
// dropped with a warning; the session stays open.
func (c *Client) handleFrame(frame []byte) {
	ev, err := protocol.DecodeInbound(frame)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	identity := c.Identity()
	if identity == "" {
		// Everything except login is ignored until the session authenticates.
		if ev.Type == protocol.TypeLogin {
			c.handleLogin(ev)
		}
		return
	}

	switch ev.Type {
	case protocol.TypeLogin:
		c.logger.Debug("ignoring login on authenticated session", "identity", identity)
	case protocol.TypeMessage:
		c.handleMessage(identity, ev)
	case protocol.TypeTyping:
		c.handleTyping(identity, ev)
	case protocol.TypeReadMessage:
		c.handleReadMessage(identity, ev)
	case protocol.TypeGetUsers:
		c.handleGetUsers()
	case protocol.TypeGetMessages:
		c.handleGetMessages(identity, ev)
	default:
		c.logger.Warn("dropping unrecognized event", "event_type", ev.Type)
	}
}

// handleLogin authenticates the identity onto this connection, registers it
// for presence, announces the transition, and replies with an init snapshot.
func (c *Client) handleLogin(ev protocol.Inbound) {
	if ev.Username == "" {
		return
	}
	ctx := context.Background()

	c.setIdentity(ev.Username)
	c.logger = c.logger.With("identity", ev.Username)

	superseded, _ := c.hub.registry.Connect(ctx, ev.Username, c)
	if superseded != nil && superseded != c {
		// Last connect wins; the orphaned connection is closed here.
		superseded.Close()
	}

	c.hub.router.SendToAll(protocol.NewUserStatus(ev.Username, true, time.Now().UnixMilli()))
	c.deliverEvent(protocol.NewInit(ev.Username, c.hub.registry.Snapshot(ctx)))
}

// handleMessage persists the message, acknowledges the sender, and delivers
// to the receiver when online. The append happens before both the ack and
// the delivery; delivery to an online receiver marks the message read.
func (c *Client) handleMessage(identity string, ev protocol.Inbound) {
	if ev.Receiver == "" {
		return
	}

	msg, ok := c.hub.conversations.Append(identity, ev.Receiver, ev.Text)
	if !ok {
		return
	}

	c.deliverEvent(protocol.NewMessageSent(msg))

	if c.hub.registry.IsOnline(ev.Receiver) {
		c.hub.conversations.MarkRead(identity, ev.Receiver, msg.ID)
		msg.Read = true
		c.hub.router.SendTo(ev.Receiver, protocol.NewNewMessage(msg))
	}
}

// handleTyping forwards a transient typing indicator. Nothing is persisted
// and an offline receiver simply never sees it.
func (c *Client) handleTyping(identity string, ev protocol.Inbound) {
	if ev.Receiver == "" {
		return
	}
	c.hub.router.SendTo(ev.Receiver, protocol.NewUserTyping(identity, ev.IsTyping))
}

// handleReadMessage flips the read flag for a message the peer sent us.
func (c *Client) handleReadMessage(identity string, ev protocol.Inbound) {
	if ev.Sender == "" || ev.MessageID == 0 {
		return
	}
	if !c.hub.conversations.MarkRead(identity, ev.Sender, ev.MessageID) {
		c.logger.Debug("read ack for unknown message", "sender", ev.Sender, "message_id", ev.MessageID)
	}
}

// handleGetUsers replies with the current presence snapshot.
func (c *Client) handleGetUsers() {
	c.deliverEvent(protocol.NewUsersList(c.hub.registry.Snapshot(context.Background())))
}

// handleGetMessages replies with the full history with one counterpart.
func (c *Client) handleGetMessages(identity string, ev protocol.Inbound) {
	if ev.WithUser == "" {
		return
	}
	history := c.hub.conversations.History(identity, ev.WithUser)
	c.deliverEvent(protocol.NewMessages(ev.WithUser, history))
}

// deliverEvent serializes an event onto this session's outbound queue.
func (c *Client) deliverEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("encoding outbound event", "error", err)
		return
	}
	if !c.Deliver(payload) {
		c.logger.Debug("dropped outbound event, connection slow or closed")
	}
}
