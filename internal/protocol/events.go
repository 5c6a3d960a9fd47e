// ABOUTME: Wire protocol for the persistent chat connection: one JSON object per frame
// ABOUTME: Defines inbound client events and outbound server events

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/store"
)

// Inbound event kinds (client -> server).
const (
	TypeLogin       = "login"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeReadMessage = "read_message"
	TypeGetUsers    = "get_users"
	TypeGetMessages = "get_messages"
)

// Outbound event kinds (server -> client).
const (
	TypeInit        = "init"
	TypeUsersList   = "users_list"
	TypeMessageSent = "message_sent"
	TypeNewMessage  = "new_message"
	TypeUserStatus  = "user_status"
	TypeUserTyping  = "user_typing"
	TypeMessages    = "messages"
)

// Inbound is the decoded form of a client frame. Type selects which of the
// remaining fields are meaningful.
type Inbound struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Receiver  string `json:"receiver,omitempty"`
	Text      string `json:"text,omitempty"`
	IsTyping  bool   `json:"isTyping,omitempty"`
	Sender    string `json:"sender,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
	WithUser  string `json:"withUser,omitempty"`
}

// DecodeInbound parses one client frame. Frames that are not a JSON object
// or carry no type are rejected.
func DecodeInbound(frame []byte) (Inbound, error) {
	var ev Inbound
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Inbound{}, fmt.Errorf("decoding frame: %w", err)
	}
	if ev.Type == "" {
		return Inbound{}, fmt.Errorf("frame has no type")
	}
	return ev, nil
}

// Init is sent once, immediately after a successful login.
type Init struct {
	Type        string                  `json:"type"`
	CurrentUser string                  `json:"currentUser"`
	Users       []presence.UserPresence `json:"users"`
}

// NewInit builds an init event for the freshly authenticated user.
func NewInit(currentUser string, users []presence.UserPresence) Init {
	return Init{Type: TypeInit, CurrentUser: currentUser, Users: users}
}

// UsersList is the reply to a get_users request.
type UsersList struct {
	Type  string                  `json:"type"`
	Users []presence.UserPresence `json:"users"`
}

// NewUsersList builds a users_list event.
func NewUsersList(users []presence.UserPresence) UsersList {
	return UsersList{Type: TypeUsersList, Users: users}
}

// MessageSent acknowledges a message back to its sender.
type MessageSent struct {
	Type    string        `json:"type"`
	Message store.Message `json:"message"`
}

// NewMessageSent builds a message_sent acknowledgment.
func NewMessageSent(msg store.Message) MessageSent {
	return MessageSent{Type: TypeMessageSent, Message: msg}
}

// NewMessage delivers a message to an online receiver.
type NewMessage struct {
	Type    string        `json:"type"`
	Message store.Message `json:"message"`
}

// NewNewMessage builds a new_message delivery event.
func NewNewMessage(msg store.Message) NewMessage {
	return NewMessage{Type: TypeNewMessage, Message: msg}
}

// UserStatus is broadcast to all connections on a presence transition.
type UserStatus struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Online    bool   `json:"online"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// NewUserStatus builds a user_status broadcast.
func NewUserStatus(username string, online bool, timestamp int64) UserStatus {
	return UserStatus{Type: TypeUserStatus, Username: username, Online: online, Timestamp: timestamp}
}

// UserTyping is a transient typing indicator forwarded to one receiver.
type UserTyping struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// NewUserTyping builds a user_typing event.
func NewUserTyping(username string, isTyping bool) UserTyping {
	return UserTyping{Type: TypeUserTyping, Username: username, IsTyping: isTyping}
}

// Messages is the reply to a get_messages request.
type Messages struct {
	Type     string          `json:"type"`
	WithUser string          `json:"withUser"`
	Messages []store.Message `json:"messages"`
}

// NewMessages builds a messages history reply.
func NewMessages(withUser string, messages []store.Message) Messages {
	return Messages{Type: TypeMessages, WithUser: withUser, Messages: messages}
}
