// Package v1 defines the chatkit realtime wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the realtime transport, the REST client, and any
// consumer of dispatched events, so the wire shapes stay authoritative.
package v1

import (
	"encoding/json"
	"time"
)

// Inbound type constants (wire-stable, server -> client).
const (
	// TypeNewMessage announces a message accepted into a chat.
	TypeNewMessage = "new_message"
	// TypeUserTyping reports a remote user's typing state for a chat.
	TypeUserTyping = "user_typing"
	// TypeMessageEdited announces an edit to an existing message.
	TypeMessageEdited = "message_edited"
	// TypeChatCreated announces a chat newly visible to this user.
	TypeChatCreated = "chat_created"
	// TypeChatUpdated announces a change to chat metadata or its last message.
	TypeChatUpdated = "chat_updated"
	// TypeChatDeleted announces a chat removal.
	TypeChatDeleted = "chat_deleted"
)

// Outbound type constants (client -> server).
const (
	// TypeSendMessage submits a message into a chat.
	TypeSendMessage = "send_message"
	// TypeTyping broadcasts the local user's typing state for a chat.
	TypeTyping = "typing"
)

var inboundTypes = map[string]struct{}{
	TypeNewMessage:    {},
	TypeUserTyping:    {},
	TypeMessageEdited: {},
	TypeChatCreated:   {},
	TypeChatUpdated:   {},
	TypeChatDeleted:   {},
}

// KnownInbound reports whether t is a recognized server -> client type.
// Unknown types are expected as the protocol evolves; callers log and drop them.
func KnownInbound(t string) bool {
	_, ok := inboundTypes[t]
	return ok
}

// Envelope is the canonical wire wrapper for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope around a marshaled payload.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: b}, nil
}

// ---- Payloads ----

// Sender identifies the author of a message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the canonical message shape, used by new_message and
// message_edited envelopes and by the REST message endpoints.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Edited    bool      `json:"edited,omitempty"`
}

// Chat is the canonical chat shape, used by chat_created/chat_updated
// envelopes and by the REST chat list.
type Chat struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "direct" or "group"
	UnreadCount int      `json:"unread_count,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// ChatDeleted carries the id of a removed chat.
type ChatDeleted struct {
	ID string `json:"id"`
}

// UserTyping reports one user's typing state inside a chat.
type UserTyping struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// SendMessage submits message content into a chat.
type SendMessage struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// Typing broadcasts the local user's typing state for a chat.
type Typing struct {
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}
