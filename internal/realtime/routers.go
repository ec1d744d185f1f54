package realtime

import (
	"encoding/json"
	"log/slog"

	v1 "chatkit/wire/v1"
)

// ChatRouter maps envelopes to the callbacks a single-chat screen cares
// about. Nil callbacks and unknown types are dropped with a log line.
type ChatRouter struct {
	Log *slog.Logger

	OnNewMessage    func(v1.Message)
	OnUserTyping    func(v1.UserTyping)
	OnMessageEdited func(v1.Message)
}

// Bind subscribes the router to reg and returns the unsubscribe capability.
func (r *ChatRouter) Bind(reg *Registry) (unsubscribe func()) {
	return reg.Subscribe(r.route)
}

func (r *ChatRouter) route(env v1.Envelope) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	switch env.Type {
	case v1.TypeNewMessage:
		var m v1.Message
		if !decodePayload(log, env, &m) {
			return
		}
		if r.OnNewMessage != nil {
			r.OnNewMessage(m)
		}

	case v1.TypeUserTyping:
		var t v1.UserTyping
		if !decodePayload(log, env, &t) {
			return
		}
		if r.OnUserTyping != nil {
			r.OnUserTyping(t)
		}

	case v1.TypeMessageEdited:
		var m v1.Message
		if !decodePayload(log, env, &m) {
			return
		}
		if r.OnMessageEdited != nil {
			r.OnMessageEdited(m)
		}

	default:
		log.Debug("dispatch.chat.ignore", "type", env.Type, "known", v1.KnownInbound(env.Type))
	}
}

// ChatListRouter maps envelopes to the callbacks the chat-list screen
// cares about: message activity plus chat lifecycle events.
type ChatListRouter struct {
	Log *slog.Logger

	OnNewMessage  func(v1.Message)
	OnUserTyping  func(v1.UserTyping)
	OnChatCreated func(v1.Chat)
	OnChatUpdated func(v1.Chat)
	OnChatDeleted func(v1.ChatDeleted)
}

// Bind subscribes the router to reg and returns the unsubscribe capability.
func (r *ChatListRouter) Bind(reg *Registry) (unsubscribe func()) {
	return reg.Subscribe(r.route)
}

func (r *ChatListRouter) route(env v1.Envelope) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	switch env.Type {
	case v1.TypeNewMessage:
		var m v1.Message
		if !decodePayload(log, env, &m) {
			return
		}
		if r.OnNewMessage != nil {
			r.OnNewMessage(m)
		}

	case v1.TypeUserTyping:
		var t v1.UserTyping
		if !decodePayload(log, env, &t) {
			return
		}
		if r.OnUserTyping != nil {
			r.OnUserTyping(t)
		}

	case v1.TypeChatCreated:
		var c v1.Chat
		if !decodePayload(log, env, &c) {
			return
		}
		if r.OnChatCreated != nil {
			r.OnChatCreated(c)
		}

	case v1.TypeChatUpdated:
		var c v1.Chat
		if !decodePayload(log, env, &c) {
			return
		}
		if r.OnChatUpdated != nil {
			r.OnChatUpdated(c)
		}

	case v1.TypeChatDeleted:
		var d v1.ChatDeleted
		if !decodePayload(log, env, &d) {
			return
		}
		if r.OnChatDeleted != nil {
			r.OnChatDeleted(d)
		}

	default:
		log.Debug("dispatch.chatlist.ignore", "type", env.Type, "known", v1.KnownInbound(env.Type))
	}
}

func decodePayload(log *slog.Logger, env v1.Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.Warn("dispatch.payload.drop", "type", env.Type, "err", err)
		return false
	}
	return true
}
