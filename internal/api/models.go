package api

import v1 "chatkit/wire/v1"

// User is a directory record returned by user lookup.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Bio      string `json:"bio,omitempty"`
}

// Meta is the pagination envelope on list responses.
type Meta struct {
	Total   int  `json:"total"`
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
}

// ChatsPage is one page of the chat list.
type ChatsPage struct {
	Chats []v1.Chat `json:"chats"`
	Meta  Meta      `json:"meta"`
}

// MessagesPage is one cursor window of a chat's messages. Chat is nil
// for a direct conversation that does not exist server-side yet.
type MessagesPage struct {
	Chat     *v1.Chat     `json:"chat"`
	Messages []v1.Message `json:"messages"`
	Meta     Meta         `json:"meta"`
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Bio      string `json:"bio,omitempty"`
}

// Direction selects which side of the cursor to page through.
type Direction string

const (
	Older Direction = "older"
	Newer Direction = "newer"
)
