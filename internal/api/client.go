// Package api is the REST surface of the chat service, consumed through
// the session manager's authenticated fetch. Auth endpoints (login,
// register, refresh) are the only unauthenticated calls.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatkit/internal/auth/session"
	v1 "chatkit/wire/v1"
)

// Config controls a Client.
type Config struct {
	// BaseURL is the REST origin, e.g. "http://127.0.0.1:4000".
	BaseURL string

	// SocketURL is the realtime endpoint, e.g. "ws://127.0.0.1:4000/ws/".
	SocketURL string

	// HTTPClient serves the unauthenticated auth endpoints.
	// Defaults to a client with a 15s timeout.
	HTTPClient *http.Client
}

// Client calls the chat service REST API.
type Client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
	sess *session.Manager
}

// NewClient constructs a Client around an existing session manager.
func NewClient(log *slog.Logger, cfg Config, sess *session.Manager) *Client {
	if log == nil {
		log = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{log: log, cfg: cfg, http: httpClient, sess: sess}
}

// Session returns the session manager backing this client.
func (c *Client) Session() *session.Manager { return c.sess }

// Login authenticates and opens a session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := c.postUnauthenticated(ctx, "/api/v1/auth/login", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: status=%d", ErrInvalidCredentials, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}

	var pair session.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	return c.sess.Login(pair)
}

// Register creates a new account. It does not log in.
func (c *Client) Register(ctx context.Context, in RegisterInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := c.postUnauthenticated(ctx, "/api/v1/users/register", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("register: %s", apiErr.Error)
		}
		return &StatusError{Status: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// FindUser looks a user up by exact username.
func (c *Client) FindUser(ctx context.Context, username string) (User, error) {
	q := url.Values{"username": {strings.TrimSpace(username)}}

	var out User
	err := c.getJSON(ctx, "/api/v1/users/find?"+q.Encode(), &out)
	if isStatus(err, http.StatusNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return out, err
}

// Chats returns one page of the chat list.
func (c *Client) Chats(ctx context.Context, page, count int) (ChatsPage, error) {
	if page < 1 {
		page = 1
	}
	if count < 1 {
		count = 10
	}
	q := url.Values{
		"page":  {strconv.Itoa(page)},
		"count": {strconv.Itoa(count)},
	}

	var out ChatsPage
	err := c.getJSON(ctx, "/api/v1/chats?"+q.Encode(), &out)
	return out, err
}

// ChatMessages returns a cursor window of a chat's messages.
func (c *Client) ChatMessages(ctx context.Context, chatID, cursor string, dir Direction, count int) (MessagesPage, error) {
	return c.messages(ctx, "/api/v1/messages/chat/"+url.PathEscape(chatID), cursor, dir, count, false)
}

// DirectMessages returns a cursor window of a direct conversation.
// A direct chat that does not exist yet yields an empty page, not an error.
func (c *Client) DirectMessages(ctx context.Context, username, cursor string, dir Direction, count int) (MessagesPage, error) {
	return c.messages(ctx, "/api/v1/messages/direct/"+url.PathEscape(username), cursor, dir, count, true)
}

func (c *Client) messages(ctx context.Context, path, cursor string, dir Direction, count int, direct bool) (MessagesPage, error) {
	if dir == "" {
		dir = Older
	}
	if count < 1 {
		count = 20
	}
	q := url.Values{
		"dir":   {string(dir)},
		"count": {strconv.Itoa(count)},
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var out MessagesPage
	err := c.getJSON(ctx, path+"?"+q.Encode(), &out)
	if direct && isStatus(err, http.StatusNotFound) {
		return MessagesPage{}, nil
	}
	return out, err
}

// SendChatMessage posts a message into an existing chat over REST; the
// realtime send_message envelope is the preferred path when connected.
func (c *Client) SendChatMessage(ctx context.Context, chatID, content string) (v1.Message, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return v1.Message{}, err
	}

	var out v1.Message
	err = c.postJSON(ctx, "/api/v1/messages/chat/"+url.PathEscape(chatID), body, &out)
	return out, err
}

// SendDirectMessage posts the first (or any) message of a direct
// conversation, creating the chat server-side when needed. The created
// or existing chat rides along in the response.
func (c *Client) SendDirectMessage(ctx context.Context, receiverUsername, content string) (v1.Message, *v1.Chat, error) {
	body, err := json.Marshal(map[string]string{
		"receiver_username": receiverUsername,
		"content":           content,
	})
	if err != nil {
		return v1.Message{}, nil, err
	}

	var out struct {
		v1.Message
		Chat *v1.Chat `json:"chat"`
	}
	err = c.postJSON(ctx, "/api/v1/messages/direct/", body, &out)
	if isStatus(err, http.StatusNotFound) {
		return v1.Message{}, nil, fmt.Errorf("%w: %s", ErrUserNotFound, receiverUsername)
	}
	if err != nil {
		return v1.Message{}, nil, err
	}
	return out.Message, out.Chat, nil
}

// SocketURL builds the realtime endpoint URL with the current access
// token as a query parameter. Without a token the URL is not well-formed
// and no connection should be attempted.
func (c *Client) SocketURL() (string, error) {
	token := c.sess.AccessToken()
	if strings.TrimSpace(token) == "" {
		return "", ErrNotAuthenticated
	}

	u, err := url.Parse(c.cfg.SocketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- transport helpers ----

func (c *Client) postUnauthenticated(ctx context.Context, path string, body []byte) (*http.Response, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.sess.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	resp, err := c.sess.Do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func isStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
