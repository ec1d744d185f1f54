package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshPath = "/api/v1/auth/refresh"

// TokenPair is the token payload returned by the login and used to open
// a session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Config controls a Manager.
type Config struct {
	// BaseURL is the REST origin, e.g. "http://127.0.0.1:4000".
	BaseURL string

	// RefreshPath defaults to /api/v1/auth/refresh.
	RefreshPath string

	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client

	// Registerer receives the refresh counters. Nil skips registration.
	Registerer prometheus.Registerer

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the session tokens and the authenticated fetch.
//
// All mutation goes through Login, Logout, and the internal refresh; the
// tokens are never mutated from outside. Refresh is single-flighted:
// concurrent callers await one underlying network call.
type Manager struct {
	log   *slog.Logger
	cfg   Config
	http  *http.Client
	store StateStore
	now   func() time.Time

	refreshes       prometheus.Counter
	refreshFailures prometheus.Counter

	mu    sync.Mutex
	state State

	group singleflight.Group
}

// NewManager constructs a Manager and loads persisted state from store.
// A load failure is logged and starts an empty session.
func NewManager(log *slog.Logger, cfg Config, store StateStore) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaultRefreshPath
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	f := promauto.With(cfg.Registerer)
	m := &Manager{
		log:   log,
		cfg:   cfg,
		http:  httpClient,
		store: store,
		now:   now,
		refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_session_refreshes_total",
			Help: "Successful access-token refreshes.",
		}),
		refreshFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "chatkit_session_refresh_failures_total",
			Help: "Failed refresh attempts (each forces a logout).",
		}),
	}

	st, err := store.Load()
	if err != nil {
		log.Warn("session.state.load.fail", "err", err)
		st = State{}
	}
	if st.DeviceID == "" {
		st.DeviceID = ulid.Make().String()
		if err := store.Save(st); err != nil {
			log.Warn("session.state.save.fail", "err", err)
		}
	}
	m.state = st
	return m
}

// DeviceID returns the stable per-install id.
func (m *Manager) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeviceID
}

// AccessToken returns the current access token ("" when logged out).
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AccessToken
}

// User returns the derived local user record.
func (m *Manager) User() User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User
}

// Authenticated reports whether a non-expired access token is held.
func (m *Manager) Authenticated() bool {
	return !IsExpired(m.AccessToken(), m.now())
}

// Login stores both tokens and the identity derived from the access
// token's claims.
func (m *Manager) Login(pair TokenPair) error {
	claims, err := DecodeClaims(pair.AccessToken)
	if err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}

	m.mu.Lock()
	m.state.AccessToken = pair.AccessToken
	m.state.RefreshToken = pair.RefreshToken
	m.state.User = User{ID: claims.UserID}
	st := m.state
	m.mu.Unlock()

	if err := m.store.Save(st); err != nil {
		m.log.Warn("session.state.save.fail", "err", err)
	}
	m.log.Info("session.login", "user_id", claims.UserID)
	return nil
}

// Logout clears tokens and user, in memory and in the store. The device
// id survives. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	had := m.state.AccessToken != "" || m.state.RefreshToken != ""
	device := m.state.DeviceID
	m.state = State{DeviceID: device}
	m.mu.Unlock()

	if err := m.store.Save(State{DeviceID: device}); err != nil {
		m.log.Warn("session.state.save.fail", "err", err)
	}
	if had {
		m.log.Info("session.logout")
	}
}

// Do issues an authenticated request.
//
// An expired access token is refreshed before the request; a 401 response
// triggers exactly one refresh-and-retry, whose response is returned as-is
// whatever its status. Refresh failure surfaces as ErrSessionExpired and
// forces a logout; the original request is not (re)attempted.
func (m *Manager) Do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*http.Response, error) {
	token := m.AccessToken()
	if IsExpired(token, m.now()) {
		refreshed, err := m.refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		token = refreshed
	}

	resp, err := m.send(ctx, method, rawURL, body, header, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh-and-retry cycle, never more.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	refreshed, err := m.refresh(ctx)
	if err != nil {
		m.Logout()
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return m.send(ctx, method, rawURL, body, header, refreshed)
}

func (m *Manager) send(ctx context.Context, method, rawURL string, body []byte, header http.Header, token string) (*http.Response, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.resolve(rawURL), rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Defaults first; caller-supplied headers win.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return m.http.Do(req)
}

func (m *Manager) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/" + strings.TrimLeft(rawURL, "/")
}

// refresh single-flights concurrent refresh calls.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refreshToken := m.state.RefreshToken
	m.mu.Unlock()

	if strings.TrimSpace(refreshToken) == "" {
		m.refreshFailures.Inc()
		m.Logout()
		return "", ErrNoRefreshToken
	}
	if IsExpired(refreshToken, m.now()) {
		m.refreshFailures.Inc()
		m.Logout()
		m.log.Info("session.refresh.token_expired")
		return "", fmt.Errorf("%w: refresh token expired", ErrSessionExpired)
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.resolve(m.cfg.RefreshPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		m.refreshFailures.Inc()
		m.Logout()
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		m.refreshFailures.Inc()
		m.Logout()
		m.log.Info("session.refresh.fail", "status", resp.StatusCode)
		return "", fmt.Errorf("refresh failed: status=%d body=%q", resp.StatusCode, b)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		m.refreshFailures.Inc()
		m.Logout()
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		m.refreshFailures.Inc()
		m.Logout()
		return "", fmt.Errorf("refresh response missing access_token")
	}

	m.mu.Lock()
	m.state.AccessToken = out.AccessToken
	st := m.state
	m.mu.Unlock()

	if err := m.store.Save(st); err != nil {
		m.log.Warn("session.state.save.fail", "err", err)
	}

	m.refreshes.Inc()
	m.log.Info("session.refresh.ok")
	return out.AccessToken, nil
}
