package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu    sync.Mutex
	state State
	saves int
}

func (s *memStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.saves++
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return nil
}

func (s *memStore) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// authServer is a minimal origin with a refresh endpoint and one
// protected resource.
type authServer struct {
	srv *httptest.Server

	refreshes atomic.Int32
	requests  atomic.Int32

	refreshDelay  time.Duration
	refreshStatus int    // 0 means 200
	accessToken   string // token minted by refresh and accepted by /data
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()

	a := &authServer{accessToken: signedToken(t, "u1", time.Now().Add(time.Hour))}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		a.refreshes.Add(1)
		if a.refreshDelay > 0 {
			time.Sleep(a.refreshDelay)
		}
		if a.refreshStatus != 0 {
			w.WriteHeader(a.refreshStatus)
			return
		}
		var in struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RefreshToken == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": a.accessToken})
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		a.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+a.accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *authServer) manager(t *testing.T, store StateStore) *Manager {
	t.Helper()
	return NewManager(testLogger(), Config{BaseURL: a.srv.URL}, store)
}

func TestManagerGeneratesStableDeviceID(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	first := NewManager(testLogger(), Config{BaseURL: "http://127.0.0.1:0"}, store)

	id := first.DeviceID()
	if id == "" {
		t.Fatal("device id not generated")
	}
	if store.snapshot().DeviceID != id {
		t.Fatal("device id not persisted")
	}

	second := NewManager(testLogger(), Config{BaseURL: "http://127.0.0.1:0"}, store)
	if second.DeviceID() != id {
		t.Fatalf("device id changed across restarts: %q vs %q", second.DeviceID(), id)
	}
}

func TestLoginDerivesUserFromClaims(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	m := NewManager(testLogger(), Config{BaseURL: "http://127.0.0.1:0"}, store)

	access := signedToken(t, "u42", time.Now().Add(time.Hour))
	if err := m.Login(TokenPair{AccessToken: access, RefreshToken: "r1"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if got := m.User(); got.ID != "u42" {
		t.Fatalf("user: got %+v, want ID u42", got)
	}
	if !m.Authenticated() {
		t.Fatal("Authenticated() false after login with a valid token")
	}
	if st := store.snapshot(); st.AccessToken != access || st.RefreshToken != "r1" {
		t.Fatalf("persisted state: got %+v", st)
	}
}

func TestLoginRejectsUndecodableToken(t *testing.T) {
	t.Parallel()

	m := NewManager(testLogger(), Config{BaseURL: "http://127.0.0.1:0"}, &memStore{})
	if err := m.Login(TokenPair{AccessToken: "not-a-jwt", RefreshToken: "r1"}); err == nil {
		t.Fatal("Login with garbage token: expected error")
	}
	if m.AccessToken() != "" {
		t.Fatal("garbage token was stored")
	}
}

func TestLogoutKeepsDeviceID(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	m := NewManager(testLogger(), Config{BaseURL: "http://127.0.0.1:0"}, store)
	device := m.DeviceID()

	access := signedToken(t, "u1", time.Now().Add(time.Hour))
	if err := m.Login(TokenPair{AccessToken: access, RefreshToken: "r1"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	m.Logout()
	m.Logout() // idempotent

	if m.AccessToken() != "" || m.User() != (User{}) {
		t.Fatal("logout left tokens or user behind")
	}
	if m.DeviceID() != device {
		t.Fatal("logout rotated the device id")
	}
	if st := store.snapshot(); st != (State{DeviceID: device}) {
		t.Fatalf("persisted state after logout: got %+v", st)
	}
}

func TestDoRefreshesExpiredTokenOnce(t *testing.T) {
	t.Parallel()

	a := newAuthServer(t)
	a.refreshDelay = 100 * time.Millisecond

	store := &memStore{state: State{
		AccessToken:  signedToken(t, "u1", time.Now().Add(-time.Minute)),
		RefreshToken: signedToken(t, "u1", time.Now().Add(24*time.Hour)),
		DeviceID:     "d1",
	}}
	m := a.manager(t, store)

	const callers = 4
	start := make(chan struct{})
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
			if err == nil {
				if resp.StatusCode != http.StatusOK {
					err = errors.New("status " + resp.Status)
				}
				resp.Body.Close()
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if n := a.refreshes.Load(); n != 1 {
		t.Fatalf("refresh calls: got %d, want 1", n)
	}
	if m.AccessToken() != a.accessToken {
		t.Fatal("refreshed token not retained")
	}
	if store.snapshot().AccessToken != a.accessToken {
		t.Fatal("refreshed token not persisted")
	}
}

func TestDoRetriesOnceAfter401(t *testing.T) {
	t.Parallel()

	a := newAuthServer(t)

	// Valid but server-rejected access token: the 401 path, not the
	// local-expiry path. The expiry must differ from the server's
	// accepted token, or the deterministic encoding makes them equal.
	store := &memStore{state: State{
		AccessToken:  signedToken(t, "u1", time.Now().Add(30*time.Minute)),
		RefreshToken: signedToken(t, "u1", time.Now().Add(24*time.Hour)),
	}}
	m := a.manager(t, store)

	resp, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status: got %d, want 200", resp.StatusCode)
	}
	if n := a.requests.Load(); n != 2 {
		t.Fatalf("resource requests: got %d, want 2", n)
	}
	if n := a.refreshes.Load(); n != 1 {
		t.Fatalf("refresh calls: got %d, want 1", n)
	}
}

func TestDoReturnsSecond401AsIs(t *testing.T) {
	t.Parallel()

	var refreshes, requests atomic.Int32
	fresh := signedToken(t, "u1", time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"access_token": fresh})
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		// A resource that rejects every token: the retry's 401 must come
		// back to the caller without a second refresh cycle.
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{state: State{
		AccessToken:  signedToken(t, "u1", time.Now().Add(time.Hour)),
		RefreshToken: signedToken(t, "u1", time.Now().Add(24*time.Hour)),
	}}
	m := NewManager(testLogger(), Config{BaseURL: srv.URL}, store)

	resp, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want the retry's 401", resp.StatusCode)
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refresh calls: got %d, want exactly 1", n)
	}
	if n := requests.Load(); n != 2 {
		t.Fatalf("resource requests: got %d, want exactly 2", n)
	}
}

func TestDoWithoutRefreshTokenFailsFast(t *testing.T) {
	t.Parallel()

	a := newAuthServer(t)

	store := &memStore{state: State{
		AccessToken: signedToken(t, "u1", time.Now().Add(-time.Minute)),
		DeviceID:    "d1",
	}}
	m := a.manager(t, store)

	_, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Do without refresh token: got %v, want ErrSessionExpired", err)
	}

	if n := a.refreshes.Load() + a.requests.Load(); n != 0 {
		t.Fatalf("network calls without a refresh token: got %d, want 0", n)
	}
	if st := store.snapshot(); st.AccessToken != "" {
		t.Fatal("expired session not cleared")
	}
}

func TestDoWithExpiredRefreshTokenFailsFast(t *testing.T) {
	t.Parallel()

	a := newAuthServer(t)

	store := &memStore{state: State{
		AccessToken:  signedToken(t, "u1", time.Now().Add(-time.Minute)),
		RefreshToken: signedToken(t, "u1", time.Now().Add(-time.Minute)),
	}}
	m := a.manager(t, store)

	_, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Do with expired refresh token: got %v, want ErrSessionExpired", err)
	}
	if n := a.refreshes.Load(); n != 0 {
		t.Fatalf("refresh calls with an expired refresh token: got %d, want 0", n)
	}
}

func TestDoRefreshFailureLogsOut(t *testing.T) {
	t.Parallel()

	a := newAuthServer(t)
	a.refreshStatus = http.StatusUnauthorized

	store := &memStore{state: State{
		AccessToken:  signedToken(t, "u1", time.Now().Add(-time.Minute)),
		RefreshToken: signedToken(t, "u1", time.Now().Add(24*time.Hour)),
		DeviceID:     "d1",
	}}
	m := a.manager(t, store)

	_, err := m.Do(context.Background(), http.MethodGet, "/data", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Do with failing refresh: got %v, want ErrSessionExpired", err)
	}
	if st := store.snapshot(); st != (State{DeviceID: "d1"}) {
		t.Fatalf("state after refresh failure: got %+v, want device id only", st)
	}
}

func TestDoCallerHeadersWin(t *testing.T) {
	t.Parallel()

	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	store := &memStore{state: State{
		AccessToken: signedToken(t, "u1", time.Now().Add(time.Hour)),
	}}
	m := NewManager(testLogger(), Config{BaseURL: srv.URL}, store)

	header := http.Header{}
	header.Set("Content-Type", "text/plain")

	resp, err := m.Do(context.Background(), http.MethodPost, "/anything", []byte("hi"), header)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotContentType != "text/plain" {
		t.Fatalf("content type: got %q, want caller's text/plain", gotContentType)
	}
}
