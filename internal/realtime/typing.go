package realtime

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TypingConfig controls one chat's typing coordinator.
type TypingConfig struct {
	// SelfID is the local user's id; their own typing events are never
	// shown back to them.
	SelfID string

	// Idle is the local debounce window: after this much inactivity a
	// typing=false indicator is sent. Defaults to 3s.
	Idle time.Duration

	// RemoteExpiry, when positive, removes a remote user's typing entry
	// after that long without a fresh typing=true event. Zero keeps
	// entries purely event-driven: only an explicit typing=false clears
	// them, even if that event is lost across a reconnect gap.
	RemoteExpiry time.Duration
}

// TypingTracker derives the "who is typing" view for a single chat and
// broadcasts the local user's typing state through a send function.
type TypingTracker struct {
	log  *slog.Logger
	cfg  TypingConfig
	send func(isTyping bool) bool

	mu     sync.Mutex
	users  map[string]string // user id -> display name
	expiry map[string]*time.Timer
	idle   *time.Timer
	closed bool
}

// NewTypingTracker constructs a tracker. send broadcasts the local
// user's typing state (typically Conn.Send wrapping a typing envelope).
func NewTypingTracker(log *slog.Logger, cfg TypingConfig, send func(isTyping bool) bool) *TypingTracker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Idle <= 0 {
		cfg.Idle = defaultTypingIdle
	}
	if send == nil {
		send = func(bool) bool { return false }
	}
	return &TypingTracker{
		log:    log,
		cfg:    cfg,
		send:   send,
		users:  make(map[string]string),
		expiry: make(map[string]*time.Timer),
	}
}

// StartTyping sends a typing=true indicator immediately and (re)arms the
// idle timer. Every call sends; the last call's timer wins.
func (t *TypingTracker) StartTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.send(true)

	if t.idle != nil {
		t.idle.Stop()
	}
	t.idle = time.AfterFunc(t.cfg.Idle, t.StopTyping)
}

// StopTyping sends a typing=false indicator immediately and clears any
// pending idle timer.
func (t *TypingTracker) StopTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.send(false)

	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}
}

// Update applies a remote typing event. Events about the local user are
// ignored.
func (t *TypingTracker) Update(userID, name string, isTyping bool) {
	if userID == "" || userID == t.cfg.SelfID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if !isTyping {
		t.removeLocked(userID)
		return
	}

	t.users[userID] = name

	if t.cfg.RemoteExpiry <= 0 {
		return
	}
	if tm, ok := t.expiry[userID]; ok {
		tm.Stop()
	}
	t.expiry[userID] = time.AfterFunc(t.cfg.RemoteExpiry, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		t.log.Debug("typing.remote.expire", "user_id", userID)
		t.removeLocked(userID)
	})
}

func (t *TypingTracker) removeLocked(userID string) {
	delete(t.users, userID)
	if tm, ok := t.expiry[userID]; ok {
		tm.Stop()
		delete(t.expiry, userID)
	}
}

// Users returns the display names of remote users currently typing, in
// stable order.
func (t *TypingTracker) Users() []string {
	t.mu.Lock()
	names := make([]string, 0, len(t.users))
	for _, n := range t.users {
		names = append(names, n)
	}
	t.mu.Unlock()

	sort.Strings(names)
	return names
}

// Close cancels the pending idle timer and any remote expiry timers.
// It does not send a final typing=false; call StopTyping first where the
// screen semantics require it.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}
	for id, tm := range t.expiry {
		tm.Stop()
		delete(t.expiry, id)
	}
}
