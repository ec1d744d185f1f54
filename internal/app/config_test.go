package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CHATKIT_SERVER_URL", "")
	t.Setenv("CHATKIT_WS_URL", "")
	t.Setenv("CHATKIT_LOG_LEVEL", "")

	cfg := LoadConfig()

	if cfg.ServerURL != "http://127.0.0.1:4000" {
		t.Errorf("server url: got %q", cfg.ServerURL)
	}
	if cfg.SocketURL != "ws://127.0.0.1:4000/ws/" {
		t.Errorf("socket url: got %q", cfg.SocketURL)
	}
	if cfg.ReconnectBase != 2*time.Second || cfg.ReconnectMax != 30*time.Second {
		t.Errorf("reconnect window: got %v..%v", cfg.ReconnectBase, cfg.ReconnectMax)
	}
	if cfg.TypingIdle != 3*time.Second {
		t.Errorf("typing idle: got %v", cfg.TypingIdle)
	}
	if cfg.RemoteTypingExpiry != 0 {
		t.Errorf("remote typing expiry: got %v, want 0", cfg.RemoteTypingExpiry)
	}
	if cfg.ReconnectMaxAttempts != 0 {
		t.Errorf("reconnect attempts: got %d, want unbounded 0", cfg.ReconnectMaxAttempts)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CHATKIT_SERVER_URL", "https://chat.example.com")
	t.Setenv("CHATKIT_WS_URL", "")
	t.Setenv("CHATKIT_TYPING_IDLE", "5s")
	t.Setenv("CHATKIT_RECONNECT_JITTER", "0.5")

	cfg := LoadConfig()

	if cfg.SocketURL != "wss://chat.example.com/ws/" {
		t.Errorf("derived socket url: got %q", cfg.SocketURL)
	}
	if cfg.TypingIdle != 5*time.Second {
		t.Errorf("typing idle: got %v", cfg.TypingIdle)
	}
	if cfg.ReconnectJitter != 0.5 {
		t.Errorf("jitter: got %v", cfg.ReconnectJitter)
	}
}

func TestDeriveSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:4000", want: "ws://127.0.0.1:4000/ws/"},
		{in: "https://chat.example.com", want: "wss://chat.example.com/ws/"},
		{in: "http://10.0.0.5:8080", want: "ws://10.0.0.5:8080/ws/"},
		{in: "not a url", want: "ws://127.0.0.1:4000/ws/"},
		{in: "", want: "ws://127.0.0.1:4000/ws/"},
	}

	for _, tt := range tests {
		if got := deriveSocketURL(tt.in); got != tt.want {
			t.Errorf("deriveSocketURL(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
