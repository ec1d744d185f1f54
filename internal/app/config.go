package app

import (
	"net/url"
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	ServerURL string
	SocketURL string
	LogLevel  string
	StatePath string

	HTTPTimeout time.Duration

	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	ReconnectJitter      float64
	ReconnectMaxAttempts int

	TypingIdle time.Duration

	// RemoteTypingExpiry > 0 clears a remote typing indicator after that
	// long without a fresh event; 0 keeps indicators purely event-driven.
	RemoteTypingExpiry time.Duration

	// MetricsAddr, when set, serves prometheus metrics on that address.
	MetricsAddr string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	server := EnvString("CHATKIT_SERVER_URL", "http://127.0.0.1:4000")

	return Config{
		ServerURL: server,
		SocketURL: EnvString("CHATKIT_WS_URL", deriveSocketURL(server)),
		LogLevel:  EnvString("CHATKIT_LOG_LEVEL", "info"),
		StatePath: EnvString("CHATKIT_STATE_PATH", ""),

		HTTPTimeout: EnvDuration("CHATKIT_HTTP_TIMEOUT", 15*time.Second),

		ReconnectBase:        EnvDuration("CHATKIT_RECONNECT_BASE", 2*time.Second),
		ReconnectMax:         EnvDuration("CHATKIT_RECONNECT_MAX", 30*time.Second),
		ReconnectJitter:      EnvFloat("CHATKIT_RECONNECT_JITTER", 0.2),
		ReconnectMaxAttempts: EnvInt("CHATKIT_RECONNECT_MAX_ATTEMPTS", 0),

		TypingIdle:         EnvDuration("CHATKIT_TYPING_IDLE", 3*time.Second),
		RemoteTypingExpiry: EnvDuration("CHATKIT_REMOTE_TYPING_EXPIRY", 0),

		MetricsAddr: EnvString("CHATKIT_METRICS_ADDR", ""),
	}
}

// deriveSocketURL maps the REST origin to the default realtime endpoint.
func deriveSocketURL(server string) string {
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "ws://127.0.0.1:4000/ws/"
	}

	scheme := "ws"
	if strings.EqualFold(u.Scheme, "https") {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + "/ws/"
}
