package realtime

import "time"

// Transport defaults. Overridable per Conn via ConnConfig.
const (
	// Max bytes per websocket frame read (hard limit).
	defaultReadLimit = 1 << 20 // 1 MiB

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second

	// Reconnect backoff. Base matches the 2s delay of the first retry;
	// later retries back off exponentially up to Max.
	defaultReconnectBase   = 2 * time.Second
	defaultReconnectMax    = 30 * time.Second
	defaultReconnectJitter = 0.2
)

const (
	// Local typing debounce: a typing=true indicator expires into
	// typing=false after this much inactivity.
	defaultTypingIdle = 3 * time.Second
)
