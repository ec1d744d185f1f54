package realtime

import (
	"math/rand"
	"time"
)

// reconnectDelay computes the backoff delay for the given attempt (1-based):
// base * 2^(attempt-1), capped at max, with +/- jitter fraction applied.
func reconnectDelay(cfg ConnConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := cfg.ReconnectBase
	// Shift with overflow guard; anything past the cap is the cap.
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.ReconnectMax || d <= 0 {
			d = cfg.ReconnectMax
			break
		}
	}
	if d > cfg.ReconnectMax {
		d = cfg.ReconnectMax
	}

	if cfg.ReconnectJitter > 0 {
		f := 1 + cfg.ReconnectJitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	if d <= 0 {
		d = cfg.ReconnectBase
	}
	return d
}
