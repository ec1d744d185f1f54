package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims are the token claims the client reads. They are display/identity
// data only and are never verified here.
type Claims struct {
	UserID string `json:"userID"`
	Exp    int64  `json:"exp"` // seconds since epoch
}

// DecodeClaims decodes the second segment of a JWT-shaped token as
// base64 JSON. It never verifies the signature.
func DecodeClaims(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: want 3 segments, got %d", ErrInvalidToken, len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// Some issuers pad; fall back to standard encoding.
		raw, err = base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c, nil
}

// IsExpired reports whether token is expired at now. A missing token or
// any decode failure counts as expired (fail-closed).
func IsExpired(token string, now time.Time) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	c, err := DecodeClaims(token)
	if err != nil {
		return true
	}
	if c.Exp <= 0 {
		return true
	}
	return !time.Unix(c.Exp, 0).After(now)
}
