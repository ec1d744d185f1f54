package session

// User is the locally derived identity record.
type User struct {
	ID string `json:"id"`
}

// State is the durable session snapshot. In-memory copies held by the
// Manager are the source of truth during a run; the store is read once
// at startup and written on every change.
type State struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         User   `json:"user,omitempty"`

	// DeviceID is a stable per-install id used for log correlation.
	// It survives logout.
	DeviceID string `json:"device_id,omitempty"`
}

// StateStore persists session state across runs.
type StateStore interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}
