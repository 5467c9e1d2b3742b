package hybrid

import (
	"fmt"
	"time"
)

// State is the coordinator lifecycle state.
type State int32

// Lifecycle states, in order.
const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateStarting; st <= StateStopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("hybrid: unknown state %q", b)
}

// Health summarises recent sync outcomes.
type Health string

// Health levels.
const (
	HealthHealthy Health = "healthy"
	HealthLagging Health = "lagging"
	HealthFailing Health = "failing"
)

func healthOf(failures, threshold int) Health {
	switch {
	case failures == 0:
		return HealthHealthy
	case failures < threshold:
		return HealthLagging
	default:
		return HealthFailing
	}
}

// Cursor is the sync watermark owned by the coordinator.
type Cursor struct {
	// Watermark is the creation time of the newest mirrored record and
	// WatermarkID its id.
	Watermark   time.Time
	WatermarkID string

	ConsecutiveFailures int
	LastPass            time.Time
	LastError           error

	// FullScan makes the next pass reconcile every primary record newer
	// than the watermark, not only the pending ones.
	FullScan bool
}

// after reports whether a record created at t with id sorts after the
// watermark.
func (c Cursor) after(t time.Time, id string) bool {
	if t.Equal(c.Watermark) {
		return id > c.WatermarkID
	}
	return t.After(c.Watermark)
}

// SyncStatus is a point-in-time view of the background sync.
type SyncStatus struct {
	State               State     `json:"state"`
	Enabled             bool      `json:"enabled"`
	DisabledReason      string    `json:"disabled_reason,omitempty"`
	Watermark           time.Time `json:"watermark"`
	Pending             int       `json:"pending"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastPass            time.Time `json:"last_pass"`
	Health              Health    `json:"health"`
}

// PassReport describes one completed sync pass.
type PassReport struct {
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	FullScan  bool          `json:"full_scan"`
	Mirrored  int           `json:"mirrored"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Watermark time.Time     `json:"watermark"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether every operation of the pass succeeded.
func (r PassReport) OK() bool { return r.Failed == 0 && r.Error == "" }
