package supervisor

import (
	"sync"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/metrics"
)

// State is the backend lifecycle state. It is the single source of truth for
// the prober, forwarder and responder; only the supervisor loop writes it.
//
// Starting -> Initializing -> Ready -> (Degraded | Crashed) -> Restarting -> Stopped
type State int

const (
	StateStarting State = iota
	StateInitializing
	StateReady
	StateDegraded
	StateCrashed
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateCrashed:
		return "crashed"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reachable reports whether requests may be forwarded to the backend.
// Degraded keeps forwarding: restart is driven only by process exit, never
// by probe failure.
func (s State) Reachable() bool {
	return s == StateReady || s == StateDegraded
}

// View is a read-only snapshot served by the admin status endpoint.
type View struct {
	State        string    `json:"state"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	Restarts     int       `json:"restarts"`
	LastExitCode int       `json:"last_exit_code"`
	Uptime       float64   `json:"uptime_seconds"`
}

// Tracker holds the shared lifecycle state. The supervisor loop is the only
// writer; concurrent request handlers only read.
type Tracker struct {
	mu           sync.RWMutex
	state        State
	pid          int
	startedAt    time.Time
	restarts     int
	lastExitCode int
}

func NewTracker() *Tracker {
	return &Tracker{state: StateStarting}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Snapshot returns the full view for status reporting.
func (t *Tracker) Snapshot() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := View{
		State:        t.state.String(),
		PID:          t.pid,
		StartedAt:    t.startedAt,
		Restarts:     t.restarts,
		LastExitCode: t.lastExitCode,
	}
	if t.state.Reachable() && !t.startedAt.IsZero() {
		v.Uptime = time.Since(t.startedAt).Seconds()
	}
	return v
}

// Restarts returns the consecutive failure count since the last Ready.
func (t *Tracker) Restarts() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.restarts
}

// transition moves to a new state and records it in metrics.
// Called only from the supervisor loop.
func (t *Tracker) transition(to State) {
	t.mu.Lock()
	from := t.state
	t.state = to
	t.mu.Unlock()
	if from == to {
		return
	}
	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(from.String(), false)
	metrics.SetCurrentState(to.String(), true)
}

func (t *Tracker) setLaunched(pid int, at time.Time) {
	t.mu.Lock()
	t.pid = pid
	t.startedAt = at
	t.mu.Unlock()
}

func (t *Tracker) setExited(code int) {
	t.mu.Lock()
	t.pid = 0
	t.lastExitCode = code
	t.mu.Unlock()
}

func (t *Tracker) incRestarts() int {
	t.mu.Lock()
	t.restarts++
	n := t.restarts
	t.mu.Unlock()
	return n
}

func (t *Tracker) resetRestarts() {
	t.mu.Lock()
	t.restarts = 0
	t.mu.Unlock()
}
