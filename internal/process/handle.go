package process

import "time"

// Handle is the narrow capability the supervisor needs from a child process:
// start it, wait for it, stop it, and observe it. One Handle corresponds to
// one launch; a restart creates a fresh Handle.
type Handle interface {
	// Start launches the child. It returns an error if the executable
	// cannot be spawned at all.
	Start() error
	// Wait blocks until the child exits and returns its exit error
	// (nil for a clean exit). It must be called at most once.
	Wait() error
	// Stop sends SIGTERM to the child's process group, waits up to grace,
	// then escalates to SIGKILL.
	Stop(grace time.Duration) error
	// Alive reports whether the child is currently running.
	Alive() bool
	// Snapshot returns the current status.
	Snapshot() Status
}

// Launcher creates a fresh Handle per backend lifecycle. Injected into the
// supervisor so its decision logic is testable without real processes.
type Launcher func() Handle

// NewLauncher returns a Launcher producing real OS processes from spec.
func NewLauncher(spec Spec) Launcher {
	return func() Handle { return New(spec) }
}
