// Package supervisor owns the backend child process lifecycle. It launches
// the backend, observes readiness probes and process exits as events feeding
// a single state machine, and applies the restart policy on failure.
package supervisor

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/history"
	"github.com/captainplanet9000/Agent9001/internal/metrics"
	"github.com/captainplanet9000/Agent9001/internal/probe"
	"github.com/captainplanet9000/Agent9001/internal/process"
)

// launchFailureCode marks a child that could not be spawned at all.
const launchFailureCode = -1

// Config wires the supervisor's collaborators. Launcher produces one Handle
// per lifecycle; History may be nil.
type Config struct {
	Launcher      process.Launcher
	Policy        Policy
	BackendURL    string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	ShutdownGrace time.Duration
	History       history.Sink
}

type eventKind int

const (
	evExit eventKind = iota
	evProbeOK
	evProbeFail
)

type event struct {
	kind eventKind
	seq  uint64 // launch cycle the event belongs to
	code int
	err  error
}

// Supervisor runs one backend child at a time. The Run loop is the only
// writer of the shared Tracker; the prober and the exit waiter are producers
// into its event channel.
type Supervisor struct {
	cfg     Config
	tracker *Tracker
	events  chan event
	cycle   atomic.Uint64 // current launch cycle, stamps events
	done    chan struct{}
}

func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		tracker: NewTracker(),
		events:  make(chan event, 16),
		done:    make(chan struct{}),
	}
}

// Tracker returns the shared lifecycle state handle for readers.
func (s *Supervisor) Tracker() *Tracker { return s.tracker }

// Done is closed when the supervisor loop has terminated.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Run launches the backend and the prober, then supervises until ctx is
// cancelled (clean shutdown, returns nil) or the restart ceiling is exceeded
// (returns ErrGiveUp). All state transitions happen here.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	pctx, pcancel := context.WithCancel(ctx)
	defer pcancel()
	pr := probe.New(s.cfg.BackendURL, s.cfg.ProbeInterval, s.cfg.ProbeTimeout, s.reportProbe)
	go pr.Run(pctx)

	for {
		seq := s.cycle.Add(1)
		h, launchErr := s.launch()

		var exitCode int
		if launchErr != nil {
			slog.Error("backend launch failed", "error", launchErr)
			exitCode = launchFailureCode
			s.tracker.transition(StateCrashed)
		} else {
			go s.waitExit(h, seq)
			code, shutdown := s.observe(ctx, seq)
			if shutdown {
				slog.Info("shutting down backend", "grace", s.cfg.ShutdownGrace)
				_ = h.Stop(s.cfg.ShutdownGrace)
				s.tracker.transition(StateStopped)
				return nil
			}
			exitCode = code
			s.tracker.transition(StateCrashed)
		}

		s.tracker.setExited(exitCode)
		metrics.IncExit(strconv.Itoa(exitCode))
		attempt := s.tracker.incRestarts()
		s.record(history.EventExit, exitCode, attempt)

		d := s.cfg.Policy.Decide(exitCode, attempt)
		if d.GiveUp {
			slog.Error("restart ceiling exceeded, giving up",
				"attempts", attempt, "ceiling", s.cfg.Policy.MaxRestarts)
			s.record(history.EventGiveUp, exitCode, attempt)
			s.tracker.transition(StateStopped)
			return ErrGiveUp
		}

		slog.Warn("backend exited, scheduling restart",
			"exit_code", exitCode, "attempt", attempt, "delay", d.Delay)
		s.tracker.transition(StateRestarting)
		if d.Delay > 0 {
			t := time.NewTimer(d.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				s.tracker.transition(StateStopped)
				return nil
			case <-t.C:
			}
		}
		metrics.IncRestart()
	}
}

// launch starts a fresh child. The Starting transition is published before
// the child can possibly be reachable, so the forwarder never races ahead of
// a not-yet-live backend.
func (s *Supervisor) launch() (process.Handle, error) {
	s.tracker.transition(StateStarting)
	h := s.cfg.Launcher()
	metrics.IncStart()
	if err := h.Start(); err != nil {
		return nil, err
	}
	st := h.Snapshot()
	s.tracker.setLaunched(st.PID, st.StartedAt)
	s.tracker.transition(StateInitializing)
	slog.Info("backend launched", "pid", st.PID)
	s.record(history.EventLaunch, 0, s.tracker.Restarts())
	return h, nil
}

// observe consumes probe and exit events for the given cycle until the child
// exits or ctx is cancelled. Events stamped with another cycle are stale and
// ignored.
func (s *Supervisor) observe(ctx context.Context, seq uint64) (exitCode int, shutdown bool) {
	for {
		select {
		case <-ctx.Done():
			return 0, true
		case ev := <-s.events:
			if ev.seq != seq {
				continue
			}
			switch ev.kind {
			case evExit:
				return ev.code, false
			case evProbeOK:
				s.onProbeOK()
			case evProbeFail:
				s.onProbeFail(ev.err)
			}
		}
	}
}

func (s *Supervisor) onProbeOK() {
	switch s.tracker.State() {
	case StateStarting, StateInitializing:
		s.tracker.resetRestarts()
		s.tracker.transition(StateReady)
		slog.Info("backend ready")
		s.record(history.EventReady, 0, 0)
	case StateDegraded:
		s.tracker.transition(StateReady)
		slog.Info("backend recovered")
	default:
	}
}

func (s *Supervisor) onProbeFail(err error) {
	// Probe failure never triggers a restart; restarts are driven only by
	// actual process exit to avoid restart storms from transient slowness.
	if s.tracker.State() == StateReady {
		s.tracker.transition(StateDegraded)
		slog.Warn("readiness probe failed while ready", "error", err)
	}
}

// waitExit blocks on the child and delivers its exit exactly once.
func (s *Supervisor) waitExit(h process.Handle, seq uint64) {
	err := h.Wait()
	code := process.ExitCode(err)
	select {
	case s.events <- event{kind: evExit, seq: seq, code: code, err: err}:
	case <-s.done:
	}
}

// reportProbe is the prober's sink. Non-blocking: when the loop is busy
// (e.g. sleeping out a backoff) stale results are dropped.
func (s *Supervisor) reportProbe(r probe.Result) {
	ev := event{kind: evProbeOK, seq: s.cycle.Load()}
	if !r.OK {
		ev.kind = evProbeFail
		ev.err = r.Err
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Supervisor) record(t history.EventType, exitCode, attempt int) {
	if s.cfg.History == nil {
		return
	}
	v := s.tracker.Snapshot()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		PID:        v.PID,
		ExitCode:   exitCode,
		Attempt:    attempt,
		State:      v.State,
	}
	_ = s.cfg.History.Send(context.Background(), e)
}
