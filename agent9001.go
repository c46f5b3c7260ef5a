package agent9001

import (
	"context"

	"github.com/captainplanet9000/Agent9001/internal/config"
	"github.com/captainplanet9000/Agent9001/internal/gateway"
	"github.com/captainplanet9000/Agent9001/internal/process"
	"github.com/captainplanet9000/Agent9001/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type State = supervisor.State

type Policy = supervisor.Policy

type Tracker = supervisor.Tracker

const (
	StateStarting     = supervisor.StateStarting
	StateInitializing = supervisor.StateInitializing
	StateReady        = supervisor.StateReady
	StateDegraded     = supervisor.StateDegraded
	StateCrashed      = supervisor.StateCrashed
	StateRestarting   = supervisor.StateRestarting
	StateStopped      = supervisor.StateStopped
)

// ErrGiveUp is returned by Supervisor.Run when the restart ceiling is
// exceeded; the process should then exit non-zero.
var ErrGiveUp = supervisor.ErrGiveUp

// LoadConfig reads configuration from the environment, optionally overlaid
// on a TOML file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Supervisor is a thin facade over the internal supervisor for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// NewSupervisor builds a supervisor for the backend described by cfg.
func NewSupervisor(cfg *Config) *Supervisor {
	spec := process.Spec{
		Name:    "backend",
		Command: cfg.BackendCommand,
		WorkDir: cfg.WorkDir,
		Log:     cfg.Log,
	}
	inner := supervisor.New(supervisor.Config{
		Launcher:      process.NewLauncher(spec),
		Policy:        Policy{MaxRestarts: cfg.MaxRestarts, Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		BackendURL:    cfg.BackendURL(),
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		ShutdownGrace: cfg.ShutdownGrace,
	})
	return &Supervisor{inner: inner}
}

func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) Tracker() *Tracker             { return s.inner.Tracker() }
func (s *Supervisor) Done() <-chan struct{}         { return s.inner.Done() }

// Gateway is a thin facade over the internal gateway for embedding.
type Gateway struct{ inner *gateway.Gateway }

func NewGateway(cfg *Config, t *Tracker) (*Gateway, error) {
	inner, err := gateway.New(gateway.Config{
		ListenAddr: cfg.ListenAddr(),
		HealthPath: cfg.HealthPath,
		BackendURL: cfg.BackendURL(),
	}, t)
	if err != nil {
		return nil, err
	}
	return &Gateway{inner: inner}, nil
}

func (g *Gateway) ListenAndServe() error              { return g.inner.ListenAndServe() }
func (g *Gateway) Shutdown(ctx context.Context) error { return g.inner.Shutdown(ctx) }
