package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/captainplanet9000/Agent9001/internal/config"
	"github.com/captainplanet9000/Agent9001/internal/gateway"
	"github.com/captainplanet9000/Agent9001/internal/history"
	histfactory "github.com/captainplanet9000/Agent9001/internal/history/factory"
	"github.com/captainplanet9000/Agent9001/internal/metrics"
	"github.com/captainplanet9000/Agent9001/internal/process"
	"github.com/captainplanet9000/Agent9001/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shim: launch the backend, answer health checks, forward traffic",
		Long: `Run the deployment shim.

The shim binds the public port immediately so the platform's health checks
pass during the backend's cold start, launches the backend as a child
process, probes its internal port for readiness, forwards all non-health
traffic once it is reachable, and restarts it with exponential backoff when
it crashes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := serveFlags.ConfigPath
			if path == "" {
				path = globalFlags.ConfigPath
			}
			return runServe(path)
		},
	}
	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "optional TOML config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Log.Setup()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	if err := os.MkdirAll(cfg.MemoryDir, 0o750); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	sink, err := openHistory(cfg)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot initialization step before the first backend launch.
	// Best-effort: a failed init is logged, the backend still gets its chance.
	if cfg.InitCommand != "" {
		slog.Info("running init command", "command", cfg.InitCommand)
		initSpec := process.Spec{Name: "init", Command: cfg.InitCommand, WorkDir: cfg.WorkDir}
		if err := process.RunOnce(ctx, initSpec); err != nil {
			slog.Warn("init command failed", "error", err)
		}
	}

	sup := supervisor.New(supervisor.Config{
		Launcher:      process.NewLauncher(backendSpec(cfg)),
		Policy:        supervisor.Policy{MaxRestarts: cfg.MaxRestarts, Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		BackendURL:    cfg.BackendURL(),
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		ShutdownGrace: cfg.ShutdownGrace,
		History:       sink,
	})

	gw, err := gateway.New(gateway.Config{
		ListenAddr: cfg.ListenAddr(),
		HealthPath: cfg.HealthPath,
		BackendURL: cfg.BackendURL(),
	}, sup.Tracker())
	if err != nil {
		return err
	}

	slog.Info("shim starting",
		"listen", cfg.ListenAddr(),
		"backend", cfg.BackendAddr(),
		"health_path", cfg.HealthPath,
		"max_restarts", cfg.MaxRestarts,
		"max_replicas", cfg.MaxReplicas)

	supErr := make(chan error, 1)
	go func() { supErr <- sup.Run(ctx) }()

	gwErr := make(chan error, 1)
	go func() {
		if err := gw.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gwErr <- err
			return
		}
		gwErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-supErr:
		// Supervisor terminated on its own: restart ceiling exceeded.
		stop()
	case runErr = <-gwErr:
		// Listener died; tear the supervisor down too.
		stop()
		<-supErr
	case <-ctx.Done():
		runErr = <-supErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown incomplete", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("shim stopped")
	return nil
}

// backendSpec derives the child process spec from configuration. Host and
// port are handed to the backend as arguments and environment so it binds
// the internal address the prober and forwarder expect.
func backendSpec(cfg *config.Config) process.Spec {
	return process.Spec{
		Name:    "backend",
		Command: fmt.Sprintf("%s --host %s --port %d", cfg.BackendCommand, cfg.BackendHost, cfg.BackendPort),
		WorkDir: cfg.WorkDir,
		Env: []string{
			fmt.Sprintf("HOST=%s", cfg.BackendHost),
			fmt.Sprintf("PORT=%d", cfg.BackendPort),
			fmt.Sprintf("MEMORY_DIR=%s", cfg.MemoryDir),
		},
		PIDFile: filepath.Join(cfg.MemoryDir, "backend.pid"),
		Log:     cfg.Log,
	}
}

func openHistory(cfg *config.Config) (history.Sink, error) {
	dsn := cfg.HistoryDSN
	if dsn == "" {
		dsn = cfg.HistoryPath()
	}
	inner, err := histfactory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	return history.NewAsync(inner, 64), nil
}
