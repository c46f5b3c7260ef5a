package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	statusFlags := &StatusFlags{}

	root := &cobra.Command{
		Use:     "agent9001",
		Short:   "Deployment shim that fronts the Agent9001 backend",
		Long:    "agent9001 supervises the backend agent process, answers platform health checks\nimmediately after start, and forwards traffic once the backend is reachable.",
		Version: version,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "optional TOML config file (environment wins otherwise)")

	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(statusFlags),
	)
	return root
}
