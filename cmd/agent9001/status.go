package main

import (
	"context"
	"fmt"
	"time"

	"github.com/captainplanet9000/Agent9001/pkg/client"
	"github.com/spf13/cobra"
)

func createStatusCommand(flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running shim for its backend lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.APITimeout)
			defer cancel()

			st, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("shim not reachable at %s: %w", flags.APIUrl, err)
			}
			fmt.Printf("state:          %s\n", st.State)
			fmt.Printf("pid:            %d\n", st.PID)
			fmt.Printf("restarts:       %d\n", st.Restarts)
			fmt.Printf("last exit code: %d\n", st.LastExitCode)
			if st.Uptime > 0 {
				fmt.Printf("uptime:         %.0fs\n", st.Uptime)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080", "base URL of the running shim")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}
