// Package cmd defines and implements the CLI commands for the
// algo-control-plane executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algo-control-plane",
		Short: "Control plane for registering and running algorithm workloads",
		Long: `algo-control-plane manages the lifecycle of containerized algorithm
workers: it registers algorithms, provisions a request queue and compute
service for each one, routes jobs to active algorithms and streams results
back to connected clients.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
