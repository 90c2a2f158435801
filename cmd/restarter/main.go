package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/cascandaliato/restarter/internal/runtime"
	"github.com/cascandaliato/restarter/internal/supervisor"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"

	dumpGraph bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "restarter",
	Short:   "Restart or recreate containers whose dependencies are unhealthy, missing, or out of order",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.Flags().BoolVar(&dumpGraph, "dump-graph", false,
		"log the discovered dependency graph as YAML on every pass")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the restarter version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(Version)
		return nil
	},
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	adapter := runtime.New(cli)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return supervisor.Run(ctx, adapter, supervisor.Options{DumpGraph: dumpGraph})
}
