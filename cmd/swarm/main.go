// Package main provides the CLI entry point for the swarm application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrison/swarm/internal/swarmcli"
)

// Version is the current version of the swarm application, injected at
// build time via -ldflags.
const Version = "1.0.0"

// interruptExitCode follows the shell convention of 128+signal for a
// process terminated by SIGINT.
const interruptExitCode = 130

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	swarmcli.Version = Version
	rootCmd := swarmcli.NewRootCommand()

	err := rootCmd.ExecuteContext(ctx)
	if ctx.Err() != nil {
		os.Exit(interruptExitCode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
