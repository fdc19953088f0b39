// Gray Store - SQLite connection configuration and WAL checkpoint service
//
// This is the main entry point for the graystore command. It opens the
// configured databases through their configuration chains, checkpoints
// their write-ahead logs in the background, and reports what it does over
// MQTT, InfluxDB and an HTTP admin API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/graystore/internal/dbconfig"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Exit codes.
const (
	exitError = 1
	// exitFatal reports a database configuration that must never be used,
	// such as a read-only handle on a WAL database.
	exitFatal = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case dbconfig.IsFatal(err):
		return exitFatal
	default:
		return exitError
	}
}
