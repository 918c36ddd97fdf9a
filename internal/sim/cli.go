package sim

import (
	"fmt"
	"os"

	"github.com/okian/tally/pkg/logger"
)

// SetupLogging initializes the logger for a simulation run.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return fmt.Errorf("failed to set log level: %w", err)
		}
	}
	return nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Tally Simulation Tool
=====================

Drives a deterministic staking scenario against a running tally service and
verifies its behavior from the outside: registration, staking, epoch scoring,
reward claims, replay protection and leaderboard ordering.

Usage:
  go run cmd/simulate/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -entities int
        Number of entities to register (default 20)
  -backers int
        Number of backer stakes per entity (default 5)
  -rounds int
        Number of epoch rounds to play (default 3)
  -maintainer string
        Account allowed to submit ratings (default "maintainer")
  -seed int
        RNG seed; the same seed replays the same scenario (default 1)
  -timeout duration
        HTTP request timeout (default 30s)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run cmd/simulate/main.go

  # A larger scenario against a remote service
  go run cmd/simulate/main.go -entities 100 -backers 10 -rounds 5 -url http://localhost:8080

  # Replay a specific scenario with verbose output
  go run cmd/simulate/main.go -seed 42 -verbose
`)
}
