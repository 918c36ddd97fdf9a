package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/tally/internal/sim"
)

// Default configuration constants.
const (
	defaultEntities   = 20
	defaultBackers    = 5
	defaultRounds     = 3
	defaultSeed       = 1
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities   = flag.Int("entities", defaultEntities, "Number of entities to register")
		backers    = flag.Int("backers", defaultBackers, "Number of backer stakes per entity")
		rounds     = flag.Int("rounds", defaultRounds, "Number of epoch rounds to play")
		maintainer = flag.String("maintainer", "maintainer", "Account allowed to submit ratings")
		seed       = flag.Int64("seed", defaultSeed, "RNG seed; the same seed replays the same scenario")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		sim.ShowHelp()
		return
	}

	if err := sim.SetupLogging(*verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &sim.Config{
		BaseURL:          *baseURL,
		Entities:         *entities,
		BackersPerEntity: *backers,
		Rounds:           *rounds,
		Maintainer:       *maintainer,
		Seed:             *seed,
		Timeout:          *timeout,
		Verbose:          *verbose,
	}

	if err := sim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
