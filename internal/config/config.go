// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer sources.
// - Amount fields are decimal strings so they survive YAML/env round-trips
//   without float truncation; ToLedgerParams parses them.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"runtime"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/rating"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory event bus.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event delivery workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the request deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Owner and Maintainer are the privileged accounts.
	Owner      string `koanf:"owner"`
	Maintainer string `koanf:"maintainer"`

	// StartClock is the logical clock value the ledger boots at.
	StartClock uint64 `koanf:"start_clock"`

	// Ledger parameters. Durations are logical-clock units, amounts are
	// decimal strings in base units, percentages are basis points.
	EpochLength             uint64 `koanf:"epoch_length"`
	PeriodLength            uint64 `koanf:"period_length"`
	EpochReward             string `koanf:"epoch_reward"`
	MinStake                string `koanf:"min_stake"`
	MinRegistrationStake    string `koanf:"min_registration_stake"`
	SubEligibilityThreshold string `koanf:"sub_eligibility_threshold"`
	EligibilityThreshold    string `koanf:"eligibility_threshold"`
	MinBackersBps           uint64 `koanf:"min_backers_bps"`
	WithdrawalDelay         uint64 `koanf:"withdrawal_delay"`
	ClaimDelay              uint64 `koanf:"claim_delay"`
	TopK                    int    `koanf:"top_k"`
	MaxEntities             int    `koanf:"max_entities"`
	StakeWeightBps          uint64 `koanf:"stake_weight_bps"`
	PerformanceWeightBps    uint64 `koanf:"performance_weight_bps"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		EventQueueSize:      100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 100,
		Owner:               "owner",
		Maintainer:          "maintainer",
		StartClock:          0,

		EpochLength:             1000,
		PeriodLength:            100,
		EpochReward:             "1000000000000000000000",
		MinStake:                "1000000000000000000",
		MinRegistrationStake:    "100000000000000000000",
		SubEligibilityThreshold: "500000000000000000000",
		EligibilityThreshold:    "1000000000000000000000",
		MinBackersBps:           3000,
		WithdrawalDelay:         2000,
		ClaimDelay:              500,
		TopK:                    64,
		MaxEntities:             0,
		StakeWeightBps:          8000,
		PerformanceWeightBps:    2000,
	}
}

// ToLedgerParams parses the amount strings and assembles a ledger parameter
// set. The result is validated before being returned.
func (c *Config) ToLedgerParams() (ledger.Params, error) {
	amounts := map[string]string{
		"epoch_reward":              c.EpochReward,
		"min_stake":                 c.MinStake,
		"min_registration_stake":    c.MinRegistrationStake,
		"sub_eligibility_threshold": c.SubEligibilityThreshold,
		"eligibility_threshold":     c.EligibilityThreshold,
	}
	parsed := make(map[string]*uint256.Int, len(amounts))
	for key, raw := range amounts {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return ledger.Params{}, fmt.Errorf("%w: %s %q: %w", ErrInvalidConfig, key, raw, err)
		}
		parsed[key] = v
	}

	p := ledger.Params{
		EpochLength:             c.EpochLength,
		PeriodLength:            c.PeriodLength,
		EpochReward:             parsed["epoch_reward"],
		MinStake:                parsed["min_stake"],
		MinRegistrationStake:    parsed["min_registration_stake"],
		SubEligibilityThreshold: parsed["sub_eligibility_threshold"],
		EligibilityThreshold:    parsed["eligibility_threshold"],
		MinBackersBps:           c.MinBackersBps,
		WithdrawalDelay:         c.WithdrawalDelay,
		ClaimDelay:              c.ClaimDelay,
		TopK:                    c.TopK,
		MaxEntities:             c.MaxEntities,
		RatingWeights: rating.Weights{
			StakeBps:       c.StakeWeightBps,
			PerformanceBps: c.PerformanceWeightBps,
		},
	}
	if err := p.Validate(); err != nil {
		return ledger.Params{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}
