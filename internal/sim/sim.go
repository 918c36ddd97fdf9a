// Package sim drives a deterministic staking scenario against a running
// service over its HTTP API and verifies the ledger's invariants from the
// outside: leaderboard ordering, claim conservation and replay protection.
package sim

import (
	"time"

	"github.com/holiman/uint256"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Entities         int           // Number of entities to register
	BackersPerEntity int           // Number of backer stakes per entity
	Rounds           int           // Number of epoch rounds to play
	Maintainer       string        // Account allowed to submit ratings
	Seed             int64         // RNG seed; same seed, same scenario
	Timeout          time.Duration // HTTP request timeout
	Verbose          bool          // Enable verbose logging
}

// Stats holds simulation statistics.
type Stats struct {
	EntitiesRegistered int
	StakesOpened       int
	EpochsScored       int
	ClaimsPaid         int
	ClaimsEmpty        int
	ReplaysDetected    int
	TotalClaimed       *uint256.Int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// entity tracks one registered entity on the client side.
type entity struct {
	id      uint64
	owner   string
	address string
	stake   *uint256.Int
}

// stake tracks one opened stake on the client side.
type stake struct {
	id     uint64
	staker string
	entity uint64
}

// params mirrors the GET /admin/params payload.
type params struct {
	EpochLength          uint64 `json:"epoch_length"`
	PeriodLength         uint64 `json:"period_length"`
	EpochReward          string `json:"epoch_reward"`
	MinStake             string `json:"min_stake"`
	MinRegistrationStake string `json:"min_registration_stake"`
	TopK                 int    `json:"top_k"`
}

type leaderboardRow struct {
	Rank     int    `json:"rank"`
	EntityID uint64 `json:"entity_id"`
	Stake    string `json:"stake"`
}

type epochPayload struct {
	ID        uint64   `json:"id"`
	Start     uint64   `json:"start"`
	End       uint64   `json:"end"`
	Reward    string   `json:"reward"`
	Finalized bool     `json:"finalized"`
	TopK      []uint64 `json:"top_k"`
}
