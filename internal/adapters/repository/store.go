// Package repository defines the live ranking index and its errors.
package repository

import (
	"context"

	"github.com/holiman/uint256"
)

// Entry represents one leaderboard row.
type Entry struct {
	Rank     int
	EntityID uint64
	Stake    *uint256.Int
}

// Store provides read/write access to the live entity ranking, ordered by
// aggregate stake descending with ties broken by ascending entity id.
type Store interface {
	// Upsert sets the entity's current aggregate stake.
	Upsert(ctx context.Context, entityID uint64, stake *uint256.Int)

	// Remove drops the entity from the ranking.
	Remove(ctx context.Context, entityID uint64)

	// Rank returns the current rank and stake for an entity.
	// Returns ErrNotFound if the entity is unknown.
	Rank(ctx context.Context, entityID uint64) (Entry, error)

	// TopN returns the top-N entries in rank order.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of entities tracked.
	Count(ctx context.Context) int
}
