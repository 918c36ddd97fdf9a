package repository

import "errors"

// Sentinel kinds for ranking-index errors.
var (
	ErrNotFound     = errors.New("entity not ranked")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
