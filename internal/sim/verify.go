package sim

import (
	"context"
	"fmt"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/okian/tally/pkg/logger"
)

const leaderboardLimitCap = 100

// verifyLeaderboard checks that the leaderboard is sorted by aggregate stake
// descending, with ties broken by entity id ascending.
func verifyLeaderboard(ctx context.Context, client *httpClient, cfg *Config, entities []entity) error {
	limit := len(entities)
	if limit > leaderboardLimitCap {
		limit = leaderboardLimitCap
	}
	if limit == 0 {
		return nil
	}

	var rows []leaderboardRow
	code, err := client.getJSON(ctx, fmt.Sprintf("%s/leaderboard?limit=%d", cfg.BaseURL, limit), &rows)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", code)
	}
	if len(rows) == 0 {
		return fmt.Errorf("leaderboard is empty with %d registered entities", len(entities))
	}

	prev, err := uint256.FromDecimal(rows[0].Stake)
	if err != nil {
		return fmt.Errorf("rank 1: bad stake %q", rows[0].Stake)
	}
	for i := 1; i < len(rows); i++ {
		cur, err := uint256.FromDecimal(rows[i].Stake)
		if err != nil {
			return fmt.Errorf("rank %d: bad stake %q", i+1, rows[i].Stake)
		}
		switch prev.Cmp(cur) {
		case -1:
			return fmt.Errorf("rank %d (%s) outranks rank %d (%s)",
				i+1, rows[i].Stake, i, rows[i-1].Stake)
		case 0:
			if rows[i-1].EntityID > rows[i].EntityID {
				return fmt.Errorf("tie at stake %s not broken by entity id: %d before %d",
					rows[i].Stake, rows[i-1].EntityID, rows[i].EntityID)
			}
		}
		prev = cur
	}

	logger.Get().Info(ctx, "leaderboard verified", logger.Int("rows", len(rows)))
	return nil
}

// verifyConservation checks that the total paid out never exceeds the budget
// of the scored epochs.
func verifyConservation(p *params, stats *Stats) error {
	reward, err := uint256.FromDecimal(p.EpochReward)
	if err != nil {
		return fmt.Errorf("bad epoch_reward: %w", err)
	}
	budget := new(uint256.Int).Mul(reward, uint256.NewInt(uint64(stats.EpochsScored)))
	if stats.TotalClaimed.Gt(budget) {
		return fmt.Errorf("claimed %s exceeds budget %s over %d scored epochs",
			stats.TotalClaimed.Dec(), budget.Dec(), stats.EpochsScored)
	}
	return nil
}
