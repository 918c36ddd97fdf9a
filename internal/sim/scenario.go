package sim

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/okian/tally/pkg/logger"
)

// Run executes the complete staking scenario.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{
		StartTime:    time.Now(),
		TotalClaimed: uint256.NewInt(0),
	}
	client := newHTTPClient(cfg.Timeout)
	rng := rand.New(rand.NewSource(cfg.Seed))

	logger.Get().Info(ctx, "starting tally simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("entities", cfg.Entities),
		logger.Int("backersPerEntity", cfg.BackersPerEntity),
		logger.Int("rounds", cfg.Rounds),
		logger.Any("seed", cfg.Seed))

	if err := checkServiceHealth(ctx, client, cfg); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	p, err := fetchParams(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("parameter fetch failed: %w", err)
	}

	clock, err := fetchClock(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("clock fetch failed: %w", err)
	}

	entities, err := registerEntities(ctx, client, cfg, p, rng, stats)
	if err != nil {
		return fmt.Errorf("entity registration failed: %w", err)
	}

	stakes, err := openStakes(ctx, client, cfg, p, rng, entities, stats)
	if err != nil {
		return fmt.Errorf("stake creation failed: %w", err)
	}

	for round := 0; round < cfg.Rounds; round++ {
		clock += p.EpochLength
		lastEpoch, err := advanceClock(ctx, client, cfg, clock)
		if err != nil {
			return fmt.Errorf("round %d: clock advance failed: %w", round, err)
		}
		if err := scoreEndedEpochs(ctx, client, cfg, clock, lastEpoch, rng, stats); err != nil {
			return fmt.Errorf("round %d: epoch scoring failed: %w", round, err)
		}
	}

	// Push the clock past the claim delay so every scored epoch is payable.
	clock += p.EpochLength
	if _, err := advanceClock(ctx, client, cfg, clock); err != nil {
		return fmt.Errorf("final clock advance failed: %w", err)
	}

	if err := claimAll(ctx, client, cfg, stakes, stats); err != nil {
		return fmt.Errorf("claiming failed: %w", err)
	}

	if err := verifyLeaderboard(ctx, client, cfg, entities); err != nil {
		return fmt.Errorf("leaderboard verification failed: %w", err)
	}

	if err := verifyConservation(p, stats); err != nil {
		return fmt.Errorf("conservation verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *httpClient, cfg *Config) error {
	code, err := client.getJSON(ctx, cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", code)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func fetchParams(ctx context.Context, client *httpClient, cfg *Config) (*params, error) {
	var p params
	code, err := client.getJSON(ctx, cfg.BaseURL+"/admin/params", &p)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", code)
	}
	return &p, nil
}

func fetchClock(ctx context.Context, client *httpClient, cfg *Config) (uint64, error) {
	var stats map[string]any
	code, err := client.getJSON(ctx, cfg.BaseURL+"/stats", &stats)
	if err != nil {
		return 0, err
	}
	if code != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", code)
	}
	clock, ok := stats["clock"].(float64)
	if !ok {
		return 0, fmt.Errorf("stats response missing clock")
	}
	return uint64(clock), nil
}

// registerEntities registers cfg.Entities entities with randomized initial
// stakes at or above the registration minimum.
func registerEntities(ctx context.Context, client *httpClient, cfg *Config, p *params, rng *rand.Rand, stats *Stats) ([]entity, error) {
	minReg, err := uint256.FromDecimal(p.MinRegistrationStake)
	if err != nil {
		return nil, fmt.Errorf("bad min_registration_stake: %w", err)
	}

	entities := make([]entity, 0, cfg.Entities)
	for i := 0; i < cfg.Entities; i++ {
		// Initial stake in [minReg, minReg*10].
		multiplier := uint64(rng.Intn(10) + 1)
		amount := new(uint256.Int).Mul(minReg, uint256.NewInt(multiplier))

		e := entity{
			owner:   fmt.Sprintf("owner-%d", i),
			address: fmt.Sprintf("sim-%d-%s", i, uuid.NewString()[:8]),
			stake:   amount,
		}
		var resp struct {
			EntityID  uint64 `json:"entity_id"`
			Duplicate bool   `json:"duplicate"`
		}
		code, err := client.sendJSON(ctx, http.MethodPost, cfg.BaseURL+"/entities", map[string]any{
			"request_id":    uuid.NewString(),
			"address":       e.address,
			"owner":         e.owner,
			"backers_bps":   uint64(rng.Intn(5000) + 5000),
			"initial_stake": amount.Dec(),
		}, &resp)
		if err != nil {
			return nil, err
		}
		if code != http.StatusCreated {
			return nil, fmt.Errorf("register %s: unexpected status %d", e.address, code)
		}
		e.id = resp.EntityID
		entities = append(entities, e)
		stats.EntitiesRegistered++
	}
	logger.Get().Info(ctx, "entities registered", logger.Int("count", len(entities)))
	return entities, nil
}

// openStakes opens cfg.BackersPerEntity randomized stakes per entity.
func openStakes(ctx context.Context, client *httpClient, cfg *Config, p *params, rng *rand.Rand, entities []entity, stats *Stats) ([]stake, error) {
	minStake, err := uint256.FromDecimal(p.MinStake)
	if err != nil {
		return nil, fmt.Errorf("bad min_stake: %w", err)
	}

	stakes := make([]stake, 0, len(entities)*cfg.BackersPerEntity)
	for _, e := range entities {
		for b := 0; b < cfg.BackersPerEntity; b++ {
			multiplier := uint64(rng.Intn(100) + 1)
			amount := new(uint256.Int).Mul(minStake, uint256.NewInt(multiplier))
			staker := fmt.Sprintf("backer-%d", rng.Intn(cfg.Entities*cfg.BackersPerEntity))

			var resp struct {
				StakeID   uint64 `json:"stake_id"`
				Duplicate bool   `json:"duplicate"`
			}
			code, err := client.sendJSON(ctx, http.MethodPost, cfg.BaseURL+"/stakes", map[string]any{
				"request_id": uuid.NewString(),
				"caller":     staker,
				"entity_id":  e.id,
				"amount":     amount.Dec(),
			}, &resp)
			if err != nil {
				return nil, err
			}
			if code != http.StatusCreated {
				return nil, fmt.Errorf("stake on entity %d: unexpected status %d", e.id, code)
			}
			stakes = append(stakes, stake{id: resp.StakeID, staker: staker, entity: e.id})
			stats.StakesOpened++
		}
	}
	logger.Get().Info(ctx, "stakes opened", logger.Int("count", len(stakes)))
	return stakes, nil
}

// advanceClock moves the service clock forward and returns the id of the
// latest epoch materialized by the move.
func advanceClock(ctx context.Context, client *httpClient, cfg *Config, clock uint64) (uint64, error) {
	var resp struct {
		LastEpoch uint64 `json:"last_epoch"`
	}
	code, err := client.sendJSON(ctx, http.MethodPost, cfg.BaseURL+"/epochs/advance", map[string]any{
		"clock": clock,
	}, &resp)
	if err != nil {
		return 0, err
	}
	if code != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", code)
	}
	return resp.LastEpoch, nil
}

// scoreEndedEpochs submits maintainer ratings for every ended, unscored epoch.
func scoreEndedEpochs(ctx context.Context, client *httpClient, cfg *Config, clock, lastEpoch uint64, rng *rand.Rand, stats *Stats) error {
	for id := uint64(1); id <= lastEpoch; id++ {
		var ep epochPayload
		code, err := client.getJSON(ctx, fmt.Sprintf("%s/epochs/%d", cfg.BaseURL, id), &ep)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return fmt.Errorf("epoch %d: unexpected status %d", id, code)
		}
		if ep.Finalized || ep.End >= clock {
			continue
		}

		ratings := make([]map[string]any, len(ep.TopK))
		for i, eid := range ep.TopK {
			ratings[i] = map[string]any{
				"entity_id": eid,
				"rating":    fmt.Sprintf("%d", rng.Intn(1000)+1),
			}
		}
		code, err = client.sendJSON(ctx, http.MethodPost,
			fmt.Sprintf("%s/epochs/%d/ratings", cfg.BaseURL, id),
			map[string]any{"caller": cfg.Maintainer, "ratings": ratings}, nil)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return fmt.Errorf("epoch %d: rating submission status %d", id, code)
		}
		stats.EpochsScored++
		if cfg.Verbose {
			logger.Get().Info(ctx, "epoch scored",
				logger.Any("epoch", id), logger.Int("candidates", len(ep.TopK)))
		}
	}
	return nil
}

// claimAll claims rewards for every stake and probes replay protection.
func claimAll(ctx context.Context, client *httpClient, cfg *Config, stakes []stake, stats *Stats) error {
	var replayProbe struct {
		url  string
		body map[string]any
	}

	for _, st := range stakes {
		requestID := uuid.NewString()
		body := map[string]any{"request_id": requestID, "caller": st.staker}
		url := fmt.Sprintf("%s/stakes/%d/claim", cfg.BaseURL, st.id)

		var resp struct {
			Claimed   string `json:"claimed"`
			Duplicate bool   `json:"duplicate"`
		}
		code, err := client.sendJSON(ctx, http.MethodPost, url, body, &resp)
		if err != nil {
			return err
		}
		switch code {
		case http.StatusOK:
			claimed, err := uint256.FromDecimal(resp.Claimed)
			if err != nil {
				return fmt.Errorf("stake %d: bad claimed amount %q", st.id, resp.Claimed)
			}
			stats.TotalClaimed.Add(stats.TotalClaimed, claimed)
			stats.ClaimsPaid++
			if replayProbe.url == "" {
				replayProbe.url, replayProbe.body = url, body
			}
		case http.StatusConflict:
			stats.ClaimsEmpty++
		default:
			return fmt.Errorf("stake %d: claim status %d", st.id, code)
		}
	}

	// A replayed request id must be acknowledged without a second payout.
	if replayProbe.url != "" {
		var resp struct {
			Duplicate bool `json:"duplicate"`
		}
		code, err := client.sendJSON(ctx, http.MethodPost, replayProbe.url, replayProbe.body, &resp)
		if err != nil {
			return err
		}
		if code != http.StatusOK || !resp.Duplicate {
			return fmt.Errorf("replayed claim was not detected (status %d)", code)
		}
		stats.ReplaysDetected++
	}
	return nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.Int("entitiesRegistered", stats.EntitiesRegistered),
		logger.Int("stakesOpened", stats.StakesOpened),
		logger.Int("epochsScored", stats.EpochsScored),
		logger.Int("claimsPaid", stats.ClaimsPaid),
		logger.Int("claimsEmpty", stats.ClaimsEmpty),
		logger.Int("replaysDetected", stats.ReplaysDetected),
		logger.String("totalClaimed", stats.TotalClaimed.Dec()),
		logger.String("duration", stats.Duration.String()))
}
