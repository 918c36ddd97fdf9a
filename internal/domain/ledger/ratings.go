package ledger

import (
	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/rating"
	"github.com/okian/tally/internal/domain/score"
)

// PerformanceRating is one entity's externally measured score for an epoch.
type PerformanceRating struct {
	Entity EntityID
	Rating *uint256.Int
}

// SubmitPerformance scores a closed epoch in one atomic step: it accepts
// exactly the epoch's frozen top-K set, records each entity's performance
// rating, computes each included entity's total stake score as of the
// epoch's end bound, splits the epoch budget across entities by the blended
// rating, and freezes the owner/backers reward amounts. Maintainer-gated,
// rejected before the epoch has ended and rejected on a second attempt.
func (l *Ledger) SubmitPerformance(caller string, id EpochID, ratings []PerformanceRating) error {
	l.catchUp()

	if err := l.requireMaintainer(caller); err != nil {
		return err
	}
	ep, ok := l.epochs[id]
	if !ok {
		return ErrNotFound
	}
	if l.clock <= ep.End {
		return ErrEpochNotEnded
	}
	if ep.Finalized {
		return ErrEpochAlreadyScored
	}

	// The submitted list must cover the frozen top-K set exactly, no more
	// and no less.
	if len(ratings) != len(ep.TopK) {
		return ErrInvalidCandidateSet
	}
	seen := make(map[EntityID]*uint256.Int, len(ratings))
	for _, r := range ratings {
		ee := ep.Entities[r.Entity]
		if ee == nil || !ee.Included {
			return ErrInvalidCandidateSet
		}
		if _, dup := seen[r.Entity]; dup {
			return ErrInvalidCandidateSet
		}
		if r.Rating == nil {
			return ErrInvalidAmount
		}
		seen[r.Entity] = r.Rating
	}

	totalPerformance := uint256.NewInt(0)
	totalStakeScore := uint256.NewInt(0)
	entityScores := make(map[EntityID]*uint256.Int, len(ep.TopK))
	for _, eid := range ep.TopK {
		totalPerformance.Add(totalPerformance, seen[eid])
		s := l.entityStakeScore(eid, ep)
		entityScores[eid] = s
		totalStakeScore.Add(totalStakeScore, s)
	}

	// All inputs validated and derived; commit.
	ep.TotalPerformance = totalPerformance
	ep.TotalStakeScore = totalStakeScore
	for _, eid := range ep.TopK {
		ee := ep.Entities[eid]
		ee.Performance = new(uint256.Int).Set(seen[eid])
		ee.StakeScore = entityScores[eid]

		reward := rating.Split(ep.Reward, ee.StakeScore, totalStakeScore, ee.Performance, totalPerformance, l.params.RatingWeights)
		owner := new(uint256.Int).Mul(reward, uint256.NewInt(PctDenominator-ee.BackersBps))
		owner.Div(owner, uint256.NewInt(PctDenominator))
		ee.OwnerReward = owner
		ee.BackersReward = new(uint256.Int).Sub(reward, owner)
	}
	ep.Finalized = true

	l.publish(Event{Kind: EventEpochFinalized, Clock: l.clock, Epoch: ep.ID, Amount: new(uint256.Int).Set(ep.Reward)})
	return nil
}

// entityStakeScore sums the time-decayed scores, as of the epoch's end
// bound, of every stake that contributed to the epoch for this entity.
func (l *Ledger) entityStakeScore(eid EntityID, ep *Epoch) *uint256.Int {
	total := uint256.NewInt(0)
	e := l.entities[eid]
	if e == nil {
		return total
	}
	for _, sid := range e.stakesByOrder {
		s := l.stakes[sid]
		if !s.contributes(ep) {
			continue
		}
		total.Add(total, l.stakeScore(s, ep))
	}
	return total
}

// stakeScore is one stake's time-decayed score as of the epoch's end bound.
// Duration counts from the stake's opening, so long-held stakes out-earn
// fresh ones.
func (l *Ledger) stakeScore(s *Stake, ep *Epoch) *uint256.Int {
	periods := score.Periods(s.StartClock, ep.End, l.params.PeriodLength)
	return score.Compute(s.Amount, periods)
}
