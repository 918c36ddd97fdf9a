package ledger

import (
	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/rating"
)

// catchUp materializes every epoch whose start bound the clock has crossed.
// Called as a pre-operation hook by every mutating operation and by the
// manual trigger; calling it redundantly creates nothing. One call may
// create several epochs back-to-back in strictly increasing id order.
func (l *Ledger) catchUp() {
	for {
		last := l.epochs[l.lastEpoch]
		if last == nil || l.clock < last.End+1 {
			return
		}
		l.createEpoch(last.End + 1)
	}
}

// createEpoch freezes the next epoch: boundaries, the reward budget as
// currently configured, the top-K set keyed by current aggregate stake, and
// per-included-entity snapshots (stake aggregate and backers percentage).
func (l *Ledger) createEpoch(start uint64) {
	l.lastEpoch++
	ep := &Epoch{
		ID:               l.lastEpoch,
		Start:            start,
		End:              start + l.params.EpochLength - 1,
		Reward:           new(uint256.Int).Set(l.params.EpochReward),
		TotalPerformance: uint256.NewInt(0),
		TotalStakeScore:  uint256.NewInt(0),
		Entities:         make(map[EntityID]*EpochEntity),
	}
	for _, id := range rating.TopK(l.candidates(), l.params.TopK) {
		eid := EntityID(id)
		e := l.entities[eid]
		ep.TopK = append(ep.TopK, eid)
		ep.Entities[eid] = &EpochEntity{
			StakeAmount:   new(uint256.Int).Set(e.StakeAmount),
			Included:      true,
			BackersBps:    e.BackersBps,
			Performance:   uint256.NewInt(0),
			StakeScore:    uint256.NewInt(0),
			OwnerReward:   uint256.NewInt(0),
			BackersReward: uint256.NewInt(0),
		}
	}
	l.epochs[ep.ID] = ep
	l.publish(Event{Kind: EventEpochCreated, Clock: l.clock, Epoch: ep.ID, Amount: new(uint256.Int).Set(ep.Reward)})
}

// Epoch returns a copy of the epoch record, reward fields included.
func (l *Ledger) Epoch(id EpochID) (Epoch, error) {
	ep, ok := l.epochs[id]
	if !ok {
		return Epoch{}, ErrNotFound
	}
	out := *ep
	out.Reward = new(uint256.Int).Set(ep.Reward)
	out.TotalPerformance = new(uint256.Int).Set(ep.TotalPerformance)
	out.TotalStakeScore = new(uint256.Int).Set(ep.TotalStakeScore)
	out.TopK = append([]EntityID(nil), ep.TopK...)
	out.Entities = make(map[EntityID]*EpochEntity, len(ep.Entities))
	for eid, ee := range ep.Entities {
		cp := *ee
		cp.StakeAmount = new(uint256.Int).Set(ee.StakeAmount)
		cp.Performance = new(uint256.Int).Set(ee.Performance)
		cp.StakeScore = new(uint256.Int).Set(ee.StakeScore)
		cp.OwnerReward = new(uint256.Int).Set(ee.OwnerReward)
		cp.BackersReward = new(uint256.Int).Set(ee.BackersReward)
		out.Entities[eid] = &cp
	}
	return out, nil
}

// CurrentEpoch returns a copy of the epoch containing the clock.
func (l *Ledger) CurrentEpoch() Epoch {
	ep, _ := l.Epoch(l.lastEpoch)
	return ep
}

// LastEpochID returns the highest created epoch id.
func (l *Ledger) LastEpochID() EpochID { return l.lastEpoch }
