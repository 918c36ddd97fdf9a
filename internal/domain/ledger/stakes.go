package ledger

import "github.com/holiman/uint256"

// CreateStake opens a new stake owned by caller against an active entity.
func (l *Ledger) CreateStake(caller string, entity EntityID, amount *uint256.Int) (StakeID, error) {
	l.catchUp()

	e, ok := l.entities[entity]
	if !ok {
		return 0, ErrNotFound
	}
	if !e.Status.active() {
		return 0, ErrInvalidStatus
	}
	if amount == nil || amount.Cmp(l.params.MinStake) < 0 {
		return 0, ErrInvalidAmount
	}
	return l.addStake(e, caller, amount), nil
}

// addStake records a validated stake, bumps the entity aggregate and
// re-evaluates the threshold-driven status.
func (l *Ledger) addStake(e *Entity, staker string, amount *uint256.Int) StakeID {
	l.nextStake++
	s := &Stake{
		ID:         l.nextStake,
		Staker:     staker,
		Entity:     e.ID,
		Amount:     new(uint256.Int).Set(amount),
		StartClock: l.clock,
		// Epochs before the stake existed can never pay it.
		ClaimCursor: EpochID(0),
	}
	if l.lastEpoch > 0 {
		s.ClaimCursor = l.lastEpoch - 1
	}
	l.stakes[s.ID] = s
	e.StakeAmount.Add(e.StakeAmount, s.Amount)
	e.openStakes++
	e.stakesByOrder = append(e.stakesByOrder, s.ID)

	l.publish(Event{Kind: EventStaked, Clock: l.clock, Account: staker, Entity: e.ID, Stake: s.ID, Amount: new(uint256.Int).Set(s.Amount)})
	l.refreshStatus(e)
	return s.ID
}

// CloseStake closes an open stake. The entity aggregate drops immediately and
// the status is re-evaluated, but snapshots of already-created epochs are
// untouched. Stake opened during the current epoch has no unstakeable
// portion yet and is rejected; funds are released by WithdrawStake after the
// delay.
func (l *Ledger) CloseStake(caller string, id StakeID) error {
	l.catchUp()

	s, ok := l.stakes[id]
	if !ok {
		return ErrNotFound
	}
	if err := l.requireStakeOwner(caller, s); err != nil {
		return err
	}
	if !s.open() {
		return ErrInvalidStatus
	}
	if cur := l.epochs[l.lastEpoch]; cur != nil && s.StartClock >= cur.Start {
		return ErrInvalidAmount
	}

	e := l.entities[s.Entity]
	s.EndClock = l.clock
	e.StakeAmount.Sub(e.StakeAmount, s.Amount)
	e.openStakes--

	l.publish(Event{Kind: EventStakeClosed, Clock: l.clock, Account: caller, Entity: e.ID, Stake: s.ID, Amount: new(uint256.Int).Set(s.Amount)})
	l.refreshStatus(e)
	return nil
}

// WithdrawStake releases the funds of a closed stake once the withdrawal
// delay has elapsed.
func (l *Ledger) WithdrawStake(caller string, id StakeID) error {
	l.catchUp()

	s, ok := l.stakes[id]
	if !ok {
		return ErrNotFound
	}
	if err := l.requireStakeOwner(caller, s); err != nil {
		return err
	}
	if s.open() {
		return ErrNotClosed
	}
	if s.Withdrawn {
		return ErrAlreadyWithdrawn
	}
	if l.clock < s.EndClock+l.params.WithdrawalDelay {
		return ErrWithdrawalTooEarly
	}

	s.Withdrawn = true
	l.publish(Event{Kind: EventStakeWithdrawn, Clock: l.clock, Account: caller, Entity: s.Entity, Stake: s.ID, Amount: new(uint256.Int).Set(s.Amount)})
	return nil
}

// UnstakeableAmount sums the caller's open stake against an entity that was
// opened before the current epoch's start bound. Stake contributed mid-epoch
// cannot be unwound until the next boundary has been crossed.
func (l *Ledger) UnstakeableAmount(staker string, entity EntityID) *uint256.Int {
	out := uint256.NewInt(0)
	e, ok := l.entities[entity]
	if !ok {
		return out
	}
	cur := l.epochs[l.lastEpoch]
	for _, id := range e.stakesByOrder {
		s := l.stakes[id]
		if s.Staker != staker || !s.open() {
			continue
		}
		if cur != nil && s.StartClock >= cur.Start {
			continue
		}
		out.Add(out, s.Amount)
	}
	return out
}

// Stake returns a copy of the stake record.
func (l *Ledger) Stake(id StakeID) (Stake, error) {
	s, ok := l.stakes[id]
	if !ok {
		return Stake{}, ErrNotFound
	}
	out := *s
	out.Amount = new(uint256.Int).Set(s.Amount)
	return out, nil
}

// contributes reports whether the stake accrued score for the epoch: it must
// have opened at or before the epoch's end bound and still be open at it.
// Closing mid-epoch forfeits that epoch.
func (s *Stake) contributes(ep *Epoch) bool {
	if s.StartClock > ep.End {
		return false
	}
	return s.open() || s.EndClock > ep.End
}
