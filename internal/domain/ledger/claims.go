package ledger

import "github.com/holiman/uint256"

// epochPayment is one epoch's computed share for a stake during a claim walk.
type epochPayment struct {
	epoch  EpochID
	amount *uint256.Int
}

// Claim pays out every accumulated, unclaimed, delay-matured epoch reward
// for the stake and advances its claim cursor. The walk starts at
// cursor+1, stops at the first epoch that is not yet scored or not yet past
// the claim delay, and contributes zero for epochs where the stake was not
// open or the entity was not included. A walk that yields zero overall fails
// with ErrNothingToClaim and changes nothing.
func (l *Ledger) Claim(caller string, id StakeID) (*uint256.Int, error) {
	l.catchUp()

	s, ok := l.stakes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := l.requireStakeOwner(caller, s); err != nil {
		return nil, err
	}

	payments, cursor := l.walkClaims(s)
	total := uint256.NewInt(0)
	for _, p := range payments {
		total.Add(total, p.amount)
	}
	if total.IsZero() {
		return nil, ErrNothingToClaim
	}

	// Commit: advance the cursor, record per-epoch history, pay out.
	s.ClaimCursor = cursor
	rows := l.claims[s.ID]
	if rows == nil {
		rows = make(map[EpochID]*StakeEpochClaim)
		l.claims[s.ID] = rows
	}
	for _, p := range payments {
		rows[p.epoch] = &StakeEpochClaim{
			StakeAmount: new(uint256.Int).Set(s.Amount),
			Reward:      new(uint256.Int).Set(p.amount),
			Claimed:     new(uint256.Int).Set(p.amount),
		}
		if !p.amount.IsZero() {
			l.publish(Event{Kind: EventRewardClaimed, Clock: l.clock, Account: s.Staker, Entity: s.Entity, Stake: s.ID, Epoch: p.epoch, Amount: new(uint256.Int).Set(p.amount)})
		}
	}
	l.paidOut.Add(l.paidOut, total)
	return total, nil
}

// ClaimableAmount previews the payout a Claim call would produce right now.
func (l *Ledger) ClaimableAmount(id StakeID) (*uint256.Int, error) {
	s, ok := l.stakes[id]
	if !ok {
		return nil, ErrNotFound
	}
	payments, _ := l.walkClaims(s)
	total := uint256.NewInt(0)
	for _, p := range payments {
		total.Add(total, p.amount)
	}
	return total, nil
}

// walkClaims computes the pending per-epoch payments for a stake and the
// cursor position a successful claim would commit. The cursor only advances
// to epochs in which the entity was included and scored, so it can never
// exceed the highest such epoch.
func (l *Ledger) walkClaims(s *Stake) ([]epochPayment, EpochID) {
	var payments []epochPayment
	cursor := s.ClaimCursor
	for id := s.ClaimCursor + 1; id <= l.lastEpoch; id++ {
		ep := l.epochs[id]
		if !ep.Finalized || l.clock < ep.End+l.params.ClaimDelay {
			break
		}
		ee := ep.Entities[s.Entity]
		if ee == nil || !ee.Included {
			continue
		}
		cursor = id
		if !s.contributes(ep) || ee.StakeScore.IsZero() || ee.BackersReward.IsZero() {
			payments = append(payments, epochPayment{epoch: id, amount: uint256.NewInt(0)})
			continue
		}
		share := new(uint256.Int).Mul(ee.BackersReward, l.stakeScore(s, ep))
		share.Div(share, ee.StakeScore)
		payments = append(payments, epochPayment{epoch: id, amount: share})
	}
	return payments, cursor
}

// ClaimHistory returns a copy of the recorded per-epoch claim rows for a
// stake, keyed by epoch id.
func (l *Ledger) ClaimHistory(id StakeID) map[EpochID]StakeEpochClaim {
	rows := l.claims[id]
	out := make(map[EpochID]StakeEpochClaim, len(rows))
	for eid, row := range rows {
		out[eid] = StakeEpochClaim{
			StakeAmount: new(uint256.Int).Set(row.StakeAmount),
			Reward:      new(uint256.Int).Set(row.Reward),
			Claimed:     new(uint256.Int).Set(row.Claimed),
		}
	}
	return out
}
