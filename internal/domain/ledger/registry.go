package ledger

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/rating"
)

// Registration carries the fields needed to register a new entity. The owner
// account need not be the caller: the initial stake is owned by Owner either
// way, which supports sponsor-paid registrations.
type Registration struct {
	Address    string
	Owner      string
	Payout     string
	Name       string
	Metadata   string
	BackersBps uint64
}

// EntityUpdate carries the owner-editable fields. Nil pointers leave the
// current value untouched; the external address is immutable.
type EntityUpdate struct {
	Owner      *string
	Payout     *string
	Name       *string
	Metadata   *string
	BackersBps *uint64
}

// Register creates a new entity together with its initial stake and returns
// the entity handle. The initial stake is owned by reg.Owner.
func (l *Ledger) Register(reg Registration, initialStake *uint256.Int) (EntityID, error) {
	l.catchUp()

	addr := strings.TrimSpace(reg.Address)
	if addr == "" || strings.TrimSpace(reg.Owner) == "" {
		return 0, ErrInvalidParams
	}
	if _, taken := l.byAddress[addr]; taken {
		return 0, ErrInvalidStatus
	}
	if l.params.MaxEntities > 0 && len(l.entities) >= l.params.MaxEntities {
		return 0, ErrTooManyEntities
	}
	if initialStake == nil || initialStake.Cmp(l.params.MinRegistrationStake) < 0 {
		return 0, ErrInvalidAmount
	}
	if reg.BackersBps < l.params.MinBackersBps || reg.BackersBps > PctDenominator {
		return 0, ErrInvalidAmount
	}

	l.nextEntity++
	e := &Entity{
		ID:           l.nextEntity,
		Address:      addr,
		Owner:        reg.Owner,
		Payout:       reg.Payout,
		Name:         reg.Name,
		Metadata:     reg.Metadata,
		Verified:     true,
		BackersBps:   reg.BackersBps,
		StakeAmount:  uint256.NewInt(0),
		Status:       StatusRegistered,
		RegisteredAt: l.clock,
	}
	if e.Payout == "" {
		e.Payout = e.Owner
	}
	l.entities[e.ID] = e
	l.byAddress[addr] = e.ID

	l.publish(Event{Kind: EventEntityRegistered, Clock: l.clock, Account: e.Owner, Entity: e.ID})

	// The initial stake is a regular stake record with its own lifecycle.
	l.addStake(e, reg.Owner, initialStake)

	return e.ID, nil
}

// UpdateEntity applies owner-editable field changes. The current backers
// percentage changes immediately; the per-epoch snapshot used by reward math
// is only captured at the next epoch creation, so an in-flight epoch is
// never affected.
func (l *Ledger) UpdateEntity(caller string, id EntityID, upd EntityUpdate) error {
	l.catchUp()

	e, ok := l.entities[id]
	if !ok {
		return ErrNotFound
	}
	if err := l.requireEntityOwner(caller, e); err != nil {
		return err
	}
	if upd.BackersBps != nil {
		if *upd.BackersBps < l.params.MinBackersBps || *upd.BackersBps > PctDenominator {
			return ErrInvalidAmount
		}
	}
	if upd.Owner != nil && strings.TrimSpace(*upd.Owner) == "" {
		return ErrInvalidParams
	}

	if upd.Owner != nil {
		e.Owner = *upd.Owner
	}
	if upd.Payout != nil {
		e.Payout = *upd.Payout
	}
	if upd.Name != nil {
		e.Name = *upd.Name
	}
	if upd.Metadata != nil {
		e.Metadata = *upd.Metadata
	}
	if upd.BackersBps != nil {
		e.BackersBps = *upd.BackersBps
	}

	l.publish(Event{Kind: EventEntityUpdated, Clock: l.clock, Account: e.Owner, Entity: e.ID})
	return nil
}

// Deregister moves the entity to its terminal status. Stake is neither
// refunded nor moved; each staker closes and withdraws separately.
func (l *Ledger) Deregister(caller string, id EntityID) error {
	l.catchUp()

	e, ok := l.entities[id]
	if !ok {
		return ErrNotFound
	}
	if err := l.requireEntityOwner(caller, e); err != nil {
		return err
	}
	if e.Status == StatusDeregistered {
		return ErrInvalidStatus
	}

	e.Status = StatusDeregistered
	l.publish(Event{Kind: EventEntityDeregistered, Clock: l.clock, Account: caller, Entity: e.ID})
	l.publish(Event{Kind: EventEntityStatusChanged, Clock: l.clock, Entity: e.ID, Status: e.Status})
	return nil
}

// SetVerified flips the verification flag. Maintainer-gated. Unverified
// entities can hold at most SubEligible regardless of stake.
func (l *Ledger) SetVerified(caller string, id EntityID, verified bool) error {
	l.catchUp()

	if err := l.requireMaintainer(caller); err != nil {
		return err
	}
	e, ok := l.entities[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status == StatusDeregistered {
		return ErrInvalidStatus
	}
	e.Verified = verified
	l.refreshStatus(e)
	return nil
}

// refreshStatus re-derives the threshold-driven status from the aggregate
// stake. Called after every stake-amount change. Terminal status is sticky.
func (l *Ledger) refreshStatus(e *Entity) {
	if !e.Status.active() {
		return
	}
	next := StatusRegistered
	switch {
	case e.StakeAmount.Cmp(l.params.EligibilityThreshold) >= 0 && e.Verified:
		next = StatusEligible
	case e.StakeAmount.Cmp(l.params.SubEligibilityThreshold) >= 0:
		next = StatusSubEligible
	}
	if next == e.Status {
		return
	}
	e.Status = next
	l.publish(Event{Kind: EventEntityStatusChanged, Clock: l.clock, Entity: e.ID, Status: next})
}

// candidates returns the eligible entities keyed by current aggregate stake,
// the inclusion key used at epoch creation.
func (l *Ledger) candidates() []rating.Candidate {
	out := make([]rating.Candidate, 0, len(l.entities))
	for _, e := range l.entities {
		if e.Status != StatusEligible {
			continue
		}
		out = append(out, rating.Candidate{ID: uint64(e.ID), Key: new(uint256.Int).Set(e.StakeAmount)})
	}
	return out
}

// Entity returns a copy of the entity record.
func (l *Ledger) Entity(id EntityID) (Entity, error) {
	e, ok := l.entities[id]
	if !ok {
		return Entity{}, ErrNotFound
	}
	out := *e
	out.StakeAmount = new(uint256.Int).Set(e.StakeAmount)
	out.stakesByOrder = nil
	return out, nil
}

// EntityByAddress resolves an external address to a copy of its record.
func (l *Ledger) EntityByAddress(addr string) (Entity, error) {
	id, ok := l.byAddress[strings.TrimSpace(addr)]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return l.Entity(id)
}
