package ledger

import "github.com/holiman/uint256"

// EventKind names a ledger state change.
type EventKind string

// Event kinds emitted by the ledger. One event per externally observable
// state change; multi-epoch catch-up emits one EpochCreated per epoch.
const (
	EventEntityRegistered    EventKind = "entity_registered"
	EventEntityUpdated       EventKind = "entity_updated"
	EventEntityDeregistered  EventKind = "entity_deregistered"
	EventEntityStatusChanged EventKind = "entity_status_changed"
	EventStaked              EventKind = "staked"
	EventStakeClosed         EventKind = "stake_closed"
	EventStakeWithdrawn      EventKind = "stake_withdrawn"
	EventEpochCreated        EventKind = "epoch_created"
	EventEpochFinalized      EventKind = "epoch_finalized"
	EventRewardClaimed       EventKind = "reward_claimed"
)

// Event is an immutable record of one ledger state change. Fields not
// meaningful for a kind are left zero.
type Event struct {
	Kind    EventKind
	Clock   uint64
	Account string
	Entity  EntityID
	Stake   StakeID
	Epoch   EpochID
	Amount  *uint256.Int
	Status  Status
}

// EmitFunc receives events after the emitting operation has fully committed.
type EmitFunc func(Event)
