// Package ledger implements the staking-weighted, epoch-based reward ledger.
//
// The ledger is a fully sequential state machine driven by an externally
// advanced logical clock. Every exported mutating operation is atomic: all
// preconditions are checked (and all derived values computed) before any
// state is touched, so a rejected call leaves the ledger byte-for-byte
// unchanged. Callers are expected to serialize access; the ledger itself
// holds no locks.
package ledger

import "github.com/holiman/uint256"

// Typed handles into the ledger arenas. Handles are allocated sequentially
// starting at 1 and are never reused.
type (
	EntityID uint64
	StakeID  uint64
	EpochID  uint64
)

// Status is the lifecycle status of an entity.
type Status uint8

// Entity lifecycle. Deregistered is terminal; entities are never deleted.
const (
	StatusNone Status = iota
	StatusRegistered
	StatusSubEligible
	StatusEligible
	StatusDeregistered
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusSubEligible:
		return "sub_eligible"
	case StatusEligible:
		return "eligible"
	case StatusDeregistered:
		return "deregistered"
	default:
		return "none"
	}
}

// active reports whether the entity can receive new stake.
func (s Status) active() bool {
	return s == StatusRegistered || s == StatusSubEligible || s == StatusEligible
}

// Entity is one registered participant.
type Entity struct {
	ID            EntityID
	Address       string // fixed external address, unique, immutable
	Owner         string
	Payout        string
	Name          string
	Metadata      string
	Verified      bool
	BackersBps    uint64 // current value; reward math uses per-epoch snapshots
	StakeAmount   *uint256.Int
	Status        Status
	RegisteredAt  uint64
	openStakes    int
	stakesByOrder []StakeID // all stakes ever opened against this entity
}

// Stake is one staker's deposit against one entity. Closed stakes are
// retained for historical claims; Withdrawn marks the funds as released.
type Stake struct {
	ID          StakeID
	Staker      string
	Entity      EntityID
	Amount      *uint256.Int
	StartClock  uint64
	EndClock    uint64 // zero while open
	Withdrawn   bool
	ClaimCursor EpochID // last epoch id this stake has been paid for
}

// open reports whether the stake is still accruing.
func (s *Stake) open() bool { return s.EndClock == 0 }

// Epoch is one fixed-length reward round. Boundary, budget and the top-K set
// are frozen at creation; scoring fills in the reward fields exactly once.
type Epoch struct {
	ID        EpochID
	Start     uint64
	End       uint64
	Reward    *uint256.Int // budget captured at creation
	Finalized bool
	TopK      []EntityID // frozen, descending selection order

	TotalPerformance *uint256.Int
	TotalStakeScore  *uint256.Int // across included entities, set at scoring

	Entities map[EntityID]*EpochEntity
}

// EpochEntity is the per-epoch snapshot and reward record of one entity.
type EpochEntity struct {
	StakeAmount *uint256.Int // aggregate snapshot at epoch creation
	Included    bool
	BackersBps  uint64 // backers-percentage snapshot at epoch creation

	Performance   *uint256.Int // raw submitted rating
	StakeScore    *uint256.Int // sum of contributing stakes' scores at epoch end
	OwnerReward   *uint256.Int
	BackersReward *uint256.Int
}

// StakeEpochClaim reconstructs exact payout history per stake and epoch.
type StakeEpochClaim struct {
	StakeAmount *uint256.Int
	Reward      *uint256.Int
	Claimed     *uint256.Int
}

// Ledger owns the entity, stake and epoch arenas plus the logical clock.
type Ledger struct {
	params Params
	clock  uint64

	owner      string // administrative owner account
	maintainer string // rating-submission account

	entities  map[EntityID]*Entity
	byAddress map[string]EntityID
	stakes    map[StakeID]*Stake
	epochs    map[EpochID]*Epoch
	claims    map[StakeID]map[EpochID]*StakeEpochClaim

	nextEntity EntityID
	nextStake  StakeID
	lastEpoch  EpochID

	paidOut *uint256.Int // lifetime total of claimed rewards

	emit EmitFunc
}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithEmitter installs the event sink. Events are delivered synchronously
// after the emitting operation has committed.
func WithEmitter(fn EmitFunc) Option {
	return func(l *Ledger) { l.emit = fn }
}

// WithOwner sets the administrative owner account. The owner administers
// parameters alongside the maintainer.
func WithOwner(account string) Option {
	return func(l *Ledger) { l.owner = account }
}

// WithMaintainer sets the account allowed to submit performance ratings.
func WithMaintainer(account string) Option {
	return func(l *Ledger) { l.maintainer = account }
}

// New constructs a ledger with its first epoch starting at startClock.
func New(p Params, startClock uint64, opts ...Option) (*Ledger, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		params:    p.clone(),
		clock:     startClock,
		entities:  make(map[EntityID]*Entity),
		byAddress: make(map[string]EntityID),
		stakes:    make(map[StakeID]*Stake),
		epochs:    make(map[EpochID]*Epoch),
		claims:    make(map[StakeID]map[EpochID]*StakeEpochClaim),
		paidOut:   uint256.NewInt(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.createEpoch(startClock)
	l.catchUp()
	return l, nil
}

// Clock returns the current logical clock value.
func (l *Ledger) Clock() uint64 { return l.clock }

// AdvanceClock moves the logical clock forward and materializes any epochs
// whose end bound has been crossed. Advancing to the current value is a
// no-op; moving backwards is rejected.
func (l *Ledger) AdvanceClock(to uint64) error {
	if to < l.clock {
		return ErrClockRegression
	}
	l.clock = to
	l.catchUp()
	return nil
}

// CreateEpochs is the manual catch-up trigger. Idempotent.
func (l *Ledger) CreateEpochs() {
	l.catchUp()
}

func (l *Ledger) requireMaintainer(caller string) error {
	if caller != l.maintainer {
		return ErrNotMaintainer
	}
	return nil
}

// requireAdmin gates parameter administration: the owner and the maintainer
// are both accepted.
func (l *Ledger) requireAdmin(caller string) error {
	if caller != l.owner && caller != l.maintainer {
		return ErrNotMaintainer
	}
	return nil
}

func (l *Ledger) requireEntityOwner(caller string, e *Entity) error {
	if caller != e.Owner {
		return ErrNotOwner
	}
	return nil
}

func (l *Ledger) requireStakeOwner(caller string, s *Stake) error {
	if caller != s.Staker {
		return ErrNotOwner
	}
	return nil
}

func (l *Ledger) publish(ev Event) {
	if l.emit != nil {
		l.emit(ev)
	}
}

// EntityCount returns the number of registered entities, terminal included.
func (l *Ledger) EntityCount() int { return len(l.entities) }

// StakeCount returns the number of stakes ever opened.
func (l *Ledger) StakeCount() int { return len(l.stakes) }

// TotalPaidOut returns the lifetime total of claimed rewards.
func (l *Ledger) TotalPaidOut() *uint256.Int {
	return new(uint256.Int).Set(l.paidOut)
}
