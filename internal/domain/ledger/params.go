package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/rating"
)

// Params holds the tunable configuration of the ledger. Amounts are in base
// units; durations are in logical-clock units; percentages are basis points
// over PctDenominator. Changes never apply retroactively: epoch boundaries
// and budgets are captured at epoch-creation time.
type Params struct {
	// EpochLength is the span of one epoch in clock units.
	EpochLength uint64
	// PeriodLength is the span of one score bucket ("day") in clock units.
	PeriodLength uint64
	// EpochReward is the budget captured by each newly created epoch.
	EpochReward *uint256.Int

	// MinStake is the minimum amount for any individual stake.
	MinStake *uint256.Int
	// MinRegistrationStake is the minimum initial stake at registration.
	MinRegistrationStake *uint256.Int
	// SubEligibilityThreshold promotes Registered to SubEligible.
	SubEligibilityThreshold *uint256.Int
	// EligibilityThreshold promotes to Eligible (verified entities only).
	EligibilityThreshold *uint256.Int

	// MinBackersBps is the lower bound of the backers-percentage band; the
	// upper bound is always PctDenominator.
	MinBackersBps uint64

	// WithdrawalDelay is the close-to-withdraw delay in clock units.
	WithdrawalDelay uint64
	// ClaimDelay is the epoch-end-to-claimable delay in clock units.
	ClaimDelay uint64

	// TopK bounds the number of entities included per epoch.
	TopK int
	// MaxEntities caps registrations; zero means unlimited.
	MaxEntities int

	// RatingWeights blends stake score and performance score in reward math.
	RatingWeights rating.Weights
}

// PctDenominator is the basis-point denominator for percentage fields.
const PctDenominator = 10000

// Validate checks internal consistency of the parameter set.
func (p Params) Validate() error {
	switch {
	case p.EpochLength == 0:
		return fmt.Errorf("%w: epoch length must be positive", ErrInvalidParams)
	case p.PeriodLength == 0:
		return fmt.Errorf("%w: period length must be positive", ErrInvalidParams)
	case p.EpochReward == nil:
		return fmt.Errorf("%w: epoch reward must be set", ErrInvalidParams)
	case p.MinStake == nil || p.MinRegistrationStake == nil:
		return fmt.Errorf("%w: minimum stakes must be set", ErrInvalidParams)
	case p.SubEligibilityThreshold == nil || p.EligibilityThreshold == nil:
		return fmt.Errorf("%w: thresholds must be set", ErrInvalidParams)
	case p.SubEligibilityThreshold.Cmp(p.EligibilityThreshold) > 0:
		return fmt.Errorf("%w: sub-eligibility threshold above eligibility threshold", ErrInvalidParams)
	case p.MinBackersBps > PctDenominator:
		return fmt.Errorf("%w: backers band exceeds 100%%", ErrInvalidParams)
	case p.TopK <= 0:
		return fmt.Errorf("%w: top-k must be positive", ErrInvalidParams)
	case p.MaxEntities < 0:
		return fmt.Errorf("%w: entity cap must not be negative", ErrInvalidParams)
	case !p.RatingWeights.Valid():
		return fmt.Errorf("%w: rating weights must sum to %d", ErrInvalidParams, rating.WeightDenominator)
	}
	return nil
}

// clone deep-copies the amount fields so callers cannot alias ledger state.
func (p Params) clone() Params {
	out := p
	out.EpochReward = new(uint256.Int).Set(p.EpochReward)
	out.MinStake = new(uint256.Int).Set(p.MinStake)
	out.MinRegistrationStake = new(uint256.Int).Set(p.MinRegistrationStake)
	out.SubEligibilityThreshold = new(uint256.Int).Set(p.SubEligibilityThreshold)
	out.EligibilityThreshold = new(uint256.Int).Set(p.EligibilityThreshold)
	return out
}

// SetParams replaces the tunable parameters. Gated on the administrative
// accounts: owner or maintainer. Already created epochs keep their captured
// boundaries and budgets; threshold changes apply from the next stake-amount
// re-evaluation onwards.
func (l *Ledger) SetParams(caller string, p Params) error {
	if err := l.requireAdmin(caller); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	l.params = p.clone()
	return nil
}

// Params returns a copy of the current parameter set.
func (l *Ledger) Params() Params {
	return l.params.clone()
}
