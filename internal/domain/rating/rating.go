// Package rating ranks reward candidates and splits epoch budgets.
//
// Selection keeps the K highest-keyed candidates; reward splitting blends a
// candidate's share of total stake score with its share of total performance
// score under configured weights. Both are pure and deterministic.
package rating

import "github.com/holiman/uint256"

// WeightDenominator is the fixed-point denominator for blend weights.
const WeightDenominator = 10000

// Candidate pairs an entity handle with its ranking key.
type Candidate struct {
	ID  uint64
	Key *uint256.Int
}

// Weights splits the blended rating between stake and performance components.
// StakeBps + PerformanceBps must equal WeightDenominator.
type Weights struct {
	StakeBps       uint64
	PerformanceBps uint64
}

// Valid reports whether the weights cover the whole denominator.
func (w Weights) Valid() bool {
	return w.StakeBps+w.PerformanceBps == WeightDenominator
}

// Split computes a candidate's slice of budget as
//
//	budget * stakeW * stakeScore / (denom * totalStake)
//	  + budget * perfW * performance / (denom * totalPerformance)
//
// with integer multiply-then-floor-divide per component. A zero total drops
// its component rather than dividing by zero. The inputs are never mutated.
func Split(budget, stakeScore, totalStake, performance, totalPerformance *uint256.Int, w Weights) *uint256.Int {
	out := uint256.NewInt(0)
	if budget == nil || budget.IsZero() {
		return out
	}
	denom := uint256.NewInt(WeightDenominator)
	if totalStake != nil && !totalStake.IsZero() && stakeScore != nil {
		part := new(uint256.Int).Mul(budget, uint256.NewInt(w.StakeBps))
		part.Mul(part, stakeScore)
		part.Div(part, new(uint256.Int).Mul(denom, totalStake))
		out.Add(out, part)
	}
	if totalPerformance != nil && !totalPerformance.IsZero() && performance != nil {
		part := new(uint256.Int).Mul(budget, uint256.NewInt(w.PerformanceBps))
		part.Mul(part, performance)
		part.Div(part, new(uint256.Int).Mul(denom, totalPerformance))
		out.Add(out, part)
	}
	return out
}
