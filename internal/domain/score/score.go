// Package score implements the time-decay multiplier applied to stakes.
//
// A stake's weight grows with the number of whole periods ("days" in the
// reference deployment) it has been open. The multiplier is a fixed-point
// fraction over Denominator, starts below 1.0 and saturates at 3.0x once the
// table is exhausted. All arithmetic is integer multiply-then-floor-divide so
// results are bit-exact and replayable.
package score

import "github.com/holiman/uint256"

// Denominator is the fixed-point denominator of the multiplier table.
const Denominator = 10000

// MaxMultiplier is the saturation value used past the end of the table.
const MaxMultiplier = 30000

// multipliers maps periodsElapsed to a fixed-point multiplier. Monotonically
// non-decreasing: linear ramp to 1.0x over the first 21 buckets, then a
// slowing ramp towards saturation.
var multipliers = [64]uint64{
	476, 952, 1428, 1904, 2380, 2857, 3333, 3809, 4285, 4761,
	5238, 5714, 6190, 6666, 7142, 7619, 8095, 8571, 9047, 9523,
	10000, 10200, 10500, 10700, 11000, 11200, 11400, 11700, 11900, 12100,
	12400, 12600, 12900, 13100, 13300, 13600, 13800, 14000, 14300, 14500,
	14800, 15000, 15600, 16200, 16800, 17400, 18000, 18600, 19200, 19800,
	20400, 21000, 21600, 22200, 22800, 23400, 24000, 24600, 25200, 25800,
	26400, 27000, 27600, 28200,
}

// Multiplier returns the fixed-point multiplier for the given number of
// elapsed periods. Indices past the table saturate at MaxMultiplier.
func Multiplier(periodsElapsed uint64) uint64 {
	if periodsElapsed >= uint64(len(multipliers)) {
		return MaxMultiplier
	}
	return multipliers[periodsElapsed]
}

// Periods converts a clock interval to whole elapsed periods.
// periodLength must be non-zero.
func Periods(start, end, periodLength uint64) uint64 {
	if end <= start {
		return 0
	}
	return (end - start) / periodLength
}

// Compute returns amount scaled by the multiplier for periodsElapsed:
// floor(amount * multiplier / Denominator). Compute(0, n) == 0 for all n.
// The input is never mutated.
func Compute(amount *uint256.Int, periodsElapsed uint64) *uint256.Int {
	if amount == nil || amount.IsZero() {
		return uint256.NewInt(0)
	}
	m := uint256.NewInt(Multiplier(periodsElapsed))
	out := new(uint256.Int).Mul(amount, m)
	return out.Div(out, uint256.NewInt(Denominator))
}
