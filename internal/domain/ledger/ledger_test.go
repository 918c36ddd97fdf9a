package ledger_test

import (
	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/rating"
)

const (
	admin = "admin"
	maint = "maintainer"
)

func testParams() ledger.Params {
	return ledger.Params{
		EpochLength:             100,
		PeriodLength:            10,
		EpochReward:             uint256.NewInt(1_000_000),
		MinStake:                uint256.NewInt(10),
		MinRegistrationStake:    uint256.NewInt(100),
		SubEligibilityThreshold: uint256.NewInt(50),
		EligibilityThreshold:    uint256.NewInt(100),
		MinBackersBps:           0,
		WithdrawalDelay:         20,
		ClaimDelay:              10,
		TopK:                    16,
		RatingWeights:           rating.Weights{StakeBps: 8000, PerformanceBps: 2000},
	}
}

func newLedger(p ledger.Params) *ledger.Ledger {
	l, err := ledger.New(p, 0, ledger.WithOwner(admin), ledger.WithMaintainer(maint))
	if err != nil {
		panic(err)
	}
	return l
}

func reg(owner, addr string, backersBps uint64) ledger.Registration {
	return ledger.Registration{
		Address:    addr,
		Owner:      owner,
		Name:       "entity " + addr,
		BackersBps: backersBps,
	}
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }
