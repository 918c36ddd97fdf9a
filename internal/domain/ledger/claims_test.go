package ledger_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/ledger"
	. "github.com/smartystreets/goconvey/convey"
)

// scoredFixture registers one entity (backers 50%) with an initial stake of
// 100 by owner-1 and a 100 stake by alice, both at clock 0, lets epoch 2
// include it, and advances past the claim delay.
func scoredFixture() (*ledger.Ledger, ledger.EntityID, ledger.StakeID, ledger.StakeID) {
	l := newLedger(testParams())
	id, err := l.Register(reg("owner-1", "0xaa", 5000), amt(100))
	if err != nil {
		panic(err)
	}
	aliceStake, err := l.CreateStake("alice", id, amt(100))
	if err != nil {
		panic(err)
	}
	if err := l.AdvanceClock(210); err != nil {
		panic(err)
	}
	// Epoch 1 closed with an empty top-K; score it so the claim walk can
	// proceed past it.
	if err := l.SubmitPerformance(maint, 1, nil); err != nil {
		panic(err)
	}
	return l, id, ledger.StakeID(1), aliceStake
}

func TestSubmitPerformance(t *testing.T) {
	Convey("Given an epoch with a frozen top-K of one entity", t, func() {
		l, id, _, _ := scoredFixture()
		ratings := []ledger.PerformanceRating{{Entity: id, Rating: amt(100)}}

		Convey("When a non-maintainer submits", func() {
			So(l.SubmitPerformance("mallory", 2, ratings), ShouldEqual, ledger.ErrNotMaintainer)
		})

		Convey("When submitting for an epoch that has not ended", func() {
			So(l.SubmitPerformance(maint, 3, ratings), ShouldEqual, ledger.ErrEpochNotEnded)
		})

		Convey("When the list omits an included entity", func() {
			So(l.SubmitPerformance(maint, 2, nil), ShouldEqual, ledger.ErrInvalidCandidateSet)
		})

		Convey("When the list names an entity outside the set", func() {
			bad := []ledger.PerformanceRating{{Entity: ledger.EntityID(42), Rating: amt(1)}}
			So(l.SubmitPerformance(maint, 2, bad), ShouldEqual, ledger.ErrInvalidCandidateSet)
		})

		Convey("When the list duplicates an entity", func() {
			dup := []ledger.PerformanceRating{
				{Entity: id, Rating: amt(1)},
				{Entity: id, Rating: amt(2)},
			}
			So(l.SubmitPerformance(maint, 2, dup), ShouldEqual, ledger.ErrInvalidCandidateSet)
		})

		Convey("When submitting correctly", func() {
			So(l.SubmitPerformance(maint, 2, ratings), ShouldBeNil)

			Convey("Then the epoch is finalized with frozen reward splits", func() {
				ep, _ := l.Epoch(ledger.EpochID(2))
				So(ep.Finalized, ShouldBeTrue)
				ee := ep.Entities[id]
				// Sole entity: whole budget. Backers at 50%.
				So(ee.OwnerReward.Uint64(), ShouldEqual, 500_000)
				So(ee.BackersReward.Uint64(), ShouldEqual, 500_000)
				// Two stakes of 100 at clock 0; 19 periods by epoch end 199.
				So(ee.StakeScore.Uint64(), ShouldEqual, 190)
			})

			Convey("Then owner + backers equals the entity reward exactly", func() {
				ep, _ := l.Epoch(ledger.EpochID(2))
				ee := ep.Entities[id]
				sum := new(uint256.Int).Add(ee.OwnerReward, ee.BackersReward)
				So(sum.Uint64(), ShouldEqual, 1_000_000)
			})

			Convey("Then a second submission is rejected", func() {
				So(l.SubmitPerformance(maint, 2, ratings), ShouldEqual, ledger.ErrEpochAlreadyScored)
			})
		})
	})
}

func TestClaim(t *testing.T) {
	Convey("Given a scored, delay-matured epoch", t, func() {
		l, id, ownerStake, aliceStake := scoredFixture()
		So(l.SubmitPerformance(maint, 2, []ledger.PerformanceRating{{Entity: id, Rating: amt(100)}}), ShouldBeNil)

		Convey("When alice claims her stake", func() {
			paid, err := l.Claim("alice", aliceStake)
			So(err, ShouldBeNil)

			Convey("Then she receives her proportional share", func() {
				// backers 500000 * (95 / 190) = 250000
				So(paid.Uint64(), ShouldEqual, 250_000)
			})

			Convey("Then the claim cursor advances to the paid epoch", func() {
				s, _ := l.Stake(aliceStake)
				So(s.ClaimCursor, ShouldEqual, ledger.EpochID(2))
			})

			Convey("Then the payout history is recorded", func() {
				rows := l.ClaimHistory(aliceStake)
				So(rows, ShouldContainKey, ledger.EpochID(2))
				So(rows[2].Claimed.Uint64(), ShouldEqual, 250_000)
				So(rows[2].StakeAmount.Uint64(), ShouldEqual, 100)
			})

			Convey("Then claiming again with no new scored epoch fails", func() {
				_, err := l.Claim("alice", aliceStake)
				So(err, ShouldEqual, ledger.ErrNothingToClaim)
				s, _ := l.Stake(aliceStake)
				So(s.ClaimCursor, ShouldEqual, ledger.EpochID(2))
			})
		})

		Convey("When both stakers claim", func() {
			alicePaid, err := l.Claim("alice", aliceStake)
			So(err, ShouldBeNil)
			ownerPaid, err := l.Claim("owner-1", ownerStake)
			So(err, ShouldBeNil)

			Convey("Then the summed shares never exceed the backers reward", func() {
				sum := new(uint256.Int).Add(alicePaid, ownerPaid)
				So(sum.Cmp(amt(500_000)) <= 0, ShouldBeTrue)
				// Shortfall bounded by one rounding unit per staker.
				So(sum.Uint64(), ShouldBeGreaterThanOrEqualTo, 500_000-2)
			})

			Convey("Then the lifetime payout total tracks both claims", func() {
				want := new(uint256.Int).Add(alicePaid, ownerPaid)
				So(l.TotalPaidOut().Eq(want), ShouldBeTrue)
			})
		})

		Convey("When a non-owner claims", func() {
			_, err := l.Claim("mallory", aliceStake)
			So(err, ShouldEqual, ledger.ErrNotOwner)
		})

		Convey("When the claim delay has not elapsed for a newer epoch", func() {
			// Epoch 3 ends at 299; score it, then claim at clock 305 < 309.
			So(l.AdvanceClock(305), ShouldBeNil)
			So(l.SubmitPerformance(maint, 3, []ledger.PerformanceRating{{Entity: id, Rating: amt(100)}}), ShouldBeNil)
			paid, err := l.Claim("alice", aliceStake)
			So(err, ShouldBeNil)

			Convey("Then only the matured epoch is paid", func() {
				So(paid.Uint64(), ShouldEqual, 250_000)
				s, _ := l.Stake(aliceStake)
				So(s.ClaimCursor, ShouldEqual, ledger.EpochID(2))
			})

			Convey("Then the rest becomes claimable after the delay", func() {
				So(l.AdvanceClock(309), ShouldBeNil)
				next, err := l.Claim("alice", aliceStake)
				So(err, ShouldBeNil)
				So(next.IsZero(), ShouldBeFalse)
				s, _ := l.Stake(aliceStake)
				So(s.ClaimCursor, ShouldEqual, ledger.EpochID(3))
			})
		})
	})
}

func TestClaimSkipsForfeitedEpochs(t *testing.T) {
	Convey("Given a stake closed mid-epoch", t, func() {
		l := newLedger(testParams())
		id, err := l.Register(reg("owner-1", "0xaa", 5000), amt(100))
		So(err, ShouldBeNil)
		aliceStake, err := l.CreateStake("alice", id, amt(100))
		So(err, ShouldBeNil)
		So(l.AdvanceClock(150), ShouldBeNil) // inside epoch 2
		So(l.CloseStake("alice", aliceStake), ShouldBeNil)

		Convey("Then the aggregate excludes it until a later re-open", func() {
			e, _ := l.Entity(id)
			So(e.StakeAmount.Uint64(), ShouldEqual, 100)
			_, err := l.CreateStake("alice", id, amt(100))
			So(err, ShouldBeNil)
			e, _ = l.Entity(id)
			So(e.StakeAmount.Uint64(), ShouldEqual, 200)
		})

		Convey("When the epoch it forfeited is scored", func() {
			So(l.AdvanceClock(210), ShouldBeNil)
			So(l.SubmitPerformance(maint, 1, nil), ShouldBeNil)
			So(l.SubmitPerformance(maint, 2, []ledger.PerformanceRating{{Entity: id, Rating: amt(100)}}), ShouldBeNil)

			Convey("Then the closed stake has nothing to claim", func() {
				_, err := l.Claim("alice", aliceStake)
				So(err, ShouldEqual, ledger.ErrNothingToClaim)
			})

			Convey("Then the cursor did not advance", func() {
				_, _ = l.Claim("alice", aliceStake)
				s, _ := l.Stake(aliceStake)
				So(s.ClaimCursor, ShouldEqual, ledger.EpochID(0))
			})

			Convey("Then the surviving stake earns the whole backers reward", func() {
				paid, err := l.Claim("owner-1", ledger.StakeID(1))
				So(err, ShouldBeNil)
				So(paid.Uint64(), ShouldEqual, 500_000)
			})
		})
	})
}

func TestClaimCursorStartsAtCreationEpoch(t *testing.T) {
	Convey("Given a stake opened long after several scored epochs", t, func() {
		l, id, _, _ := scoredFixture()
		So(l.SubmitPerformance(maint, 2, []ledger.PerformanceRating{{Entity: id, Rating: amt(100)}}), ShouldBeNil)

		// New stake during epoch 3 (clock 210).
		late, err := l.CreateStake("carol", id, amt(100))
		So(err, ShouldBeNil)

		Convey("Then its cursor starts just before its creation epoch", func() {
			s, _ := l.Stake(late)
			So(s.ClaimCursor, ShouldEqual, ledger.EpochID(2))
		})

		Convey("Then it cannot claim epochs that predate it", func() {
			_, err := l.Claim("carol", late)
			So(err, ShouldEqual, ledger.ErrNothingToClaim)
		})
	})
}
