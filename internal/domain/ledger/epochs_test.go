package ledger_test

import (
	"fmt"
	"testing"

	"github.com/okian/tally/internal/domain/ledger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEpochCatchUp(t *testing.T) {
	Convey("Given a fresh ledger starting at clock zero", t, func() {
		l := newLedger(testParams()) // epoch length 100

		Convey("Then the first epoch exists with the configured bounds", func() {
			ep, err := l.Epoch(ledger.EpochID(1))
			So(err, ShouldBeNil)
			So(ep.Start, ShouldEqual, 0)
			So(ep.End, ShouldEqual, 99)
			So(ep.Reward.Uint64(), ShouldEqual, 1_000_000)
			So(ep.Finalized, ShouldBeFalse)
		})

		Convey("When the clock jumps across several boundaries at once", func() {
			So(l.AdvanceClock(350), ShouldBeNil)

			Convey("Then every crossed epoch is materialized in order, gap-free", func() {
				So(l.LastEpochID(), ShouldEqual, ledger.EpochID(4))
				for id := ledger.EpochID(1); id <= 4; id++ {
					ep, err := l.Epoch(id)
					So(err, ShouldBeNil)
					So(ep.Start, ShouldEqual, uint64(id-1)*100)
					So(ep.End, ShouldEqual, uint64(id)*100-1)
				}
			})

			Convey("Then catch-up is idempotent", func() {
				l.CreateEpochs()
				So(l.LastEpochID(), ShouldEqual, ledger.EpochID(4))
				So(l.AdvanceClock(350), ShouldBeNil)
				So(l.LastEpochID(), ShouldEqual, ledger.EpochID(4))
			})
		})

		Convey("When the clock moves backwards", func() {
			So(l.AdvanceClock(350), ShouldBeNil)
			So(l.AdvanceClock(349), ShouldEqual, ledger.ErrClockRegression)
		})
	})
}

func TestEpochBudgetCapture(t *testing.T) {
	Convey("Given a ledger whose reward budget changes over time", t, func() {
		l := newLedger(testParams())

		p := l.Params()
		p.EpochReward = amt(5_000_000)
		So(l.SetParams(maint, p), ShouldBeNil)
		So(l.AdvanceClock(100), ShouldBeNil)

		Convey("Then an already-created epoch keeps its captured budget", func() {
			ep, _ := l.Epoch(ledger.EpochID(1))
			So(ep.Reward.Uint64(), ShouldEqual, 1_000_000)
		})

		Convey("Then epochs created after the change capture the new budget", func() {
			ep, _ := l.Epoch(ledger.EpochID(2))
			So(ep.Reward.Uint64(), ShouldEqual, 5_000_000)
		})

		Convey("Then parameter updates are gated on owner and maintainer", func() {
			So(l.SetParams("mallory", p), ShouldEqual, ledger.ErrNotMaintainer)

			p.EpochReward = amt(7_000_000)
			So(l.SetParams(admin, p), ShouldBeNil)
			So(l.Params().EpochReward.Uint64(), ShouldEqual, 7_000_000)
		})
	})
}

func TestEpochSelection(t *testing.T) {
	Convey("Given a single eligible entity with stake 100", t, func() {
		p := testParams()
		p.TopK = 3
		l := newLedger(p)
		_, err := l.Register(reg("owner-1", "0xaa", 5000), amt(100))
		So(err, ShouldBeNil)
		So(l.AdvanceClock(100), ShouldBeNil)

		Convey("Then the next epoch's top-K is exactly that entity", func() {
			ep, err := l.Epoch(ledger.EpochID(2))
			So(err, ShouldBeNil)
			So(ep.TopK, ShouldResemble, []ledger.EntityID{1})
		})
	})

	Convey("Given five eligible entities with ascending stakes and a top-K of 3", t, func() {
		p := testParams()
		p.TopK = 3
		l := newLedger(p)
		for i := 1; i <= 5; i++ {
			_, err := l.Register(reg(fmt.Sprintf("owner-%d", i), fmt.Sprintf("0x%02d", i), 5000), amt(uint64(i)*100))
			So(err, ShouldBeNil)
		}
		So(l.AdvanceClock(100), ShouldBeNil)

		Convey("Then selection is descending by stake", func() {
			ep, _ := l.Epoch(ledger.EpochID(2))
			So(ep.TopK, ShouldResemble, []ledger.EntityID{5, 4, 3})
		})

		Convey("Then the per-entity snapshots are frozen at creation", func() {
			ep, _ := l.Epoch(ledger.EpochID(2))
			So(ep.Entities[5].StakeAmount.Uint64(), ShouldEqual, 500)
			So(ep.Entities[5].Included, ShouldBeTrue)

			_, err := l.CreateStake("alice", ledger.EntityID(5), amt(999))
			So(err, ShouldBeNil)
			ep, _ = l.Epoch(ledger.EpochID(2))
			So(ep.Entities[5].StakeAmount.Uint64(), ShouldEqual, 500)
		})

		Convey("Then sub-eligible entities are not candidates", func() {
			// Unverify entity 3 so it drops out of the eligible set.
			So(l.SetVerified(maint, ledger.EntityID(3), false), ShouldBeNil)
			So(l.AdvanceClock(200), ShouldBeNil)
			ep, _ := l.Epoch(ledger.EpochID(3))
			So(ep.TopK, ShouldResemble, []ledger.EntityID{5, 4, 2})
		})
	})
}

func TestBackersSnapshotDecoupling(t *testing.T) {
	Convey("Given an entity included in the current epoch", t, func() {
		l := newLedger(testParams())
		id, err := l.Register(reg("owner-1", "0xaa", 5000), amt(100))
		So(err, ShouldBeNil)
		So(l.AdvanceClock(100), ShouldBeNil)

		Convey("When the backers percentage changes mid-epoch", func() {
			bps := uint64(8000)
			So(l.UpdateEntity("owner-1", id, ledger.EntityUpdate{BackersBps: &bps}), ShouldBeNil)

			Convey("Then the in-flight epoch keeps the old snapshot", func() {
				ep, _ := l.Epoch(ledger.EpochID(2))
				So(ep.Entities[id].BackersBps, ShouldEqual, 5000)
			})

			Convey("Then the next epoch snapshots the new value", func() {
				So(l.AdvanceClock(200), ShouldBeNil)
				ep, _ := l.Epoch(ledger.EpochID(3))
				So(ep.Entities[id].BackersBps, ShouldEqual, 8000)
			})
		})
	})
}
