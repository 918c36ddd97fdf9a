package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/domain/ledger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a small bounded queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("When enqueuing within capacity", func() {
			So(q.Enqueue(ctx, queue.Event{Kind: ledger.EventStaked}), ShouldBeTrue)
			So(q.Enqueue(ctx, queue.Event{Kind: ledger.EventEpochCreated}), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			Convey("Then a full queue rejects further events", func() {
				So(q.Enqueue(ctx, queue.Event{Kind: ledger.EventRewardClaimed}), ShouldBeFalse)
			})

			Convey("Then dequeue drains events in order", func() {
				ch := q.Dequeue(ctx)
				first := <-ch
				So(first.Kind, ShouldEqual, ledger.EventStaked)
				second := <-ch
				So(second.Kind, ShouldEqual, ledger.EventEpochCreated)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, queue.Event{Kind: ledger.EventStaked}), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)

			Convey("Then enqueue is rejected", func() {
				So(q.Enqueue(ctx, queue.Event{Kind: ledger.EventStaked}), ShouldBeFalse)
			})

			Convey("Then closing twice is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})

			Convey("Then the dequeue channel drains and closes", func() {
				ch := q.Dequeue(ctx)
				ev, ok := <-ch
				So(ok, ShouldBeTrue)
				So(ev.Kind, ShouldEqual, ledger.EventStaked)
				select {
				case _, ok := <-ch:
					So(ok, ShouldBeFalse)
				case <-time.After(time.Second):
					t.Fatal("dequeue channel did not close")
				}
			})
		})
	})
}
