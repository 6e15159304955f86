package queue_test

import (
	"context"
	"testing"
	"time"

	"fragrank/internal/adapters/mq/queue"
	"fragrank/internal/domain/model"

	. "github.com/smartystreets/goconvey/convey"
)

func testEvent(id string) queue.Event {
	return model.KillEvent{
		EventID: id,
		Scope:   1,
		Winner:  "alice",
		Loser:   "bob",
		TS:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a small bounded queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("Enqueue succeeds until capacity is reached", func() {
			So(q.Enqueue(ctx, testEvent("e1")), ShouldBeTrue)
			So(q.Enqueue(ctx, testEvent("e2")), ShouldBeTrue)
			So(q.Enqueue(ctx, testEvent("e3")), ShouldBeFalse)
			So(q.Len(ctx), ShouldEqual, 2)
		})

		Convey("Dequeue delivers events in order", func() {
			So(q.Enqueue(ctx, testEvent("e1")), ShouldBeTrue)
			So(q.Enqueue(ctx, testEvent("e2")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			var got []string
			for ev := range q.Dequeue(ctx) {
				got = append(got, ev.EventID)
			}
			So(got, ShouldResemble, []string{"e1", "e2"})
		})

		Convey("A closed queue rejects new events", func() {
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, testEvent("e1")), ShouldBeFalse)

			Convey("And closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("Dequeue stops delivering when the context is canceled", func() {
			So(q.Enqueue(ctx, testEvent("e1")), ShouldBeTrue)

			dctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(dctx)
			cancel()

			// The consumer goroutine exits on cancellation; the output
			// channel closes without necessarily draining the queue.
			timeout := time.After(time.Second)
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
				case <-timeout:
					t.Fatal("dequeue channel did not close after cancellation")
				}
			}
		})
	})

	Convey("The default queue holds a meaningful backlog", t, func() {
		q := queue.NewInMemoryQueue()
		for i := 0; i < 100; i++ {
			So(q.Enqueue(ctx, testEvent("bulk")), ShouldBeTrue)
		}
		So(q.Len(ctx), ShouldEqual, 100)
	})
}
