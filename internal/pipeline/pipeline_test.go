package pipeline_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"fragrank/internal/adapters/repository"
	"fragrank/internal/domain/model"
	"fragrank/internal/pipeline"
	"fragrank/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

const eps = 1e-9

func day(d, hour int) time.Time {
	return time.Date(2024, 6, d, hour, 0, 0, 0, time.UTC)
}

func TestRecordMatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given two fresh players", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)

		Convey("When a match is recorded", func() {
			err := p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12))
			So(err, ShouldBeNil)

			Convey("Then the winner gains and the loser loses symmetrically", func() {
				a, err := p.Rating(ctx, 1, "alice")
				So(err, ShouldBeNil)
				b, err := p.Rating(ctx, 1, "bob")
				So(err, ShouldBeNil)

				So(a.Rating, ShouldAlmostEqual, 1662.3108949761174, eps)
				So(b.Rating, ShouldAlmostEqual, 1337.6891050238826, eps)
				So(a.Deviation, ShouldAlmostEqual, 290.3189646747521, eps)
				So(b.Deviation, ShouldAlmostEqual, 290.3189646747521, eps)
			})

			Convey("And both players carry the match timestamp as last activity", func() {
				a, _ := p.Rating(ctx, 1, "alice")
				So(a.LastActivity, ShouldNotBeNil)
				So(a.LastActivity.Equal(day(1, 12)), ShouldBeTrue)
			})

			Convey("And exactly one match event was logged", func() {
				matches, err := store.Matches(ctx, 1)
				So(err, ShouldBeNil)
				So(len(matches), ShouldEqual, 1)
				So(matches[0].Winner, ShouldEqual, "alice")
				So(matches[0].Loser, ShouldEqual, "bob")
			})
		})

		Convey("A self-kill is rejected", func() {
			err := p.RecordMatch(ctx, "alice", "alice", 1, day(1, 12))
			So(errors.Is(err, pipeline.ErrInvalidMatch), ShouldBeTrue)
		})

		Convey("Empty names are rejected", func() {
			err := p.RecordMatch(ctx, "", "bob", 1, day(1, 12))
			So(errors.Is(err, pipeline.ErrInvalidMatch), ShouldBeTrue)
		})
	})
}

func TestRatingDefaults(t *testing.T) {
	ctx := context.Background()

	Convey("A player with no history reads as the default tuple", t, func() {
		p := pipeline.New(repository.NewMemoryStore())
		st, err := p.Rating(ctx, 7, "ghost")
		So(err, ShouldBeNil)
		So(st.Rating, ShouldEqual, 1500.0)
		So(st.Deviation, ShouldEqual, 350.0)
		So(st.Volatility, ShouldEqual, 0.06)
		So(st.LastActivity, ShouldBeNil)
	})
}

func TestRebuildEquivalence(t *testing.T) {
	ctx := context.Background()

	Convey("Given a same-day sequence of matches recorded incrementally", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)

		seq := []struct{ w, l string }{
			{"alice", "bob"},
			{"bob", "carol"},
			{"alice", "carol"},
			{"carol", "alice"},
			{"bob", "alice"},
		}
		for i, m := range seq {
			So(p.RecordMatch(ctx, m.w, m.l, 1, day(1, 8+i)), ShouldBeNil)
		}

		incremental := make(map[string]model.RatingState)
		for _, name := range []string{"alice", "bob", "carol"} {
			st, err := p.Rating(ctx, 1, name)
			So(err, ShouldBeNil)
			incremental[name] = st
		}

		Convey("When the scope is rebuilt from the match log", func() {
			res, err := p.RebuildScope(ctx, 1)
			So(err, ShouldBeNil)
			So(res.PlayersRebuilt, ShouldEqual, 3)

			Convey("Then the rebuilt states match the incremental ones", func() {
				for _, name := range []string{"alice", "bob", "carol"} {
					st, err := p.Rating(ctx, 1, name)
					So(err, ShouldBeNil)
					So(st.Rating, ShouldAlmostEqual, incremental[name].Rating, eps)
					So(st.Deviation, ShouldAlmostEqual, incremental[name].Deviation, eps)
					So(st.Volatility, ShouldEqual, incremental[name].Volatility)
				}
			})

			Convey("And last activity reflects each player's true last match", func() {
				carol, _ := p.Rating(ctx, 1, "carol")
				So(carol.LastActivity, ShouldNotBeNil)
				So(carol.LastActivity.Equal(day(1, 11)), ShouldBeTrue)
				bob, _ := p.Rating(ctx, 1, "bob")
				So(bob.LastActivity.Equal(day(1, 12)), ShouldBeTrue)
			})
		})
	})
}

func TestRebuildDecayOnGap(t *testing.T) {
	ctx := context.Background()

	Convey("Given two matches separated by two fully idle days", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)

		// Day 1: alice beats bob. Days 2 and 3: nothing. Day 4: bob
		// beats alice. The rebuild must decay both players exactly
		// twice between the matches.
		So(p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12)), ShouldBeNil)
		So(store.AppendMatch(ctx, model.MatchEvent{
			EventID: "manual", Scope: 1, Winner: "bob", Loser: "alice", TS: day(4, 12),
		}), ShouldBeNil)

		res, err := p.RebuildScope(ctx, 1)
		So(err, ShouldBeNil)
		So(res.PlayersRebuilt, ShouldEqual, 2)

		a, _ := p.Rating(ctx, 1, "alice")
		b, _ := p.Rating(ctx, 1, "bob")
		So(a.Rating, ShouldAlmostEqual, 1429.435361194179, eps)
		So(a.Deviation, ShouldAlmostEqual, 263.62895704501545, eps)
		So(b.Rating, ShouldAlmostEqual, 1570.564638805821, eps)
		So(b.Deviation, ShouldAlmostEqual, 263.62895704501545, eps)
	})
}

func TestRebuildTwoDayScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given alice and bob trading kills on consecutive days", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)

		So(store.AppendMatch(ctx, model.MatchEvent{
			EventID: "e1", Scope: 1, Winner: "alice", Loser: "bob", TS: day(1, 12),
		}), ShouldBeNil)
		So(store.AppendMatch(ctx, model.MatchEvent{
			EventID: "e2", Scope: 1, Winner: "bob", Loser: "alice", TS: day(2, 12),
		}), ShouldBeNil)

		res, err := p.RebuildScope(ctx, 1)
		So(err, ShouldBeNil)
		So(res.PlayersRebuilt, ShouldEqual, 2)

		Convey("Both players were active both days, so no decay applies", func() {
			a, _ := p.Rating(ctx, 1, "alice")
			b, _ := p.Rating(ctx, 1, "bob")
			// Day-1 results feed the day-2 update; the day-2 upset by
			// the then-lower-rated bob leaves him above center.
			So(a.Rating, ShouldAlmostEqual, 1433.0601225556732, eps)
			So(b.Rating, ShouldAlmostEqual, 1566.9398774443268, eps)
			So(a.Deviation, ShouldAlmostEqual, 260.4887682622068, eps)
			So(b.Deviation, ShouldAlmostEqual, 260.4887682622068, eps)
		})
	})
}

func TestRebuildEmptyScope(t *testing.T) {
	ctx := context.Background()

	Convey("Rebuilding a scope with no history is a safe no-op", t, func() {
		p := pipeline.New(repository.NewMemoryStore())
		res, err := p.RebuildScope(ctx, 42)
		So(err, ShouldBeNil)
		So(res.PlayersRebuilt, ShouldEqual, 0)
	})
}

func TestRebuildCancellation(t *testing.T) {
	Convey("A canceled context aborts the rebuild between day buckets", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		p := pipeline.New(store)
		So(p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12)), ShouldBeNil)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.RebuildScope(canceled, 1)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestAdjustRating(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rated player", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)
		So(p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12)), ShouldBeNil)
		before, _ := p.Rating(ctx, 1, "alice")

		Convey("An absolute adjustment sets the exact value", func() {
			entry, err := p.AdjustRating(ctx, 1, "alice", pipeline.Adjustment{Rating: 1800}, "season reset seed")
			So(err, ShouldBeNil)
			So(entry.OldRating, ShouldAlmostEqual, before.Rating, eps)
			So(entry.NewRating, ShouldEqual, 1800.0)

			st, _ := p.Rating(ctx, 1, "alice")
			So(st.Rating, ShouldEqual, 1800.0)

			Convey("And exactly one audit entry records it", func() {
				audits, err := store.Audits(ctx, 1, "alice", 10)
				So(err, ShouldBeNil)
				So(len(audits), ShouldEqual, 1)
				So(audits[0].OldRating, ShouldAlmostEqual, before.Rating, eps)
				So(audits[0].NewRating, ShouldEqual, 1800.0)
				So(audits[0].Reason, ShouldEqual, "season reset seed")
			})
		})

		Convey("A delta adjustment offsets the current value", func() {
			_, err := p.AdjustRating(ctx, 1, "alice", pipeline.Adjustment{Delta: true, Rating: -50}, "penalty")
			So(err, ShouldBeNil)
			st, _ := p.Rating(ctx, 1, "alice")
			So(st.Rating, ShouldAlmostEqual, before.Rating-50, eps)
		})

		Convey("Deviation and volatility can be reset alongside", func() {
			dev := 350.0
			vol := 0.06
			_, err := p.AdjustRating(ctx, 1, "alice", pipeline.Adjustment{Rating: 1500, Deviation: &dev, Volatility: &vol}, "full reset")
			So(err, ShouldBeNil)
			st, _ := p.Rating(ctx, 1, "alice")
			So(st.Rating, ShouldEqual, 1500.0)
			So(st.Deviation, ShouldEqual, 350.0)
			So(st.Volatility, ShouldEqual, 0.06)
		})

		Convey("Adjusting an unrated player starts from the default", func() {
			entry, err := p.AdjustRating(ctx, 1, "newcomer", pipeline.Adjustment{Delta: true, Rating: 100}, "seed")
			So(err, ShouldBeNil)
			So(entry.OldRating, ShouldEqual, 1500.0)
			So(entry.NewRating, ShouldEqual, 1600.0)
		})
	})
}

func TestStaleDetection(t *testing.T) {
	ctx := context.Background()

	Convey("Given a scope where a match landed without its rating writes", t, func() {
		store := repository.NewMemoryStore()
		p := pipeline.New(store)
		So(store.AppendMatch(ctx, model.MatchEvent{
			EventID: "orphan", Scope: 1, Winner: "alice", Loser: "bob", TS: day(1, 12),
		}), ShouldBeNil)

		stale, err := p.Stale(ctx, 1)
		So(err, ShouldBeNil)
		So(stale, ShouldBeTrue)

		Convey("RebuildScope self-heals the divergence", func() {
			_, err := p.RebuildScope(ctx, 1)
			So(err, ShouldBeNil)
			stale, err := p.Stale(ctx, 1)
			So(err, ShouldBeNil)
			So(stale, ShouldBeFalse)
		})
	})

	Convey("A scope with no matches is never stale", t, func() {
		p := pipeline.New(repository.NewMemoryStore())
		stale, err := p.Stale(ctx, 5)
		So(err, ShouldBeNil)
		So(stale, ShouldBeFalse)
	})

	Convey("A fully recorded match leaves the scope consistent", t, func() {
		p := pipeline.New(repository.NewMemoryStore())
		So(p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12)), ShouldBeNil)
		stale, err := p.Stale(ctx, 1)
		So(err, ShouldBeNil)
		So(stale, ShouldBeFalse)
	})
}

// failingStore wraps the memory store and fails selected operations.
type failingStore struct {
	*repository.MemoryStore
	failAppend bool
	failPut    bool
}

var errBoom = errors.New("boom")

func (f *failingStore) AppendMatch(ctx context.Context, ev model.MatchEvent) error {
	if f.failAppend {
		return errBoom
	}
	return f.MemoryStore.AppendMatch(ctx, ev)
}

func (f *failingStore) PutRating(ctx context.Context, scope int64, player string, st model.RatingState) error {
	if f.failPut {
		return errBoom
	}
	return f.MemoryStore.PutRating(ctx, scope, player, st)
}

func TestPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	Convey("When the match append fails, no rating mutates", t, func() {
		fs := &failingStore{MemoryStore: repository.NewMemoryStore(), failAppend: true}
		p := pipeline.New(fs)

		err := p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12))
		So(errors.Is(err, pipeline.ErrPersistence), ShouldBeTrue)

		st, _ := p.Rating(ctx, 1, "alice")
		So(st.Rating, ShouldEqual, 1500.0)
		So(st.LastActivity, ShouldBeNil)
	})

	Convey("When the rating write fails after the append, the scope reads stale", t, func() {
		fs := &failingStore{MemoryStore: repository.NewMemoryStore(), failPut: true}
		p := pipeline.New(fs)

		err := p.RecordMatch(ctx, "alice", "bob", 1, day(1, 12))
		So(errors.Is(err, pipeline.ErrPersistence), ShouldBeTrue)

		matches, _ := fs.Matches(ctx, 1)
		So(len(matches), ShouldEqual, 1)

		stale, serr := p.Stale(ctx, 1)
		So(serr, ShouldBeNil)
		So(stale, ShouldBeTrue)

		Convey("And a rebuild repairs it once the store recovers", func() {
			fs.failPut = false
			_, err := p.RebuildScope(ctx, 1)
			So(err, ShouldBeNil)
			stale, serr := p.Stale(ctx, 1)
			So(serr, ShouldBeNil)
			So(stale, ShouldBeFalse)
		})
	})
}
