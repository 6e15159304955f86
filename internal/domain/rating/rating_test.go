package rating_test

import (
	"errors"
	"math"
	"testing"

	"fragrank/internal/domain/rating"

	. "github.com/smartystreets/goconvey/convey"
)

const eps = 1e-6

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestUpdate(t *testing.T) {
	testcases := []struct {
		name      string
		player    rating.State
		opponents []rating.State
		outcomes  []float64
		wantR     float64
		wantRD    float64
	}{
		{
			name:      "default beats default",
			player:    rating.Default(),
			opponents: []rating.State{rating.Default()},
			outcomes:  []float64{1},
			wantR:     1662.3108949761174,
			wantRD:    290.3189646747521,
		},
		{
			name:      "default loses to default",
			player:    rating.Default(),
			opponents: []rating.State{rating.Default()},
			outcomes:  []float64{0},
			wantR:     1337.6891050238826,
			wantRD:    290.3189646747521,
		},
		{
			name:      "underdog upset win",
			player:    rating.State{Rating: 1400, Deviation: 80, Volatility: 0.06},
			opponents: []rating.State{{Rating: 1550, Deviation: 120, Volatility: 0.06}},
			outcomes:  []float64{1},
			wantR:     1423.2749392323947,
			wantRD:    79.10243881093723,
		},
		{
			name:   "multiple opponents in one period",
			player: rating.State{Rating: 1500, Deviation: 200, Volatility: 0.06},
			opponents: []rating.State{
				{Rating: 1400, Deviation: 30, Volatility: 0.06},
				{Rating: 1550, Deviation: 100, Volatility: 0.06},
				{Rating: 1700, Deviation: 300, Volatility: 0.06},
			},
			outcomes: []float64{1, 0, 0},
			wantR:    1464.050663079054,
			wantRD:   151.51653984530088,
		},
	}

	for _, tc := range testcases {
		got, err := rating.Update(tc.player, tc.opponents, tc.outcomes)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !closeEnough(got.Rating, tc.wantR) {
			t.Errorf("%s: rating = %v, want %v", tc.name, got.Rating, tc.wantR)
		}
		if !closeEnough(got.Deviation, tc.wantRD) {
			t.Errorf("%s: deviation = %v, want %v", tc.name, got.Deviation, tc.wantRD)
		}
		if got.Volatility != tc.player.Volatility {
			t.Errorf("%s: volatility changed from %v to %v", tc.name, tc.player.Volatility, got.Volatility)
		}
	}
}

func TestUpdateErrors(t *testing.T) {
	Convey("Given the rating engine", t, func() {
		Convey("When opponent and outcome lengths differ", func() {
			_, err := rating.Update(rating.Default(), []rating.State{rating.Default()}, []float64{1, 0})
			So(errors.Is(err, rating.ErrArgumentMismatch), ShouldBeTrue)
		})

		Convey("When no opponents are supplied", func() {
			_, err := rating.Update(rating.Default(), nil, nil)
			So(errors.Is(err, rating.ErrArgumentMismatch), ShouldBeTrue)
		})

		Convey("When an opponent deviation is non-positive", func() {
			opp := rating.State{Rating: 1500, Deviation: 0, Volatility: 0.06}
			_, err := rating.Update(rating.Default(), []rating.State{opp}, []float64{1})
			So(errors.Is(err, rating.ErrInvalidState), ShouldBeTrue)

			opp.Deviation = -10
			_, err = rating.Update(rating.Default(), []rating.State{opp}, []float64{1})
			So(errors.Is(err, rating.ErrInvalidState), ShouldBeTrue)
		})

		Convey("When the player's own state is invalid", func() {
			bad := rating.State{Rating: math.NaN(), Deviation: 350, Volatility: 0.06}
			_, err := rating.Update(bad, []rating.State{rating.Default()}, []float64{1})
			So(errors.Is(err, rating.ErrInvalidState), ShouldBeTrue)
		})
	})
}

func TestDecay(t *testing.T) {
	Convey("Given a player with deviation below the ceiling", t, func() {
		s := rating.State{Rating: 1600, Deviation: 100, Volatility: 0.06}

		Convey("When one decay period is applied", func() {
			got := rating.Decay(s)

			Convey("Then deviation grows to sqrt(rd^2 + c^2)", func() {
				So(got.Deviation, ShouldAlmostEqual, 105.81663385309514, eps)
				So(got.Rating, ShouldEqual, 1600)
				So(got.Volatility, ShouldEqual, 0.06)
			})

			Convey("And deviation grows strictly until the ceiling", func() {
				prev := got.Deviation
				for i := 0; i < 200; i++ {
					next := rating.Decay(rating.State{Rating: 1600, Deviation: prev, Volatility: 0.06})
					So(next.Deviation, ShouldBeLessThanOrEqualTo, rating.MaxDeviation)
					if prev < rating.MaxDeviation {
						So(next.Deviation, ShouldBeGreaterThan, prev)
					}
					prev = next.Deviation
				}
				So(prev, ShouldEqual, rating.MaxDeviation)
			})
		})
	})

	Convey("Given a player already at the deviation ceiling", t, func() {
		s := rating.Default()

		Convey("Then decay is a no-op", func() {
			got := rating.Decay(s)
			So(got.Deviation, ShouldEqual, rating.MaxDeviation)
			got = rating.Decay(got)
			So(got.Deviation, ShouldEqual, rating.MaxDeviation)
		})
	})
}

func TestDefault(t *testing.T) {
	Convey("Default state is the canonical fresh-player tuple", t, func() {
		s := rating.Default()
		So(s.Rating, ShouldEqual, 1500.0)
		So(s.Deviation, ShouldEqual, 350.0)
		So(s.Volatility, ShouldEqual, 0.06)
	})
}

func TestUpdateSymmetry(t *testing.T) {
	Convey("Given two fresh players playing one match", t, func() {
		a := rating.Default()
		b := rating.Default()

		winner, err := rating.Update(a, []rating.State{b}, []float64{1})
		So(err, ShouldBeNil)
		loser, err := rating.Update(b, []rating.State{a}, []float64{0})
		So(err, ShouldBeNil)

		Convey("Then gains and losses mirror around the center", func() {
			So(winner.Rating, ShouldBeGreaterThan, 1500)
			So(loser.Rating, ShouldBeLessThan, 1500)
			So(winner.Rating-1500, ShouldAlmostEqual, 1500-loser.Rating, eps)
		})

		Convey("And both deviations shrink from the maximum", func() {
			So(winner.Deviation, ShouldBeLessThan, 350)
			So(loser.Deviation, ShouldBeLessThan, 350)
		})
	})
}
