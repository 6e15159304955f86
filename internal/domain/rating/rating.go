// Package rating implements the Glicko-2 skill rating math.
//
// The implementation follows Glickman's paper with one deliberate
// deviation: the volatility re-estimation step (the iterative
// root-finding in step 5 of the paper) is skipped and volatility is
// carried through unchanged. The historical ratings this service must
// reproduce were computed that way, so changing it would silently
// rewrite every player's number.
package rating

import (
	"math"
)

// Scale constants on the public 1500-centered scale.
const (
	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06

	// MaxDeviation is the ceiling for rating deviation. A player at
	// the ceiling carries no rating information.
	MaxDeviation = 350.0

	// glickoScale converts between the public scale and the internal
	// mu/phi scale.
	glickoScale = 173.7178

	// decayC controls how fast deviation grows per inactive rating
	// period.
	decayC = 34.6
)

// State is one player's rating tuple. The zero value is not valid;
// use Default for new players.
type State struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Default returns the state assigned to a player with no match history.
func Default() State {
	return State{
		Rating:     DefaultRating,
		Deviation:  DefaultDeviation,
		Volatility: DefaultVolatility,
	}
}

// Decay widens a player's deviation for one rating period without
// matches. Rating and volatility are unchanged. Deviation never
// exceeds MaxDeviation, so repeated calls at the ceiling are no-ops.
func Decay(s State) State {
	s.Deviation = math.Min(math.Sqrt(s.Deviation*s.Deviation+decayC*decayC), MaxDeviation)
	return s
}

// Update computes a player's new state after a series of games against
// opponents, with outcomes[i] the result against opponents[i] from
// this player's perspective (1 = win, 0 = loss). The opponent states
// must be their states before any of these games were applied.
func Update(s State, opponents []State, outcomes []float64) (State, error) {
	if len(opponents) == 0 || len(opponents) != len(outcomes) {
		return State{}, ErrArgumentMismatch
	}
	if !valid(s) {
		return State{}, ErrInvalidState
	}
	for _, o := range opponents {
		if !valid(o) {
			return State{}, ErrInvalidState
		}
	}

	mu := (s.Rating - DefaultRating) / glickoScale
	phi := s.Deviation / glickoScale

	// Estimated variance of the rating from game outcomes, and the
	// outcome-weighted improvement sum.
	var vInv, improvement float64
	for i, o := range opponents {
		oppMu := (o.Rating - DefaultRating) / glickoScale
		oppPhi := o.Deviation / glickoScale
		gj := g(oppPhi)
		ej := expectedScore(gj, mu, oppMu)
		vInv += gj * gj * ej * (1 - ej)
		improvement += gj * (outcomes[i] - ej)
	}
	v := 1 / vInv

	phiStar := math.Sqrt(phi*phi + s.Volatility*s.Volatility)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*improvement

	s.Rating = glickoScale*muNew + DefaultRating
	s.Deviation = glickoScale * phiNew
	return s, nil
}

// g dampens an opponent's influence by their deviation on the
// internal scale.
func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expectedScore is the win probability against one opponent.
func expectedScore(g, mu, oppMu float64) float64 {
	return 1 / (1 + math.Exp(-g*(mu-oppMu)))
}

func valid(s State) bool {
	switch {
	case s.Deviation <= 0 || s.Deviation > MaxDeviation:
		return false
	case math.IsNaN(s.Rating) || math.IsInf(s.Rating, 0):
		return false
	case math.IsNaN(s.Deviation) || math.IsNaN(s.Volatility):
		return false
	case s.Volatility < 0:
		return false
	}
	return true
}
