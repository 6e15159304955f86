// Package pipeline drives the rating engine over match events.
//
// Two paths mutate ratings: RecordMatch applies one paired update in
// real time, and RebuildScope replays a scope's full match history
// with day-bucketed inactivity decay. Given the same event order the
// two produce identical states, which makes RebuildScope the universal
// recovery tool after partial failures or manual history corrections.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fragrank/internal/adapters/repository"
	"fragrank/internal/domain/model"
	"fragrank/internal/domain/rating"
	"fragrank/pkg/logger"
	"fragrank/pkg/metrics"
)

// Pipeline orchestrates rating updates against a Store.
type Pipeline struct {
	store repository.Store
	log   logger.Logger

	// mu guards the scope lock map only; per-scope serialization is
	// done by the scope locks themselves.
	mu     sync.Mutex
	scopes map[int64]*sync.Mutex
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New constructs a Pipeline over the given store.
func New(store repository.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		scopes: make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("pipeline")
	}
	return p
}

// scopeLock returns the mutex serializing writers for one scope.
func (p *Pipeline) scopeLock(scope int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.scopes[scope]
	if !ok {
		l = &sync.Mutex{}
		p.scopes[scope] = l
	}
	return l
}

// RecordMatch applies one real-time match: winner beat loser at ts.
// The match event is durably appended before the rating writes, so a
// crash in between leaves ratings stale rather than the match lost;
// Stale detects that and RebuildScope repairs it.
func (p *Pipeline) RecordMatch(ctx context.Context, winner, loser string, scope int64, ts time.Time) error {
	if winner == "" || loser == "" || winner == loser {
		return fmt.Errorf("%w: winner %q vs loser %q", ErrInvalidMatch, winner, loser)
	}

	lock := p.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		metrics.RecordUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	wState, err := p.loadState(ctx, scope, winner)
	if err != nil {
		return err
	}
	lState, err := p.loadState(ctx, scope, loser)
	if err != nil {
		return err
	}

	// Simultaneous paired update: both sides see the opponent's
	// pre-update state.
	newW, err := rating.Update(wState, []rating.State{lState}, []float64{1})
	if err != nil {
		return fmt.Errorf("update winner %s: %w", winner, err)
	}
	newL, err := rating.Update(lState, []rating.State{wState}, []float64{0})
	if err != nil {
		return fmt.Errorf("update loser %s: %w", loser, err)
	}

	ev := model.MatchEvent{
		EventID: uuid.NewString(),
		Scope:   scope,
		Winner:  winner,
		Loser:   loser,
		TS:      ts,
	}
	if err := p.store.AppendMatch(ctx, ev); err != nil {
		metrics.RecordRatingError()
		return fmt.Errorf("%w: append match: %w", ErrPersistence, err)
	}
	metrics.RecordMatchRecorded()

	activity := ts
	if err := p.putState(ctx, scope, winner, newW, &activity); err != nil {
		return err
	}
	if err := p.putState(ctx, scope, loser, newL, &activity); err != nil {
		return err
	}
	metrics.RecordRatingUpdate()
	metrics.RecordRatingUpdate()

	p.log.Debug(ctx, "match recorded",
		logger.Int64("scope", scope),
		logger.String("winner", winner),
		logger.String("loser", loser),
		logger.Float64("winnerRating", newW.Rating),
		logger.Float64("loserRating", newL.Rating),
	)
	return nil
}

// RebuildResult summarizes a scope rebuild.
type RebuildResult struct {
	PlayersRebuilt int `json:"players_rebuilt"`
}

// RebuildScope discards a scope's rating states and recomputes them
// from the full match log. Matches are grouped into UTC calendar-day
// buckets; within a bucket they apply in original order, and after
// each day every tracked player without a match that day takes one
// decay step. Days with no matches at all still decay everyone.
// A scope with no history returns a zero result and no error.
func (p *Pipeline) RebuildScope(ctx context.Context, scope int64) (RebuildResult, error) {
	lock := p.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	matches, err := p.store.Matches(ctx, scope)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("%w: load matches: %w", ErrPersistence, err)
	}
	if len(matches) == 0 {
		p.log.Info(ctx, "rebuild of empty scope", logger.Int64("scope", scope))
		return RebuildResult{}, nil
	}

	if err := p.store.ResetRatings(ctx, scope); err != nil {
		return RebuildResult{}, fmt.Errorf("%w: reset ratings: %w", ErrPersistence, err)
	}

	buckets := bucketByDay(matches)
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	working := make(map[string]rating.State)
	lastSeen := make(map[string]time.Time)

	// Walk every calendar day from first to last; idle days still
	// contribute a decay step to everyone already tracked.
	for day := days[0]; !day.After(days[len(days)-1]); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return RebuildResult{}, fmt.Errorf("rebuild canceled: %w", err)
		}

		participated := make(map[string]bool)
		for _, m := range buckets[day] {
			w := p.workingState(working, m.Winner)
			l := p.workingState(working, m.Loser)

			newW, err := rating.Update(w, []rating.State{l}, []float64{1})
			if err != nil {
				return RebuildResult{}, fmt.Errorf("rebuild update %s: %w", m.Winner, err)
			}
			newL, err := rating.Update(l, []rating.State{w}, []float64{0})
			if err != nil {
				return RebuildResult{}, fmt.Errorf("rebuild update %s: %w", m.Loser, err)
			}

			working[m.Winner] = newW
			working[m.Loser] = newL
			participated[m.Winner] = true
			participated[m.Loser] = true
			lastSeen[m.Winner] = m.TS
			lastSeen[m.Loser] = m.TS
		}

		for player, st := range working {
			if !participated[player] {
				working[player] = rating.Decay(st)
			}
		}
	}

	states := make(map[string]model.RatingState, len(working))
	for player, st := range working {
		activity := lastSeen[player]
		states[player] = model.RatingState{
			Rating:       st.Rating,
			Deviation:    st.Deviation,
			Volatility:   st.Volatility,
			LastActivity: &activity,
		}
	}
	if err := p.store.PutRatings(ctx, scope, states); err != nil {
		return RebuildResult{}, fmt.Errorf("%w: persist rebuilt ratings: %w", ErrPersistence, err)
	}

	durationMs := float64(time.Since(start).Milliseconds())
	metrics.RecordRebuild(durationMs, len(working))
	p.log.Info(ctx, "scope rebuilt",
		logger.Int64("scope", scope),
		logger.Int("players", len(working)),
		logger.Int("matches", len(matches)),
		logger.Float64("durationMs", durationMs),
	)
	return RebuildResult{PlayersRebuilt: len(working)}, nil
}

// Rating returns the stored state for (scope, player), or the default
// tuple with no last activity when none exists.
func (p *Pipeline) Rating(ctx context.Context, scope int64, player string) (model.RatingState, error) {
	st, ok, err := p.store.Rating(ctx, scope, player)
	if err != nil {
		return model.RatingState{}, fmt.Errorf("%w: read rating: %w", ErrPersistence, err)
	}
	if !ok {
		def := rating.Default()
		return model.RatingState{
			Rating:     def.Rating,
			Deviation:  def.Deviation,
			Volatility: def.Volatility,
		}, nil
	}
	return st, nil
}

// Adjustment describes a manual rating override.
type Adjustment struct {
	// Delta switches the Rating field from an absolute target to an
	// offset from the current rating.
	Delta bool

	Rating float64

	// Optional overrides; nil leaves the stored value alone.
	Deviation  *float64
	Volatility *float64
}

// AdjustRating bypasses the engine and overwrites a player's rating,
// recording one audit entry. The adjustment applies on top of the
// default state when the player has no stored state yet.
func (p *Pipeline) AdjustRating(ctx context.Context, scope int64, player string, adj Adjustment, reason string) (model.AuditEntry, error) {
	lock := p.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	st, err := p.Rating(ctx, scope, player)
	if err != nil {
		return model.AuditEntry{}, err
	}

	old := st.Rating
	if adj.Delta {
		st.Rating = old + adj.Rating
	} else {
		st.Rating = adj.Rating
	}
	if adj.Deviation != nil {
		st.Deviation = *adj.Deviation
	}
	if adj.Volatility != nil {
		st.Volatility = *adj.Volatility
	}

	entry := model.AuditEntry{
		Scope:     scope,
		Player:    player,
		OldRating: old,
		NewRating: st.Rating,
		Reason:    reason,
		TS:        time.Now().UTC(),
	}
	// Audit first: an override without a trace is worse than a trace
	// without an override.
	if err := p.store.AppendAudit(ctx, entry); err != nil {
		return model.AuditEntry{}, fmt.Errorf("%w: append audit: %w", ErrPersistence, err)
	}
	if err := p.store.PutRating(ctx, scope, player, st); err != nil {
		return model.AuditEntry{}, fmt.Errorf("%w: write adjusted rating: %w", ErrPersistence, err)
	}
	metrics.RecordManualAdjustment()

	p.log.Info(ctx, "manual rating adjustment",
		logger.Int64("scope", scope),
		logger.String("player", player),
		logger.Float64("oldRating", old),
		logger.Float64("newRating", st.Rating),
		logger.String("reason", reason),
	)
	return entry, nil
}

// Stale reports whether a scope's ratings lag its match log, i.e. a
// match was recorded whose rating write never landed.
func (p *Pipeline) Stale(ctx context.Context, scope int64) (bool, error) {
	lastMatch, ok, err := p.store.LastMatchTS(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("%w: read last match: %w", ErrPersistence, err)
	}
	if !ok {
		return false, nil
	}
	lastActivity, ok, err := p.store.LastActivity(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("%w: read last activity: %w", ErrPersistence, err)
	}
	if !ok {
		return true, nil
	}
	return lastActivity.Before(lastMatch), nil
}

func (p *Pipeline) loadState(ctx context.Context, scope int64, player string) (rating.State, error) {
	st, ok, err := p.store.Rating(ctx, scope, player)
	if err != nil {
		return rating.State{}, fmt.Errorf("%w: read rating for %s: %w", ErrPersistence, player, err)
	}
	if !ok {
		return rating.Default(), nil
	}
	return rating.State{Rating: st.Rating, Deviation: st.Deviation, Volatility: st.Volatility}, nil
}

func (p *Pipeline) putState(ctx context.Context, scope int64, player string, st rating.State, activity *time.Time) error {
	err := p.store.PutRating(ctx, scope, player, model.RatingState{
		Rating:       st.Rating,
		Deviation:    st.Deviation,
		Volatility:   st.Volatility,
		LastActivity: activity,
	})
	if err != nil {
		metrics.RecordRatingError()
		return fmt.Errorf("%w: write rating for %s: %w", ErrPersistence, player, err)
	}
	return nil
}

func (p *Pipeline) workingState(working map[string]rating.State, player string) rating.State {
	if st, ok := working[player]; ok {
		return st
	}
	return rating.Default()
}

// bucketByDay groups matches by UTC calendar day, preserving order
// within each bucket.
func bucketByDay(matches []model.MatchEvent) map[time.Time][]model.MatchEvent {
	buckets := make(map[time.Time][]model.MatchEvent)
	for _, m := range matches {
		day := m.TS.UTC().Truncate(24 * time.Hour)
		buckets[day] = append(buckets[day], m)
	}
	return buckets
}
